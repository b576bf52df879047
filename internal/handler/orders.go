package handler

import (
	"net/http"

	"fulfillment/internal/dto"
	"fulfillment/internal/service"

	"github.com/gin-gonic/gin"
)

type OrdersHandler struct {
	svc         service.OrderService
	fulfillment service.FulfillmentService
}

func NewOrdersHandler(svc service.OrderService, fulfillment service.FulfillmentService) *OrdersHandler {
	return &OrdersHandler{svc: svc, fulfillment: fulfillment}
}

// Create godoc
// @Summary Creates an order
// @Description With allocate_from_po each line is drawn from the customer's open
// @Description purchase orders, oldest start date first; one order line is created
// @Description per PO line item touched. The whole request fails with 409
// @Description no_capacity when the open POs cannot cover a line.
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay key"
// @Param body body dto.CreateOrderRequest true "Order"
// @Success 201 {object} dto.OrderResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/orders/ [post]
func (h *OrdersHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), actorFrom(c), req, requestKeys(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary Lists orders
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param customer_id query string false "Customer"
// @Param status query string false "OPEN or CLOSED"
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(50)
// @Success 200 {object} dto.OrderListResponse
// @Router /v1/orders/ [get]
func (h *OrdersHandler) List(c *gin.Context) {
	var filter dto.DocumentFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary Gets an order with its fulfillment status
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} dto.OrderResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/orders/{id}/ [get]
func (h *OrdersHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Fulfillment godoc
// @Summary Fulfillment view of an order
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} dto.OrderFulfillmentStatus
// @Failure 404 {object} apierror.APIError
// @Router /v1/orders/{id}/fulfillment/ [get]
func (h *OrdersHandler) Fulfillment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.fulfillment.OrderStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AddLineItems godoc
// @Summary Adds line items to an open order
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param Idempotency-Key header string false "Replay key"
// @Param body body dto.AddOrderLineItemsRequest true "Line items"
// @Success 201 {object} dto.OrderResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/orders/{id}/line-items/ [post]
func (h *OrdersHandler) AddLineItems(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.AddOrderLineItemsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AddLineItems(c.Request.Context(), actorFrom(c), id, req, requestKeys(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// RemoveLineItem godoc
// @Summary Removes an undelivered line item and releases its allocation
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param lineItemId path string true "Line item ID"
// @Success 200 {object} dto.OrderResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/orders/{id}/line-items/{lineItemId}/ [delete]
func (h *OrdersHandler) RemoveLineItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	lineID, ok := parseID(c, "lineItemId")
	if !ok {
		return
	}
	resp, err := h.svc.RemoveLineItem(c.Request.Context(), actorFrom(c), id, lineID, requestKeys(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Close godoc
// @Summary Closes an order
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param body body dto.CloseRequest false "Override"
// @Success 200 {object} dto.OrderResponse
// @Failure 400 {object} apierror.APIError
// @Failure 403 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/orders/{id}/close/ [post]
func (h *OrdersHandler) Close(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.CloseRequest
	if !bindCloseRequest(c, &req) {
		return
	}
	resp, err := h.svc.Close(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Delete godoc
// @Summary Deletes an open order without deliveries, releasing its allocations
// @Tags orders
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 204
// @Failure 409 {object} apierror.APIError
// @Router /v1/orders/{id}/ [delete]
func (h *OrdersHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actorFrom(c), id, requestKeys(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
