package handler

import (
	"net/http"

	"fulfillment/internal/dto"
	"fulfillment/internal/service"

	"github.com/gin-gonic/gin"
)

type DeliveriesHandler struct{ svc service.DeliveryService }

func NewDeliveriesHandler(svc service.DeliveryService) *DeliveriesHandler {
	return &DeliveriesHandler{svc: svc}
}

// Create godoc
// @Summary Records a delivery of serialized units
// @Description Serial numbers must be unique within the request and across all
// @Description stored deliveries; any duplicate rejects the whole request.
// @Tags deliveries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay key"
// @Param body body dto.CreateDeliveryRequest true "Delivery"
// @Success 201 {object} dto.DeliveryResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/deliveries/ [post]
func (h *DeliveriesHandler) Create(c *gin.Context) {
	var req dto.CreateDeliveryRequest
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
// @Summary Lists deliveries, newest ship date first
// @Tags deliveries
// @Produce json
// @Security BearerAuth
// @Param customer_id query string false "Customer"
// @Param status query string false "OPEN or CLOSED"
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(50)
// @Success 200 {object} dto.DeliveryListResponse
// @Router /v1/deliveries/ [get]
func (h *DeliveriesHandler) List(c *gin.Context) {
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
// @Summary Gets a delivery
// @Tags deliveries
// @Produce json
// @Security BearerAuth
// @Param id path string true "Delivery ID"
// @Success 200 {object} dto.DeliveryResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/deliveries/{id}/ [get]
func (h *DeliveriesHandler) Get(c *gin.Context) {
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

// Close godoc
// @Summary Closes a delivery
// @Tags deliveries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Delivery ID"
// @Success 200 {object} dto.DeliveryResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/deliveries/{id}/close/ [post]
func (h *DeliveriesHandler) Close(c *gin.Context) {
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
// @Summary Deletes an open delivery and releases the delivered counters
// @Tags deliveries
// @Security BearerAuth
// @Param id path string true "Delivery ID"
// @Success 204
// @Failure 409 {object} apierror.APIError
// @Router /v1/deliveries/{id}/ [delete]
func (h *DeliveriesHandler) Delete(c *gin.Context) {
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
