package handler

import (
	"net/http"
	"path/filepath"

	"fulfillment/internal/dto"
	"fulfillment/internal/service"

	"github.com/gin-gonic/gin"
)

type PurchaseOrdersHandler struct {
	svc         service.PurchaseOrderService
	fulfillment service.FulfillmentService
	reports     service.ReportService
}

func NewPurchaseOrdersHandler(svc service.PurchaseOrderService, fulfillment service.FulfillmentService, reports service.ReportService) *PurchaseOrdersHandler {
	return &PurchaseOrdersHandler{svc: svc, fulfillment: fulfillment, reports: reports}
}

// Create godoc
// @Summary Creates a purchase order
// @Tags purchase-orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CreatePurchaseOrderRequest true "Purchase order"
// @Success 201 {object} dto.PurchaseOrderResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/purchase-orders/ [post]
func (h *PurchaseOrdersHandler) Create(c *gin.Context) {
	var req dto.CreatePurchaseOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary Lists purchase orders
// @Tags purchase-orders
// @Produce json
// @Security BearerAuth
// @Param customer_id query string false "Customer"
// @Param status query string false "OPEN or CLOSED"
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(50)
// @Success 200 {object} dto.PurchaseOrderListResponse
// @Router /v1/purchase-orders/ [get]
func (h *PurchaseOrdersHandler) List(c *gin.Context) {
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
// @Summary Gets a purchase order with its fulfillment status
// @Tags purchase-orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Purchase order ID"
// @Success 200 {object} dto.PurchaseOrderResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/purchase-orders/{id}/ [get]
func (h *PurchaseOrdersHandler) Get(c *gin.Context) {
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
// @Summary Fulfillment view of a purchase order
// @Tags purchase-orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Purchase order ID"
// @Success 200 {object} dto.POFulfillmentStatus
// @Failure 404 {object} apierror.APIError
// @Router /v1/purchase-orders/{id}/fulfillment/ [get]
func (h *PurchaseOrdersHandler) Fulfillment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.fulfillment.POStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Ledger godoc
// @Summary Journal of ordered and waived movements on the PO's line items
// @Tags purchase-orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Purchase order ID"
// @Success 200 {array} dto.LedgerEntryResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/purchase-orders/{id}/ledger/ [get]
func (h *PurchaseOrdersHandler) Ledger(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Ledger(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AddLineItem godoc
// @Summary Adds a line item to an open purchase order
// @Tags purchase-orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Purchase order ID"
// @Param body body dto.POLineItemRequest true "Line item"
// @Success 201 {object} dto.PurchaseOrderResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/purchase-orders/{id}/line-items/ [post]
func (h *PurchaseOrdersHandler) AddLineItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.POLineItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AddLineItem(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// RemoveLineItem godoc
// @Summary Removes an untouched line item from an open purchase order
// @Tags purchase-orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Purchase order ID"
// @Param lineItemId path string true "Line item ID"
// @Success 200 {object} dto.PurchaseOrderResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/purchase-orders/{id}/line-items/{lineItemId}/ [delete]
func (h *PurchaseOrdersHandler) RemoveLineItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	lineID, ok := parseID(c, "lineItemId")
	if !ok {
		return
	}
	resp, err := h.svc.RemoveLineItem(c.Request.Context(), actorFrom(c), id, lineID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Waive godoc
// @Summary Waives part of a line item's remaining quantity
// @Tags purchase-orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Purchase order ID"
// @Param Idempotency-Key header string false "Replay key"
// @Param body body dto.WaiveRequest true "Waive"
// @Success 200 {object} dto.WaiveResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/purchase-orders/{id}/waive/ [post]
func (h *PurchaseOrdersHandler) Waive(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.WaiveRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Waive(c.Request.Context(), actorFrom(c), id, req, requestKeys(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Close godoc
// @Summary Closes a purchase order
// @Description Blocked with 409 while line items have remaining quantity unless
// @Description an administrator sets admin_override with an override_reason.
// @Tags purchase-orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Purchase order ID"
// @Param body body dto.CloseRequest false "Override"
// @Success 200 {object} dto.PurchaseOrderResponse
// @Failure 400 {object} apierror.APIError
// @Failure 403 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/purchase-orders/{id}/close/ [post]
func (h *PurchaseOrdersHandler) Close(c *gin.Context) {
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
// @Summary Deletes a purchase order without dependents
// @Tags purchase-orders
// @Security BearerAuth
// @Param id path string true "Purchase order ID"
// @Success 204
// @Failure 409 {object} apierror.APIError
// @Router /v1/purchase-orders/{id}/ [delete]
func (h *PurchaseOrdersHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReportPDF godoc
// @Summary Downloads the fulfillment report as PDF
// @Tags purchase-orders
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Purchase order ID"
// @Success 200 {file} binary
// @Failure 404 {object} apierror.APIError
// @Router /v1/purchase-orders/{id}/report.pdf [get]
func (h *PurchaseOrdersHandler) ReportPDF(c *gin.Context) { h.report(c, "pdf") }

// ReportXLSX godoc
// @Summary Downloads the fulfillment report as XLSX
// @Tags purchase-orders
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param id path string true "Purchase order ID"
// @Success 200 {file} binary
// @Failure 404 {object} apierror.APIError
// @Router /v1/purchase-orders/{id}/report.xlsx [get]
func (h *PurchaseOrdersHandler) ReportXLSX(c *gin.Context) { h.report(c, "xlsx") }

func (h *PurchaseOrdersHandler) report(c *gin.Context, format string) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	path, err := h.reports.PurchaseOrderReport(c.Request.Context(), id, format)
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}
