package handler

import (
	"net/http"

	"fulfillment/internal/dto"
	"fulfillment/internal/service"

	"github.com/gin-gonic/gin"
)

type ItemsHandler struct{ svc service.CatalogService }

func NewItemsHandler(svc service.CatalogService) *ItemsHandler { return &ItemsHandler{svc: svc} }

// List godoc
// @Summary Lists catalog items
// @Tags items
// @Produce json
// @Security BearerAuth
// @Param name query string false "Name contains"
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(100)
// @Success 200 {object} dto.ItemListResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/items [get]
func (h *ItemsHandler) List(c *gin.Context) {
	var filter dto.ItemFilter
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
// @Summary Gets a catalog item
// @Tags items
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Success 200 {object} dto.ItemResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/items/{id} [get]
func (h *ItemsHandler) Get(c *gin.Context) {
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
