package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/afetnet/mesh-registry-api/internal/models"
	"github.com/afetnet/mesh-registry-api/internal/service"
	appErrors "github.com/afetnet/mesh-registry-api/pkg/errors"
	"github.com/afetnet/mesh-registry-api/pkg/response"
)

// GatewayHandler wires HTTP endpoints to the gateway service.
type GatewayHandler struct {
	service *service.GatewayService
}

// NewGatewayHandler creates a new handler.
func NewGatewayHandler(svc *service.GatewayService) *GatewayHandler {
	return &GatewayHandler{service: svc}
}

// Create godoc
// @Summary Register a gateway device
// @Tags Gateways
// @Accept json
// @Produce json
// @Param payload body models.CreateGatewayRequest true "Gateway payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /gateways [post]
func (h *GatewayHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateGatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid gateway payload"))
		return
	}

	gw, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gw)
}

// Get godoc
// @Summary Get a gateway
// @Tags Gateways
// @Produce json
// @Param id path string true "Gateway ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /gateways/{id} [get]
func (h *GatewayHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	gw, err := h.service.Get(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gw, nil)
}

// List godoc
// @Summary List gateways
// @Tags Gateways
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /gateways [get]
func (h *GatewayHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.GatewayFilter{
		Search: c.Query("search"),
		Page:   queryInt(c, "page", 1),
	}
	filter.PageSize = queryInt(c, "page_size", 20)
	if raw := c.Query("status"); raw != "" {
		status := models.GatewayStatus(raw)
		filter.Status = &status
	}

	gateways, total, err := h.service.List(c.Request.Context(), claims.UserID, claims.Role, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gateways, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Update godoc
// @Summary Update a gateway
// @Tags Gateways
// @Accept json
// @Produce json
// @Param id path string true "Gateway ID"
// @Param payload body models.UpdateGatewayRequest true "Gateway payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /gateways/{id} [put]
func (h *GatewayHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateGatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid gateway payload"))
		return
	}

	gw, err := h.service.Update(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gw, nil)
}

// Delete godoc
// @Summary Decommission a gateway
// @Tags Gateways
// @Produce json
// @Param id path string true "Gateway ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /gateways/{id} [delete]
func (h *GatewayHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), claims.UserID, claims.Role, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
