package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mksu-dev/clearance-api/internal/models"
	"github.com/mksu-dev/clearance-api/internal/service"
	"github.com/mksu-dev/clearance-api/pkg/response"
)

// AuditHandler exposes the audit trail, admin only.
type AuditHandler struct {
	audits *service.AuditService
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audits *service.AuditService) *AuditHandler {
	return &AuditHandler{audits: audits}
}

// List godoc
// @Summary List audit log entries
// @Tags Audit
// @Produce json
// @Param actorId query string false "Filter by actor"
// @Param action query string false "Filter by action"
// @Param entity query string false "Filter by entity type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	var filter models.AuditFilter
	filter.ActorID = c.Query("actorId")
	filter.Action = c.Query("action")
	filter.Entity = c.Query("entity")
	filter.Page, filter.PageSize = pageParams(c)

	entries, total, err := h.audits.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, paginated(filter.Page, filter.PageSize, total))
}

// Trail godoc
// @Summary Get the audit trail for one entity
// @Tags Audit
// @Produce json
// @Param entity path string true "Entity type"
// @Param id path string true "Entity ID"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /audit-logs/{entity}/{id} [get]
func (h *AuditHandler) Trail(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.audits.Trail(c.Request.Context(), c.Param("entity"), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
