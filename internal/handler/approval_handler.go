package handler

import (
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/models"
	"github.com/mksu-dev/clearance-api/internal/service"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
	"github.com/mksu-dev/clearance-api/pkg/response"
)

// ApprovalHandler exposes departmental approval endpoints.
type ApprovalHandler struct {
	approvals *service.ApprovalService
}

// NewApprovalHandler constructs ApprovalHandler.
func NewApprovalHandler(approvals *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals}
}

// List godoc
// @Summary List approval records
// @Tags Approvals
// @Produce json
// @Param requestId query string false "Filter by clearance request"
// @Param departmentId query string false "Filter by department"
// @Param status query string false "Filter by approval status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /approvals [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	var filter models.ApprovalFilter
	filter.RequestID = c.Query("requestId")
	filter.DepartmentID = c.Query("departmentId")
	if status := c.Query("status"); status != "" {
		v := models.ApprovalStatus(status)
		filter.Status = &v
	}
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	approvals, total, err := h.approvals.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, paginated(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get approval record detail
// @Tags Approvals
// @Produce json
// @Param id path string true "Approval ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id} [get]
func (h *ApprovalHandler) Get(c *gin.Context) {
	approval, err := h.approvals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// Decide godoc
// @Summary Approve or reject an approval record
// @Description Decisions must follow the frozen department order; rejection requires a reason
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body dto.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/{id}/decision [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	approval, err := h.approvals.Decide(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// BulkDecide godoc
// @Summary Apply decisions to multiple approval records
// @Description Items succeed or fail independently
// @Tags Approvals
// @Accept json
// @Produce json
// @Param payload body dto.BulkDecisionRequest true "Bulk decision payload"
// @Success 200 {object} response.Envelope
// @Router /approvals/bulk-decision [post]
func (h *ApprovalHandler) BulkDecide(c *gin.Context) {
	var req dto.BulkDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk decision payload"))
		return
	}
	report, err := h.approvals.BulkDecide(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// PendingQueue godoc
// @Summary List actionable approvals for a department
// @Description Only records that are next in order on active requests
// @Tags Approvals
// @Produce json
// @Param departmentId query string false "Department ID (admin only; staff are scoped to their own)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /approvals/pending [get]
func (h *ApprovalHandler) PendingQueue(c *gin.Context) {
	page, size := pageParams(c)
	approvals, total, err := h.approvals.PendingQueue(c.Request.Context(), claimsFromContext(c), c.Query("departmentId"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, paginated(page, size, total))
}

// MyDecisions godoc
// @Summary List decisions made by the current user
// @Tags Approvals
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /approvals/my-decisions [get]
func (h *ApprovalHandler) MyDecisions(c *gin.Context) {
	page, size := pageParams(c)
	approvals, total, err := h.approvals.MyDecisions(c.Request.Context(), claimsFromContext(c), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, paginated(page, size, total))
}

// Statistics godoc
// @Summary Per-department approval statistics
// @Tags Approvals
// @Produce json
// @Param departmentId query string false "Department ID (staff are scoped to their own)"
// @Success 200 {object} response.Envelope
// @Router /approvals/statistics [get]
func (h *ApprovalHandler) Statistics(c *gin.Context) {
	stats, err := h.approvals.Statistics(c.Request.Context(), claimsFromContext(c), c.Query("departmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// UploadEvidence godoc
// @Summary Attach an evidence document to a pending approval
// @Tags Approvals
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Approval ID"
// @Param file formData file true "Evidence file (pdf, png, jpg)"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id}/evidence [post]
func (h *ApprovalHandler) UploadEvidence(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "evidence file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read evidence file"))
		return
	}
	defer file.Close()

	approval, err := h.approvals.AttachEvidence(c.Request.Context(), c.Param("id"), fileHeader.Filename, fileHeader.Size, file, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// EvidenceURL godoc
// @Summary Get a signed download URL for attached evidence
// @Tags Approvals
// @Produce json
// @Param id path string true "Approval ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id}/evidence-url [get]
func (h *ApprovalHandler) EvidenceURL(c *gin.Context) {
	url, expiresAt, err := h.approvals.EvidenceURL(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"url": url, "expires_at": expiresAt}, nil)
}

// DownloadEvidence godoc
// @Summary Download evidence via a signed token
// @Tags Approvals
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /evidence [get]
func (h *ApprovalHandler) DownloadEvidence(c *gin.Context) {
	file, err := h.approvals.OpenEvidence(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read evidence file"))
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(file.Name()))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, map[string]string{
		"Content-Disposition": "attachment; filename=" + filepath.Base(file.Name()),
	})
}
