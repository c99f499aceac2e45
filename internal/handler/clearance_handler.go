package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/models"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
	"github.com/mksu-dev/clearance-api/pkg/response"
)

type clearanceService interface {
	Create(ctx context.Context, req dto.CreateClearanceRequest, actor *models.JWTClaims) (*models.ClearanceRequest, error)
	Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.ClearanceRequest, error)
	List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceDetail, int, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ClearanceDetail, error)
	Progress(ctx context.Context, id string, actor *models.JWTClaims) (*models.ClearanceProgress, error)
	Statistics(ctx context.Context) (*models.ClearanceStatistics, error)
	Certificate(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, error)
}

type studentResolver interface {
	GetByUser(ctx context.Context, userID string) (*models.StudentDetail, error)
}

// ClearanceHandler exposes clearance request lifecycle endpoints.
type ClearanceHandler struct {
	clearances clearanceService
	students   studentResolver
}

// NewClearanceHandler constructs ClearanceHandler.
func NewClearanceHandler(clearances clearanceService, students studentResolver) *ClearanceHandler {
	return &ClearanceHandler{clearances: clearances, students: students}
}

// Create godoc
// @Summary Open a clearance request
// @Description Freezes the active department sequence into the approval ledger
// @Tags Clearance
// @Accept json
// @Produce json
// @Param payload body dto.CreateClearanceRequest true "Clearance payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /clearance-requests [post]
func (h *ClearanceHandler) Create(c *gin.Context) {
	var req dto.CreateClearanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid clearance payload"))
		return
	}
	request, err := h.clearances.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Submit godoc
// @Summary Submit a clearance request
// @Description Requires a verified fee payment
// @Tags Clearance
// @Produce json
// @Param id path string true "Clearance request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /clearance-requests/{id}/submit [post]
func (h *ClearanceHandler) Submit(c *gin.Context) {
	request, err := h.clearances.Submit(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// List godoc
// @Summary List clearance requests
// @Description Students only see their own requests
// @Tags Clearance
// @Produce json
// @Param status query string false "Filter by status"
// @Param studentId query string false "Filter by student (staff only)"
// @Param faculty query string false "Filter by faculty"
// @Param graduationYear query int false "Filter by graduation year"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /clearance-requests [get]
func (h *ClearanceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.ClearanceFilter
	filter.StudentID = c.Query("studentId")
	if status := c.Query("status"); status != "" {
		v := models.ClearanceStatus(status)
		filter.Status = &v
	}
	filter.Faculty = c.Query("faculty")
	if year := c.Query("graduationYear"); year != "" {
		if v, err := strconv.Atoi(year); err == nil {
			filter.GraduationYear = &v
		}
	}
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	if claims.Role == models.RoleStudent {
		student, err := h.students.GetByUser(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		filter.StudentID = student.ID
	}

	requests, total, err := h.clearances.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, paginated(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get clearance request detail
// @Tags Clearance
// @Produce json
// @Param id path string true "Clearance request ID"
// @Success 200 {object} response.Envelope
// @Router /clearance-requests/{id} [get]
func (h *ClearanceHandler) Get(c *gin.Context) {
	detail, err := h.clearances.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Progress godoc
// @Summary Get per-department approval progress
// @Description Completion percentage is computed against the live department count
// @Tags Clearance
// @Produce json
// @Param id path string true "Clearance request ID"
// @Success 200 {object} response.Envelope
// @Router /clearance-requests/{id}/progress [get]
func (h *ClearanceHandler) Progress(c *gin.Context) {
	progress, err := h.clearances.Progress(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Statistics godoc
// @Summary Clearance request statistics
// @Tags Clearance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /clearance-requests/statistics [get]
func (h *ClearanceHandler) Statistics(c *gin.Context) {
	stats, err := h.clearances.Statistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Certificate godoc
// @Summary Download the clearance certificate
// @Description Only available once every department has approved
// @Tags Clearance
// @Produce application/pdf
// @Param id path string true "Clearance request ID"
// @Success 200 {file} binary
// @Failure 409 {object} response.Envelope
// @Router /clearance-requests/{id}/certificate [get]
func (h *ClearanceHandler) Certificate(c *gin.Context) {
	id := c.Param("id")
	pdf, err := h.clearances.Certificate(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=clearance-certificate-%s.pdf", id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
