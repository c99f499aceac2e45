package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/service"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
	"github.com/mksu-dev/clearance-api/pkg/response"
)

// PaymentHandler exposes clearance fee payment endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Record godoc
// @Summary Record a clearance fee payment
// @Description Records a payment awaiting verification
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Record(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	payment, err := h.payments.Record(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// Verify godoc
// @Summary Verify a recorded payment
// @Description Verification unlocks clearance submission for the student
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/verify [post]
func (h *PaymentHandler) Verify(c *gin.Context) {
	payment, err := h.payments.Verify(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// StudentStatus godoc
// @Summary Get latest payment for a student
// @Tags Payments
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /payments/students/{studentId} [get]
func (h *PaymentHandler) StudentStatus(c *gin.Context) {
	payment, err := h.payments.StatusForStudent(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if payment == nil {
		response.JSON(c, http.StatusOK, gin.H{"recorded": false}, nil)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}
