package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/middleware"
	"github.com/mksu-dev/clearance-api/internal/models"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
)

type clearanceServiceMock struct {
	createResp *models.ClearanceRequest
	createErr  error
	submitResp *models.ClearanceRequest
	submitErr  error
	listResp   []models.ClearanceDetail
	lastFilter models.ClearanceFilter
	certResp   []byte
	certErr    error
}

func (m *clearanceServiceMock) Create(ctx context.Context, req dto.CreateClearanceRequest, actor *models.JWTClaims) (*models.ClearanceRequest, error) {
	return m.createResp, m.createErr
}

func (m *clearanceServiceMock) Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.ClearanceRequest, error) {
	return m.submitResp, m.submitErr
}

func (m *clearanceServiceMock) List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceDetail, int, error) {
	m.lastFilter = filter
	return m.listResp, len(m.listResp), nil
}

func (m *clearanceServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ClearanceDetail, error) {
	return nil, appErrors.ErrNotFound
}

func (m *clearanceServiceMock) Progress(ctx context.Context, id string, actor *models.JWTClaims) (*models.ClearanceProgress, error) {
	return &models.ClearanceProgress{RequestID: id}, nil
}

func (m *clearanceServiceMock) Statistics(ctx context.Context) (*models.ClearanceStatistics, error) {
	return &models.ClearanceStatistics{}, nil
}

func (m *clearanceServiceMock) Certificate(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, error) {
	return m.certResp, m.certErr
}

type studentResolverMock struct {
	student *models.StudentDetail
}

func (m *studentResolverMock) GetByUser(ctx context.Context, userID string) (*models.StudentDetail, error) {
	if m.student == nil {
		return nil, appErrors.ErrNotFound
	}
	return m.student, nil
}

func TestClearanceHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &clearanceServiceMock{
		createResp: &models.ClearanceRequest{ID: "req-1", Status: models.ClearanceStatusDraft},
	}
	handler := NewClearanceHandler(mockSvc, &studentResolverMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/clearance-requests", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestClearanceHandlerSubmitPaymentRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &clearanceServiceMock{submitErr: appErrors.ErrPaymentRequired}
	handler := NewClearanceHandler(mockSvc, &studentResolverMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/clearance-requests/req-1/submit", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})

	handler.Submit(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, appErrors.ErrPaymentRequired.Code, body.Error.Code)
}

func TestClearanceHandlerListScopesStudents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &clearanceServiceMock{}
	resolver := &studentResolverMock{student: &models.StudentDetail{
		Student: models.Student{ID: "student-1", UserID: "user-1"},
	}}
	handler := NewClearanceHandler(mockSvc, resolver)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/clearance-requests?studentId=student-other", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student-1", mockSvc.lastFilter.StudentID, "student filter must be forced to own profile")
}

func TestClearanceHandlerCertificateHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &clearanceServiceMock{certResp: []byte("%PDF-1.4")}
	handler := NewClearanceHandler(mockSvc, &studentResolverMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/clearance-requests/req-1/certificate", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Certificate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "clearance-certificate-req-1.pdf")
	assert.Equal(t, "%PDF-1.4", w.Body.String())
}
