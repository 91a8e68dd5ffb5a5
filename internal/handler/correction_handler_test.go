package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-correction-api/internal/dto"
	"github.com/noah-isme/attendance-correction-api/internal/middleware"
	"github.com/noah-isme/attendance-correction-api/internal/models"
	"github.com/noah-isme/attendance-correction-api/internal/repository"
	"github.com/noah-isme/attendance-correction-api/internal/service"
	"github.com/noah-isme/attendance-correction-api/pkg/middleware/requestid"
)

var handlerNow = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *envelopeError         `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

type correctionAPI struct {
	router     *gin.Engine
	tokens     *service.TokenService
	attendance *repository.MemoryAttendanceStore
}

func newCorrectionAPI(t *testing.T) *correctionAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clock := func() time.Time { return handlerNow }
	day := func(h, m int) *time.Time {
		v := time.Date(2024, 5, 1, h, m, 0, 0, time.UTC)
		return &v
	}

	store := repository.NewMemoryCorrectionStore(clock)
	attendance := repository.NewMemoryAttendanceStore(clock,
		models.AttendanceRecord{ID: "1", EmployeeID: "100", InTime: day(9, 30), OutTime: day(17, 0)},
		models.AttendanceRecord{ID: "2", EmployeeID: "100", InTime: day(10, 0)},
	)
	policy := service.DefaultCorrectionPolicy()
	approval := service.NewCorrectionApprovalService(store, attendance, policy, nil)
	tokens := service.NewTokenService(service.TokenConfig{Secret: "test-secret", Issuer: "hr-identity"})

	h := NewCorrectionHandler(CorrectionServices{
		Registration: service.NewCorrectionRegistrationService(store, attendance, nil, policy, nil),
		Approval:     approval,
		Cancellation: service.NewCorrectionCancellationService(store, policy, nil),
		Bulk:         service.NewCorrectionBulkService(approval, policy, nil),
		Query:        service.NewCorrectionQueryService(store, policy, nil),
	})

	r := gin.New()
	r.Use(requestid.Middleware())
	h.Register(r.Group("/api/v1"), middleware.JWT(tokens))
	return &correctionAPI{router: r, tokens: tokens, attendance: attendance}
}

func (api *correctionAPI) do(t *testing.T, method, path, userID string, role models.UserRole, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-1")
	if userID != "" {
		token, _, err := api.tokens.IssueToken(userID, role, "Budi Santoso")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func createBody(attendanceID string) map[string]interface{} {
	return map[string]interface{}{
		"attendanceRecordId": attendanceID,
		"requestedInTime":    "2024-05-01T09:00:00Z",
		"requestedOutTime":   "2024-05-01T18:00:00Z",
		"reason":             "family emergency, need correction",
	}
}

func decodeRequest(t *testing.T, env envelope) models.CorrectionRequest {
	t.Helper()
	var out models.CorrectionRequest
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestCorrectionLifecycleOverHTTP(t *testing.T) {
	api := newCorrectionAPI(t)

	w, env := api.do(t, http.MethodPost, "/api/v1/corrections", "100", models.RoleEmployee, createBody("1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeRequest(t, env)
	assert.Equal(t, models.CorrectionStatusPending, created.Status)
	assert.Equal(t, "Budi Santoso", created.EmployeeName)
	assert.Equal(t, "req-1", env.Meta["request_id"])

	w, env = api.do(t, http.MethodPost, "/api/v1/corrections", "100", models.RoleEmployee, createBody("1"))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate pending request", env.Error.Message)

	w, env = api.do(t, http.MethodGet, "/api/v1/corrections/mine?status=new", "100", models.RoleEmployee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.Pagination.TotalCount)

	w, _ = api.do(t, http.MethodGet, "/api/v1/corrections/pending", "100", models.RoleEmployee, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w, env = api.do(t, http.MethodGet, "/api/v1/corrections/pending/count", "200", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":1}`, string(env.Data))

	w, _ = api.do(t, http.MethodPost, "/api/v1/corrections/"+created.ID+"/approve", "100", models.RoleEmployee, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w, env = api.do(t, http.MethodPost, "/api/v1/corrections/"+created.ID+"/approve", "200", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decodeRequest(t, env)
	assert.Equal(t, models.CorrectionStatusApproved, approved.Status)
	assert.Nil(t, approved.ApprovalNote)

	record, err := api.attendance.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, record.InTime.Equal(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))

	w, env = api.do(t, http.MethodPost, "/api/v1/corrections/"+created.ID+"/reject", "200", models.RoleAdmin, map[string]string{"reason": "no supporting evidence"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "correction request already processed", env.Error.Message)

	w, env = api.do(t, http.MethodGet, "/api/v1/corrections/"+created.ID, "100", models.RoleEmployee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decodeRequest(t, env).ID)
}

func TestCorrectionCancelOverHTTP(t *testing.T) {
	api := newCorrectionAPI(t)
	_, env := api.do(t, http.MethodPost, "/api/v1/corrections", "100", models.RoleEmployee, createBody("2"))
	created := decodeRequest(t, env)

	w, _ := api.do(t, http.MethodPost, "/api/v1/corrections/"+created.ID+"/cancel", "101", models.RoleEmployee, map[string]string{"reason": "not mine to withdraw"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/v1/corrections/"+created.ID, "101", models.RoleEmployee, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w, env = api.do(t, http.MethodPost, "/api/v1/corrections/"+created.ID+"/cancel", "100", models.RoleEmployee, map[string]string{"reason": "submitted by mistake"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CorrectionStatusCancelled, decodeRequest(t, env).Status)
}

func TestCorrectionBulkOverHTTP(t *testing.T) {
	api := newCorrectionAPI(t)
	_, env := api.do(t, http.MethodPost, "/api/v1/corrections", "100", models.RoleEmployee, createBody("1"))
	first := decodeRequest(t, env)

	w, env := api.do(t, http.MethodPost, "/api/v1/corrections/bulk/approve", "200", models.RoleSuperAdmin,
		map[string]interface{}{"ids": []interface{}{first.ID, nil, "missing"}, "note": "batch"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result dto.BulkResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, dto.BulkResult{SuccessCount: 1, FailureCount: 1, FailedIDs: []string{"missing"}}, result)

	w, env = api.do(t, http.MethodPost, "/api/v1/corrections/bulk/reject", "200", models.RoleAdmin,
		map[string]interface{}{"ids": []interface{}{}, "reason": "no supporting evidence"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestCorrectionRequestsNeedAuthentication(t *testing.T) {
	api := newCorrectionAPI(t)

	w, env := api.do(t, http.MethodGet, "/api/v1/corrections/mine", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestCorrectionCreateRejectsMalformedBody(t *testing.T) {
	api := newCorrectionAPI(t)

	w, env := api.do(t, http.MethodPost, "/api/v1/corrections", "100", models.RoleEmployee, map[string]interface{}{"requestedInTime": "yesterday"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

type failingReader struct{ correctionReader }

func (failingReader) GetPending(ctx context.Context, query dto.PendingCorrectionQuery) ([]models.CorrectionRequest, *models.Pagination, error) {
	return nil, nil, errors.New("pq: connection reset")
}

func TestCorrectionHandlerHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewCorrectionHandler(CorrectionServices{Query: failingReader{}})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/corrections/pending", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "200", Role: models.RoleAdmin})

	h.Pending(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
