package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-correction-api/internal/dto"
	"github.com/noah-isme/attendance-correction-api/internal/middleware"
	"github.com/noah-isme/attendance-correction-api/internal/models"
	appErrors "github.com/noah-isme/attendance-correction-api/pkg/errors"
	"github.com/noah-isme/attendance-correction-api/pkg/response"
)

type correctionRegistrar interface {
	CreateRequest(ctx context.Context, req dto.CreateCorrectionRequest, employeeID string) (*models.CorrectionRequest, error)
}

type correctionDecider interface {
	ApproveRequest(ctx context.Context, id, approverID, note string) (*models.CorrectionRequest, error)
	RejectRequest(ctx context.Context, id, rejecterID, reason string) (*models.CorrectionRequest, error)
}

type correctionCanceller interface {
	CancelRequest(ctx context.Context, id, employeeID, reason string) (*models.CorrectionRequest, error)
}

type correctionBulkDecider interface {
	BulkApprove(ctx context.Context, req dto.BulkApproveRequest, approverID string) (*dto.BulkResult, error)
	BulkReject(ctx context.Context, req dto.BulkRejectRequest, rejecterID string) (*dto.BulkResult, error)
}

type correctionReader interface {
	GetForEmployee(ctx context.Context, employeeID, status string, page, size int) ([]models.CorrectionRequest, *models.Pagination, error)
	CountForEmployee(ctx context.Context, employeeID, status string) (int, error)
	GetPending(ctx context.Context, query dto.PendingCorrectionQuery) ([]models.CorrectionRequest, *models.Pagination, error)
	CountPending(ctx context.Context, query dto.PendingCorrectionQuery) (int, error)
	GetByID(ctx context.Context, id string, actor *models.JWTClaims) (*models.CorrectionRequest, error)
}

// CorrectionServices groups the workflow services behind the handler.
type CorrectionServices struct {
	Registration correctionRegistrar
	Approval     correctionDecider
	Cancellation correctionCanceller
	Bulk         correctionBulkDecider
	Query        correctionReader
}

// CorrectionHandler exposes the attendance correction endpoints.
type CorrectionHandler struct {
	services CorrectionServices
}

// NewCorrectionHandler builds a new handler.
func NewCorrectionHandler(services CorrectionServices) *CorrectionHandler {
	return &CorrectionHandler{services: services}
}

// Create godoc
// @Summary Submit an attendance correction request
// @Tags Corrections
// @Accept json
// @Produce json
// @Param payload body dto.CreateCorrectionRequest true "Correction payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /corrections [post]
func (h *CorrectionHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CreateCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid correction payload"))
		return
	}
	req.EmployeeName = claims.FullName
	created, err := h.services.Registration.CreateRequest(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Mine godoc
// @Summary List the caller's correction requests
// @Tags Corrections
// @Produce json
// @Param status query string false "PENDING, APPROVED, REJECTED, CANCELLED, NEW or ALL"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /corrections/mine [get]
func (h *CorrectionHandler) Mine(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var query dto.EmployeeCorrectionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.services.Query.GetForEmployee(c.Request.Context(), claims.UserID, query.Status, query.Page, query.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// MineCount godoc
// @Summary Count the caller's correction requests
// @Tags Corrections
// @Produce json
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /corrections/mine/count [get]
func (h *CorrectionHandler) MineCount(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	total, err := h.services.Query.CountForEmployee(c.Request.Context(), claims.UserID, c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.CorrectionCount{Total: total})
}

// Pending godoc
// @Summary List correction requests awaiting a decision
// @Tags Corrections
// @Produce json
// @Param status query string false "Status filter, defaults to PENDING"
// @Param search query string false "Matches id, employee name or reason"
// @Param sort query string false "field:direction, e.g. createdAt:desc"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /corrections/pending [get]
func (h *CorrectionHandler) Pending(c *gin.Context) {
	var query dto.PendingCorrectionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.services.Query.GetPending(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// PendingCount godoc
// @Summary Count correction requests in the administrator queue
// @Tags Corrections
// @Produce json
// @Param status query string false "Status filter, defaults to PENDING"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Router /corrections/pending/count [get]
func (h *CorrectionHandler) PendingCount(c *gin.Context) {
	var query dto.PendingCorrectionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	total, err := h.services.Query.CountPending(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.CorrectionCount{Total: total})
}

// Get godoc
// @Summary Get a correction request
// @Tags Corrections
// @Produce json
// @Param id path string true "Correction request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /corrections/{id} [get]
func (h *CorrectionHandler) Get(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	item, err := h.services.Query.GetByID(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Approve godoc
// @Summary Approve a pending correction request
// @Tags Corrections
// @Accept json
// @Produce json
// @Param id path string true "Correction request ID"
// @Param payload body dto.ApproveCorrectionRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /corrections/{id}/approve [post]
func (h *CorrectionHandler) Approve(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.ApproveCorrectionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	item, err := h.services.Approval.ApproveRequest(c.Request.Context(), c.Param("id"), claims.UserID, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Reject godoc
// @Summary Reject a pending correction request
// @Tags Corrections
// @Accept json
// @Produce json
// @Param id path string true "Correction request ID"
// @Param payload body dto.RejectCorrectionRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /corrections/{id}/reject [post]
func (h *CorrectionHandler) Reject(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.RejectCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rejection payload"))
		return
	}
	item, err := h.services.Approval.RejectRequest(c.Request.Context(), c.Param("id"), claims.UserID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Cancel godoc
// @Summary Withdraw one's own pending correction request
// @Tags Corrections
// @Accept json
// @Produce json
// @Param id path string true "Correction request ID"
// @Param payload body dto.CancelCorrectionRequest true "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /corrections/{id}/cancel [post]
func (h *CorrectionHandler) Cancel(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CancelCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancellation payload"))
		return
	}
	item, err := h.services.Cancellation.CancelRequest(c.Request.Context(), c.Param("id"), claims.UserID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// BulkApprove godoc
// @Summary Approve several correction requests
// @Tags Corrections
// @Accept json
// @Produce json
// @Param payload body dto.BulkApproveRequest true "Ids and optional note"
// @Success 200 {object} response.Envelope
// @Router /corrections/bulk/approve [post]
func (h *CorrectionHandler) BulkApprove(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.BulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}
	result, err := h.services.Bulk.BulkApprove(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// BulkReject godoc
// @Summary Reject several correction requests
// @Tags Corrections
// @Accept json
// @Produce json
// @Param payload body dto.BulkRejectRequest true "Ids and shared reason"
// @Success 200 {object} response.Envelope
// @Router /corrections/bulk/reject [post]
func (h *CorrectionHandler) BulkReject(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.BulkRejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}
	result, err := h.services.Bulk.BulkReject(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, dest interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
		return false
	}
	return true
}
