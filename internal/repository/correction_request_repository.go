package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/attendance-correction-api/internal/models"
)

var (
	// ErrDuplicatePending signals an existing PENDING request for the same record and employee.
	ErrDuplicatePending = errors.New("duplicate pending correction request")
	// ErrRequestFinalized signals an attempt to overwrite a request that already left PENDING.
	ErrRequestFinalized = errors.New("correction request already finalized")
)

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// MutateFunc edits a locked request. Returning an error aborts without persisting.
type MutateFunc func(ctx context.Context, req *models.CorrectionRequest) error

// QueryObserver receives query timings.
type QueryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

const correctionColumns = `id, employee_id, employee_name, attendance_record_id, stamp_date,
	original_in_time, original_out_time, original_break_start, original_break_end, original_night_shift,
	requested_in_time, requested_out_time, requested_break_start, requested_break_end, requested_night_shift, reason,
	status, approver_id, approval_note, approved_at, rejecter_id, rejection_reason, rejected_at,
	cancellation_reason, cancelled_at, created_at, updated_at`

var correctionSortColumns = map[string]string{
	"createdat":       "created_at",
	"updatedat":       "updated_at",
	"stampdate":       "stamp_date",
	"status":          "status",
	"employeename":    "employee_name",
	"requestedintime": "requested_in_time",
}

// CorrectionRequestRepository persists correction requests in PostgreSQL.
type CorrectionRequestRepository struct {
	db       *sqlx.DB
	now      func() time.Time
	observer QueryObserver
}

// CorrectionRepositoryOption configures the repository.
type CorrectionRepositoryOption func(*CorrectionRequestRepository)

// WithCorrectionClock overrides the repository clock.
func WithCorrectionClock(now func() time.Time) CorrectionRepositoryOption {
	return func(r *CorrectionRequestRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithQueryObserver reports query durations to the observer.
func WithQueryObserver(observer QueryObserver) CorrectionRepositoryOption {
	return func(r *CorrectionRequestRepository) {
		r.observer = observer
	}
}

// NewCorrectionRequestRepository constructs the repository.
func NewCorrectionRequestRepository(db *sqlx.DB, opts ...CorrectionRepositoryOption) *CorrectionRequestRepository {
	r := &CorrectionRequestRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Now exposes the clock shared by every correction service.
func (r *CorrectionRequestRepository) Now() time.Time {
	return r.now()
}

// Create assigns identity and timestamps then inserts the request.
func (r *CorrectionRequestRepository) Create(ctx context.Context, req *models.CorrectionRequest) error {
	defer r.observe("correction_create", time.Now())
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.CorrectionStatusPending
	}
	now := r.now()
	req.CreatedAt = now
	req.UpdatedAt = now

	const query = `INSERT INTO correction_requests (` + correctionColumns + `)
	VALUES (:id, :employee_id, :employee_name, :attendance_record_id, :stamp_date,
	:original_in_time, :original_out_time, :original_break_start, :original_break_end, :original_night_shift,
	:requested_in_time, :requested_out_time, :requested_break_start, :requested_break_end, :requested_night_shift, :reason,
	:status, :approver_id, :approval_note, :approved_at, :rejecter_id, :rejection_reason, :rejected_at,
	:cancellation_reason, :cancelled_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, req); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePending
		}
		return fmt.Errorf("create correction request: %w", err)
	}
	return nil
}

// Save upserts the request by identity. Rows that already left PENDING are never overwritten.
func (r *CorrectionRequestRepository) Save(ctx context.Context, req *models.CorrectionRequest) error {
	defer r.observe("correction_save", time.Now())
	return r.save(ctx, executor(ctx, r.db), req)
}

func (r *CorrectionRequestRepository) save(ctx context.Context, ext sqlx.ExtContext, req *models.CorrectionRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = r.now()
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	const query = `INSERT INTO correction_requests (` + correctionColumns + `)
	VALUES (:id, :employee_id, :employee_name, :attendance_record_id, :stamp_date,
	:original_in_time, :original_out_time, :original_break_start, :original_break_end, :original_night_shift,
	:requested_in_time, :requested_out_time, :requested_break_start, :requested_break_end, :requested_night_shift, :reason,
	:status, :approver_id, :approval_note, :approved_at, :rejecter_id, :rejection_reason, :rejected_at,
	:cancellation_reason, :cancelled_at, :created_at, :updated_at)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		approver_id = EXCLUDED.approver_id,
		approval_note = EXCLUDED.approval_note,
		approved_at = EXCLUDED.approved_at,
		rejecter_id = EXCLUDED.rejecter_id,
		rejection_reason = EXCLUDED.rejection_reason,
		rejected_at = EXCLUDED.rejected_at,
		cancellation_reason = EXCLUDED.cancellation_reason,
		cancelled_at = EXCLUDED.cancelled_at,
		updated_at = EXCLUDED.updated_at
	WHERE correction_requests.status = 'PENDING'`
	res, err := sqlx.NamedExecContext(ctx, ext, query, req)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePending
		}
		return fmt.Errorf("save correction request: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save correction request rows: %w", err)
	}
	if rows == 0 {
		return ErrRequestFinalized
	}
	return nil
}

// FindByID fetches a request by identifier. Missing rows yield sql.ErrNoRows.
func (r *CorrectionRequestRepository) FindByID(ctx context.Context, id string) (*models.CorrectionRequest, error) {
	defer r.observe("correction_find_by_id", time.Now())
	query := `SELECT ` + correctionColumns + ` FROM correction_requests WHERE id = $1`
	var req models.CorrectionRequest
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &req, query, id); err != nil {
		return nil, notFoundOnMalformedID(err)
	}
	return &req, nil
}

// FindAll returns every request, oldest first.
func (r *CorrectionRequestRepository) FindAll(ctx context.Context) ([]models.CorrectionRequest, error) {
	defer r.observe("correction_find_all", time.Now())
	query := `SELECT ` + correctionColumns + ` FROM correction_requests ORDER BY created_at ASC, id ASC`
	var items []models.CorrectionRequest
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &items, query); err != nil {
		return nil, fmt.Errorf("find all correction requests: %w", err)
	}
	return items, nil
}

// FindPending returns the PENDING request for the record and employee pair.
func (r *CorrectionRequestRepository) FindPending(ctx context.Context, attendanceRecordID, employeeID string) (*models.CorrectionRequest, error) {
	defer r.observe("correction_find_pending", time.Now())
	query := `SELECT ` + correctionColumns + ` FROM correction_requests
	WHERE attendance_record_id = $1 AND employee_id = $2 AND status = 'PENDING' LIMIT 1`
	var req models.CorrectionRequest
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &req, query, attendanceRecordID, employeeID); err != nil {
		return nil, err
	}
	return &req, nil
}

// Mutate locks the row, applies fn and persists the result in one transaction. The
// context given to fn carries the transaction.
func (r *CorrectionRequestRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (result *models.CorrectionRequest, err error) {
	defer r.observe("correction_mutate", time.Now())
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin correction transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `SELECT ` + correctionColumns + ` FROM correction_requests WHERE id = $1 FOR UPDATE`
	var req models.CorrectionRequest
	if err = tx.GetContext(ctx, &req, query, id); err != nil {
		if err = notFoundOnMalformedID(err); errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock correction request: %w", err)
	}

	if err = fn(contextWithTx(ctx, tx), &req); err != nil {
		return nil, err
	}
	if err = r.save(ctx, tx, &req); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit correction request: %w", err)
	}
	return &req, nil
}

// List returns one page of requests matching the filter.
func (r *CorrectionRequestRepository) List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRequest, error) {
	defer r.observe("correction_list", time.Now())
	where, args := buildCorrectionWhere(filter)

	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + correctionColumns + ` FROM correction_requests`)
	builder.WriteString(where)

	sortColumn, sortOrder := correctionSort(filter.SortBy, filter.SortOrder)
	builder.WriteString(fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumn, sortOrder, sortOrder))

	if filter.PageSize > 0 {
		args = append(args, filter.PageSize)
		builder.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
		args = append(args, filter.Offset())
		builder.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	var items []models.CorrectionRequest
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list correction requests: %w", err)
	}
	return items, nil
}

// Count returns the number of requests matching the filter, ignoring paging.
func (r *CorrectionRequestRepository) Count(ctx context.Context, filter models.CorrectionFilter) (int, error) {
	defer r.observe("correction_count", time.Now())
	where, args := buildCorrectionWhere(filter)
	var total int
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &total, `SELECT COUNT(*) FROM correction_requests`+where, args...); err != nil {
		return 0, fmt.Errorf("count correction requests: %w", err)
	}
	return total, nil
}

func buildCorrectionWhere(filter models.CorrectionFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 3)
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		conditions = append(conditions, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		idx := len(args)
		conditions = append(conditions, fmt.Sprintf("(employee_name ILIKE $%d OR reason ILIKE $%d OR id::text ILIKE $%d)", idx, idx, idx))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func correctionSort(sortBy, sortOrder string) (string, string) {
	column, ok := correctionSortColumns[normalizeSortKey(sortBy)]
	if !ok {
		column = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		order = "ASC"
	}
	return column, order
}

func normalizeSortKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "_", ""))
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return replacer.Replace(value)
}

// notFoundOnMalformedID reports ids the id column cannot represent as missing rows.
// Databases created before 002 still type the column UUID.
func notFoundOnMalformedID(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation {
		return sql.ErrNoRows
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (r *CorrectionRequestRepository) observe(label string, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveDBQuery(label, time.Since(start))
	}
}
