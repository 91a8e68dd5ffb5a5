package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-correction-api/internal/models"
)

var fixedNow = time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)

func newCorrectionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func correctionColumnNames() []string {
	parts := strings.Split(correctionColumns, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func correctionRows(id, employeeID, status string) *sqlmock.Rows {
	in := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	out := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	reqIn := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	stamp := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(correctionColumnNames()).AddRow(
		id, employeeID, "Budi Santoso", "att-1", stamp,
		in, out, nil, nil, false,
		reqIn, out, nil, nil, false, "forgot to clock in on time",
		status, nil, nil, nil, nil, nil, nil,
		nil, nil, fixedNow, fixedNow,
	)
}

func TestCorrectionRepositoryCreateAssignsIdentity(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db, WithCorrectionClock(func() time.Time { return fixedNow }))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO correction_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := &models.CorrectionRequest{EmployeeID: "100", AttendanceRecordID: "att-1", Reason: "forgot to clock in"}
	require.NoError(t, repo.Create(context.Background(), req))

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.CorrectionStatusPending, req.Status)
	assert.Equal(t, fixedNow, req.CreatedAt)
	assert.Equal(t, fixedNow, req.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryCreateMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO correction_requests")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_correction_requests_pending"})

	err := repo.Create(context.Background(), &models.CorrectionRequest{EmployeeID: "100", AttendanceRecordID: "att-1"})
	require.ErrorIs(t, err, ErrDuplicatePending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositorySaveRefusesFinalized(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	req := &models.CorrectionRequest{ID: "req-1", Status: models.CorrectionStatusPending, CreatedAt: fixedNow}
	require.NoError(t, repo.Save(context.Background(), req))

	mock.ExpectExec(regexp.QuoteMeta("WHERE correction_requests.status = 'PENDING'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Save(context.Background(), req)
	require.ErrorIs(t, err, ErrRequestFinalized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM correction_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnRows(correctionRows("req-1", "100", "PENDING"))

	found, err := repo.FindByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", found.ID)
	assert.Equal(t, models.CorrectionStatusPending, found.Status)
	require.NotNil(t, found.OriginalInTime)
	assert.Nil(t, found.OriginalBreakStart)
	assert.Nil(t, found.ApproverID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM correction_requests WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(correctionColumnNames()))
	_, err = repo.FindByID(context.Background(), "missing")
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryFindPending(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE attendance_record_id = $1 AND employee_id = $2 AND status = 'PENDING'")).
		WithArgs("att-1", "100").
		WillReturnRows(correctionRows("req-1", "100", "PENDING"))

	found, err := repo.FindPending(context.Background(), "att-1", "100")
	require.NoError(t, err)
	assert.Equal(t, "req-1", found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryListBuildsFilters(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE employee_id = $1 AND status IN ($2) AND (employee_name ILIKE $3 OR reason ILIKE $3 OR id::text ILIKE $3) ORDER BY employee_name ASC, id ASC LIMIT $4 OFFSET $5")).
		WithArgs("100", "PENDING", `%50\%\_off%`, 10, 10).
		WillReturnRows(correctionRows("req-1", "100", "PENDING"))

	items, err := repo.List(context.Background(), models.CorrectionFilter{
		EmployeeID: "100",
		Statuses:   []models.CorrectionStatus{models.CorrectionStatusPending},
		Search:     "50%_off",
		SortBy:     "employeeName",
		SortOrder:  "asc",
		Page:       2,
		PageSize:   10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryListDefaultsSort(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM correction_requests ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2")).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(correctionColumnNames()))

	items, err := repo.List(context.Background(), models.CorrectionFilter{SortBy: "password; DROP TABLE", Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryCount(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM correction_requests WHERE status IN ($1)")).
		WithArgs("PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	total, err := repo.Count(context.Background(), models.CorrectionFilter{Statuses: []models.CorrectionStatus{models.CorrectionStatusPending}})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryMutateSharesTransaction(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	attendance := NewAttendanceRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM correction_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("req-1").
		WillReturnRows(correctionRows("req-1", "100", "PENDING"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records WHERE id = $1 FOR UPDATE")).
		WithArgs("att-1").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "in_time", "out_time", "break_start", "break_end", "night_shift"}).
			AddRow("100", time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC), nil, nil, false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := repo.Mutate(context.Background(), "req-1", func(ctx context.Context, req *models.CorrectionRequest) error {
		current, err := attendance.ReadSnapshot(ctx, req.AttendanceRecordID)
		if err != nil {
			return err
		}
		if !current.Matches(req.Original()) {
			return errors.New("stale")
		}
		if err := req.Approve("200", nil, fixedNow); err != nil {
			return err
		}
		return attendance.WriteApprovedValues(ctx, req.AttendanceRecordID, req.Requested())
	})
	require.NoError(t, err)
	assert.Equal(t, models.CorrectionStatusApproved, updated.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryMutateRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("req-1").
		WillReturnRows(correctionRows("req-1", "100", "APPROVED"))
	mock.ExpectRollback()

	_, err := repo.Mutate(context.Background(), "req-1", func(ctx context.Context, req *models.CorrectionRequest) error {
		return req.Cancel("no longer needed", fixedNow)
	})
	require.ErrorIs(t, err, models.ErrTransitionNotAllowed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryMutateMissingRow(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(correctionColumnNames()))
	mock.ExpectRollback()

	_, err := repo.Mutate(context.Background(), "missing", func(context.Context, *models.CorrectionRequest) error {
		t.Fatal("mutate callback must not run")
		return nil
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryMalformedIDIsMissing(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	castErr := &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}

	mock.ExpectQuery(regexp.QuoteMeta("FROM correction_requests WHERE id = $1")).
		WithArgs("abc").
		WillReturnError(castErr)
	_, err := repo.FindByID(context.Background(), "abc")
	require.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("abc").
		WillReturnError(castErr)
	mock.ExpectRollback()
	_, err = repo.Mutate(context.Background(), "abc", func(context.Context, *models.CorrectionRequest) error {
		t.Fatal("mutate callback must not run")
		return nil
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryMutateWrapsOtherLockErrors(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	repo := NewCorrectionRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnError(&pq.Error{Code: "55P03"})
	mock.ExpectRollback()

	_, err := repo.Mutate(context.Background(), "req-1", func(context.Context, *models.CorrectionRequest) error { return nil })
	require.Error(t, err)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
	assert.Contains(t, err.Error(), "lock correction request")
}

type observerStub struct {
	labels []string
}

func (o *observerStub) ObserveDBQuery(label string, duration time.Duration) {
	o.labels = append(o.labels, label)
}

func TestCorrectionRepositoryReportsQueryTimings(t *testing.T) {
	db, mock, cleanup := newCorrectionRepoMock(t)
	defer cleanup()

	observer := &observerStub{}
	repo := NewCorrectionRequestRepository(db, WithQueryObserver(observer))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM correction_requests")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := repo.Count(context.Background(), models.CorrectionFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"correction_count"}, observer.labels)
}
