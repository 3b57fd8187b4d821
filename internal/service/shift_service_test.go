package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

func (s *shiftStoreStub) CreateManyTx(ctx context.Context, tx *sqlx.Tx, shifts []models.Shift) error {
	for i := range shifts {
		shifts[i].ID = fmt.Sprintf("shift-%d", len(s.created)+1)
		s.created = append(s.created, shifts[i])
	}
	return nil
}

func (s *shiftStoreStub) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.ShiftStatus) error {
	s.statuses[id] = status
	return nil
}

func (s *shiftStoreStub) UpdateDetailsTx(ctx context.Context, tx *sqlx.Tx, shift *models.Shift) error {
	s.updated = append(s.updated, *shift)
	return nil
}

func (s *shiftStoreStub) List(ctx context.Context, filter models.ShiftFilter) ([]models.Shift, int, error) {
	s.listFilter = filter
	s.listCalls++
	out := make([]models.Shift, 0, len(s.shifts))
	for _, sh := range s.shifts {
		out = append(out, *sh)
	}
	return out, len(out), nil
}

func (s *shiftStoreStub) CompleteEnded(ctx context.Context, now time.Time) ([]string, error) {
	return s.ended, nil
}

type shiftCancellerStub struct {
	workers []string
	calls   int
}

func (c *shiftCancellerStub) CancelOpenForShiftTx(ctx context.Context, tx *sqlx.Tx, shiftID string, at time.Time) ([]string, error) {
	c.calls++
	return c.workers, nil
}

type memoryCacheRepo struct {
	items   map[string][]byte
	deleted []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	m.deleted = append(m.deleted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	n := 0
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

type shiftFixture struct {
	svc       *ShiftService
	shifts    *shiftStoreStub
	apps      *shiftCancellerStub
	penalties *penaltyStub
	audit     *auditStub
	cache     *memoryCacheRepo
	mock      sqlmock.Sqlmock
}

func newShiftFixture(t *testing.T, policy CancellationPolicy, shifts ...*models.Shift) (*shiftFixture, func()) {
	tx, mock := newTxProviderMock(t)
	metrics := NewMetricsService()
	f := &shiftFixture{
		shifts:    newShiftStoreStub(shifts...),
		apps:      &shiftCancellerStub{},
		penalties: &penaltyStub{},
		audit:     &auditStub{},
		cache:     newMemoryCacheRepo(),
		mock:      mock,
	}
	cache := NewCacheService(f.cache, metrics, time.Minute, nil, true)
	f.svc = NewShiftService(ShiftServiceDeps{
		Shifts:       f.shifts,
		Applications: f.apps,
		Penalties:    f.penalties,
		Audit:        f.audit,
		Tx:           tx,
		Policy:       policy,
		Cache:        cache,
		Views:        NewViewInvalidator(cache, metrics, nil),
		Metrics:      metrics,
		Clock:        fixedClock,
		Config:       ShiftServiceConfig{MaxOccurrences: 5},
	})
	commit := func() {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	return f, commit
}

func validShiftRequest() dto.CreateShiftRequest {
	start := fixedNow.Add(48 * time.Hour)
	return dto.CreateShiftRequest{
		Title:      "Barista",
		Location:   "Aarhus C",
		StartTime:  start,
		EndTime:    start.Add(6 * time.Hour),
		HourlyRate: 165,
		Vacancies:  2,
	}
}

func TestShiftServiceCreateSingle(t *testing.T) {
	f, commit := newShiftFixture(t, CancellationPolicy{})
	commit()

	resp, err := f.svc.Create(context.Background(), "company-1", validShiftRequest())
	require.NoError(t, err)
	require.Len(t, resp.Shifts, 1)
	assert.Nil(t, resp.SeriesID)
	assert.Equal(t, "DKK", resp.Shifts[0].Currency)
	assert.Equal(t, models.ShiftStatusPublished, resp.Shifts[0].Status)
	assert.Equal(t, "company-1", resp.Shifts[0].CompanyID)
	assert.Equal(t, 6*time.Hour, resp.Shifts[0].EndTime.Sub(resp.Shifts[0].StartTime))
	assert.Equal(t, []string{models.AuditActionShiftCreate}, f.audit.actions())
}

func TestShiftServiceCreateRecurring(t *testing.T) {
	f, commit := newShiftFixture(t, CancellationPolicy{})
	commit()
	req := validShiftRequest()
	req.Recurrence = "RRULE:FREQ=WEEKLY;COUNT=3"

	resp, err := f.svc.Create(context.Background(), "company-1", req)
	require.NoError(t, err)
	require.Len(t, resp.Shifts, 3)
	require.NotNil(t, resp.SeriesID)
	for i, sh := range resp.Shifts {
		assert.Equal(t, req.StartTime.AddDate(0, 0, 7*i), sh.StartTime)
		assert.Equal(t, resp.SeriesID, sh.SeriesID)
	}
}

func TestShiftServiceCreateValidation(t *testing.T) {
	f, _ := newShiftFixture(t, CancellationPolicy{})

	past := validShiftRequest()
	past.StartTime = fixedNow.Add(-time.Hour)
	past.EndTime = fixedNow.Add(time.Hour)
	_, err := f.svc.Create(context.Background(), "company-1", past)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	inverted := validShiftRequest()
	inverted.EndTime = inverted.StartTime.Add(-time.Hour)
	_, err = f.svc.Create(context.Background(), "company-1", inverted)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	unbounded := validShiftRequest()
	unbounded.Recurrence = "FREQ=DAILY"
	_, err = f.svc.Create(context.Background(), "company-1", unbounded)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	garbage := validShiftRequest()
	garbage.Recurrence = "FREQ=SOMETIMES"
	_, err = f.svc.Create(context.Background(), "company-1", garbage)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.shifts.created)
}

func TestShiftServiceUpdate(t *testing.T) {
	shift := shiftAt("shift-a", "company-1", fixedNow.Add(48*time.Hour), 4, 3, 2)
	f, commit := newShiftFixture(t, CancellationPolicy{}, shift)

	commit()
	two := 2
	updated, err := f.svc.Update(context.Background(), "company-1", "shift-a", dto.UpdateShiftRequest{Vacancies: &two})
	require.NoError(t, err)
	assert.Equal(t, models.ShiftStatusFull, updated.Status)

	one := 1
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.Update(context.Background(), "company-1", "shift-a", dto.UpdateShiftRequest{Vacancies: &one})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	title := "Night barista"
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.Update(context.Background(), "company-2", "shift-a", dto.UpdateShiftRequest{Title: &title})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Len(t, f.shifts.updated, 1)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestShiftServiceJobBoardCaches(t *testing.T) {
	shift := shiftAt("shift-a", "company-1", fixedNow.Add(48*time.Hour), 4, 3, 0)
	f, _ := newShiftFixture(t, CancellationPolicy{}, shift)

	page, hit, err := f.svc.JobBoard(context.Background(), models.ShiftFilter{CompanyID: "ignored"})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, page.Shifts, 1)
	assert.Equal(t, []models.ShiftStatus{models.ShiftStatusPublished}, f.shifts.listFilter.Statuses)
	assert.Empty(t, f.shifts.listFilter.CompanyID)
	require.NotNil(t, f.shifts.listFilter.From)
	assert.Equal(t, fixedNow, *f.shifts.listFilter.From)

	page, hit, err = f.svc.JobBoard(context.Background(), models.ShiftFilter{})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, page.Shifts, 1)
	assert.Equal(t, 1, f.shifts.listCalls)

	f.svc.views.ShiftChanged(context.Background(), "shift-a")
	_, hit, err = f.svc.JobBoard(context.Background(), models.ShiftFilter{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Contains(t, f.cache.deleted, ViewKeyPrefix+ViewJobBoard+"*")
}

func TestShiftServiceCancelLateCompanyFee(t *testing.T) {
	shift := shiftAt("shift-a", "company-1", fixedNow.Add(10*time.Hour), 4, 2, 1)
	f, commit := newShiftFixture(t, CancellationPolicy{Enabled: true}, shift)
	f.apps.workers = []string{"worker-1", "worker-2"}
	commit()

	result, err := f.svc.Cancel(context.Background(), "company-1", "shift-a")
	require.NoError(t, err)
	assert.True(t, result.Late)
	assert.Equal(t, 2, result.CancelledApplications)
	require.NotNil(t, result.Penalty)
	assert.Equal(t, models.PenaltyCompanyFee, result.Penalty.Kind)
	assert.Equal(t, int64(50000), result.Penalty.AmountMinor)
	assert.Equal(t, "DKK", result.Penalty.Currency)
	assert.Equal(t, models.ShiftStatusCancelled, f.shifts.statuses["shift-a"])
}

func TestShiftServiceCancelWithoutAcceptedIsNotLate(t *testing.T) {
	shift := shiftAt("shift-a", "company-1", fixedNow.Add(10*time.Hour), 4, 2, 0)
	f, commit := newShiftFixture(t, CancellationPolicy{Enabled: true}, shift)
	commit()

	result, err := f.svc.Cancel(context.Background(), "company-1", "shift-a")
	require.NoError(t, err)
	assert.False(t, result.Late)
	assert.Nil(t, result.Penalty)
	assert.Empty(t, f.penalties.created)
}

func TestShiftServiceCancelRejectsTerminal(t *testing.T) {
	shift := shiftAt("shift-a", "company-1", fixedNow.Add(10*time.Hour), 4, 2, 0)
	shift.Status = models.ShiftStatusCompleted
	f, _ := newShiftFixture(t, CancellationPolicy{}, shift)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Cancel(context.Background(), "company-1", "shift-a")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Zero(t, f.apps.calls)
}

func TestShiftServiceCompletePast(t *testing.T) {
	f, _ := newShiftFixture(t, CancellationPolicy{})
	f.shifts.ended = []string{"shift-a", "shift-b"}

	n, err := f.svc.CompletePast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, f.cache.deleted, ViewKeyPrefix+ShiftView("shift-b")+"*")
}

func TestShiftServiceCancellationPolicy(t *testing.T) {
	soon := shiftAt("shift-a", "company-1", fixedNow.Add(3*time.Hour), 4, 2, 0)
	later := shiftAt("shift-b", "company-1", fixedNow.Add(72*time.Hour), 4, 2, 0)
	f, _ := newShiftFixture(t, CancellationPolicy{}, soon, later)

	resp, err := f.svc.CancellationPolicy(context.Background(), "shift-a", models.RoleCompany)
	require.NoError(t, err)
	assert.True(t, resp.IsUpcoming)
	assert.True(t, resp.IsLate)
	assert.False(t, resp.PenaltyEnforced)
	assert.Contains(t, resp.Consequence, "500 DKK")

	resp, err = f.svc.CancellationPolicy(context.Background(), "shift-b", models.RoleWorker)
	require.NoError(t, err)
	assert.False(t, resp.IsLate)
	assert.Empty(t, resp.Consequence)

	_, err = f.svc.CancellationPolicy(context.Background(), "missing", models.RoleWorker)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
