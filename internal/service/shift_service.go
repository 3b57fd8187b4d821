package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

type shiftStore interface {
	CreateManyTx(ctx context.Context, tx *sqlx.Tx, shifts []models.Shift) error
	FindByID(ctx context.Context, id string) (*models.Shift, error)
	LockByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Shift, error)
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.ShiftStatus) error
	UpdateDetailsTx(ctx context.Context, tx *sqlx.Tx, shift *models.Shift) error
	List(ctx context.Context, filter models.ShiftFilter) ([]models.Shift, int, error)
	CompleteEnded(ctx context.Context, now time.Time) ([]string, error)
}

type shiftApplicationCanceller interface {
	CancelOpenForShiftTx(ctx context.Context, tx *sqlx.Tx, shiftID string, at time.Time) ([]string, error)
}

// ShiftServiceConfig tunes shift creation and the job board.
type ShiftServiceConfig struct {
	DefaultCurrency string
	MaxOccurrences  int
	JobBoardTTL     time.Duration
}

// ShiftServiceDeps bundles the collaborators of ShiftService.
type ShiftServiceDeps struct {
	Shifts       shiftStore
	Applications shiftApplicationCanceller
	Penalties    penaltyWriter
	Audit        auditWriter
	Tx           txProvider
	Policy       CancellationPolicy
	Cache        *CacheService
	Views        *ViewInvalidator
	Metrics      *MetricsService
	Validator    *validator.Validate
	Logger       *zap.Logger
	Clock        Clock
	Config       ShiftServiceConfig
}

// ShiftService manages the shifts posted by companies.
type ShiftService struct {
	shifts    shiftStore
	apps      shiftApplicationCanceller
	penalties penaltyWriter
	audit     auditWriter
	tx        txProvider
	policy    CancellationPolicy
	cache     *CacheService
	views     *ViewInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       Clock
	cfg       ShiftServiceConfig
}

// NewShiftService constructs a ShiftService.
func NewShiftService(deps ShiftServiceDeps) *ShiftService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Clock == nil {
		deps.Clock = utcNow
	}
	if deps.Config.MaxOccurrences <= 0 {
		deps.Config.MaxOccurrences = 52
	}
	if deps.Config.DefaultCurrency == "" {
		deps.Config.DefaultCurrency = "DKK"
	}
	return &ShiftService{
		shifts:    deps.Shifts,
		apps:      deps.Applications,
		penalties: deps.Penalties,
		audit:     deps.Audit,
		tx:        deps.Tx,
		policy:    deps.Policy.withDefaults(),
		cache:     deps.Cache,
		views:     deps.Views,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
		now:       deps.Clock,
		cfg:       deps.Config,
	}
}

// Create posts one shift, or a series when the request carries a recurrence rule.
func (s *ShiftService) Create(ctx context.Context, companyID string, req dto.CreateShiftRequest) (resp *dto.CreateShiftResponse, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid shift payload")
	}
	if !req.StartTime.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be in the future")
	}

	starts, err := s.occurrences(req.StartTime, req.Recurrence)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	duration := req.EndTime.Sub(req.StartTime)

	var seriesID *string
	if len(starts) > 1 {
		id := uuid.NewString()
		seriesID = &id
	}
	shifts := make([]models.Shift, 0, len(starts))
	for _, start := range starts {
		shifts = append(shifts, models.Shift{
			CompanyID:      companyID,
			Title:          strings.TrimSpace(req.Title),
			Description:    req.Description,
			Location:       strings.TrimSpace(req.Location),
			StartTime:      start.UTC(),
			EndTime:        start.Add(duration).UTC(),
			HourlyRate:     req.HourlyRate,
			Currency:       currency,
			VacanciesTotal: req.Vacancies,
			Status:         models.ShiftStatusPublished,
			SeriesID:       seriesID,
		})
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.shifts.CreateManyTx(ctx, tx, shifts); err != nil {
		err = appErrors.Internal(err, "failed to create shifts")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit shifts")
		return nil, err
	}

	s.metrics.RecordShiftsCreated(len(shifts))
	for i := range shifts {
		emitAudit(ctx, s.audit, s.logger, companyID, models.AuditActionShiftCreate, "shift", shifts[i].ID, shifts[i])
	}
	s.views.Invalidate(ctx, ViewDashboard, ViewJobBoard)
	return &dto.CreateShiftResponse{SeriesID: seriesID, Shifts: shifts}, nil
}

// occurrences expands an RRULE anchored at start. An empty rule yields start only.
func (s *ShiftService) occurrences(start time.Time, recurrence string) ([]time.Time, error) {
	recurrence = strings.TrimSpace(recurrence)
	if recurrence == "" {
		return []time.Time{start}, nil
	}
	if len(recurrence) > 6 && strings.EqualFold(recurrence[:6], "RRULE:") {
		recurrence = recurrence[6:]
	}
	rule, err := rrule.StrToRRule(recurrence)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurrence rule")
	}
	rule.DTStart(start)

	limit := s.cfg.MaxOccurrences
	out := make([]time.Time, 0, limit)
	next := rule.Iterator()
	for {
		occurrence, ok := next()
		if !ok {
			break
		}
		if len(out) == limit {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("recurrence yields more than %d shifts", limit))
		}
		out = append(out, occurrence)
	}
	if len(out) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence yields no shifts")
	}
	return out, nil
}

// Update edits a live shift owned by companyID.
func (s *ShiftService) Update(ctx context.Context, companyID, shiftID string, req dto.UpdateShiftRequest) (shift *models.Shift, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid shift payload")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	shift, err = s.shifts.LockByIDTx(ctx, tx, shiftID)
	if err != nil {
		err = lookupError(err, "shift not found", "failed to load shift")
		return nil, err
	}
	if shift.CompanyID != companyID {
		err = appErrors.Clone(appErrors.ErrForbidden, "only the shift owner can edit it")
		return nil, err
	}
	if !shift.Live() {
		err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("shift is %s", shift.Status))
		return nil, err
	}

	if req.Title != nil {
		shift.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		shift.Description = *req.Description
	}
	if req.Location != nil {
		shift.Location = strings.TrimSpace(*req.Location)
	}
	if req.HourlyRate != nil {
		shift.HourlyRate = *req.HourlyRate
	}
	if req.Vacancies != nil {
		if *req.Vacancies < shift.VacanciesTaken {
			err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("vacancies cannot drop below the %d accepted workers", shift.VacanciesTaken))
			return nil, err
		}
		shift.VacanciesTotal = *req.Vacancies
	}
	shift.Status = shift.StatusForVacancies()

	if err = s.shifts.UpdateDetailsTx(ctx, tx, shift); err != nil {
		err = appErrors.Internal(err, "failed to update shift")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit shift")
		return nil, err
	}

	emitAudit(ctx, s.audit, s.logger, companyID, models.AuditActionShiftUpdate, "shift", shift.ID, req)
	s.views.ShiftChanged(ctx, shift.ID)
	return shift, nil
}

// Get returns a shift by id.
func (s *ShiftService) Get(ctx context.Context, shiftID string) (*models.Shift, error) {
	shift, err := s.shifts.FindByID(ctx, shiftID)
	if err != nil {
		return nil, lookupError(err, "shift not found", "failed to load shift")
	}
	return shift, nil
}

// JobBoard lists published upcoming shifts. Pages are cached per filter.
func (s *ShiftService) JobBoard(ctx context.Context, filter models.ShiftFilter) (*dto.JobBoardPage, bool, error) {
	filter.Normalize()
	filter.CompanyID = ""
	filter.Statuses = []models.ShiftStatus{models.ShiftStatusPublished}
	now := s.now()
	filter.From = &now

	key := ViewKey(ViewJobBoard,
		strconv.Itoa(filter.Page),
		strconv.Itoa(filter.PageSize),
		strings.ToLower(filter.Location),
		strings.ToLower(filter.Search),
	)
	var cached dto.JobBoardPage
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	shifts, total, err := s.shifts.List(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to list shifts")
	}
	if shifts == nil {
		shifts = []models.Shift{}
	}
	page := &dto.JobBoardPage{
		Shifts:     shifts,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}
	s.cache.Set(ctx, key, page, s.cfg.JobBoardTTL)
	return page, false, nil
}

// ListCompany lists the shifts of one company.
func (s *ShiftService) ListCompany(ctx context.Context, companyID string, filter models.ShiftFilter) ([]models.Shift, *models.Pagination, error) {
	filter.Normalize()
	filter.CompanyID = companyID
	shifts, total, err := s.shifts.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list shifts")
	}
	return shifts, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Cancel cancels a live shift and all of its open applications. A late
// cancellation of a shift with accepted workers charges the company a fee
// when penalties are enforced.
func (s *ShiftService) Cancel(ctx context.Context, companyID, shiftID string) (result *dto.ShiftCancellationResult, err error) {
	now := s.now()

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	shift, err := s.shifts.LockByIDTx(ctx, tx, shiftID)
	if err != nil {
		err = lookupError(err, "shift not found", "failed to load shift")
		return nil, err
	}
	if shift.CompanyID != companyID {
		err = appErrors.Clone(appErrors.ErrForbidden, "only the shift owner can cancel it")
		return nil, err
	}
	if !shift.Live() {
		err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("shift is already %s", shift.Status))
		return nil, err
	}
	class := s.policy.Classify(shift.StartTime, now)
	if !class.IsUpcoming {
		err = appErrors.Clone(appErrors.ErrConflict, "shift has already started")
		return nil, err
	}

	hadAccepted := shift.VacanciesTaken > 0
	workers, err := s.apps.CancelOpenForShiftTx(ctx, tx, shift.ID, now)
	if err != nil {
		err = appErrors.Internal(err, "failed to cancel applications")
		return nil, err
	}
	if err = s.shifts.UpdateStatusTx(ctx, tx, shift.ID, models.ShiftStatusCancelled); err != nil {
		err = appErrors.Internal(err, "failed to cancel shift")
		return nil, err
	}

	result = &dto.ShiftCancellationResult{CancelledApplications: len(workers), Late: class.IsLate && hadAccepted}
	if result.Late && s.policy.Enabled {
		penalty := &models.CancellationPenalty{
			UserID:      companyID,
			ShiftID:     shift.ID,
			Kind:        models.PenaltyCompanyFee,
			AmountMinor: s.policy.CompanyFee,
			Currency:    s.policy.Currency,
			CreatedAt:   now,
		}
		if err = s.penalties.CreateTx(ctx, tx, penalty); err != nil {
			err = appErrors.Internal(err, "failed to record penalty")
			return nil, err
		}
		result.Penalty = penalty
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit cancellation")
		return nil, err
	}

	shift.Status = models.ShiftStatusCancelled
	result.Shift = *shift

	s.metrics.RecordCancellation(string(models.RoleCompany), result.Late)
	emitAudit(ctx, s.audit, s.logger, companyID, models.AuditActionShiftCancel, "shift", shift.ID, map[string]interface{}{
		"late":                   result.Late,
		"cancelled_applications": len(workers),
	})
	if result.Penalty != nil {
		s.metrics.RecordPenalty(string(result.Penalty.Kind))
		emitAudit(ctx, s.audit, s.logger, companyID, models.AuditActionPenalty, "user", companyID, result.Penalty)
	}
	s.views.ShiftChanged(ctx, shift.ID)
	return result, nil
}

// CompletePast marks every ended live shift as completed.
func (s *ShiftService) CompletePast(ctx context.Context) (int, error) {
	ids, err := s.shifts.CompleteEnded(ctx, s.now())
	if err != nil {
		return 0, appErrors.Internal(err, "failed to complete ended shifts")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	s.metrics.RecordShiftsCompleted(len(ids))
	paths := []string{ViewDashboard, ViewJobBoard, ViewWorkerSchedule}
	for _, id := range ids {
		paths = append(paths, ShiftView(id))
	}
	s.views.Invalidate(ctx, paths...)
	s.logger.Info("completed ended shifts", zap.Int("count", len(ids)))
	return len(ids), nil
}

// CancellationPolicy reports whether cancelling now would be late, and the
// consequence shown to a user with the given role.
func (s *ShiftService) CancellationPolicy(ctx context.Context, shiftID string, role models.UserRole) (*dto.CancellationPolicyResponse, error) {
	shift, err := s.shifts.FindByID(ctx, shiftID)
	if err != nil {
		return nil, lookupError(err, "shift not found", "failed to load shift")
	}
	class := s.policy.Classify(shift.StartTime, s.now())
	resp := &dto.CancellationPolicyResponse{
		ShiftID:         shift.ID,
		ShiftStart:      shift.StartTime,
		IsUpcoming:      class.IsUpcoming,
		IsLate:          class.IsLate,
		PenaltyEnforced: s.policy.Enabled,
	}
	if class.IsLate {
		resp.Consequence = s.policy.Consequence(role)
	}
	return resp, nil
}
