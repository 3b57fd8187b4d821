package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

type applicationStore interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	LockByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error)
	FindOpenTx(ctx context.Context, tx *sqlx.Tx, shiftID, workerID string) (*models.Application, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, app *models.Application) error
	LockWorkerWindowsTx(ctx context.Context, tx *sqlx.Tx, workerID string) ([]models.ApplicationWindow, error)
	DecideTx(ctx context.Context, tx *sqlx.Tx, id string, status models.ApplicationStatus, at time.Time) error
	RejectManyTx(ctx context.Context, tx *sqlx.Tx, ids []string, at time.Time) ([]string, error)
	WaitlistPendingTx(ctx context.Context, tx *sqlx.Tx, shiftID string) (int64, error)
	CancelTx(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) error
	ListDetailed(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
}

type applicationShiftStore interface {
	FindByID(ctx context.Context, id string) (*models.Shift, error)
	LockByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Shift, error)
	UpdateCapacityTx(ctx context.Context, tx *sqlx.Tx, id string, taken int, status models.ShiftStatus) error
}

type accountStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SuspendTx(ctx context.Context, tx *sqlx.Tx, id string, until time.Time) error
}

type relationReader interface {
	Kind(ctx context.Context, companyID, workerID string) (models.RelationKind, error)
}

type penaltyWriter interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, p *models.CancellationPenalty) error
}

// ApplicationServiceDeps bundles the collaborators of ApplicationService.
type ApplicationServiceDeps struct {
	Applications applicationStore
	Shifts       applicationShiftStore
	Users        accountStore
	Relations    relationReader
	Penalties    penaltyWriter
	Audit        auditWriter
	Tx           txProvider
	Policy       CancellationPolicy
	Metrics      *MetricsService
	Views        *ViewInvalidator
	Logger       *zap.Logger
	Clock        Clock
}

// ApplicationService runs the application lifecycle: apply, decide with
// overlap cascade, cancel with late-cancellation policy.
type ApplicationService struct {
	apps      applicationStore
	shifts    applicationShiftStore
	users     accountStore
	relations relationReader
	penalties penaltyWriter
	audit     auditWriter
	tx        txProvider
	policy    CancellationPolicy
	metrics   *MetricsService
	views     *ViewInvalidator
	logger    *zap.Logger
	now       Clock
}

// NewApplicationService constructs the service.
func NewApplicationService(deps ApplicationServiceDeps) *ApplicationService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = utcNow
	}
	return &ApplicationService{
		apps:      deps.Applications,
		shifts:    deps.Shifts,
		users:     deps.Users,
		relations: deps.Relations,
		penalties: deps.Penalties,
		audit:     deps.Audit,
		tx:        deps.Tx,
		policy:    deps.Policy.withDefaults(),
		metrics:   deps.Metrics,
		views:     deps.Views,
		logger:    deps.Logger,
		now:       deps.Clock,
	}
}

// Apply creates a pending application of workerID for shiftID.
func (s *ApplicationService) Apply(ctx context.Context, workerID, shiftID string) (app *models.Application, err error) {
	now := s.now()
	worker, err := s.users.FindByID(ctx, workerID)
	if err != nil {
		return nil, lookupError(err, "worker not found", "failed to load worker")
	}
	if worker.Role != models.RoleWorker {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only workers can apply for shifts")
	}
	if worker.SuspendedAt(now) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("account is suspended until %s", worker.BannedUntil.Format(time.RFC3339)))
	}

	shift, err := s.shifts.FindByID(ctx, shiftID)
	if err != nil {
		return nil, lookupError(err, "shift not found", "failed to load shift")
	}
	if s.relations != nil {
		kind, relErr := s.relations.Kind(ctx, shift.CompanyID, workerID)
		if relErr != nil {
			return nil, appErrors.Internal(relErr, "failed to load worker relation")
		}
		if kind == models.RelationBlocked {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "company does not accept applications from this worker")
		}
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
		return nil, lookupError(err, "shift not found", "failed to lock shift")
	}
	if shift.Status != models.ShiftStatusPublished {
		err = appErrors.Clone(appErrors.ErrConflict, "shift is not open for applications")
		return nil, err
	}
	if shift.StartedAt(now) {
		err = appErrors.Clone(appErrors.ErrConflict, "shift has already started")
		return nil, err
	}

	existing, findErr := s.apps.FindOpenTx(ctx, tx, shiftID, workerID)
	switch {
	case findErr == nil && existing != nil:
		err = appErrors.Clone(appErrors.ErrConflict, "worker already applied for this shift")
		return nil, err
	case findErr != nil && !errors.Is(findErr, sql.ErrNoRows):
		err = appErrors.Internal(findErr, "failed to check existing application")
		return nil, err
	}

	app = &models.Application{
		ShiftID:   shiftID,
		WorkerID:  workerID,
		CompanyID: shift.CompanyID,
		Status:    models.ApplicationStatusPending,
		AppliedAt: now,
	}
	if err = s.apps.CreateTx(ctx, tx, app); err != nil {
		err = appErrors.Internal(err, "failed to create application")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit application")
		return nil, err
	}

	emitAudit(ctx, s.audit, s.logger, workerID, models.AuditActionApplicationCreate, "application", app.ID, app)
	s.views.Invalidate(ctx, ViewDashboard, ShiftView(shiftID), CandidatesView(shiftID))
	return app, nil
}

// UpdateStatus applies a company decision to an application. Accepting runs
// the overlap cascade in the same transaction: the worker's other pending
// applications whose shifts overlap the accepted one are rejected.
func (s *ApplicationService) UpdateStatus(ctx context.Context, applicationID, decision, requesterID string) (result *dto.DecisionResult, err error) {
	target, parseErr := models.ParseDecision(decision)
	if parseErr != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, parseErr.Error())
	}
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

	app, err := s.apps.LockByIDTx(ctx, tx, applicationID)
	if err != nil {
		err = lookupError(err, "application not found", "failed to load application")
		return nil, err
	}
	shift, err := s.shifts.LockByIDTx(ctx, tx, app.ShiftID)
	if err != nil {
		err = lookupError(err, "shift not found", "failed to load shift")
		return nil, err
	}
	if shift.CompanyID != requesterID {
		err = appErrors.Clone(appErrors.ErrForbidden, "only the shift owner can decide applications")
		return nil, err
	}

	result = &dto.DecisionResult{CascadeRejectedIDs: []string{}}
	if app.Status == target {
		if err = tx.Commit(); err != nil {
			err = appErrors.Internal(err, "failed to commit decision")
			return nil, err
		}
		result.Application = *app
		return result, nil
	}
	if err = checkTransition(app.Status, target); err != nil {
		return nil, err
	}

	previous := app.Status
	switch target {
	case models.ApplicationStatusAccepted:
		if err = s.accept(ctx, tx, app, shift, now, result); err != nil {
			return nil, err
		}
	case models.ApplicationStatusRejected:
		if err = s.apps.DecideTx(ctx, tx, app.ID, target, now); err != nil {
			err = appErrors.Internal(err, "failed to reject application")
			return nil, err
		}
		if previous == models.ApplicationStatusAccepted {
			if err = s.releaseVacancy(ctx, tx, shift); err != nil {
				return nil, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit decision")
		return nil, err
	}

	app.Status = target
	app.DecidedAt = &now
	result.Application = *app
	result.Changed = true

	s.metrics.RecordDecision(string(target))
	s.metrics.RecordCascadeRejections(len(result.CascadeRejectedIDs))
	emitAudit(ctx, s.audit, s.logger, requesterID, models.AuditActionApplicationDecide, "application", app.ID, map[string]interface{}{
		"from": previous,
		"to":   target,
	})
	if len(result.CascadeRejectedIDs) > 0 {
		emitAudit(ctx, s.audit, s.logger, requesterID, models.AuditActionCascadeReject, "application", app.ID, map[string]interface{}{
			"worker_id": app.WorkerID,
			"rejected":  result.CascadeRejectedIDs,
		})
		s.logger.Info("cascade rejected overlapping applications",
			zap.String("application_id", app.ID),
			zap.String("worker_id", app.WorkerID),
			zap.Int("count", len(result.CascadeRejectedIDs)),
		)
	}
	s.views.ShiftChanged(ctx, shift.ID)
	return result, nil
}

func checkTransition(from, to models.ApplicationStatus) error {
	allowed := false
	switch to {
	case models.ApplicationStatusAccepted:
		allowed = from == models.ApplicationStatusPending || from == models.ApplicationStatusWaitlist
	case models.ApplicationStatusRejected:
		allowed = from == models.ApplicationStatusPending || from == models.ApplicationStatusWaitlist || from == models.ApplicationStatusAccepted
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot change application from %s to %s", from, to))
	}
	return nil
}

func (s *ApplicationService) accept(ctx context.Context, tx *sqlx.Tx, app *models.Application, shift *models.Shift, now time.Time, result *dto.DecisionResult) error {
	if !shift.Live() {
		return appErrors.Clone(appErrors.ErrConflict, "shift is no longer open")
	}
	if shift.StartedAt(now) {
		return appErrors.Clone(appErrors.ErrConflict, "shift has already started")
	}
	if !shift.HasVacancy() {
		return appErrors.Clone(appErrors.ErrConflict, "shift has no free vacancies")
	}

	windows, err := s.apps.LockWorkerWindowsTx(ctx, tx, app.WorkerID)
	if err != nil {
		return appErrors.Internal(err, "failed to lock worker applications")
	}
	accepted := shift.Window()
	overlapping := make([]string, 0)
	for _, w := range windows {
		if w.ID == app.ID || !w.Window().Overlaps(accepted) {
			continue
		}
		switch w.Status {
		case models.ApplicationStatusAccepted:
			return appErrors.Clone(appErrors.ErrConflict, "worker is already booked for an overlapping shift")
		case models.ApplicationStatusPending:
			overlapping = append(overlapping, w.ID)
		}
	}

	if err := s.apps.DecideTx(ctx, tx, app.ID, models.ApplicationStatusAccepted, now); err != nil {
		return appErrors.Internal(err, "failed to accept application")
	}
	if len(overlapping) > 0 {
		rejected, err := s.apps.RejectManyTx(ctx, tx, overlapping, now)
		if err != nil {
			return appErrors.Internal(err, "failed to reject overlapping applications")
		}
		result.CascadeRejectedIDs = rejected
	}

	shift.VacanciesTaken++
	shift.Status = shift.StatusForVacancies()
	if err := s.shifts.UpdateCapacityTx(ctx, tx, shift.ID, shift.VacanciesTaken, shift.Status); err != nil {
		return appErrors.Internal(err, "failed to update shift capacity")
	}
	if shift.Status == models.ShiftStatusFull {
		moved, err := s.apps.WaitlistPendingTx(ctx, tx, shift.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to waitlist pending applications")
		}
		result.Waitlisted = int(moved)
	}
	return nil
}

func (s *ApplicationService) releaseVacancy(ctx context.Context, tx *sqlx.Tx, shift *models.Shift) error {
	if shift.VacanciesTaken > 0 {
		shift.VacanciesTaken--
	}
	shift.Status = shift.StatusForVacancies()
	if err := s.shifts.UpdateCapacityTx(ctx, tx, shift.ID, shift.VacanciesTaken, shift.Status); err != nil {
		return appErrors.Internal(err, "failed to update shift capacity")
	}
	return nil
}

// Cancel withdraws a worker's own application. Cancelling an accepted
// application frees its vacancy; late cancellations are penalised when the
// policy is enforced.
func (s *ApplicationService) Cancel(ctx context.Context, workerID, applicationID string) (result *dto.CancellationResult, err error) {
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

	app, err := s.apps.LockByIDTx(ctx, tx, applicationID)
	if err != nil {
		err = lookupError(err, "application not found", "failed to load application")
		return nil, err
	}
	if app.WorkerID != workerID {
		err = appErrors.Clone(appErrors.ErrForbidden, "application belongs to another worker")
		return nil, err
	}
	if !app.Status.Open() {
		err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("application is already %s", app.Status))
		return nil, err
	}
	shift, err := s.shifts.LockByIDTx(ctx, tx, app.ShiftID)
	if err != nil {
		err = lookupError(err, "shift not found", "failed to load shift")
		return nil, err
	}

	class := s.policy.Classify(shift.StartTime, now)
	if !class.IsUpcoming {
		err = appErrors.Clone(appErrors.ErrConflict, "shift has already started")
		return nil, err
	}
	if err = s.apps.CancelTx(ctx, tx, app.ID, now); err != nil {
		err = appErrors.Internal(err, "failed to cancel application")
		return nil, err
	}

	wasAccepted := app.Status == models.ApplicationStatusAccepted
	result = &dto.CancellationResult{Late: wasAccepted && class.IsLate}
	if wasAccepted {
		if err = s.releaseVacancy(ctx, tx, shift); err != nil {
			return nil, err
		}
		if result.Late && s.policy.Enabled {
			until := now.Add(s.policy.BanDuration)
			if err = s.users.SuspendTx(ctx, tx, workerID, until); err != nil {
				err = appErrors.Internal(err, "failed to suspend worker")
				return nil, err
			}
			penalty := &models.CancellationPenalty{
				UserID:        workerID,
				ShiftID:       shift.ID,
				ApplicationID: &app.ID,
				Kind:          models.PenaltyWorkerBan,
				Currency:      s.policy.Currency,
				BannedUntil:   &until,
				CreatedAt:     now,
			}
			if err = s.penalties.CreateTx(ctx, tx, penalty); err != nil {
				err = appErrors.Internal(err, "failed to record penalty")
				return nil, err
			}
			result.Penalty = penalty
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit cancellation")
		return nil, err
	}

	app.Status = models.ApplicationStatusCancelled
	app.CancelledAt = &now
	result.Application = *app

	s.metrics.RecordCancellation(string(models.RoleWorker), result.Late)
	emitAudit(ctx, s.audit, s.logger, workerID, models.AuditActionApplicationCancel, "application", app.ID, map[string]interface{}{
		"late":         result.Late,
		"was_accepted": wasAccepted,
	})
	if result.Penalty != nil {
		s.metrics.RecordPenalty(string(result.Penalty.Kind))
		emitAudit(ctx, s.audit, s.logger, workerID, models.AuditActionPenalty, "user", workerID, result.Penalty)
	}
	s.views.ShiftChanged(ctx, shift.ID)
	return result, nil
}

// ListForWorker returns the worker's applications with shift details.
func (s *ApplicationService) ListForWorker(ctx context.Context, workerID string, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	filter.WorkerID = workerID
	filter.ShiftID = ""
	return s.list(ctx, filter)
}

// ListCandidates returns the applicants of a shift owned by companyID.
func (s *ApplicationService) ListCandidates(ctx context.Context, companyID, shiftID string, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	shift, err := s.shifts.FindByID(ctx, shiftID)
	if err != nil {
		return nil, nil, lookupError(err, "shift not found", "failed to load shift")
	}
	if shift.CompanyID != companyID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the shift owner can view candidates")
	}
	filter.ShiftID = shiftID
	filter.WorkerID = ""
	return s.list(ctx, filter)
}

// WorkerSchedule returns the worker's accepted upcoming shifts.
func (s *ApplicationService) WorkerSchedule(ctx context.Context, workerID string, page, pageSize int) ([]models.ApplicationDetail, *models.Pagination, error) {
	return s.list(ctx, models.ApplicationFilter{
		WorkerID:  workerID,
		Statuses:  []models.ApplicationStatus{models.ApplicationStatusAccepted},
		Upcoming:  true,
		Page:      page,
		PageSize:  pageSize,
		Reference: s.now(),
	})
}

func (s *ApplicationService) list(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	filter.Normalize()
	if filter.Upcoming && filter.Reference.IsZero() {
		filter.Reference = s.now()
	}
	items, total, err := s.apps.ListDetailed(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list applications")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}
