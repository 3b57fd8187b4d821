package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/internal/repository"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
	"github.com/noah-isme/vikar-api/pkg/timewindow"
)

type timesheetStore interface {
	FindByID(ctx context.Context, id string) (*models.Timesheet, error)
	FindByShiftWorker(ctx context.Context, shiftID, workerID string) (*models.Timesheet, error)
	Create(ctx context.Context, ts *models.Timesheet) error
	Save(ctx context.Context, ts *models.Timesheet) error
	List(ctx context.Context, filter models.TimesheetFilter) ([]models.TimesheetView, error)
}

type shiftReader interface {
	FindByID(ctx context.Context, id string) (*models.Shift, error)
}

type acceptedLookup interface {
	FindAccepted(ctx context.Context, shiftID, workerID string) (*models.Application, error)
}

// TimesheetService records attendance and walks timesheets through approval
// and payment.
type TimesheetService struct {
	timesheets timesheetStore
	shifts     shiftReader
	apps       acceptedLookup
	audit      auditWriter
	validator  *validator.Validate
	logger     *zap.Logger
	grace      time.Duration
	now        Clock
}

// NewTimesheetService constructs a TimesheetService.
func NewTimesheetService(timesheets timesheetStore, shifts shiftReader, apps acceptedLookup, audit auditWriter, validate *validator.Validate, logger *zap.Logger, grace time.Duration) *TimesheetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if grace <= 0 {
		grace = 30 * time.Minute
	}
	return &TimesheetService{
		timesheets: timesheets,
		shifts:     shifts,
		apps:       apps,
		audit:      audit,
		validator:  validate,
		logger:     logger,
		grace:      grace,
		now:        utcNow,
	}
}

// ClockIn opens the worker's timesheet for a shift they were accepted on.
func (s *TimesheetService) ClockIn(ctx context.Context, workerID, shiftID string) (*models.Timesheet, error) {
	shift, err := s.shifts.FindByID(ctx, shiftID)
	if err != nil {
		return nil, lookupError(err, "shift not found", "failed to load shift")
	}
	if _, err := s.apps.FindAccepted(ctx, shiftID, workerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "worker is not booked on this shift")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}

	now := s.now()
	switch {
	case shift.Status == models.ShiftStatusCancelled:
		return nil, appErrors.Clone(appErrors.ErrConflict, "shift was cancelled")
	case now.Before(shift.StartTime.Add(-s.grace)):
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("clock-in opens %s before the shift starts", s.grace))
	case !now.Before(shift.EndTime):
		return nil, appErrors.Clone(appErrors.ErrConflict, "shift has already ended")
	}

	if existing, err := s.timesheets.FindByShiftWorker(ctx, shiftID, workerID); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already clocked in for this shift")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load timesheet")
	}

	ts := &models.Timesheet{
		ShiftID:     shiftID,
		WorkerID:    workerID,
		CompanyID:   shift.CompanyID,
		Status:      models.TimesheetStatusPending,
		ClockInTime: &now,
		CreatedAt:   now,
	}
	if err := s.timesheets.Create(ctx, ts); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "already clocked in for this shift")
		}
		return nil, appErrors.Internal(err, "failed to create timesheet")
	}
	s.record(ctx, workerID, ts, "clock_in")
	return ts, nil
}

// ClockOut closes the worker's open timesheet.
func (s *TimesheetService) ClockOut(ctx context.Context, workerID, timesheetID string) (*models.Timesheet, error) {
	ts, err := s.load(ctx, timesheetID)
	if err != nil {
		return nil, err
	}
	if ts.WorkerID != workerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "timesheet belongs to another worker")
	}
	if ts.ClockInTime == nil || ts.ClockOutTime != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "timesheet is not open")
	}
	now := s.now()
	if !now.After(*ts.ClockInTime) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "clock-out must be after clock-in")
	}
	ts.ClockOutTime = &now
	if err := s.timesheets.Save(ctx, ts); err != nil {
		return nil, appErrors.Internal(err, "failed to save timesheet")
	}
	s.record(ctx, workerID, ts, "clock_out")
	return ts, nil
}

// Approve accepts a timesheet, optionally overriding the billable window.
func (s *TimesheetService) Approve(ctx context.Context, companyID, timesheetID string, req dto.ApproveTimesheetRequest) (*models.Timesheet, error) {
	ts, err := s.loadOwned(ctx, companyID, timesheetID)
	if err != nil {
		return nil, err
	}
	if ts.Status != models.TimesheetStatusPending && ts.Status != models.TimesheetStatusDisputed {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("timesheet is %s", ts.Status))
	}

	switch {
	case req.ApprovedStart != nil && req.ApprovedEnd != nil:
		if !timewindow.New(*req.ApprovedStart, *req.ApprovedEnd).Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "approved_end must be after approved_start")
		}
		start, end := req.ApprovedStart.UTC(), req.ApprovedEnd.UTC()
		ts.ManagerApprovedStart, ts.ManagerApprovedEnd = &start, &end
	case req.ApprovedStart != nil || req.ApprovedEnd != nil:
		return nil, appErrors.Clone(appErrors.ErrValidation, "approved_start and approved_end must be given together")
	}
	if _, ok := ts.BillableWindow(); !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "timesheet has no billable hours yet")
	}

	now := s.now()
	ts.Status = models.TimesheetStatusApproved
	ts.ApprovedAt = &now
	if err := s.timesheets.Save(ctx, ts); err != nil {
		return nil, appErrors.Internal(err, "failed to save timesheet")
	}
	s.record(ctx, companyID, ts, "approve")
	return ts, nil
}

// Dispute flags a timesheet with a reason.
func (s *TimesheetService) Dispute(ctx context.Context, companyID, timesheetID string, req dto.DisputeTimesheetRequest) (*models.Timesheet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "dispute reason is required")
	}
	ts, err := s.loadOwned(ctx, companyID, timesheetID)
	if err != nil {
		return nil, err
	}
	if ts.Status == models.TimesheetStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "timesheet is already paid")
	}
	reason := strings.TrimSpace(req.Reason)
	ts.Status = models.TimesheetStatusDisputed
	ts.DisputeReason = &reason
	ts.ApprovedAt = nil
	if err := s.timesheets.Save(ctx, ts); err != nil {
		return nil, appErrors.Internal(err, "failed to save timesheet")
	}
	s.record(ctx, companyID, ts, "dispute")
	return ts, nil
}

// MarkPaid records payment of an approved timesheet.
func (s *TimesheetService) MarkPaid(ctx context.Context, companyID, timesheetID string) (*models.Timesheet, error) {
	ts, err := s.loadOwned(ctx, companyID, timesheetID)
	if err != nil {
		return nil, err
	}
	if ts.Status != models.TimesheetStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only approved timesheets can be paid")
	}
	now := s.now()
	ts.Status = models.TimesheetStatusPaid
	ts.PaidAt = &now
	if err := s.timesheets.Save(ctx, ts); err != nil {
		return nil, appErrors.Internal(err, "failed to save timesheet")
	}
	s.record(ctx, companyID, ts, "paid")
	return ts, nil
}

// ListForWorker returns the worker's timesheets with derived totals.
func (s *TimesheetService) ListForWorker(ctx context.Context, workerID string, filter models.TimesheetFilter) ([]models.TimesheetView, error) {
	filter.WorkerID, filter.CompanyID = workerID, ""
	return s.list(ctx, filter)
}

// ListForCompany returns timesheets of the company's shifts.
func (s *TimesheetService) ListForCompany(ctx context.Context, companyID string, filter models.TimesheetFilter) ([]models.TimesheetView, error) {
	filter.CompanyID = companyID
	return s.list(ctx, filter)
}

func (s *TimesheetService) list(ctx context.Context, filter models.TimesheetFilter) ([]models.TimesheetView, error) {
	items, err := s.timesheets.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list timesheets")
	}
	if items == nil {
		items = []models.TimesheetView{}
	}
	return items, nil
}

func (s *TimesheetService) load(ctx context.Context, id string) (*models.Timesheet, error) {
	ts, err := s.timesheets.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "timesheet not found", "failed to load timesheet")
	}
	return ts, nil
}

func (s *TimesheetService) loadOwned(ctx context.Context, companyID, id string) (*models.Timesheet, error) {
	ts, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ts.CompanyID != companyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "timesheet belongs to another company")
	}
	return ts, nil
}

func (s *TimesheetService) record(ctx context.Context, actorID string, ts *models.Timesheet, step string) {
	emitAudit(ctx, s.audit, s.logger, actorID, models.AuditActionTimesheetUpdate, "timesheet", ts.ID, map[string]interface{}{
		"step":   step,
		"status": ts.Status,
	})
}
