package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/internal/repository"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
	"github.com/noah-isme/vikar-api/pkg/export"
	"github.com/noah-isme/vikar-api/pkg/jobs"
	"github.com/noah-isme/vikar-api/pkg/storage"
)

// PayrollJobKind is the queue kind of payroll exports.
const PayrollJobKind = "payroll"

type exportStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, u repository.ExportJobUpdate) error
	ListByStatus(ctx context.Context, status models.ExportStatus, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type timesheetLister interface {
	List(ctx context.Context, filter models.TimesheetFilter) ([]models.TimesheetView, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type artifactStore interface {
	Put(key string, data []byte) error
	Open(key string) (*os.File, error)
	Remove(key string) error
	Sweep(maxAge time.Duration, now time.Time) ([]string, error)
}

type urlSigner interface {
	Sign(jobID, key string) (string, storage.Grant, error)
	Verify(token string) (storage.Grant, error)
}

// ExportServiceDeps bundles the collaborators of ExportService.
type ExportServiceDeps struct {
	Jobs         exportStore
	Timesheets   timesheetLister
	Queue        jobEnqueuer
	Storage      artifactStore
	Signer       urlSigner
	Metrics      *MetricsService
	Validator    *validator.Validate
	Logger       *zap.Logger
	Clock        Clock
	DownloadPath string
	Retention    time.Duration
}

// ExportService runs asynchronous payroll exports.
type ExportService struct {
	jobs         exportStore
	timesheets   timesheetLister
	queue        jobEnqueuer
	storage      artifactStore
	signer       urlSigner
	renderers    map[models.ExportFormat]export.Renderer
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	now          Clock
	downloadPath string
	retention    time.Duration
}

// Download is a resolved export artifact ready to stream.
type Download struct {
	File        *os.File
	Filename    string
	ContentType string
}

// NewExportService constructs an ExportService.
func NewExportService(deps ExportServiceDeps) *ExportService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Clock == nil {
		deps.Clock = utcNow
	}
	if deps.DownloadPath == "" {
		deps.DownloadPath = "/api/v1/downloads"
	}
	if deps.Retention <= 0 {
		deps.Retention = 24 * time.Hour
	}
	return &ExportService{
		jobs:       deps.Jobs,
		timesheets: deps.Timesheets,
		queue:      deps.Queue,
		storage:    deps.Storage,
		signer:     deps.Signer,
		renderers: map[models.ExportFormat]export.Renderer{
			models.ExportFormatCSV: export.NewCSVRenderer(),
			models.ExportFormatPDF: export.NewPDFRenderer(),
		},
		metrics:      deps.Metrics,
		validator:    deps.Validator,
		logger:       deps.Logger,
		now:          deps.Clock,
		downloadPath: deps.DownloadPath,
		retention:    deps.Retention,
	}
}

// RequestPayroll queues a payroll export of the company's timesheets.
func (s *ExportService) RequestPayroll(ctx context.Context, companyID string, req dto.PayrollExportRequest) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	job := &models.ExportJob{
		Type: models.ExportTypePayroll,
		Params: models.ExportJobParams{
			CompanyID: companyID,
			From:      req.From.UTC(),
			To:        req.To.UTC(),
			Format:    req.Format,
		},
		Status:    models.ExportStatusQueued,
		CreatedBy: companyID,
		CreatedAt: s.now(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Internal(err, "failed to create export job")
	}
	if err := s.enqueue(job.ID); err != nil {
		s.fail(ctx, job.ID, err)
		return nil, appErrors.Internal(err, "failed to queue export job")
	}
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// Status returns the progress of a company's export job.
func (s *ExportService) Status(ctx context.Context, companyID, jobID string) (*dto.ExportStatusResponse, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, lookupError(err, "export job not found", "failed to load export job")
	}
	if job.CreatedBy != companyID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return &dto.ExportStatusResponse{
		ID:        job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
		Error:     job.ErrorMessage,
	}, nil
}

// HandlePayrollJob is the queue handler that renders and stores an export.
func (s *ExportService) HandlePayrollJob(ctx context.Context, job jobs.Job) error {
	jobID, ok := job.Payload.(string)
	if !ok || jobID == "" {
		return fmt.Errorf("payroll job %s: unexpected payload %T", job.ID, job.Payload)
	}
	if err := s.processPayroll(ctx, jobID); err != nil {
		s.fail(ctx, jobID, err)
		return err
	}
	return nil
}

func (s *ExportService) processPayroll(ctx context.Context, jobID string) error {
	record, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load export job: %w", err)
	}
	renderer, ok := s.renderers[record.Params.Format]
	if !ok {
		return fmt.Errorf("unsupported export format %q", record.Params.Format)
	}
	if err := s.progress(ctx, jobID, models.ExportStatusProcessing, 10); err != nil {
		return err
	}

	from, to := record.Params.From, record.Params.To
	rows, err := s.timesheets.List(ctx, models.TimesheetFilter{
		CompanyID: record.Params.CompanyID,
		Statuses:  []models.TimesheetStatus{models.TimesheetStatusApproved, models.TimesheetStatusPaid},
		From:      &from,
		To:        &to,
	})
	if err != nil {
		return fmt.Errorf("load timesheets: %w", err)
	}
	if err := s.progress(ctx, jobID, models.ExportStatusProcessing, 50); err != nil {
		return err
	}

	data, err := renderer.Render(payrollTable(rows, from, to))
	if err != nil {
		return fmt.Errorf("render payroll: %w", err)
	}
	key := fmt.Sprintf("payroll/%s.%s", jobID, renderer.Extension())
	if err := s.storage.Put(key, data); err != nil {
		return fmt.Errorf("store payroll: %w", err)
	}
	token, _, err := s.signer.Sign(jobID, key)
	if err != nil {
		return fmt.Errorf("sign payroll url: %w", err)
	}

	status := models.ExportStatusFinished
	progress := 100
	url := s.downloadPath + "/" + token
	finished := s.now()
	if err := s.jobs.Update(ctx, jobID, repository.ExportJobUpdate{
		Status:     &status,
		Progress:   &progress,
		ResultURL:  &url,
		FinishedAt: &finished,
	}); err != nil {
		return fmt.Errorf("finish export job: %w", err)
	}
	s.metrics.RecordExportJob(string(status))
	s.logger.Info("payroll export finished", zap.String("job_id", jobID), zap.Int("rows", len(rows)), zap.Int("bytes", len(data)))
	return nil
}

func payrollTable(rows []models.TimesheetView, from, to time.Time) export.Table {
	table := export.Table{
		Title: fmt.Sprintf("Payroll %s - %s", from.Format("2006-01-02"), to.Format("2006-01-02")),
		Columns: []export.Column{
			{Key: "worker", Title: "Worker"},
			{Key: "shift", Title: "Shift"},
			{Key: "date", Title: "Date"},
			{Key: "status", Title: "Status"},
			{Key: "hours", Title: "Hours", Numeric: true},
			{Key: "rate", Title: "Rate", Numeric: true},
			{Key: "earnings", Title: "Earnings", Numeric: true},
			{Key: "currency", Title: "Currency"},
		},
		Rows: make([]map[string]string, 0, len(rows)),
	}
	var hours, earnings float64
	for _, r := range rows {
		r.Derive()
		hours += r.HoursTotal
		earnings += r.Earned
		table.Rows = append(table.Rows, map[string]string{
			"worker":   r.WorkerName,
			"shift":    r.ShiftTitle,
			"date":     r.ShiftStart.Format("2006-01-02"),
			"status":   string(r.Status),
			"hours":    strconv.FormatFloat(r.HoursTotal, 'f', 2, 64),
			"rate":     strconv.FormatFloat(r.HourlyRate, 'f', 2, 64),
			"earnings": strconv.FormatFloat(r.Earned, 'f', 2, 64),
			"currency": r.Currency,
		})
	}
	table.Footer = map[string]string{
		"worker":   "Total",
		"hours":    strconv.FormatFloat(hours, 'f', 2, 64),
		"earnings": strconv.FormatFloat(earnings, 'f', 2, 64),
	}
	return table
}

// ResolveDownload verifies a download token and opens the artifact.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*Download, error) {
	grant, err := s.signer.Verify(token)
	switch {
	case errors.Is(err, storage.ErrTokenExpired):
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link has expired")
	case err != nil:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "download not found")
	}

	job, err := s.jobs.GetByID(ctx, grant.JobID)
	if err != nil {
		return nil, lookupError(err, "download not found", "failed to load export job")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "download not found")
	}
	file, err := s.storage.Open(grant.Key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "download not found")
		}
		return nil, appErrors.Internal(err, "failed to open export")
	}

	contentType := "application/octet-stream"
	if r, ok := s.renderers[job.Params.Format]; ok {
		contentType = r.ContentType()
	}
	return &Download{
		File:        file,
		Filename:    fmt.Sprintf("payroll-%s.%s", job.Params.From.Format("20060102"), job.Params.Format),
		ContentType: contentType,
	}, nil
}

// ResumeQueued re-enqueues jobs left queued by a previous process.
func (s *ExportService) ResumeQueued(ctx context.Context) (int, error) {
	pending, err := s.jobs.ListByStatus(ctx, models.ExportStatusQueued, 100)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list queued exports")
	}
	resumed := 0
	for _, job := range pending {
		if err := s.enqueue(job.ID); err != nil {
			s.logger.Warn("failed to resume export job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		resumed++
	}
	return resumed, nil
}

// Cleanup removes artifacts of finished jobs older than the retention period
// and sweeps orphaned files.
func (s *ExportService) Cleanup(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.jobs.ListFinishedBefore(ctx, now.Add(-s.retention), 100)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list expired exports")
	}
	removed := 0
	for _, job := range expired {
		key := fmt.Sprintf("payroll/%s.%s", job.ID, job.Params.Format)
		if err := s.storage.Remove(key); err != nil {
			s.logger.Warn("failed to remove export artifact", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		empty := ""
		note := "export expired"
		if err := s.jobs.Update(ctx, job.ID, repository.ExportJobUpdate{ResultURL: &empty, ErrorMessage: &note}); err != nil {
			s.logger.Warn("failed to mark export expired", zap.String("job_id", job.ID), zap.Error(err))
		}
		removed++
	}
	swept, err := s.storage.Sweep(s.retention*2, now)
	if err != nil {
		s.logger.Warn("export sweep failed", zap.Error(err))
	}
	return removed + len(swept), nil
}

func (s *ExportService) enqueue(jobID string) error {
	return s.queue.Enqueue(jobs.Job{ID: jobID, Kind: PayrollJobKind, Payload: jobID, Enqueued: s.now()})
}

func (s *ExportService) progress(ctx context.Context, jobID string, status models.ExportStatus, pct int) error {
	if err := s.jobs.Update(ctx, jobID, repository.ExportJobUpdate{Status: &status, Progress: &pct}); err != nil {
		return fmt.Errorf("update export progress: %w", err)
	}
	return nil
}

func (s *ExportService) fail(ctx context.Context, jobID string, cause error) {
	status := models.ExportStatusFailed
	msg := cause.Error()
	finished := s.now()
	if err := s.jobs.Update(ctx, jobID, repository.ExportJobUpdate{Status: &status, ErrorMessage: &msg, FinishedAt: &finished}); err != nil {
		s.logger.Error("failed to mark export job failed", zap.String("job_id", jobID), zap.Error(err))
	}
	s.metrics.RecordExportJob(string(status))
	s.logger.Warn("payroll export failed", zap.String("job_id", jobID), zap.Error(cause))
}
