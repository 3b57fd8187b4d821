package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/middleware"
	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/internal/service"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func testContext(method, target string, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

var (
	companyClaims = &models.JWTClaims{UserID: "company-1", Role: models.RoleCompany}
	workerClaims  = &models.JWTClaims{UserID: "worker-1", Role: models.RoleWorker}
)

type applicationServiceMock struct {
	decision  string
	requester string
	err       error
	filter    models.ApplicationFilter
}

func (m *applicationServiceMock) Apply(ctx context.Context, workerID, shiftID string) (*models.Application, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Application{ID: "app-1", ShiftID: shiftID, WorkerID: workerID, Status: models.ApplicationStatusPending}, nil
}

func (m *applicationServiceMock) UpdateStatus(ctx context.Context, applicationID, decision, requesterID string) (*dto.DecisionResult, error) {
	m.decision, m.requester = decision, requesterID
	if m.err != nil {
		return nil, m.err
	}
	return &dto.DecisionResult{
		Application:        models.Application{ID: applicationID, Status: models.ApplicationStatusAccepted},
		CascadeRejectedIDs: []string{"app-2"},
		Changed:            true,
	}, nil
}

func (m *applicationServiceMock) Cancel(ctx context.Context, workerID, applicationID string) (*dto.CancellationResult, error) {
	return &dto.CancellationResult{Application: models.Application{ID: applicationID, Status: models.ApplicationStatusCancelled}}, m.err
}

func (m *applicationServiceMock) ListForWorker(ctx context.Context, workerID string, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	m.filter = filter
	return []models.ApplicationDetail{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *applicationServiceMock) ListCandidates(ctx context.Context, companyID, shiftID string, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	m.filter = filter
	return []models.ApplicationDetail{}, &models.Pagination{Page: 1, PageSize: 20}, m.err
}

func (m *applicationServiceMock) WorkerSchedule(ctx context.Context, workerID string, page, pageSize int) ([]models.ApplicationDetail, *models.Pagination, error) {
	return []models.ApplicationDetail{}, &models.Pagination{Page: page, PageSize: pageSize}, nil
}

func TestApplicationHandlerUpdateStatus(t *testing.T) {
	svc := &applicationServiceMock{}
	h := NewApplicationHandler(svc)
	c, w := testContext(http.MethodPatch, "/applications/app-1/status", dto.DecisionRequest{Status: "approved"}, companyClaims)
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}

	h.UpdateStatus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "approved", svc.decision)
	assert.Equal(t, "company-1", svc.requester)

	var res dto.DecisionResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.Equal(t, []string{"app-2"}, res.CascadeRejectedIDs)
}

func TestApplicationHandlerUpdateStatusErrors(t *testing.T) {
	h := NewApplicationHandler(&applicationServiceMock{})
	c, w := testContext(http.MethodPatch, "/applications/app-1/status", `{"status":`, companyClaims)
	h.UpdateStatus(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h = NewApplicationHandler(&applicationServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "worker already booked")})
	c, w = testContext(http.MethodPatch, "/applications/app-1/status", dto.DecisionRequest{Status: "accepted"}, companyClaims)
	h.UpdateStatus(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)
	assert.Equal(t, "worker already booked", env.Error.Message)

	c, w = testContext(http.MethodPatch, "/applications/app-1/status", dto.DecisionRequest{Status: "accepted"}, nil)
	h.UpdateStatus(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApplicationHandlerListParsesFilter(t *testing.T) {
	svc := &applicationServiceMock{}
	h := NewApplicationHandler(svc)
	c, w := testContext(http.MethodGet, "/applications/me?status=pending,%20waitlist&page=2&page_size=5", nil, workerClaims)

	h.ListMine(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.ApplicationStatus{models.ApplicationStatusPending, models.ApplicationStatusWaitlist}, svc.filter.Statuses)
	assert.Equal(t, 2, svc.filter.Page)
	assert.Equal(t, 5, svc.filter.PageSize)
	assert.NotNil(t, decode(t, w).Pagination)
}

type shiftServiceMock struct {
	board  *dto.JobBoardPage
	hit    bool
	filter models.ShiftFilter
	role   models.UserRole
	err    error
}

func (m *shiftServiceMock) Create(ctx context.Context, companyID string, req dto.CreateShiftRequest) (*dto.CreateShiftResponse, error) {
	return &dto.CreateShiftResponse{Shifts: []models.Shift{{ID: "shift-1", CompanyID: companyID}}}, m.err
}

func (m *shiftServiceMock) Update(ctx context.Context, companyID, shiftID string, req dto.UpdateShiftRequest) (*models.Shift, error) {
	return &models.Shift{ID: shiftID}, m.err
}

func (m *shiftServiceMock) Get(ctx context.Context, shiftID string) (*models.Shift, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Shift{ID: shiftID}, nil
}

func (m *shiftServiceMock) JobBoard(ctx context.Context, filter models.ShiftFilter) (*dto.JobBoardPage, bool, error) {
	m.filter = filter
	if m.board == nil {
		m.board = &dto.JobBoardPage{Shifts: []models.Shift{}, Pagination: models.Pagination{Page: 1, PageSize: 20}}
	}
	return m.board, m.hit, m.err
}

func (m *shiftServiceMock) ListCompany(ctx context.Context, companyID string, filter models.ShiftFilter) ([]models.Shift, *models.Pagination, error) {
	m.filter = filter
	return []models.Shift{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *shiftServiceMock) Cancel(ctx context.Context, companyID, shiftID string) (*dto.ShiftCancellationResult, error) {
	return &dto.ShiftCancellationResult{Shift: models.Shift{ID: shiftID, Status: models.ShiftStatusCancelled}}, m.err
}

func (m *shiftServiceMock) CancellationPolicy(ctx context.Context, shiftID string, role models.UserRole) (*dto.CancellationPolicyResponse, error) {
	m.role = role
	return &dto.CancellationPolicyResponse{ShiftID: shiftID, IsUpcoming: true, IsLate: true}, m.err
}

func TestShiftHandlerJobBoardReportsCacheHit(t *testing.T) {
	svc := &shiftServiceMock{hit: true, board: &dto.JobBoardPage{
		Shifts:     []models.Shift{{ID: "shift-1"}},
		Pagination: models.Pagination{Page: 1, PageSize: 10, TotalCount: 1},
	}}
	h := NewShiftHandler(svc)
	c, w := testContext(http.MethodGet, "/jobs?location=Aarhus&q=bar&page_size=10", nil, nil)

	h.JobBoard(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Aarhus", svc.filter.Location)
	assert.Equal(t, "bar", svc.filter.Search)

	env := decode(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestShiftHandlerCreateRejectsMalformedBody(t *testing.T) {
	h := NewShiftHandler(&shiftServiceMock{})
	c, w := testContext(http.MethodPost, "/shifts", `not json`, companyClaims)
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Error.Code)
}

func TestShiftHandlerCancellationPolicyUsesCallerRole(t *testing.T) {
	svc := &shiftServiceMock{}
	h := NewShiftHandler(svc)
	c, w := testContext(http.MethodGet, "/shifts/shift-1/cancellation-policy", nil, workerClaims)
	c.Params = gin.Params{{Key: "id", Value: "shift-1"}}

	h.CancellationPolicy(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RoleWorker, svc.role)
}

type timesheetServiceMock struct {
	workerCalls, companyCalls int
	filter                    models.TimesheetFilter
}

func (m *timesheetServiceMock) ClockIn(ctx context.Context, workerID, shiftID string) (*models.Timesheet, error) {
	return &models.Timesheet{ID: "ts-1", ShiftID: shiftID, WorkerID: workerID}, nil
}

func (m *timesheetServiceMock) ClockOut(ctx context.Context, workerID, timesheetID string) (*models.Timesheet, error) {
	return &models.Timesheet{ID: timesheetID}, nil
}

func (m *timesheetServiceMock) Approve(ctx context.Context, companyID, timesheetID string, req dto.ApproveTimesheetRequest) (*models.Timesheet, error) {
	return &models.Timesheet{ID: timesheetID, Status: models.TimesheetStatusApproved}, nil
}

func (m *timesheetServiceMock) Dispute(ctx context.Context, companyID, timesheetID string, req dto.DisputeTimesheetRequest) (*models.Timesheet, error) {
	return &models.Timesheet{ID: timesheetID, Status: models.TimesheetStatusDisputed}, nil
}

func (m *timesheetServiceMock) MarkPaid(ctx context.Context, companyID, timesheetID string) (*models.Timesheet, error) {
	return &models.Timesheet{ID: timesheetID, Status: models.TimesheetStatusPaid}, nil
}

func (m *timesheetServiceMock) ListForWorker(ctx context.Context, workerID string, filter models.TimesheetFilter) ([]models.TimesheetView, error) {
	m.workerCalls++
	m.filter = filter
	return []models.TimesheetView{}, nil
}

func (m *timesheetServiceMock) ListForCompany(ctx context.Context, companyID string, filter models.TimesheetFilter) ([]models.TimesheetView, error) {
	m.companyCalls++
	m.filter = filter
	return []models.TimesheetView{}, nil
}

func TestTimesheetHandlerListScopesByRole(t *testing.T) {
	svc := &timesheetServiceMock{}
	h := NewTimesheetHandler(svc)

	c, w := testContext(http.MethodGet, "/timesheets?status=approved&from=2026-03-01T00:00:00Z", nil, workerClaims)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.workerCalls)
	require.NotNil(t, svc.filter.From)
	assert.Equal(t, []models.TimesheetStatus{models.TimesheetStatusApproved}, svc.filter.Statuses)

	c, w = testContext(http.MethodGet, "/timesheets", nil, companyClaims)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.companyCalls)

	c, w = testContext(http.MethodGet, "/timesheets?to=yesterday", nil, companyClaims)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimesheetHandlerApproveWithoutBody(t *testing.T) {
	h := NewTimesheetHandler(&timesheetServiceMock{})
	c, w := testContext(http.MethodPost, "/timesheets/ts-1/approve", nil, companyClaims)
	c.Params = gin.Params{{Key: "id", Value: "ts-1"}}
	h.Approve(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

type exportServiceMock struct {
	download *service.Download
	err      error
}

func (m *exportServiceMock) RequestPayroll(ctx context.Context, companyID string, req dto.PayrollExportRequest) (*dto.ExportJobResponse, error) {
	return &dto.ExportJobResponse{ID: "job-1", Status: models.ExportStatusQueued}, m.err
}

func (m *exportServiceMock) Status(ctx context.Context, companyID, jobID string) (*dto.ExportStatusResponse, error) {
	return &dto.ExportStatusResponse{ID: jobID, Status: models.ExportStatusFinished, Progress: 100}, m.err
}

func (m *exportServiceMock) ResolveDownload(ctx context.Context, token string) (*service.Download, error) {
	if m.err == nil && m.download == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "download not found")
	}
	return m.download, m.err
}

func TestExportHandlerDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payroll.csv")
	require.NoError(t, os.WriteFile(path, []byte("Worker,Hours\nAnna,8.00\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	h := NewExportHandler(&exportServiceMock{download: &service.Download{File: file, Filename: "payroll-20260301.csv", ContentType: "text/csv"}})
	c, w := testContext(http.MethodGet, "/downloads/tok", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "payroll-20260301.csv")
	assert.Contains(t, w.Body.String(), "Anna,8.00")
}

func TestExportHandlerRequestAndExpiredDownload(t *testing.T) {
	h := NewExportHandler(&exportServiceMock{})
	c, w := testContext(http.MethodPost, "/exports/payroll", map[string]string{
		"from": "2026-02-01T00:00:00Z", "to": "2026-03-01T00:00:00Z", "format": "csv",
	}, companyClaims)
	h.RequestPayroll(c)
	assert.Equal(t, http.StatusAccepted, w.Code)

	h = NewExportHandler(&exportServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "download link has expired")})
	c, w = testContext(http.MethodGet, "/downloads/tok", nil, nil)
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
