package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/pkg/response"
)

type timesheetService interface {
	ClockIn(ctx context.Context, workerID, shiftID string) (*models.Timesheet, error)
	ClockOut(ctx context.Context, workerID, timesheetID string) (*models.Timesheet, error)
	Approve(ctx context.Context, companyID, timesheetID string, req dto.ApproveTimesheetRequest) (*models.Timesheet, error)
	Dispute(ctx context.Context, companyID, timesheetID string, req dto.DisputeTimesheetRequest) (*models.Timesheet, error)
	MarkPaid(ctx context.Context, companyID, timesheetID string) (*models.Timesheet, error)
	ListForWorker(ctx context.Context, workerID string, filter models.TimesheetFilter) ([]models.TimesheetView, error)
	ListForCompany(ctx context.Context, companyID string, filter models.TimesheetFilter) ([]models.TimesheetView, error)
}

// TimesheetHandler exposes clock-in/out and approval endpoints.
type TimesheetHandler struct {
	service timesheetService
}

// NewTimesheetHandler constructs a timesheet handler.
func NewTimesheetHandler(svc timesheetService) *TimesheetHandler {
	return &TimesheetHandler{service: svc}
}

// ClockIn godoc
// @Summary Clock in to an accepted shift
// @Tags Timesheets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Shift ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /shifts/{id}/clock-in [post]
func (h *TimesheetHandler) ClockIn(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	ts, err := h.service.ClockIn(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ts)
}

// ClockOut godoc
// @Summary Clock out
// @Tags Timesheets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Timesheet ID"
// @Success 200 {object} response.Envelope
// @Router /timesheets/{id}/clock-out [post]
func (h *TimesheetHandler) ClockOut(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	ts, err := h.service.ClockOut(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ts, nil)
}

// Approve godoc
// @Summary Approve a timesheet
// @Description Optionally overrides the billable window with manager-approved times
// @Tags Timesheets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Timesheet ID"
// @Param payload body dto.ApproveTimesheetRequest false "Approved window"
// @Success 200 {object} response.Envelope
// @Router /timesheets/{id}/approve [post]
func (h *TimesheetHandler) Approve(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.ApproveTimesheetRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid approval payload") {
		return
	}
	ts, err := h.service.Approve(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ts, nil)
}

// Dispute godoc
// @Summary Dispute a timesheet
// @Tags Timesheets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Timesheet ID"
// @Param payload body dto.DisputeTimesheetRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /timesheets/{id}/dispute [post]
func (h *TimesheetHandler) Dispute(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.DisputeTimesheetRequest
	if !bindJSON(c, &req, "invalid dispute payload") {
		return
	}
	ts, err := h.service.Dispute(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ts, nil)
}

// MarkPaid godoc
// @Summary Mark a timesheet paid
// @Tags Timesheets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Timesheet ID"
// @Success 200 {object} response.Envelope
// @Router /timesheets/{id}/paid [post]
func (h *TimesheetHandler) MarkPaid(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	ts, err := h.service.MarkPaid(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ts, nil)
}

// List godoc
// @Summary List timesheets
// @Description Workers see their own timesheets, companies those on their shifts
// @Tags Timesheets
// @Produce json
// @Security BearerAuth
// @Param status query string false "Comma separated statuses"
// @Param from query string false "RFC 3339 lower bound on shift start"
// @Param to query string false "RFC 3339 upper bound on shift start"
// @Success 200 {object} response.Envelope
// @Router /timesheets [get]
func (h *TimesheetHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	filter, err := timesheetFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var items []models.TimesheetView
	switch claims.Role {
	case models.RoleWorker:
		items, err = h.service.ListForWorker(c.Request.Context(), claims.UserID, filter)
	case models.RoleCompany:
		items, err = h.service.ListForCompany(c.Request.Context(), claims.UserID, filter)
	default:
		items = []models.TimesheetView{}
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

func timesheetFilter(c *gin.Context) (models.TimesheetFilter, error) {
	var filter models.TimesheetFilter
	for _, s := range csvQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, models.TimesheetStatus(s))
	}
	var err error
	if filter.From, err = timeQuery(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = timeQuery(c, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}
