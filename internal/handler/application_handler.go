package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/pkg/response"
)

type applicationService interface {
	Apply(ctx context.Context, workerID, shiftID string) (*models.Application, error)
	UpdateStatus(ctx context.Context, applicationID, decision, requesterID string) (*dto.DecisionResult, error)
	Cancel(ctx context.Context, workerID, applicationID string) (*dto.CancellationResult, error)
	ListForWorker(ctx context.Context, workerID string, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error)
	ListCandidates(ctx context.Context, companyID, shiftID string, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error)
	WorkerSchedule(ctx context.Context, workerID string, page, pageSize int) ([]models.ApplicationDetail, *models.Pagination, error)
}

// ApplicationHandler exposes the application lifecycle.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler constructs an application handler.
func NewApplicationHandler(svc applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: svc}
}

// Apply godoc
// @Summary Apply to a shift
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Shift ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /shifts/{id}/applications [post]
func (h *ApplicationHandler) Apply(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	app, err := h.service.Apply(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// UpdateStatus godoc
// @Summary Accept or reject an applicant
// @Description Accepting rejects the worker's other pending applications whose shifts overlap
// @Tags Applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.DecisionRequest true "accepted, approved or rejected"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/status [patch]
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.DecisionRequest
	if !bindJSON(c, &req, "invalid decision payload") {
		return
	}

	res, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Cancel godoc
// @Summary Withdraw an application
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/cancel [post]
func (h *ApplicationHandler) Cancel(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	res, err := h.service.Cancel(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ListMine godoc
// @Summary List the worker's applications
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /applications/me [get]
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	items, pagination, err := h.service.ListForWorker(c.Request.Context(), claims.UserID, applicationFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Candidates godoc
// @Summary List applicants for a shift
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Shift ID"
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /shifts/{id}/applications [get]
func (h *ApplicationHandler) Candidates(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	items, pagination, err := h.service.ListCandidates(c.Request.Context(), claims.UserID, c.Param("id"), applicationFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Schedule godoc
// @Summary Upcoming accepted shifts of the worker
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /worker/schedule [get]
func (h *ApplicationHandler) Schedule(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	page, size := paging(c)
	items, pagination, err := h.service.WorkerSchedule(c.Request.Context(), claims.UserID, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

func applicationFilter(c *gin.Context) models.ApplicationFilter {
	page, size := paging(c)
	filter := models.ApplicationFilter{Page: page, PageSize: size}
	for _, s := range csvQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, models.ApplicationStatus(s))
	}
	return filter
}
