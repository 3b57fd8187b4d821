package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/middleware"
	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/pkg/response"
)

type shiftService interface {
	Create(ctx context.Context, companyID string, req dto.CreateShiftRequest) (*dto.CreateShiftResponse, error)
	Update(ctx context.Context, companyID, shiftID string, req dto.UpdateShiftRequest) (*models.Shift, error)
	Get(ctx context.Context, shiftID string) (*models.Shift, error)
	JobBoard(ctx context.Context, filter models.ShiftFilter) (*dto.JobBoardPage, bool, error)
	ListCompany(ctx context.Context, companyID string, filter models.ShiftFilter) ([]models.Shift, *models.Pagination, error)
	Cancel(ctx context.Context, companyID, shiftID string) (*dto.ShiftCancellationResult, error)
	CancellationPolicy(ctx context.Context, shiftID string, role models.UserRole) (*dto.CancellationPolicyResponse, error)
}

// ShiftHandler exposes shift endpoints.
type ShiftHandler struct {
	service shiftService
}

// NewShiftHandler constructs a shift handler.
func NewShiftHandler(svc shiftService) *ShiftHandler {
	return &ShiftHandler{service: svc}
}

// Create godoc
// @Summary Post a shift
// @Description Create one shift, or a series when recurrence holds an RRULE
// @Tags Shifts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateShiftRequest true "Shift payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /shifts [post]
func (h *ShiftHandler) Create(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.CreateShiftRequest
	if !bindJSON(c, &req, "invalid shift payload") {
		return
	}

	res, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Update godoc
// @Summary Update a shift
// @Tags Shifts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Shift ID"
// @Param payload body dto.UpdateShiftRequest true "Changed fields"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /shifts/{id} [patch]
func (h *ShiftHandler) Update(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.UpdateShiftRequest
	if !bindJSON(c, &req, "invalid shift payload") {
		return
	}

	shift, err := h.service.Update(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shift, nil)
}

// Get godoc
// @Summary Get a shift
// @Tags Shifts
// @Produce json
// @Param id path string true "Shift ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /shifts/{id} [get]
func (h *ShiftHandler) Get(c *gin.Context) {
	shift, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shift, nil)
}

// JobBoard godoc
// @Summary Browse open shifts
// @Description Published upcoming shifts, newest start first
// @Tags Shifts
// @Produce json
// @Param location query string false "Location contains"
// @Param q query string false "Title search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /jobs [get]
func (h *ShiftHandler) JobBoard(c *gin.Context) {
	page, size := paging(c)
	filter := models.ShiftFilter{
		Location: c.Query("location"),
		Search:   c.Query("q"),
		Page:     page,
		PageSize: size,
	}

	board, hit, err := h.service.JobBoard(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	pagination := board.Pagination
	response.JSON(c, http.StatusOK, board.Shifts, &pagination, middleware.ExtractMeta(c))
}

// ListMine godoc
// @Summary List the company's shifts
// @Tags Shifts
// @Produce json
// @Security BearerAuth
// @Param status query string false "Comma separated statuses"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /company/shifts [get]
func (h *ShiftHandler) ListMine(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	page, size := paging(c)
	filter := models.ShiftFilter{Page: page, PageSize: size}
	for _, s := range csvQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, models.ShiftStatus(s))
	}

	shifts, pagination, err := h.service.ListCompany(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shifts, pagination)
}

// Cancel godoc
// @Summary Cancel a shift
// @Description Cancels the shift and every live application on it
// @Tags Shifts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Shift ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /shifts/{id}/cancel [post]
func (h *ShiftHandler) Cancel(c *gin.Context) {
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

// CancellationPolicy godoc
// @Summary Preview cancellation consequences
// @Description Whether cancelling now counts as late, and what it costs the caller
// @Tags Shifts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Shift ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /shifts/{id}/cancellation-policy [get]
func (h *ShiftHandler) CancellationPolicy(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	res, err := h.service.CancellationPolicy(c.Request.Context(), c.Param("id"), claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
