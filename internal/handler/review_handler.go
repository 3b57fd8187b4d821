package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/pkg/response"
)

type reviewService interface {
	Create(ctx context.Context, companyID string, req dto.CreateReviewRequest) (*models.Review, error)
	Summary(ctx context.Context, workerID string) (*models.ReviewSummary, error)
}

// ReviewHandler exposes worker reviews.
type ReviewHandler struct {
	service reviewService
}

// NewReviewHandler constructs a review handler.
func NewReviewHandler(svc reviewService) *ReviewHandler {
	return &ReviewHandler{service: svc}
}

// Create godoc
// @Summary Review a worker
// @Tags Reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateReviewRequest true "Review"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reviews [post]
func (h *ReviewHandler) Create(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.CreateReviewRequest
	if !bindJSON(c, &req, "invalid review payload") {
		return
	}
	review, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, review)
}

// Summary godoc
// @Summary Reviews of a worker
// @Tags Reviews
// @Produce json
// @Security BearerAuth
// @Param id path string true "Worker ID"
// @Success 200 {object} response.Envelope
// @Router /workers/{id}/reviews [get]
func (h *ReviewHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
