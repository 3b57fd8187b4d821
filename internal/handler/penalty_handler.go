package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/pkg/response"
)

type penaltyService interface {
	ListForUser(ctx context.Context, userID string) (*dto.PenaltyOverview, error)
}

// PenaltyHandler shows users the consequences of their late cancellations.
type PenaltyHandler struct {
	service penaltyService
}

// NewPenaltyHandler constructs a penalty handler.
func NewPenaltyHandler(svc penaltyService) *PenaltyHandler {
	return &PenaltyHandler{service: svc}
}

// Mine godoc
// @Summary My cancellation penalties
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /penalties/me [get]
func (h *PenaltyHandler) Mine(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	out, err := h.service.ListForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, out, nil)
}
