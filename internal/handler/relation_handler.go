package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/pkg/response"
)

type relationService interface {
	Set(ctx context.Context, companyID, workerID string, req dto.SetRelationRequest) (*models.WorkerRelation, error)
	Remove(ctx context.Context, companyID, workerID string) error
	List(ctx context.Context, companyID, kind string) ([]models.WorkerRelation, error)
}

// RelationHandler manages a company's favorite and blocked workers.
type RelationHandler struct {
	service relationService
}

// NewRelationHandler constructs a relation handler.
func NewRelationHandler(svc relationService) *RelationHandler {
	return &RelationHandler{service: svc}
}

// Set godoc
// @Summary Favorite or block a worker
// @Tags Relations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workerId path string true "Worker ID"
// @Param payload body dto.SetRelationRequest true "Relation kind"
// @Success 200 {object} response.Envelope
// @Router /relations/{workerId} [put]
func (h *RelationHandler) Set(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.SetRelationRequest
	if !bindJSON(c, &req, "invalid relation payload") {
		return
	}
	rel, err := h.service.Set(c.Request.Context(), claims.UserID, c.Param("workerId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rel, nil)
}

// Remove godoc
// @Summary Remove a worker relation
// @Tags Relations
// @Security BearerAuth
// @Param workerId path string true "Worker ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /relations/{workerId} [delete]
func (h *RelationHandler) Remove(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.Remove(c.Request.Context(), claims.UserID, c.Param("workerId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List worker relations
// @Tags Relations
// @Produce json
// @Security BearerAuth
// @Param kind query string false "favorite or blocked"
// @Success 200 {object} response.Envelope
// @Router /relations [get]
func (h *RelationHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.service.List(c.Request.Context(), claims.UserID, c.Query("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
