package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

type relationStore interface {
	Upsert(ctx context.Context, rel *models.WorkerRelation) error
	Delete(ctx context.Context, companyID, workerID string) (bool, error)
	List(ctx context.Context, companyID string, kind models.RelationKind) ([]models.WorkerRelation, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// RelationService manages a company's favorite and blocked workers.
type RelationService struct {
	relations relationStore
	users     userReader
	views     *ViewInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRelationService constructs a RelationService.
func NewRelationService(relations relationStore, users userReader, views *ViewInvalidator, validate *validator.Validate, logger *zap.Logger) *RelationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RelationService{relations: relations, users: users, views: views, validator: validate, logger: logger}
}

// Set favorites or blocks a worker, replacing any previous relation.
func (s *RelationService) Set(ctx context.Context, companyID, workerID string, req dto.SetRelationRequest) (*models.WorkerRelation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "kind must be favorite or blocked")
	}
	worker, err := s.users.FindByID(ctx, workerID)
	if err != nil {
		return nil, lookupError(err, "worker not found", "failed to load worker")
	}
	if worker.Role != models.RoleWorker {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "worker not found")
	}

	rel := &models.WorkerRelation{CompanyID: companyID, WorkerID: workerID, Kind: models.RelationKind(req.Kind), WorkerName: worker.FullName}
	if err := s.relations.Upsert(ctx, rel); err != nil {
		return nil, appErrors.Internal(err, "failed to save worker relation")
	}
	s.views.Invalidate(ctx, ViewDashboard)
	return rel, nil
}

// Remove deletes the relation between a company and a worker.
func (s *RelationService) Remove(ctx context.Context, companyID, workerID string) error {
	deleted, err := s.relations.Delete(ctx, companyID, workerID)
	if err != nil {
		return appErrors.Internal(err, "failed to delete worker relation")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "worker relation not found")
	}
	s.views.Invalidate(ctx, ViewDashboard)
	return nil
}

// List returns the company's relations, optionally of one kind.
func (s *RelationService) List(ctx context.Context, companyID, kind string) ([]models.WorkerRelation, error) {
	rk := models.RelationKind(kind)
	if kind != "" && rk != models.RelationFavorite && rk != models.RelationBlocked {
		return nil, appErrors.Clone(appErrors.ErrValidation, "kind must be favorite or blocked")
	}
	items, err := s.relations.List(ctx, companyID, rk)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list worker relations")
	}
	if items == nil {
		items = []models.WorkerRelation{}
	}
	return items, nil
}
