package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/internal/repository"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

type reviewStore interface {
	Create(ctx context.Context, review *models.Review) error
	Exists(ctx context.Context, shiftID, reviewerID, revieweeID string) (bool, error)
	ListForWorker(ctx context.Context, workerID string) ([]models.Review, error)
}

// ReviewService lets companies rate the workers they booked.
type ReviewService struct {
	reviews   reviewStore
	shifts    shiftReader
	apps      acceptedLookup
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
	now       Clock
}

// NewReviewService constructs a ReviewService.
func NewReviewService(reviews reviewStore, shifts shiftReader, apps acceptedLookup, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReviewService{reviews: reviews, shifts: shifts, apps: apps, audit: audit, validator: validate, logger: logger, now: utcNow}
}

// Create stores an immutable review of a worker for an ended shift.
func (s *ReviewService) Create(ctx context.Context, companyID string, req dto.CreateReviewRequest) (*models.Review, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rating must be between 1 and 5")
	}

	shift, err := s.shifts.FindByID(ctx, req.ShiftID)
	if err != nil {
		return nil, lookupError(err, "shift not found", "failed to load shift")
	}
	if shift.CompanyID != companyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the shift owner can review its workers")
	}
	if shift.Status == models.ShiftStatusCancelled || shift.EndTime.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "reviews open once the shift has ended")
	}
	if _, err := s.apps.FindAccepted(ctx, req.ShiftID, req.WorkerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "worker was not booked on this shift")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}

	exists, err := s.reviews.Exists(ctx, req.ShiftID, companyID, req.WorkerID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check review")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "worker already reviewed for this shift")
	}

	tags := make(pq.StringArray, 0, len(req.Tags))
	for _, tag := range req.Tags {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			tags = append(tags, tag)
		}
	}
	review := &models.Review{
		ShiftID:    req.ShiftID,
		ReviewerID: companyID,
		RevieweeID: req.WorkerID,
		Rating:     req.Rating,
		Comment:    strings.TrimSpace(req.Comment),
		Tags:       tags,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "worker already reviewed for this shift")
		}
		return nil, appErrors.Internal(err, "failed to create review")
	}
	emitAudit(ctx, s.audit, s.logger, companyID, models.AuditActionReviewCreate, "review", review.ID, review)
	return review, nil
}

// Summary returns a worker's reviews and average rating.
func (s *ReviewService) Summary(ctx context.Context, workerID string) (*models.ReviewSummary, error) {
	reviews, err := s.reviews.ListForWorker(ctx, workerID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list reviews")
	}
	summary := &models.ReviewSummary{WorkerID: workerID, Count: len(reviews), Reviews: reviews}
	if summary.Reviews == nil {
		summary.Reviews = []models.Review{}
	}
	if len(reviews) > 0 {
		total := 0
		for _, r := range reviews {
			total += r.Rating
		}
		summary.Average = math.Round(float64(total)/float64(len(reviews))*100) / 100
	}
	return summary, nil
}
