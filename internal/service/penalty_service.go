package service

import (
	"context"
	"time"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

type penaltyReader interface {
	ListForUser(ctx context.Context, userID string) ([]models.CancellationPenalty, error)
}

// PenaltyService reports the cancellation penalties charged to a user.
type PenaltyService struct {
	penalties penaltyReader
	policy    CancellationPolicy
	now       Clock
}

// NewPenaltyService constructs a PenaltyService.
func NewPenaltyService(penalties penaltyReader, policy CancellationPolicy) *PenaltyService {
	return &PenaltyService{penalties: penalties, policy: policy.withDefaults(), now: utcNow}
}

// ListForUser returns the user's penalties with fee totals and any running ban.
func (s *PenaltyService) ListForUser(ctx context.Context, userID string) (*dto.PenaltyOverview, error) {
	items, err := s.penalties.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load penalties")
	}
	out := &dto.PenaltyOverview{Enforced: s.policy.Enabled, Penalties: items}
	if out.Penalties == nil {
		out.Penalties = []models.CancellationPenalty{}
	}
	now := s.now()
	for _, p := range items {
		switch p.Kind {
		case models.PenaltyCompanyFee:
			out.TotalFeesMinor += p.AmountMinor
		case models.PenaltyWorkerBan:
			if p.BannedUntil != nil && p.BannedUntil.After(now) && (out.ActiveBanUntil == nil || p.BannedUntil.After(*out.ActiveBanUntil)) {
				until := p.BannedUntil.In(time.UTC)
				out.ActiveBanUntil = &until
			}
		}
	}
	return out, nil
}
