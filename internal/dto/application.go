package dto

import (
	"time"

	"github.com/noah-isme/vikar-api/internal/models"
)

// DecisionRequest is the company's accept/reject payload. "approved" is
// accepted as an alias of "accepted".
type DecisionRequest struct {
	Status string `json:"status" validate:"required"`
}

// DecisionResult reports the decided application and its cascade.
type DecisionResult struct {
	Application        models.Application `json:"application"`
	CascadeRejectedIDs []string           `json:"cascade_rejected_ids"`
	Waitlisted         int                `json:"waitlisted"`
	Changed            bool               `json:"changed"`
}

// CancellationResult reports the outcome of a cancellation.
type CancellationResult struct {
	Application models.Application          `json:"application"`
	Late        bool                        `json:"late"`
	Penalty     *models.CancellationPenalty `json:"penalty,omitempty"`
}

// ShiftCancellationResult reports the outcome of a company cancelling a shift.
type ShiftCancellationResult struct {
	Shift                 models.Shift                `json:"shift"`
	CancelledApplications int                         `json:"cancelled_applications"`
	Late                  bool                        `json:"late"`
	Penalty               *models.CancellationPenalty `json:"penalty,omitempty"`
}

// PenaltyOverview lists a user's cancellation penalties.
type PenaltyOverview struct {
	Enforced       bool                         `json:"enforced"`
	TotalFeesMinor int64                        `json:"total_fees_minor"`
	ActiveBanUntil *time.Time                   `json:"active_ban_until,omitempty"`
	Penalties      []models.CancellationPenalty `json:"penalties"`
}
