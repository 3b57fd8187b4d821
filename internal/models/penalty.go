package models

import "time"

// PenaltyKind distinguishes worker suspensions from company fees.
type PenaltyKind string

const (
	PenaltyWorkerBan  PenaltyKind = "worker_ban"
	PenaltyCompanyFee PenaltyKind = "company_fee"
)

// CancellationPenalty records a consequence of a late cancellation.
type CancellationPenalty struct {
	ID            string      `db:"id" json:"id"`
	UserID        string      `db:"user_id" json:"user_id"`
	ShiftID       string      `db:"shift_id" json:"shift_id"`
	ApplicationID *string     `db:"application_id" json:"application_id,omitempty"`
	Kind          PenaltyKind `db:"kind" json:"kind"`
	AmountMinor   int64       `db:"amount_minor" json:"amount_minor"`
	Currency      string      `db:"currency" json:"currency"`
	BannedUntil   *time.Time  `db:"banned_until" json:"banned_until,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}
