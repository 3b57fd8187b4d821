package models

import (
	"time"

	"github.com/lib/pq"
)

// Review is a company's rating of a worker for one shift. Reviews are immutable.
type Review struct {
	ID         string         `db:"id" json:"id"`
	ShiftID    string         `db:"shift_id" json:"shift_id"`
	ReviewerID string         `db:"reviewer_id" json:"reviewer_id"`
	RevieweeID string         `db:"reviewee_id" json:"reviewee_id"`
	Rating     int            `db:"rating" json:"rating"`
	Comment    string         `db:"comment" json:"comment"`
	Tags       pq.StringArray `db:"tags" json:"tags"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// ReviewSummary aggregates a worker's reviews.
type ReviewSummary struct {
	WorkerID string   `json:"worker_id"`
	Count    int      `json:"count"`
	Average  float64  `json:"average"`
	Reviews  []Review `json:"reviews"`
}
