package models

import "time"

// RelationKind classifies a company's relation to a worker.
type RelationKind string

const (
	RelationFavorite RelationKind = "favorite"
	RelationBlocked  RelationKind = "blocked"
)

// WorkerRelation links a company to a worker it favorited or blocked.
type WorkerRelation struct {
	ID         string       `db:"id" json:"id"`
	CompanyID  string       `db:"company_id" json:"company_id"`
	WorkerID   string       `db:"worker_id" json:"worker_id"`
	Kind       RelationKind `db:"kind" json:"kind"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	WorkerName string       `db:"worker_name" json:"worker_name,omitempty"`
}
