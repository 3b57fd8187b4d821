package dto

// CreateReviewRequest is posted by a company after a shift ends.
type CreateReviewRequest struct {
	ShiftID  string   `json:"shift_id" validate:"required"`
	WorkerID string   `json:"worker_id" validate:"required"`
	Rating   int      `json:"rating" validate:"min=1,max=5"`
	Comment  string   `json:"comment" validate:"max=2000"`
	Tags     []string `json:"tags" validate:"max=10,dive,min=1,max=40"`
}
