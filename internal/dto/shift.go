package dto

import (
	"time"

	"github.com/noah-isme/vikar-api/internal/models"
)

// CreateShiftRequest is the POST /shifts payload. When Recurrence is set it is
// an RFC 5545 RRULE and one shift is created per occurrence.
type CreateShiftRequest struct {
	Title       string    `json:"title" validate:"required,max=160"`
	Description string    `json:"description" validate:"max=4000"`
	Location    string    `json:"location" validate:"required,max=240"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	HourlyRate  float64   `json:"hourly_rate" validate:"gt=0"`
	Currency    string    `json:"currency" validate:"omitempty,len=3,alpha"`
	Vacancies   int       `json:"vacancies" validate:"required,min=1,max=500"`
	Recurrence  string    `json:"recurrence,omitempty" validate:"omitempty,max=512"`
}

// UpdateShiftRequest patches mutable shift attributes.
type UpdateShiftRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=160"`
	Description *string  `json:"description" validate:"omitempty,max=4000"`
	Location    *string  `json:"location" validate:"omitempty,min=1,max=240"`
	HourlyRate  *float64 `json:"hourly_rate" validate:"omitempty,gt=0"`
	Vacancies   *int     `json:"vacancies" validate:"omitempty,min=1,max=500"`
}

// CreateShiftResponse lists the shifts created by one request.
type CreateShiftResponse struct {
	SeriesID *string        `json:"series_id,omitempty"`
	Shifts   []models.Shift `json:"shifts"`
}

// CancellationPolicyResponse backs the cancellation confirmation dialog.
type CancellationPolicyResponse struct {
	ShiftID         string    `json:"shift_id"`
	ShiftStart      time.Time `json:"shift_start"`
	IsUpcoming      bool      `json:"is_upcoming"`
	IsLate          bool      `json:"is_late"`
	PenaltyEnforced bool      `json:"penalty_enforced"`
	Consequence     string    `json:"consequence,omitempty"`
}

// JobBoardPage is the cached job board payload.
type JobBoardPage struct {
	Shifts     []models.Shift    `json:"shifts"`
	Pagination models.Pagination `json:"pagination"`
}
