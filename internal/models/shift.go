package models

import (
	"time"

	"github.com/noah-isme/vikar-api/pkg/timewindow"
)

// ShiftStatus is the lifecycle state of a shift.
type ShiftStatus string

const (
	ShiftStatusPublished ShiftStatus = "published"
	ShiftStatusFull      ShiftStatus = "full"
	ShiftStatusCompleted ShiftStatus = "completed"
	ShiftStatusCancelled ShiftStatus = "cancelled"
)

// Shift is a work slot posted by a company.
type Shift struct {
	ID             string      `db:"id" json:"id"`
	CompanyID      string      `db:"company_id" json:"company_id"`
	Title          string      `db:"title" json:"title"`
	Description    string      `db:"description" json:"description"`
	Location       string      `db:"location" json:"location"`
	StartTime      time.Time   `db:"start_time" json:"start_time"`
	EndTime        time.Time   `db:"end_time" json:"end_time"`
	HourlyRate     float64     `db:"hourly_rate" json:"hourly_rate"`
	Currency       string      `db:"currency" json:"currency"`
	VacanciesTotal int         `db:"vacancies_total" json:"vacancies_total"`
	VacanciesTaken int         `db:"vacancies_taken" json:"vacancies_taken"`
	Status         ShiftStatus `db:"status" json:"status"`
	SeriesID       *string     `db:"series_id" json:"series_id,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// Window returns the [start, end) interval of the shift.
func (s *Shift) Window() timewindow.Window {
	return timewindow.New(s.StartTime, s.EndTime)
}

// Live reports whether the shift can still take part in the application flow.
func (s *Shift) Live() bool {
	return s.Status == ShiftStatusPublished || s.Status == ShiftStatusFull
}

// HasVacancy reports whether another worker can be accepted.
func (s *Shift) HasVacancy() bool {
	return s.VacanciesTaken < s.VacanciesTotal
}

// StartedAt reports whether the shift has begun at now.
func (s *Shift) StartedAt(now time.Time) bool {
	return !s.StartTime.After(now)
}

// StatusForVacancies derives published/full from the vacancy counters.
// Terminal states are returned unchanged.
func (s *Shift) StatusForVacancies() ShiftStatus {
	if !s.Live() {
		return s.Status
	}
	if s.VacanciesTaken >= s.VacanciesTotal {
		return ShiftStatusFull
	}
	return ShiftStatusPublished
}

// ShiftFilter narrows shift listings.
type ShiftFilter struct {
	CompanyID string
	Statuses  []ShiftStatus
	From      *time.Time
	To        *time.Time
	Location  string
	Search    string
	Page      int
	PageSize  int
}

// Normalize clamps paging to defaults.
func (f *ShiftFilter) Normalize() {
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)
}
