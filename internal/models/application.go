package models

import (
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/vikar-api/pkg/timewindow"
)

// ApplicationStatus is the persisted lifecycle state of an application.
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "pending"
	ApplicationStatusAccepted  ApplicationStatus = "accepted"
	ApplicationStatusRejected  ApplicationStatus = "rejected"
	ApplicationStatusWaitlist  ApplicationStatus = "waitlist"
	ApplicationStatusCancelled ApplicationStatus = "cancelled"
)

// ErrUnknownDecision is returned by ParseDecision for unsupported values.
var ErrUnknownDecision = errors.New("decision must be accepted or rejected")

// ParseDecision maps a company decision to the persisted status. "approved"
// is accepted as a legacy alias of "accepted"; nothing else is translated.
func ParseDecision(raw string) (ApplicationStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accepted", "approved":
		return ApplicationStatusAccepted, nil
	case "rejected":
		return ApplicationStatusRejected, nil
	default:
		return "", ErrUnknownDecision
	}
}

// Open reports whether the application still occupies the worker.
func (s ApplicationStatus) Open() bool {
	return s == ApplicationStatusPending || s == ApplicationStatusWaitlist || s == ApplicationStatusAccepted
}

// Application is a worker's request to fill a vacancy.
type Application struct {
	ID          string            `db:"id" json:"id"`
	ShiftID     string            `db:"shift_id" json:"shift_id"`
	WorkerID    string            `db:"worker_id" json:"worker_id"`
	CompanyID   string            `db:"company_id" json:"company_id"`
	Status      ApplicationStatus `db:"status" json:"status"`
	AppliedAt   time.Time         `db:"applied_at" json:"applied_at"`
	DecidedAt   *time.Time        `db:"decided_at" json:"decided_at,omitempty"`
	CancelledAt *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// ApplicationWindow is an application joined with its shift interval. It is
// the row shape used when checking a worker's schedule for conflicts.
type ApplicationWindow struct {
	ID         string            `db:"id"`
	ShiftID    string            `db:"shift_id"`
	Status     ApplicationStatus `db:"status"`
	ShiftStart time.Time         `db:"start_time"`
	ShiftEnd   time.Time         `db:"end_time"`
}

// Window returns the shift interval of the application.
func (a ApplicationWindow) Window() timewindow.Window {
	return timewindow.New(a.ShiftStart, a.ShiftEnd)
}

// ApplicationDetail is an application enriched for listings.
type ApplicationDetail struct {
	Application
	ShiftTitle    string    `db:"shift_title" json:"shift_title"`
	ShiftLocation string    `db:"shift_location" json:"shift_location"`
	ShiftStart    time.Time `db:"shift_start" json:"shift_start"`
	ShiftEnd      time.Time `db:"shift_end" json:"shift_end"`
	HourlyRate    float64   `db:"hourly_rate" json:"hourly_rate"`
	Currency      string    `db:"currency" json:"currency"`
	WorkerName    string    `db:"worker_name" json:"worker_name"`
	WorkerEmail   string    `db:"worker_email" json:"worker_email"`
	// Set on candidate listings only.
	Favorite bool `db:"favorite" json:"favorite"`
}

// ApplicationFilter narrows application listings.
type ApplicationFilter struct {
	WorkerID  string
	ShiftID   string
	Statuses  []ApplicationStatus
	Upcoming  bool
	Page      int
	PageSize  int
	Reference time.Time
}

// Normalize clamps paging to defaults.
func (f *ApplicationFilter) Normalize() {
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)
}
