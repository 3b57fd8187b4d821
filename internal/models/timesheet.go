package models

import (
	"math"
	"time"

	"github.com/noah-isme/vikar-api/pkg/timewindow"
)

// TimesheetStatus tracks approval and payment of worked hours.
type TimesheetStatus string

const (
	TimesheetStatusPending  TimesheetStatus = "pending"
	TimesheetStatusApproved TimesheetStatus = "approved"
	TimesheetStatusDisputed TimesheetStatus = "disputed"
	TimesheetStatusPaid     TimesheetStatus = "paid"
)

// Timesheet records a worker's attendance on a shift.
type Timesheet struct {
	ID                   string          `db:"id" json:"id"`
	ShiftID              string          `db:"shift_id" json:"shift_id"`
	WorkerID             string          `db:"worker_id" json:"worker_id"`
	CompanyID            string          `db:"company_id" json:"company_id"`
	Status               TimesheetStatus `db:"status" json:"status"`
	ClockInTime          *time.Time      `db:"clock_in_time" json:"clock_in_time,omitempty"`
	ClockOutTime         *time.Time      `db:"clock_out_time" json:"clock_out_time,omitempty"`
	ManagerApprovedStart *time.Time      `db:"manager_approved_start" json:"manager_approved_start,omitempty"`
	ManagerApprovedEnd   *time.Time      `db:"manager_approved_end" json:"manager_approved_end,omitempty"`
	DisputeReason        *string         `db:"dispute_reason" json:"dispute_reason,omitempty"`
	ApprovedAt           *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	PaidAt               *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

// BillableWindow prefers the manager-approved interval over the clocked one.
func (t *Timesheet) BillableWindow() (timewindow.Window, bool) {
	if t.ManagerApprovedStart != nil && t.ManagerApprovedEnd != nil {
		w := timewindow.New(*t.ManagerApprovedStart, *t.ManagerApprovedEnd)
		return w, w.Valid()
	}
	if t.ClockInTime != nil && t.ClockOutTime != nil {
		w := timewindow.New(*t.ClockInTime, *t.ClockOutTime)
		return w, w.Valid()
	}
	return timewindow.Window{}, false
}

// Hours returns billable hours rounded to two decimals.
func (t *Timesheet) Hours() float64 {
	w, ok := t.BillableWindow()
	if !ok {
		return 0
	}
	return math.Round(w.Duration().Hours()*100) / 100
}

// Earnings derives pay from billable hours and the shift rate.
func (t *Timesheet) Earnings(hourlyRate float64) float64 {
	return math.Round(t.Hours()*hourlyRate*100) / 100
}

// TimesheetView is a timesheet joined with shift data and derived totals.
type TimesheetView struct {
	Timesheet
	ShiftTitle string    `db:"shift_title" json:"shift_title"`
	ShiftStart time.Time `db:"shift_start" json:"shift_start"`
	ShiftEnd   time.Time `db:"shift_end" json:"shift_end"`
	HourlyRate float64   `db:"hourly_rate" json:"hourly_rate"`
	Currency   string    `db:"currency" json:"currency"`
	WorkerName string    `db:"worker_name" json:"worker_name"`
	HoursTotal float64   `db:"-" json:"hours"`
	Earned     float64   `db:"-" json:"earnings"`
}

// Derive fills the computed totals.
func (v *TimesheetView) Derive() {
	v.HoursTotal = v.Hours()
	v.Earned = v.Earnings(v.HourlyRate)
}

// TimesheetFilter narrows timesheet listings.
type TimesheetFilter struct {
	WorkerID  string
	CompanyID string
	Statuses  []TimesheetStatus
	From      *time.Time
	To        *time.Time
}
