package dto

import "time"

// ApproveTimesheetRequest optionally overrides the billable window.
type ApproveTimesheetRequest struct {
	ApprovedStart *time.Time `json:"approved_start"`
	ApprovedEnd   *time.Time `json:"approved_end"`
}

// DisputeTimesheetRequest explains why a timesheet is disputed.
type DisputeTimesheetRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=1000"`
}
