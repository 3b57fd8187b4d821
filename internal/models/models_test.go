package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	for _, raw := range []string{"accepted", "approved", " Approved "} {
		got, err := ParseDecision(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, ApplicationStatusAccepted, got)
	}
	got, err := ParseDecision("rejected")
	require.NoError(t, err)
	assert.Equal(t, ApplicationStatusRejected, got)

	for _, raw := range []string{"", "pending", "cancelled", "waitlist"} {
		_, err := ParseDecision(raw)
		assert.ErrorIs(t, err, ErrUnknownDecision, raw)
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("worker")
	require.NoError(t, err)
	assert.Equal(t, RoleWorker, role)

	_, err = ParseRole("superadmin")
	assert.Error(t, err)
}

func TestShiftStatusForVacancies(t *testing.T) {
	s := Shift{Status: ShiftStatusPublished, VacanciesTotal: 2, VacanciesTaken: 2}
	assert.Equal(t, ShiftStatusFull, s.StatusForVacancies())

	s.VacanciesTaken = 1
	s.Status = ShiftStatusFull
	assert.Equal(t, ShiftStatusPublished, s.StatusForVacancies())

	s.Status = ShiftStatusCancelled
	assert.Equal(t, ShiftStatusCancelled, s.StatusForVacancies())
}

func TestTimesheetEarningsPrefersManagerWindow(t *testing.T) {
	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := in.Add(8 * time.Hour)
	ts := Timesheet{ClockInTime: &in, ClockOutTime: &out}
	assert.Equal(t, 8.0, ts.Hours())
	assert.Equal(t, 1200.0, ts.Earnings(150))

	approvedEnd := in.Add(7*time.Hour + 30*time.Minute)
	ts.ManagerApprovedStart, ts.ManagerApprovedEnd = &in, &approvedEnd
	assert.Equal(t, 7.5, ts.Hours())

	view := TimesheetView{Timesheet: ts, HourlyRate: 200}
	view.Derive()
	assert.Equal(t, 1500.0, view.Earned)

	assert.Zero(t, (&Timesheet{}).Hours())
}

func TestUserSuspendedAt(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Hour)
	u := User{BannedUntil: &until}
	assert.True(t, u.SuspendedAt(now))
	assert.False(t, u.SuspendedAt(until.Add(time.Second)))
	assert.False(t, (&User{}).SuspendedAt(now))
}

func TestExportJobParamsScan(t *testing.T) {
	var p ExportJobParams
	require.NoError(t, p.Scan([]byte(`{"company_id":"c1","format":"pdf"}`)))
	assert.Equal(t, "c1", p.CompanyID)
	assert.Equal(t, ExportFormatPDF, p.Format)
	assert.Error(t, p.Scan(42))
}
