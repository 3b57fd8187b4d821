package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/pkg/config"
)

// DefaultLateCancellationWindow is the notice period below which a
// cancellation counts as late.
const DefaultLateCancellationWindow = 24 * time.Hour

// CancellationClass describes a cancellation relative to the shift start.
type CancellationClass struct {
	IsUpcoming bool `json:"is_upcoming"`
	IsLate     bool `json:"is_late"`
}

// ClassifyCancellation evaluates a cancellation made at now against the
// default 24 hour window.
func ClassifyCancellation(shiftStart, now time.Time) CancellationClass {
	return classify(shiftStart, now, DefaultLateCancellationWindow)
}

func classify(shiftStart, now time.Time, window time.Duration) CancellationClass {
	upcoming := shiftStart.After(now)
	return CancellationClass{
		IsUpcoming: upcoming,
		IsLate:     upcoming && shiftStart.Sub(now) < window,
	}
}

// CancellationPolicy carries the configured consequences of late cancellations.
type CancellationPolicy struct {
	Enabled     bool
	Window      time.Duration
	BanDuration time.Duration
	CompanyFee  int64
	Currency    string
}

// NewCancellationPolicy builds a policy from marketplace configuration.
func NewCancellationPolicy(cfg config.MarketplaceConfig) CancellationPolicy {
	p := CancellationPolicy{
		Enabled:     cfg.PenaltiesEnabled,
		Window:      cfg.LateCancellationWindow,
		BanDuration: cfg.WorkerBanDuration,
		CompanyFee:  cfg.CompanyLateFeeMinor,
		Currency:    cfg.PenaltyCurrency,
	}
	return p.withDefaults()
}

func (p CancellationPolicy) withDefaults() CancellationPolicy {
	if p.Window <= 0 {
		p.Window = DefaultLateCancellationWindow
	}
	if p.BanDuration <= 0 {
		p.BanDuration = 30 * 24 * time.Hour
	}
	if p.CompanyFee <= 0 {
		p.CompanyFee = 50000
	}
	if p.Currency == "" {
		p.Currency = "DKK"
	}
	return p
}

// Classify evaluates a cancellation with the configured window.
func (p CancellationPolicy) Classify(shiftStart, now time.Time) CancellationClass {
	return classify(shiftStart, now, p.withDefaults().Window)
}

// Consequence returns the warning shown before a late cancellation by role.
func (p CancellationPolicy) Consequence(role models.UserRole) string {
	p = p.withDefaults()
	hours := int(p.Window.Hours())
	switch role {
	case models.RoleCompany:
		return fmt.Sprintf("Cancelling less than %d hours before the shift starts incurs a fee of %s %s.", hours, formatMinor(p.CompanyFee), p.Currency)
	case models.RoleWorker:
		return fmt.Sprintf("Cancelling less than %d hours before the shift starts suspends your account for %d days.", hours, int(p.BanDuration.Hours()/24))
	default:
		return ""
	}
}

func formatMinor(amount int64) string {
	if amount%100 == 0 {
		return fmt.Sprintf("%d", amount/100)
	}
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
