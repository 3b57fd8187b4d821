package service

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// ViewKeyPrefix namespaces cached rendered views in Redis.
const ViewKeyPrefix = "vikar:view:"

// View paths refreshed after marketplace mutations.
const (
	ViewDashboard      = "/dashboard"
	ViewJobBoard       = "/jobs"
	ViewWorkerSchedule = "/worker/schedule"
)

// ShiftView returns the detail path of a shift.
func ShiftView(shiftID string) string { return "/shifts/" + shiftID }

// CandidatesView returns the candidate list path of a shift.
func CandidatesView(shiftID string) string { return "/shifts/" + shiftID + "/candidates" }

// ViewKey builds the cache key of a view. Parts are appended after the
// path so that invalidating the path also drops its variants.
func ViewKey(path string, parts ...string) string {
	key := ViewKeyPrefix + path
	if len(parts) > 0 {
		key += "|" + strings.Join(parts, "|")
	}
	return key
}

// ViewInvalidator drops cached views once a mutation has committed.
type ViewInvalidator struct {
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewViewInvalidator constructs a ViewInvalidator. A nil cache makes it a no-op.
func NewViewInvalidator(cache *CacheService, metrics *MetricsService, logger *zap.Logger) *ViewInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewInvalidator{cache: cache, metrics: metrics, logger: logger}
}

// Invalidate removes the given paths. Failures are logged and never surface.
func (v *ViewInvalidator) Invalidate(ctx context.Context, paths ...string) {
	if v == nil {
		return
	}
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if _, dup := seen[path]; dup || path == "" {
			continue
		}
		seen[path] = struct{}{}
		v.metrics.RecordInvalidation(path)
		if !v.cache.Enabled() {
			continue
		}
		if err := v.cache.Invalidate(ctx, ViewKey(path)+"*"); err != nil {
			v.logger.Warn("view invalidation failed", zap.String("path", path), zap.Error(err))
		}
	}
}

// ShiftChanged invalidates everything that renders a shift.
func (v *ViewInvalidator) ShiftChanged(ctx context.Context, shiftID string) {
	v.Invalidate(ctx, ViewDashboard, ShiftView(shiftID), CandidatesView(shiftID), ViewJobBoard, ViewWorkerSchedule)
}
