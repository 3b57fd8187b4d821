package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/vikar-api/internal/middleware"
	"github.com/noah-isme/vikar-api/internal/models"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes. Exports and
// Penalties are optional and their routes are skipped when nil.
type Handlers struct {
	Auth         *AuthHandler
	Shifts       *ShiftHandler
	Applications *ApplicationHandler
	Timesheets   *TimesheetHandler
	Reviews      *ReviewHandler
	Relations    *RelationHandler
	Exports      *ExportHandler
	Penalties    *PenaltyHandler
	Metrics      *MetricsHandler
}

// RouterDeps carries the cross-cutting collaborators of the route table.
type RouterDeps struct {
	Tokens middleware.TokenValidator
	Audit  middleware.AuditWriter
	Logger *zap.Logger
}

// RegisterRoutes mounts probes at the root and the API under prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, deps RouterDeps) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())

	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)
	api.GET("/jobs", h.Shifts.JobBoard)
	api.GET("/shifts/:id", h.Shifts.Get)
	if h.Exports != nil {
		api.GET("/downloads/:token", h.Exports.Download)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.Tokens))
	authed.POST("/auth/logout", h.Auth.Logout)
	authed.GET("/auth/me", h.Auth.Me)
	authed.GET("/shifts/:id/cancellation-policy", h.Shifts.CancellationPolicy)
	authed.GET("/timesheets", h.Timesheets.List)
	authed.GET("/workers/:id/reviews", h.Reviews.Summary)
	if h.Penalties != nil {
		authed.GET("/penalties/me", h.Penalties.Mine)
	}

	company := authed.Group("")
	company.Use(middleware.RequireRoles(models.RoleCompany))
	company.POST("/shifts", h.Shifts.Create)
	company.PATCH("/shifts/:id", h.Shifts.Update)
	company.POST("/shifts/:id/cancel", h.Shifts.Cancel)
	company.GET("/company/shifts", h.Shifts.ListMine)
	company.GET("/shifts/:id/applications", h.Applications.Candidates)
	company.PATCH("/applications/:id/status", h.Applications.UpdateStatus)
	company.POST("/timesheets/:id/approve", h.Timesheets.Approve)
	company.POST("/timesheets/:id/dispute", h.Timesheets.Dispute)
	company.POST("/timesheets/:id/paid", h.Timesheets.MarkPaid)
	company.POST("/reviews", h.Reviews.Create)
	company.GET("/relations", h.Relations.List)
	company.PUT("/relations/:workerId",
		middleware.Audit(deps.Audit, deps.Logger, "RELATION_SET", "worker_relation", "workerId"),
		h.Relations.Set)
	company.DELETE("/relations/:workerId",
		middleware.Audit(deps.Audit, deps.Logger, "RELATION_REMOVE", "worker_relation", "workerId"),
		h.Relations.Remove)
	if h.Exports != nil {
		company.POST("/exports/payroll", h.Exports.RequestPayroll)
		company.GET("/exports/:id", h.Exports.Status)
	}

	worker := authed.Group("")
	worker.Use(middleware.RequireRoles(models.RoleWorker))
	worker.POST("/shifts/:id/applications", h.Applications.Apply)
	worker.POST("/applications/:id/cancel", h.Applications.Cancel)
	worker.GET("/applications/me", h.Applications.ListMine)
	worker.GET("/worker/schedule", h.Applications.Schedule)
	worker.POST("/shifts/:id/clock-in", h.Timesheets.ClockIn)
	worker.POST("/timesheets/:id/clock-out", h.Timesheets.ClockOut)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/metrics", h.Metrics.Snapshot)
}
