package dto

import (
	"time"

	"github.com/noah-isme/vikar-api/internal/models"
)

// PayrollExportRequest asks for a payroll export of a company's timesheets.
type PayrollExportRequest struct {
	From   time.Time           `json:"from" validate:"required"`
	To     time.Time           `json:"to" validate:"required,gtfield=From"`
	Format models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
