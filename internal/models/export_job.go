package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportType enumerates asynchronous export kinds.
type ExportType string

const ExportTypePayroll ExportType = "payroll"

// ExportFormat is the rendered document format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus tracks the job lifecycle.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob is the persisted state of an export.
type ExportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ExportType      `db:"type" json:"type"`
	Params       ExportJobParams `db:"params" json:"params"`
	Status       ExportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ExportJobParams is stored as JSONB.
type ExportJobParams struct {
	CompanyID string       `json:"company_id"`
	From      time.Time    `json:"from"`
	To        time.Time    `json:"to"`
	Format    ExportFormat `json:"format"`
}

// Value implements driver.Valuer.
func (p ExportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export params: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner.
func (p *ExportJobParams) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*p = ExportJobParams{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ExportJobParams", value)
	}
	if len(data) == 0 {
		*p = ExportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal export params: %w", err)
	}
	return nil
}
