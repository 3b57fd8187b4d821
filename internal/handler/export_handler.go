package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/service"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
	"github.com/noah-isme/vikar-api/pkg/response"
)

type exportService interface {
	RequestPayroll(ctx context.Context, companyID string, req dto.PayrollExportRequest) (*dto.ExportJobResponse, error)
	Status(ctx context.Context, companyID, jobID string) (*dto.ExportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.Download, error)
}

// ExportHandler exposes payroll export endpoints.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// RequestPayroll godoc
// @Summary Queue a payroll export
// @Description Renders approved and paid timesheets in the range as CSV or PDF
// @Tags Exports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.PayrollExportRequest true "Range and format"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports/payroll [post]
func (h *ExportHandler) RequestPayroll(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.PayrollExportRequest
	if !bindJSON(c, &req, "invalid export payload") {
		return
	}
	job, err := h.service.RequestPayroll(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.service.Status(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download an export
// @Description The signed token in the path is the only credential
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /downloads/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	dl, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer dl.File.Close()

	info, err := dl.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to stat export"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), dl.ContentType, dl.File, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, dl.Filename),
		"Cache-Control":       "private, no-store",
	})
}
