package dto

import "github.com/afetnet/mesh-registry-api/internal/models"

// ReportRequest is the POST /reports payload. Filters are optional and
// apply to whichever dataset the type selects.
type ReportRequest struct {
	Type          models.ReportType     `json:"type"`
	Format        models.ReportFormat   `json:"format"`
	IssueStatus   *models.IssueStatus   `json:"issue_status,omitempty"`
	IssueCategory *models.IssueCategory `json:"issue_category,omitempty"`
	GatewayStatus *models.GatewayStatus `json:"gateway_status,omitempty"`
	OwnerID       string                `json:"owner_id,omitempty"`
}

// ReportJobResponse acknowledges an enqueued job.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse reports job progress and, once finished, where to
// fetch the result.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
