package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/afetnet/mesh-registry-api/internal/models"
	appErrors "github.com/afetnet/mesh-registry-api/pkg/errors"
	"github.com/afetnet/mesh-registry-api/pkg/export"
)

type issueRepository interface {
	Create(ctx context.Context, issue *models.Issue) error
	FindByID(ctx context.Context, id string) (*models.Issue, error)
	List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error)
	UpdateStatus(ctx context.Context, id string, status models.IssueStatus, assigneeID string) error
}

// IssueService handles citizen issue reports and admin triage.
type IssueService struct {
	repo          issueRepository
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	exportEnabled bool
}

// NewIssueService constructs an IssueService.
func NewIssueService(repo issueRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, exportEnabled bool) *IssueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &IssueService{repo: repo, metrics: metrics, validator: validate, logger: logger, exportEnabled: exportEnabled}
}

// Create opens a new issue for the reporter.
func (s *IssueService) Create(ctx context.Context, reporterID string, req models.CreateIssueRequest) (*models.Issue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}

	issue := &models.Issue{
		ReporterID: reporterID,
		GatewayID:  req.GatewayID,
		Subject:    req.Subject,
		Body:       req.Body,
		Category:   req.Category,
		Status:     models.IssueOpen,
	}
	if err := s.repo.Create(ctx, issue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to create issue")
	}
	return issue, nil
}

// Get returns an issue visible to the caller.
func (s *IssueService) Get(ctx context.Context, callerID string, callerRole models.UserRole, id string) (*models.Issue, error) {
	issue, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load issue")
	}
	if callerRole != models.RoleAdmin && issue.ReporterID != callerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	return issue, nil
}

// List returns issues for the filter. Citizens only ever see their own.
func (s *IssueService) List(ctx context.Context, callerID string, callerRole models.UserRole, filter models.IssueFilter) ([]models.Issue, int, error) {
	if callerRole != models.RoleAdmin {
		filter.ReporterID = callerID
	}
	start := time.Now()
	issues, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("issue_list", time.Since(start))
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list issues")
	}
	return issues, total, nil
}

// Transition moves an issue to the requested triage state. Admin only;
// illegal transitions are rejected.
func (s *IssueService) Transition(ctx context.Context, adminID string, id string, req models.UpdateIssueStatusRequest) (*models.Issue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	issue, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load issue")
	}

	if !issue.Status.CanTransition(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "illegal status transition")
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status, adminID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to update issue")
	}

	issue.Status = req.Status
	issue.AssigneeID = &adminID
	return issue, nil
}

// ExportFormat selects the triage report encoding.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// Export renders the filtered issue list as a triage report.
func (s *IssueService) Export(ctx context.Context, filter models.IssueFilter, format ExportFormat) ([]byte, string, error) {
	if !s.exportEnabled {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export disabled")
	}

	filter.Page = 1
	filter.PageSize = 100
	issues, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list issues")
	}

	dataset := export.Dataset{
		Headers: []string{"ID", "Reporter", "Category", "Status", "Subject", "Opened"},
	}
	for _, issue := range issues {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":       issue.ID,
			"Reporter": issue.ReporterID,
			"Category": string(issue.Category),
			"Status":   string(issue.Status),
			"Subject":  issue.Subject,
			"Opened":   issue.CreatedAt.Format(time.RFC3339),
		})
	}

	switch format {
	case ExportPDF:
		payload, err := export.NewPDFExporter().Render(dataset, "Issue Triage Report")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	}
}
