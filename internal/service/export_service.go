package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/afetnet/mesh-registry-api/internal/models"
	"github.com/afetnet/mesh-registry-api/pkg/export"
	"github.com/afetnet/mesh-registry-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService builds report datasets from the registry and persists the
// rendered files. Downloads go through signed tokens, not authenticated
// sessions, so a finished report can be fetched by whoever holds the link
// until it expires.
type ExportService struct {
	issues   issueRepository
	gateways gatewayRepository
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(issues issueRepository, gateways gatewayRepository, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		issues:   issues,
		gateways: gateways,
		storage:  store,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the dataset according to the job definition and stores the
// rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/reports/download/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s.%s", strings.ToLower(string(job.Type)), timestamp, job.Params.Format)
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeIssues:
		return s.buildIssueDataset(ctx, job.Params)
	case models.ReportTypeGateways:
		return s.buildGatewayDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildIssueDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	rows, err := collectPages(func(page int) ([]models.Issue, int, error) {
		return s.issues.List(ctx, models.IssueFilter{
			Status:   params.IssueStatus,
			Category: params.IssueCategory,
			Page:     page,
			PageSize: reportPageSize,
		})
	})
	if err != nil {
		return export.Dataset{}, "", err
	}

	dataRows := make([]map[string]string, 0, len(rows))
	for _, issue := range rows {
		assignee := ""
		if issue.AssigneeID != nil {
			assignee = *issue.AssigneeID
		}
		dataRows = append(dataRows, map[string]string{
			"ID":       issue.ID,
			"Reporter": issue.ReporterID,
			"Category": string(issue.Category),
			"Status":   string(issue.Status),
			"Assignee": assignee,
			"Subject":  issue.Subject,
			"Opened":   issue.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"ID", "Reporter", "Category", "Status", "Assignee", "Subject", "Opened"},
		Rows:    dataRows,
	}
	return dataset, "Issue Triage Report", nil
}

func (s *ExportService) buildGatewayDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	rows, err := collectPages(func(page int) ([]models.Gateway, int, error) {
		return s.gateways.List(ctx, models.GatewayFilter{
			OwnerID:  params.OwnerID,
			Status:   params.GatewayStatus,
			Page:     page,
			PageSize: reportPageSize,
		})
	})
	if err != nil {
		return export.Dataset{}, "", err
	}

	dataRows := make([]map[string]string, 0, len(rows))
	for _, gw := range rows {
		dataRows = append(dataRows, map[string]string{
			"ID":         gw.ID,
			"Owner":      gw.OwnerID,
			"Name":       gw.Name,
			"Hardware":   gw.HardwareID,
			"Status":     string(gw.Status),
			"Latitude":   fmt.Sprintf("%.6f", gw.Latitude),
			"Longitude":  fmt.Sprintf("%.6f", gw.Longitude),
			"Address":    gw.Address,
			"Registered": gw.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"ID", "Owner", "Name", "Hardware", "Status", "Latitude", "Longitude", "Address", "Registered"},
		Rows:    dataRows,
	}
	return dataset, "Gateway Inventory Report", nil
}

const reportPageSize = 500

// collectPages drains a paginated list. Capped so a runaway table cannot
// produce an unbounded report.
func collectPages[T any](fetch func(page int) ([]T, int, error)) ([]T, error) {
	const maxPages = 40
	var all []T
	for page := 1; page <= maxPages; page++ {
		batch, total, err := fetch(page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < reportPageSize || len(all) >= total {
			break
		}
	}
	return all, nil
}
