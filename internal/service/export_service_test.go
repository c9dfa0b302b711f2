package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/afetnet/mesh-registry-api/internal/models"
	"github.com/afetnet/mesh-registry-api/pkg/export"
	"github.com/afetnet/mesh-registry-api/pkg/storage"
)

type exportIssueRepoStub struct {
	issues []models.Issue
}

func (s exportIssueRepoStub) Create(ctx context.Context, issue *models.Issue) error { return nil }

func (s exportIssueRepoStub) FindByID(ctx context.Context, id string) (*models.Issue, error) {
	return nil, nil
}

func (s exportIssueRepoStub) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	out := make([]models.Issue, 0, len(s.issues))
	for _, issue := range s.issues {
		if filter.Status != nil && issue.Status != *filter.Status {
			continue
		}
		out = append(out, issue)
	}
	return out, len(out), nil
}

func (s exportIssueRepoStub) UpdateStatus(ctx context.Context, id string, status models.IssueStatus, assigneeID string) error {
	return nil
}

type exportGatewayRepoStub struct {
	gateways []models.Gateway
}

func (s exportGatewayRepoStub) Create(ctx context.Context, gw *models.Gateway) error { return nil }

func (s exportGatewayRepoStub) FindByID(ctx context.Context, id string) (*models.Gateway, error) {
	return nil, nil
}

func (s exportGatewayRepoStub) List(ctx context.Context, filter models.GatewayFilter) ([]models.Gateway, int, error) {
	return s.gateways, len(s.gateways), nil
}

func (s exportGatewayRepoStub) Update(ctx context.Context, gw *models.Gateway) error { return nil }

func (s exportGatewayRepoStub) Delete(ctx context.Context, id string) error { return nil }

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("export-test-secret", time.Hour)

	issues := exportIssueRepoStub{issues: []models.Issue{
		{
			ID:         "issue-1",
			ReporterID: "citizen-1",
			Category:   models.IssueCategoryNetwork,
			Status:     models.IssueOpen,
			Subject:    "node unreachable",
			CreatedAt:  time.Now().UTC(),
		},
	}}
	gateways := exportGatewayRepoStub{gateways: []models.Gateway{
		{
			ID:         "gw-1",
			OwnerID:    "citizen-1",
			Name:       "rooftop relay",
			HardwareID: "HW-0001",
			Status:     models.GatewayActive,
			Latitude:   41.015137,
			Longitude:  28.979530,
			Address:    "Fatih, Istanbul",
			CreatedAt:  time.Now().UTC(),
		},
	}}

	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(issues, gateways, store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func TestExportServiceGenerateIssueCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeIssues,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		CreatedBy: "admin-1",
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	assert.Contains(t, result.URL, "/api/v1/reports/download/")
	assert.Equal(t, models.ReportFormatCSV, result.Format)

	payload, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	content := string(payload)
	assert.Contains(t, content, "ID,Reporter,Category,Status,Assignee,Subject,Opened")
	assert.Contains(t, content, "issue-1")
}

func TestExportServiceGenerateGatewayPDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-2",
		Type:      models.ReportTypeGateways,
		Params:    models.ReportJobParams{Format: models.ReportFormatPDF},
		CreatedBy: "admin-1",
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, models.ReportFormatPDF, result.Format)

	payload, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	require.Greater(t, len(payload), 4)
	assert.Equal(t, "%PDF", string(payload[:4]))
}

func TestExportServiceTokenRoundTrip(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-3",
		Type:      models.ReportTypeIssues,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		CreatedBy: "admin-1",
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	jobID, relPath, expiresAt, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, job.ID, jobID)
	assert.Equal(t, result.RelativePath, relPath)
	assert.True(t, expiresAt.After(time.Now()))

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}

func TestExportServiceRejectsUnknownType(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:     "job-4",
		Type:   models.ReportType("unknown"),
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
	}

	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}
