package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/afetnet/mesh-registry-api/internal/dto"
	"github.com/afetnet/mesh-registry-api/internal/middleware"
	"github.com/afetnet/mesh-registry-api/internal/models"
	"github.com/afetnet/mesh-registry-api/internal/repository"
	"github.com/afetnet/mesh-registry-api/internal/service"
	"github.com/afetnet/mesh-registry-api/internal/token"
	"github.com/afetnet/mesh-registry-api/pkg/jobs"
	"github.com/afetnet/mesh-registry-api/pkg/storage"
)

type memoryReportStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ReportJob
}

func newMemoryReportStore() *memoryReportStore {
	return &memoryReportStore{jobs: map[string]*models.ReportJob{}}
}

func (s *memoryReportStore) Create(ctx context.Context, job *models.ReportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *memoryReportStore) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (s *memoryReportStore) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (s *memoryReportStore) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	return nil, nil
}

func (s *memoryReportStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	return nil, nil
}

type reportIssueSource struct{}

func (reportIssueSource) Create(ctx context.Context, issue *models.Issue) error { return nil }

func (reportIssueSource) FindByID(ctx context.Context, id string) (*models.Issue, error) {
	return nil, nil
}

func (reportIssueSource) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	return []models.Issue{{
		ID:         "issue-1",
		ReporterID: "citizen-1",
		Category:   models.IssueCategoryNetwork,
		Status:     models.IssueOpen,
		Subject:    "relay offline after storm",
		CreatedAt:  time.Now().UTC(),
	}}, 1, nil
}

func (reportIssueSource) UpdateStatus(ctx context.Context, id string, status models.IssueStatus, assigneeID string) error {
	return nil
}

type reportGatewaySource struct{}

func (reportGatewaySource) Create(ctx context.Context, gw *models.Gateway) error { return nil }

func (reportGatewaySource) FindByID(ctx context.Context, id string) (*models.Gateway, error) {
	return nil, nil
}

func (reportGatewaySource) List(ctx context.Context, filter models.GatewayFilter) ([]models.Gateway, int, error) {
	return nil, 0, nil
}

func (reportGatewaySource) Update(ctx context.Context, gw *models.Gateway) error { return nil }

func (reportGatewaySource) Delete(ctx context.Context, id string) error { return nil }

// syncDispatcher runs each job inline so tests observe the finished state
// without sleeping on a worker pool.
type syncDispatcher struct {
	handle func(ctx context.Context, job jobs.Job) error
}

func (d *syncDispatcher) Enqueue(job jobs.Job) error {
	return d.handle(context.Background(), job)
}

func buildReportRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("report-handler-secret", time.Hour)
	exporter := service.NewExportService(reportIssueSource{}, reportGatewaySource{}, store, signer, service.ExportConfig{
		APIPrefix: "/api/v1",
		ResultTTL: time.Hour,
	}, zap.NewNop(), nil, nil)

	repo := newMemoryReportStore()
	worker := service.NewReportWorker(repo, exporter, 2, zap.NewNop())
	queue := &syncDispatcher{handle: worker.Handle}
	svc := service.NewReportService(repo, queue, exporter, zap.NewNop(), service.ReportServiceConfig{
		ResultTTL: time.Hour,
	})
	h := NewReportHandler(svc)

	asAdmin := func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &token.AccessClaims{UserID: "admin-1", Role: models.RoleAdmin})
	}

	router := gin.New()
	api := router.Group("/api/v1")
	api.POST("/reports", asAdmin, h.Create)
	api.GET("/reports/:id", asAdmin, h.Status)
	api.GET("/reports/download/:token", h.Download)
	return router
}

func TestReportPipeline(t *testing.T) {
	router := buildReportRouter(t)

	body, _ := json.Marshal(dto.ReportRequest{Type: models.ReportTypeIssues, Format: models.ReportFormatCSV})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var created struct {
		Data dto.ReportJobResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+created.Data.ID, nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		Data dto.ReportStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, models.ReportStatusFinished, status.Data.Status)
	require.NotNil(t, status.Data.ResultURL)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, *status.Data.ResultURL, nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), "issue-1")
}

func TestReportCreateRejectsBadType(t *testing.T) {
	router := buildReportRouter(t)

	body := []byte(`{"type":"grades","format":"csv"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportStatusUnknownJob(t *testing.T) {
	router := buildReportRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+uuid.NewString(), nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportDownloadForgedToken(t *testing.T) {
	router := buildReportRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/download/forged-token", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "FORBIDDEN", envelope.Error.Code)
}
