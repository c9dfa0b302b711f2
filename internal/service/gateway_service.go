package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/afetnet/mesh-registry-api/internal/models"
	appErrors "github.com/afetnet/mesh-registry-api/pkg/errors"
)

type gatewayRepository interface {
	Create(ctx context.Context, gw *models.Gateway) error
	FindByID(ctx context.Context, id string) (*models.Gateway, error)
	List(ctx context.Context, filter models.GatewayFilter) ([]models.Gateway, int, error)
	Update(ctx context.Context, gw *models.Gateway) error
	Delete(ctx context.Context, id string) error
}

// GatewayService manages gateway devices. Citizens operate on their own
// gateways; admins see everything.
type GatewayService struct {
	repo      gatewayRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewGatewayService constructs a GatewayService.
func NewGatewayService(repo gatewayRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *GatewayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GatewayService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

type gatewayListPayload struct {
	Gateways []models.Gateway `json:"gateways"`
	Total    int              `json:"total"`
}

// Create registers a gateway for the owner.
func (s *GatewayService) Create(ctx context.Context, ownerID string, req models.CreateGatewayRequest) (*models.Gateway, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid gateway payload")
	}

	gw := &models.Gateway{
		OwnerID:          ownerID,
		Name:             req.Name,
		HardwareID:       req.HardwareID,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		Address:          req.Address,
		EmergencyContact: req.EmergencyContact,
		EmergencyPhone:   req.EmergencyPhone,
		HealthNotes:      req.HealthNotes,
		Status:           models.GatewayActive,
	}
	if err := s.repo.Create(ctx, gw); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to create gateway")
	}

	s.invalidate(ctx, ownerID)
	return gw, nil
}

// Get returns a gateway the caller is allowed to see.
func (s *GatewayService) Get(ctx context.Context, callerID string, callerRole models.UserRole, id string) (*models.Gateway, error) {
	gw, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "gateway not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load gateway")
	}
	if callerRole != models.RoleAdmin && gw.OwnerID != callerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	return gw, nil
}

// List returns gateways for the filter, serving owner-scoped lists from
// cache when possible.
func (s *GatewayService) List(ctx context.Context, callerID string, callerRole models.UserRole, filter models.GatewayFilter) ([]models.Gateway, int, error) {
	if callerRole != models.RoleAdmin {
		filter.OwnerID = callerID
	}

	key := s.cacheKey(filter)
	if key != "" {
		var cached gatewayListPayload
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Gateways, cached.Total, nil
		}
	}

	start := time.Now()
	gateways, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("gateway_list", time.Since(start))
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list gateways")
	}

	if key != "" {
		if err := s.cache.Set(ctx, key, gatewayListPayload{Gateways: gateways, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("gateway list cache write failed", zap.Error(err))
		}
	}
	return gateways, total, nil
}

// Update applies mutable fields to a gateway the caller owns.
func (s *GatewayService) Update(ctx context.Context, callerID string, callerRole models.UserRole, id string, req models.UpdateGatewayRequest) (*models.Gateway, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid gateway payload")
	}

	gw, err := s.Get(ctx, callerID, callerRole, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		gw.Name = *req.Name
	}
	if req.Latitude != nil {
		gw.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		gw.Longitude = *req.Longitude
	}
	if req.Address != nil {
		gw.Address = *req.Address
	}
	if req.EmergencyContact != nil {
		gw.EmergencyContact = *req.EmergencyContact
	}
	if req.EmergencyPhone != nil {
		gw.EmergencyPhone = *req.EmergencyPhone
	}
	if req.HealthNotes != nil {
		gw.HealthNotes = *req.HealthNotes
	}
	if req.Status != nil {
		gw.Status = *req.Status
	}

	if err := s.repo.Update(ctx, gw); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to update gateway")
	}

	s.invalidate(ctx, gw.OwnerID)
	return gw, nil
}

// Delete decommissions a gateway the caller owns.
func (s *GatewayService) Delete(ctx context.Context, callerID string, callerRole models.UserRole, id string) error {
	gw, err := s.Get(ctx, callerID, callerRole, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to delete gateway")
	}
	s.invalidate(ctx, gw.OwnerID)
	return nil
}

func (s *GatewayService) cacheKey(filter models.GatewayFilter) string {
	if !s.cache.Enabled() || filter.Search != "" || filter.Status != nil {
		return ""
	}
	return fmt.Sprintf("gateways:%s:p%d:s%d", filter.OwnerID, filter.Page, filter.PageSize)
}

func (s *GatewayService) invalidate(ctx context.Context, ownerID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("gateways:%s:*", ownerID)); err != nil {
		s.logger.Warn("gateway cache invalidation failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
}
