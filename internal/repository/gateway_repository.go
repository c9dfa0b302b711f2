package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/afetnet/mesh-registry-api/internal/models"
)

const gatewayColumns = "id, owner_id, name, hardware_id, latitude, longitude, address, emergency_contact, emergency_phone, health_notes, status, created_at, updated_at"

// GatewayRepository provides database access for gateway devices.
type GatewayRepository struct {
	db *sqlx.DB
}

// NewGatewayRepository creates a new instance of GatewayRepository.
func NewGatewayRepository(db *sqlx.DB) *GatewayRepository {
	return &GatewayRepository{db: db}
}

// Create inserts a new gateway record.
func (r *GatewayRepository) Create(ctx context.Context, gw *models.Gateway) error {
	if gw.ID == "" {
		gw.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if gw.CreatedAt.IsZero() {
		gw.CreatedAt = now
	}
	gw.UpdatedAt = now

	const query = `INSERT INTO gateways (id, owner_id, name, hardware_id, latitude, longitude, address, emergency_contact, emergency_phone, health_notes, status, created_at, updated_at) VALUES (:id, :owner_id, :name, :hardware_id, :latitude, :longitude, :address, :emergency_contact, :emergency_phone, :health_notes, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, gw); err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	return nil
}

// FindByID returns a gateway by identifier.
func (r *GatewayRepository) FindByID(ctx context.Context, id string) (*models.Gateway, error) {
	query := fmt.Sprintf("SELECT %s FROM gateways WHERE id = $1 LIMIT 1", gatewayColumns)
	var gw models.Gateway
	if err := r.db.GetContext(ctx, &gw, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find gateway by id: %w", err)
	}
	return &gw, nil
}

// List returns gateways matching the filter with a total count.
func (r *GatewayRepository) List(ctx context.Context, filter models.GatewayFilter) ([]models.Gateway, int, error) {
	baseQuery := `FROM gateways WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(address) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", gatewayColumns, baseQuery, pageSize, offset)

	var gateways []models.Gateway
	if err := r.db.SelectContext(ctx, &gateways, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list gateways: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count gateways: %w", err)
	}

	return gateways, total, nil
}

// Update persists mutable gateway fields.
func (r *GatewayRepository) Update(ctx context.Context, gw *models.Gateway) error {
	gw.UpdatedAt = time.Now().UTC()
	const query = `UPDATE gateways SET name = :name, latitude = :latitude, longitude = :longitude, address = :address, emergency_contact = :emergency_contact, emergency_phone = :emergency_phone, health_notes = :health_notes, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, gw); err != nil {
		return fmt.Errorf("update gateway: %w", err)
	}
	return nil
}

// Delete marks a gateway decommissioned rather than removing the row.
func (r *GatewayRepository) Delete(ctx context.Context, id string) error {
	const query = `UPDATE gateways SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.GatewayDecommissioned, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete gateway: %w", err)
	}
	return nil
}
