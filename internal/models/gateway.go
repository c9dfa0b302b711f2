package models

import "time"

// GatewayStatus tracks the operational state of a mesh gateway device.
type GatewayStatus string

const (
	GatewayActive         GatewayStatus = "ACTIVE"
	GatewayOffline        GatewayStatus = "OFFLINE"
	GatewayDecommissioned GatewayStatus = "DECOMMISSIONED"
)

// Gateway represents a mesh gateway device attached to a citizen account.
// The address is stored as submitted; geocoding happens outside this service.
type Gateway struct {
	ID               string        `db:"id" json:"id"`
	OwnerID          string        `db:"owner_id" json:"owner_id"`
	Name             string        `db:"name" json:"name"`
	HardwareID       string        `db:"hardware_id" json:"hardware_id"`
	Latitude         float64       `db:"latitude" json:"latitude"`
	Longitude        float64       `db:"longitude" json:"longitude"`
	Address          string        `db:"address" json:"address"`
	EmergencyContact string        `db:"emergency_contact" json:"emergency_contact"`
	EmergencyPhone   string        `db:"emergency_phone" json:"emergency_phone"`
	HealthNotes      string        `db:"health_notes" json:"health_notes,omitempty"`
	Status           GatewayStatus `db:"status" json:"status"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// CreateGatewayRequest holds the payload for registering a gateway.
type CreateGatewayRequest struct {
	Name             string  `json:"name" validate:"required"`
	HardwareID       string  `json:"hardware_id" validate:"required"`
	Latitude         float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude        float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Address          string  `json:"address" validate:"required"`
	EmergencyContact string  `json:"emergency_contact" validate:"required"`
	EmergencyPhone   string  `json:"emergency_phone" validate:"required"`
	HealthNotes      string  `json:"health_notes"`
}

// UpdateGatewayRequest holds mutable gateway fields.
type UpdateGatewayRequest struct {
	Name             *string        `json:"name"`
	Latitude         *float64       `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude        *float64       `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Address          *string        `json:"address"`
	EmergencyContact *string        `json:"emergency_contact"`
	EmergencyPhone   *string        `json:"emergency_phone"`
	HealthNotes      *string        `json:"health_notes"`
	Status           *GatewayStatus `json:"status"`
}

// GatewayFilter captures list criteria for gateways.
type GatewayFilter struct {
	OwnerID  string
	Status   *GatewayStatus
	Search   string
	Page     int
	PageSize int
}
