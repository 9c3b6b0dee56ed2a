package domain

import "time"

// EquipmentStatus describes an asset's operational state.
type EquipmentStatus string

// Equipment statuses.
const (
	EquipmentActive         EquipmentStatus = "active"
	EquipmentInMaintenance  EquipmentStatus = "in_maintenance"
	EquipmentDecommissioned EquipmentStatus = "decommissioned"
)

// Equipment is an inventory asset that incidents can reference.
// The inventory itself is managed by an external system; this service
// only reads it.
type Equipment struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	AssetTag     string          `json:"asset_tag"`
	Type         string          `json:"type"`
	Location     string          `json:"location"`
	Status       EquipmentStatus `json:"status"`
	SerialNumber *string         `json:"serial_number,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
