package models

import (
	"github.com/lib/pq"
)

// EntityKind discriminates the traceable entity types.
type EntityKind string

const (
	EntityProduct  EntityKind = "product"
	EntityShipment EntityKind = "shipment"
)

func (k EntityKind) Valid() bool {
	return k == EntityProduct || k == EntityShipment
}

// Status is a lifecycle state of a traceable entity.  The legal transitions
// between statuses are owned by the lifecycle package; nothing else writes
// an entity's Status column.
type Status string

const (
	// product lifecycle
	StatusCreated  Status = "created"
	StatusActive   Status = "active"
	StatusSold     Status = "sold"
	StatusInactive Status = "inactive"

	// shipment lifecycle (shares "created")
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Product is a traceable batch of produce.
type Product struct {
	Base
	ExternalID  string `json:"external_id" gorm:"uniqueIndex" example:"P1"`
	Name        string `json:"name" example:"organic strawberries"`
	Origin      string `json:"origin" example:"farm-12"`
	ProducerID  string `json:"producer_id"`
	BatchNumber string `json:"batch_number"`
	Status      Status `json:"status" example:"active"`
}

// Shipment is a traceable movement of one or more products between parties.
type Shipment struct {
	Base
	ExternalID      string         `json:"external_id" gorm:"uniqueIndex" example:"SH1"`
	ProductIDs      pq.StringArray `json:"product_ids" gorm:"type:text[]" swaggertype:"array,string"`
	FromWarehouseID string         `json:"from_warehouse_id"`
	ToWarehouseID   string         `json:"to_warehouse_id"`
	CurrentLocation string         `json:"current_location"`
	Status          Status         `json:"status" example:"in_transit"`
}

// UpdateStatus is the request body for a status transition.
type UpdateStatus struct {
	Status Status `json:"status" example:"delivered"`
}
