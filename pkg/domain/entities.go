// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by storagecore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityStorageLocation identifies a storage hierarchy node.
	EntityStorageLocation EntityType = "storage_location"
	// EntityLabVessel identifies a barcoded lab vessel record.
	EntityLabVessel EntityType = "lab_vessel"
	// EntityTubeFormation identifies a content-addressed tube layout record.
	EntityTubeFormation EntityType = "tube_formation"
	// EntityLabEvent identifies an append-only lab event record.
	EntityLabEvent EntityType = "lab_event"
	// EntityVesselBatch identifies a named batch of starting vessels.
	EntityVesselBatch EntityType = "vessel_batch"
)

// LocationType classifies a node in the storage facility hierarchy.
type LocationType string

// Storage location types, outermost to innermost. Only SLOT and LOOSE leaf
// types hold containers directly and carry a meaningful capacity.
const (
	LocationFreezer      LocationType = "FREEZER"
	LocationRefrigerator LocationType = "REFRIGERATOR"
	LocationShelvingUnit LocationType = "SHELVINGUNIT"
	LocationCabinet      LocationType = "CABINET"
	LocationSection      LocationType = "SECTION"
	LocationShelf        LocationType = "SHELF"
	LocationDrawer       LocationType = "DRAWER"
	LocationRack         LocationType = "RACK"
	LocationBox          LocationType = "BOX"
	LocationSlot         LocationType = "SLOT"
	LocationGaugeRack    LocationType = "GAUGERACK"
	LocationLoose        LocationType = "LOOSE"
)

// DisplayName returns the operator-facing name for the location type.
func (t LocationType) DisplayName() string {
	switch t {
	case LocationFreezer:
		return "Freezer"
	case LocationRefrigerator:
		return "Refrigerator"
	case LocationShelvingUnit:
		return "Shelving Unit"
	case LocationCabinet:
		return "Cabinet"
	case LocationSection:
		return "Section"
	case LocationShelf:
		return "Shelf"
	case LocationDrawer:
		return "Drawer"
	case LocationRack:
		return "Rack"
	case LocationBox:
		return "Box"
	case LocationSlot:
		return "Slot"
	case LocationGaugeRack:
		return "Gauge Rack"
	case LocationLoose:
		return "Loose"
	default:
		return string(t)
	}
}

// HoldsContainersDirectly reports whether vessels may be stored directly at
// this location type. All other types hold only child locations.
func (t LocationType) HoldsContainersDirectly() bool {
	return t == LocationSlot || t == LocationLoose
}

// ContainerType tags the physical kind of a lab vessel.
type ContainerType string

// Vessel container types tracked by the storage subsystem.
const (
	ContainerTube        ContainerType = "TUBE"
	ContainerRackOfTubes ContainerType = "RACK_OF_TUBES"
	ContainerPlate       ContainerType = "PLATE"
	ContainerPlateWell   ContainerType = "PLATE_WELL"
)

// RackType names the physical rack family a rack of tubes belongs to.
type RackType string

// Rack types observed by the picker; only Matrix-family racks are readable by
// the rack scanner attached to the tube picker.
const (
	RackMatrix96        RackType = "Matrix96"
	RackMatrix48        RackType = "Matrix48"
	RackFluidX96        RackType = "FluidX96"
	RackHamiltonCarrier RackType = "HamiltonCarrier24"
	RackAbgene96        RackType = "Abgene96"
	RackTypeUnspecified RackType = ""
)

// Scannable reports whether the rack family is machine-scannable on the
// picker deck.
func (r RackType) Scannable() bool {
	switch r {
	case RackMatrix96, RackMatrix48, RackFluidX96:
		return true
	default:
		return false
	}
}

// Position addresses a cell within a rack or plate geometry, e.g. "A01".
type Position string

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StorageLocation is a node in the facility hierarchy. Parent and children are
// referenced by ID only; upward navigation is always an ID lookup so the tree
// cannot form reference cycles.
type StorageLocation struct {
	Base
	Label           string       `json:"label"`
	LocationType    LocationType `json:"location_type"`
	StorageCapacity int          `json:"storage_capacity"`
	ParentID        *string      `json:"parent_id"`
	ChildIDs        []string     `json:"child_ids"`
	Movable         bool         `json:"movable"`
}

// LabVessel is a barcoded physical container: a tube, a rack of tubes, a
// static plate, or a single plate well. A vessel is in storage when its
// StorageLocationID is non-nil.
type LabVessel struct {
	Base
	Label             string        `json:"label"`
	ContainerType     ContainerType `json:"container_type"`
	RackType          RackType      `json:"rack_type,omitempty"`
	PlateLabel        string        `json:"plate_label,omitempty"`
	WellPosition      Position      `json:"well_position,omitempty"`
	StorageLocationID *string       `json:"storage_location_id"`
	FormationLabels   []string      `json:"formation_labels,omitempty"`
}

// InStorage reports whether the vessel currently has a storage assignment.
func (v LabVessel) InStorage() bool {
	return v.StorageLocationID != nil
}

// VesselBatch is a named processing batch resolved through the batch
// registry; its starting vessels seed pick-list generation.
type VesselBatch struct {
	Base
	Name                 string   `json:"name"`
	StartingVesselLabels []string `json:"starting_vessel_labels"`
	Active               bool     `json:"active"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
