package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Vessels and formations are keyed by
// their barcode label; locations and batches by generated ID.
type Transaction interface {
	Snapshot() TransactionView
	CreateStorageLocation(StorageLocation) (StorageLocation, error)
	UpdateStorageLocation(id string, mutator func(*StorageLocation) error) (StorageLocation, error)
	DeleteStorageLocation(id string) error
	CreateLabVessel(LabVessel) (LabVessel, error)
	UpdateLabVessel(label string, mutator func(*LabVessel) error) (LabVessel, error)
	DeleteLabVessel(label string) error
	// CreateTubeFormation stores a formation under its content label. When a
	// record with the same label already exists, the existing record is
	// returned unchanged; callers converge on one record per distinct layout.
	CreateTubeFormation(TubeFormation) (TubeFormation, error)
	// AppendLabEvent appends an immutable event, assigning its Sequence.
	AppendLabEvent(LabEvent) (LabEvent, error)
	CreateVesselBatch(VesselBatch) (VesselBatch, error)
	UpdateVesselBatch(id string, mutator func(*VesselBatch) error) (VesselBatch, error)
	FindStorageLocation(id string) (StorageLocation, bool)
	FindLabVessel(label string) (LabVessel, bool)
	FindTubeFormation(label string) (TubeFormation, bool)
	FindVesselBatch(id string) (VesselBatch, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// engine queries.
type TransactionView interface {
	ListStorageLocations() []StorageLocation
	ListLabVessels() []LabVessel
	ListTubeFormations() []TubeFormation
	// ListLabEvents returns events in append order; callers impose the
	// (EventDate, Sequence) total order themselves.
	ListLabEvents() []LabEvent
	ListVesselBatches() []VesselBatch
	FindStorageLocation(id string) (StorageLocation, bool)
	FindLabVessel(label string) (LabVessel, bool)
	FindTubeFormation(label string) (TubeFormation, bool)
	FindVesselBatch(id string) (VesselBatch, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetStorageLocation(id string) (StorageLocation, bool)
	ListStorageLocations() []StorageLocation
	GetLabVessel(label string) (LabVessel, bool)
	ListLabVessels() []LabVessel
	GetTubeFormation(label string) (TubeFormation, bool)
	ListTubeFormations() []TubeFormation
	ListLabEvents() []LabEvent
	GetVesselBatch(id string) (VesselBatch, bool)
	ListVesselBatches() []VesselBatch
}
