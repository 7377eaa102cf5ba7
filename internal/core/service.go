package core

import (
	"context"
	"fmt"
	"time"

	"storagecore/internal/infra/persistence/memory"
	"storagecore/pkg/domain"
)

// Service exposes the storage operations to callers: hierarchy provisioning,
// capacity gathering, check-in/check-out, and pick-list generation. Every
// operation runs in its own store transaction and reports through the
// configured observability hooks.
type Service struct {
	store PersistentStore
	opts  serviceOptions
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{store: store, opts: options}
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	svc := NewService(memory.NewStore(engine), opts...)
	if mem, ok := svc.store.(*memory.Store); ok {
		if clock, isFunc := svc.opts.clock.(ClockFunc); isFunc && clock != nil {
			mem.SetNowFunc(clock.Now)
		}
	}
	return svc
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Policy returns the engine policy constants in effect.
func (s *Service) Policy() Policy {
	return s.opts.policy
}

func (s *Service) now() time.Time {
	return s.opts.clock.Now()
}

// begin opens the observability scope for one operation and returns the
// finish callback to invoke with the operation's terminal error.
func (s *Service) begin(ctx context.Context, operation, entityID, actor string) (context.Context, func(error)) {
	start := time.Now()
	var span TraceSpan
	if s.opts.tracer != nil {
		ctx, span = s.opts.tracer.Start(ctx, operation)
	}
	finish := func(err error) {
		duration := time.Since(start)
		if span != nil {
			span.End(err)
		}
		if s.opts.metrics != nil {
			s.opts.metrics.Observe(ctx, operation, err == nil, duration)
		}
		if s.opts.audit != nil {
			entry := AuditEntry{
				Operation: operation,
				Status:    AuditStatusSuccess,
				EntityID:  entityID,
				Actor:     actor,
				At:        s.now(),
			}
			if err != nil {
				entry.Status = AuditStatusError
				entry.Detail = err.Error()
			}
			s.opts.audit.Record(ctx, entry)
		}
		if err != nil {
			s.opts.logger.Error("operation failed", "operation", operation, "entity", entityID, "error", err)
		} else {
			s.opts.logger.Debug("operation completed", "operation", operation, "entity", entityID, "duration", duration)
		}
	}
	return ctx, finish
}

// CreateStorageLocation provisions a hierarchy node.
func (s *Service) CreateStorageLocation(ctx context.Context, loc StorageLocation) (StorageLocation, Result, error) {
	ctx, finish := s.begin(ctx, "create_storage_location", loc.Label, "")
	var created StorageLocation
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateStorageLocation(loc)
		return err
	})
	finish(err)
	return created, res, err
}

// UpdateStorageLocation mutates a hierarchy node.
func (s *Service) UpdateStorageLocation(ctx context.Context, id string, mutator func(*StorageLocation) error) (StorageLocation, Result, error) {
	ctx, finish := s.begin(ctx, "update_storage_location", id, "")
	var updated StorageLocation
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateStorageLocation(id, mutator)
		return err
	})
	finish(err)
	return updated, res, err
}

// DeleteStorageLocation removes an empty, childless hierarchy node.
func (s *Service) DeleteStorageLocation(ctx context.Context, id string) (Result, error) {
	ctx, finish := s.begin(ctx, "delete_storage_location", id, "")
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteStorageLocation(id)
	})
	finish(err)
	return res, err
}

// MoveStorageLocation re-parents a movable node.
func (s *Service) MoveStorageLocation(ctx context.Context, locationID, newParentID string) (Result, error) {
	ctx, finish := s.begin(ctx, "move_storage_location", locationID, "")
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return SetParent(tx, locationID, newParentID)
	})
	finish(err)
	return res, err
}

// RegisterVessel persists a vessel record for a barcode.
func (s *Service) RegisterVessel(ctx context.Context, vessel LabVessel) (LabVessel, Result, error) {
	ctx, finish := s.begin(ctx, "register_vessel", vessel.Label, "")
	var created LabVessel
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateLabVessel(vessel)
		return err
	})
	finish(err)
	return created, res, err
}

// CreateVesselBatch persists a named batch of starting vessels.
func (s *Service) CreateVesselBatch(ctx context.Context, batch VesselBatch) (VesselBatch, Result, error) {
	ctx, finish := s.begin(ctx, "create_vessel_batch", batch.Name, "")
	var created VesselBatch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateVesselBatch(batch)
		return err
	})
	finish(err)
	return created, res, err
}

// RecordInPlaceScan registers a rack scan: the observed layout becomes a
// content-addressed formation (deduplicated against prior identical layouts)
// and an IN_PLACE event anchors it as the rack's current ground truth.
func (s *Service) RecordInPlaceScan(ctx context.Context, rackBarcode string, layout map[Position]string, rackType RackType, actor string) (TubeFormation, Result, error) {
	ctx, finish := s.begin(ctx, "record_in_place_scan", rackBarcode, actor)
	var formation TubeFormation
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		formation, err = FindOrCreateFormation(tx, layout, rackType)
		if err != nil {
			return err
		}
		if _, ok := tx.FindLabVessel(rackBarcode); !ok {
			if _, err := tx.CreateLabVessel(LabVessel{Label: rackBarcode, ContainerType: ContainerRackOfTubes, RackType: rackType}); err != nil {
				return err
			}
		}
		if _, err := tx.UpdateLabVessel(rackBarcode, func(v *LabVessel) error {
			v.FormationLabels = appendUnique(v.FormationLabels, formation.Label)
			return nil
		}); err != nil {
			return err
		}
		for _, tube := range layout {
			if _, ok := tx.FindLabVessel(tube); !ok {
				if _, err := tx.CreateLabVessel(LabVessel{Label: tube, ContainerType: ContainerTube}); err != nil {
					return err
				}
			}
		}
		_, err = tx.AppendLabEvent(LabEvent{
			EventType:            EventInPlace,
			EventDate:            s.now(),
			InPlaceVesselLabel:   formation.Label,
			FormationLabel:       formation.Label,
			AncillaryVesselLabel: rackBarcode,
			ActorID:              actor,
		})
		return err
	})
	finish(err)
	return formation, res, err
}

// GatherAvailableCapacity reports free storage units under a location. A
// non-positive maxResults falls back to the policy page size. Entries and the
// validation problems accumulate together; both may be non-empty.
func (s *Service) GatherAvailableCapacity(ctx context.Context, locationID string, treatAsRackOfSlots bool, maxResults int) ([]CapacityEntry, *ValidationError, error) {
	ctx, finish := s.begin(ctx, "gather_available_capacity", locationID, "")
	if maxResults <= 0 {
		maxResults = s.opts.policy.CapacityPageSize
	}
	var entries []CapacityEntry
	var verr *ValidationError
	err := s.store.View(ctx, func(view TransactionView) error {
		root, ok := view.FindStorageLocation(locationID)
		if !ok {
			return domain.NotFoundError{Entity: EntityStorageLocation, Ref: locationID}
		}
		entries, verr = GatherAvailableCapacity(view, root, treatAsRackOfSlots, maxResults)
		return nil
	})
	finish(err)
	return entries, verr, err
}

// CheckIn moves one vessel into a storage location. Domain failures fold into
// a danger outcome; the returned outcome always describes this barcode.
func (s *Service) CheckIn(ctx context.Context, barcode, locationID, actor string) Outcome {
	ctx, finish := s.begin(ctx, "check_in", barcode, actor)
	var out Outcome
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		out, err = checkIn(tx, s.opts.policy, s.now(), barcode, locationID, actor)
		return err
	})
	finish(err)
	if err != nil {
		return Outcome{Barcode: barcode, Status: StatusDanger, Message: checkFailureMessage(err)}
	}
	return out
}

// CheckOut removes one vessel from storage.
func (s *Service) CheckOut(ctx context.Context, barcode, actor string) Outcome {
	ctx, finish := s.begin(ctx, "check_out", barcode, actor)
	var out Outcome
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		out, err = checkOut(tx, s.now(), barcode, actor)
		return err
	})
	finish(err)
	if err != nil {
		return Outcome{Barcode: barcode, Status: StatusDanger, Message: checkFailureMessage(err)}
	}
	return out
}

// BulkCheckIn processes each barcode in its own transaction; one vessel's
// failure never blocks or rolls back its siblings.
func (s *Service) BulkCheckIn(ctx context.Context, barcodes []string, locationID, actor string) []Outcome {
	outcomes := make([]Outcome, 0, len(barcodes))
	for _, barcode := range barcodes {
		outcomes = append(outcomes, s.CheckIn(ctx, barcode, locationID, actor))
	}
	return outcomes
}

// BulkCheckOut processes each barcode in its own transaction.
func (s *Service) BulkCheckOut(ctx context.Context, barcodes []string, actor string) []Outcome {
	outcomes := make([]Outcome, 0, len(barcodes))
	for _, barcode := range barcodes {
		outcomes = append(outcomes, s.CheckOut(ctx, barcode, actor))
	}
	return outcomes
}

// BuildPickList aggregates a batch's starting vessels into picker rows.
func (s *Service) BuildPickList(ctx context.Context, batchID string) ([]PickerDataRow, *ValidationError, error) {
	ctx, finish := s.begin(ctx, "build_pick_list", batchID, "")
	var rows []PickerDataRow
	var verr *ValidationError
	err := s.store.View(ctx, func(view TransactionView) error {
		batch, ok := view.FindVesselBatch(batchID)
		if !ok {
			return domain.NotFoundError{Entity: EntityVesselBatch, Ref: batchID}
		}
		rows, verr = BuildPickList(view, batch)
		return nil
	})
	finish(err)
	return rows, verr, err
}

// ExportTransferFile renders picker rows as the robot transfer file.
func (s *Service) ExportTransferFile(ctx context.Context, rows []PickerDataRow) ([]byte, error) {
	_, finish := s.begin(ctx, "export_transfer_file", "", "")
	data, err := ExportTransferFile(rows)
	finish(err)
	return data, err
}

// LocationTrail renders the breadcrumb path for a location.
func (s *Service) LocationTrail(ctx context.Context, locationID string) (string, error) {
	var trail string
	err := s.store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindStorageLocation(locationID); !ok {
			return domain.NotFoundError{Entity: EntityStorageLocation, Ref: locationID}
		}
		trail = LocationTrail(view, locationID)
		return nil
	})
	return trail, err
}

// checkFailureMessage keeps rule violation failures readable on outcomes.
func checkFailureMessage(err error) string {
	if rve, ok := err.(RuleViolationError); ok {
		for _, v := range rve.Result.Violations {
			if v.Severity == SeverityBlock {
				return v.Message
			}
		}
	}
	return fmt.Sprintf("%v", err)
}
