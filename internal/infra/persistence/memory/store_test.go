package memory

import (
	"context"
	"testing"

	"storagecore/pkg/domain"
)

func TestRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindStorageLocation("missing"); ok {
			t.Fatalf("expected missing location lookup")
		}
		freezer, err := tx.CreateStorageLocation(domain.StorageLocation{Label: "Freezer A", LocationType: domain.LocationFreezer})
		if err != nil {
			return err
		}
		if freezer.ID == "" {
			t.Fatalf("expected generated ID")
		}
		slot, err := tx.CreateStorageLocation(domain.StorageLocation{Label: "Slot 1", LocationType: domain.LocationSlot, StorageCapacity: 2, ParentID: &freezer.ID})
		if err != nil {
			return err
		}
		parent, ok := tx.FindStorageLocation(freezer.ID)
		if !ok || len(parent.ChildIDs) != 1 || parent.ChildIDs[0] != slot.ID {
			t.Fatalf("expected parent to register child")
		}
		if _, err := tx.CreateLabVessel(domain.LabVessel{Label: "TUBE-1", ContainerType: domain.ContainerTube}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(store.ListStorageLocations()) != 2 {
		t.Fatalf("expected persisted locations")
	}

	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListStorageLocations()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListStorageLocations()) != 2 || len(store.ListLabVessels()) != 1 {
		t.Fatalf("expected restored state")
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateLabVessel(domain.LabVessel{Label: "TUBE-1", ContainerType: domain.ContainerTube}); err != nil {
			return err
		}
		return domain.NotFoundError{Entity: domain.EntityLabVessel, Ref: "TUBE-2"}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(store.ListLabVessels()) != 0 {
		t.Fatalf("expected rollback")
	}
}

func TestFormationDeduplicationByLabel(t *testing.T) {
	store := NewStore(nil)
	layout := map[domain.Position]string{"A01": "TUBE-1", "B02": "TUBE-2"}
	var first, second domain.TubeFormation
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		first, err = tx.CreateTubeFormation(domain.NewTubeFormation(layout, domain.RackMatrix96))
		if err != nil {
			return err
		}
		second, err = tx.CreateTubeFormation(domain.NewTubeFormation(layout, domain.RackMatrix96))
		return err
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if first.ID != second.ID || first.Label != second.Label {
		t.Fatalf("expected duplicate creation to converge on one record")
	}
	if len(store.ListTubeFormations()) != 1 {
		t.Fatalf("expected exactly one stored formation")
	}
}

func TestAppendLabEventAssignsSequence(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		a, err := tx.AppendLabEvent(domain.LabEvent{EventType: domain.EventInPlace, InPlaceVesselLabel: "RACK-1"})
		if err != nil {
			return err
		}
		b, err := tx.AppendLabEvent(domain.LabEvent{EventType: domain.EventStorageCheckIn, InPlaceVesselLabel: "RACK-1"})
		if err != nil {
			return err
		}
		if b.Sequence <= a.Sequence {
			t.Fatalf("expected monotonically increasing sequence, got %d then %d", a.Sequence, b.Sequence)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	events := store.ListLabEvents()
	if len(events) != 2 {
		t.Fatalf("expected two events")
	}
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateLabVessel(domain.LabVessel{Label: "TUBE-1", ContainerType: domain.ContainerTube})
		return e
	})
	if err == nil {
		t.Fatalf("expected rule violation error")
	}
	if len(store.ListLabVessels()) != 0 {
		t.Fatalf("expected blocked commit to leave state untouched")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(_ context.Context, _ domain.RuleView, _ []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}}, nil
}

func TestDeleteStorageLocationGuards(t *testing.T) {
	store := NewStore(nil)
	var slotID string
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		slot, err := tx.CreateStorageLocation(domain.StorageLocation{Label: "Slot 1", LocationType: domain.LocationSlot, StorageCapacity: 1})
		if err != nil {
			return err
		}
		slotID = slot.ID
		_, err = tx.CreateLabVessel(domain.LabVessel{Label: "TUBE-1", ContainerType: domain.ContainerTube, StorageLocationID: &slot.ID})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteStorageLocation(slotID)
	})
	if err == nil {
		t.Fatalf("expected occupied location delete to fail")
	}
}
