package core

import (
	"context"
	"strings"
	"testing"
)

type fakeRuleView struct {
	locations []StorageLocation
	vessels   []LabVessel
}

func (f fakeRuleView) ListStorageLocations() []StorageLocation { return f.locations }
func (f fakeRuleView) ListLabVessels() []LabVessel             { return f.vessels }

func (f fakeRuleView) FindStorageLocation(id string) (StorageLocation, bool) {
	for _, loc := range f.locations {
		if loc.ID == id {
			return loc, true
		}
	}
	return StorageLocation{}, false
}

func (f fakeRuleView) FindLabVessel(label string) (LabVessel, bool) {
	for _, v := range f.vessels {
		if v.Label == label {
			return v, true
		}
	}
	return LabVessel{}, false
}

func strPtr(s string) *string { return &s }

func TestSlotCapacityRuleBlocksOverCapacity(t *testing.T) {
	slot := StorageLocation{Base: Base{ID: "slot-1"}, Label: "Slot 1", LocationType: LocationSlot, StorageCapacity: 1}
	view := fakeRuleView{
		locations: []StorageLocation{slot},
		vessels: []LabVessel{
			{Label: "R1", ContainerType: ContainerRackOfTubes, StorageLocationID: strPtr("slot-1")},
			{Label: "R2", ContainerType: ContainerRackOfTubes, StorageLocationID: strPtr("slot-1")},
			// Tubes riding inside a rack share the slot id but do not
			// consume capacity units.
			{Label: "T1", ContainerType: ContainerTube, StorageLocationID: strPtr("slot-1")},
		},
	}

	res, err := NewSlotCapacityRule().Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation, got %+v", res)
	}
	if !strings.Contains(res.Violations[0].Message, "2/1") {
		t.Fatalf("violation must report occupancy: %s", res.Violations[0].Message)
	}
}

func TestSlotCapacityRuleIgnoresCarriedTubes(t *testing.T) {
	slot := StorageLocation{Base: Base{ID: "slot-2"}, Label: "Slot 2", LocationType: LocationSlot, StorageCapacity: 1}
	view := fakeRuleView{
		locations: []StorageLocation{slot},
		vessels: []LabVessel{
			{Label: "R1", ContainerType: ContainerRackOfTubes, StorageLocationID: strPtr("slot-2")},
			{Label: "T1", ContainerType: ContainerTube, StorageLocationID: strPtr("slot-2")},
			{Label: "T2", ContainerType: ContainerTube, StorageLocationID: strPtr("slot-2")},
		},
	}
	res, err := NewSlotCapacityRule().Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("a full rack of tubes occupies one unit, got %+v", res)
	}
}

func TestTreeIntegrityRuleFlagsBrokenReferences(t *testing.T) {
	view := fakeRuleView{
		locations: []StorageLocation{
			{Base: Base{ID: "a"}, Label: "Freezer", ChildIDs: []string{"missing-child"}},
			{Base: Base{ID: "b"}, Label: "Orphan Shelf", ParentID: strPtr("missing-parent")},
		},
	}
	res, err := NewTreeIntegrityRule().Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 || !res.HasBlocking() {
		t.Fatalf("expected two blocking violations, got %+v", res)
	}
}

func TestTreeIntegrityRuleFlagsCycles(t *testing.T) {
	view := fakeRuleView{
		locations: []StorageLocation{
			{Base: Base{ID: "x"}, Label: "X", ParentID: strPtr("y"), ChildIDs: []string{"y"}},
			{Base: Base{ID: "y"}, Label: "Y", ParentID: strPtr("x"), ChildIDs: []string{"x"}},
		},
	}
	res, err := NewTreeIntegrityRule().Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected cycle violations, got %+v", res)
	}
}
