package core

import (
	"context"
	"fmt"

	"storagecore/pkg/domain"
)

// NewSlotCapacityRule returns the in-transaction rule enforcing storage
// capacity bounds. It re-counts occupancy against the transactional snapshot
// at commit time, so two racing check-ins cannot both land in the last free
// unit of a slot.
func NewSlotCapacityRule() domain.Rule {
	return slotCapacityRule{}
}

type slotCapacityRule struct{}

func (slotCapacityRule) Name() string { return "slot_capacity" }

func (slotCapacityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	vessels := view.ListLabVessels()
	res := domain.Result{}
	for _, loc := range view.ListStorageLocations() {
		if !loc.LocationType.HoldsContainersDirectly() || loc.StorageCapacity <= 0 {
			continue
		}
		count := CountOccupants(vessels, loc)
		if count > loc.StorageCapacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "slot_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s (%s) over capacity: %d/%d containers", loc.Label, loc.ID, count, loc.StorageCapacity),
				Entity:   domain.EntityStorageLocation,
				EntityID: loc.ID,
			})
		}
	}
	return res, nil
}
