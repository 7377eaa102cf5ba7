package core

import (
	"fmt"
	"sort"
	"strings"

	"storagecore/pkg/domain"
)

// CapacityEntry names one free storage unit found by a capacity walk. A slot
// with three free units contributes three entries pointing at the same
// location.
type CapacityEntry struct {
	Location StorageLocation
	Trail    string
}

// ListChildren returns the direct children of a location sorted by label.
func ListChildren(view TransactionView, parent StorageLocation) []StorageLocation {
	out := make([]StorageLocation, 0, len(parent.ChildIDs))
	for _, id := range parent.ChildIDs {
		if child, ok := view.FindStorageLocation(id); ok {
			out = append(out, child)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// LocationTrail renders the breadcrumb path from the facility root down to
// the location, e.g. "Freezer A > Shelf 2 > Slot 5".
func LocationTrail(view TransactionView, locationID string) string {
	var labels []string
	id := locationID
	for id != "" {
		loc, ok := view.FindStorageLocation(id)
		if !ok {
			break
		}
		labels = append(labels, loc.Label)
		if loc.ParentID == nil {
			break
		}
		id = *loc.ParentID
	}
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return strings.Join(labels, " > ")
}

// occupiesUnit reports whether a vessel stored at the location consumes one
// unit of its capacity. Racks and plates always occupy a unit; a tube does so
// only in loose storage. Tubes carried inside a checked-in rack share the
// rack's location id and must not be double counted.
func occupiesUnit(v LabVessel, loc StorageLocation) bool {
	if !v.InStorage() || *v.StorageLocationID != loc.ID {
		return false
	}
	switch v.ContainerType {
	case ContainerRackOfTubes, ContainerPlate:
		return true
	case ContainerTube:
		return loc.LocationType == LocationLoose
	default:
		return false
	}
}

// CountOccupants returns the number of capacity units consumed at a location.
func CountOccupants(vessels []LabVessel, loc StorageLocation) int {
	count := 0
	for _, v := range vessels {
		if occupiesUnit(v, loc) {
			count++
		}
	}
	return count
}

// OccupiedCount returns the number of containers stored directly at the
// location.
func OccupiedCount(view TransactionView, loc StorageLocation) int {
	return CountOccupants(view.ListLabVessels(), loc)
}

// GatherAvailableCapacity walks either the children of root (when
// treatAsRackOfSlots) or root itself and appends one entry per free capacity
// unit, up to maxResults entries total. Zero-capacity, full, and
// non-container-bearing candidates are collected into a single
// ValidationError; accumulation continues past each problem, so callers get
// every free unit and every problem in one pass.
func GatherAvailableCapacity(view TransactionView, root StorageLocation, treatAsRackOfSlots bool, maxResults int) ([]CapacityEntry, *ValidationError) {
	candidates := []StorageLocation{root}
	if treatAsRackOfSlots {
		candidates = ListChildren(view, root)
	}

	vessels := view.ListLabVessels()
	verr := &ValidationError{}
	var entries []CapacityEntry
	for _, candidate := range candidates {
		if !candidate.LocationType.HoldsContainersDirectly() {
			verr.Add("%s is a %s; only Slot and Loose locations hold containers directly", candidate.Label, candidate.LocationType.DisplayName())
			continue
		}
		if candidate.StorageCapacity <= 0 {
			verr.Add("%s has no storage capacity", candidate.Label)
			continue
		}
		free := candidate.StorageCapacity - CountOccupants(vessels, candidate)
		if free <= 0 {
			verr.Add("%s is full (%d of %d occupied)", candidate.Label, candidate.StorageCapacity-free, candidate.StorageCapacity)
			continue
		}
		trail := LocationTrail(view, candidate.ID)
		for unit := 0; unit < free && len(entries) < maxResults; unit++ {
			entries = append(entries, CapacityEntry{Location: candidate, Trail: trail})
		}
		if len(entries) >= maxResults {
			break
		}
	}
	if !verr.HasProblems() {
		return entries, nil
	}
	return entries, verr
}

// SetParent re-parents a location. Immovable locations are refused, as is any
// move that would make the location its own ancestor.
func SetParent(tx Transaction, locationID, newParentID string) error {
	loc, ok := tx.FindStorageLocation(locationID)
	if !ok {
		return domain.NotFoundError{Entity: EntityStorageLocation, Ref: locationID}
	}
	if !loc.Movable {
		return fmt.Errorf("%s is not movable", loc.Label)
	}
	newParent, ok := tx.FindStorageLocation(newParentID)
	if !ok {
		return domain.NotFoundError{Entity: EntityStorageLocation, Ref: newParentID}
	}

	// Walk upward from the new parent; hitting the moved location means the
	// move would close a cycle.
	for id := newParentID; id != ""; {
		if id == locationID {
			return fmt.Errorf("cannot move %s under %s: %s is a descendant", loc.Label, newParent.Label, newParent.Label)
		}
		cur, ok := tx.FindStorageLocation(id)
		if !ok || cur.ParentID == nil {
			break
		}
		id = *cur.ParentID
	}

	if loc.ParentID != nil {
		oldParentID := *loc.ParentID
		if _, err := tx.UpdateStorageLocation(oldParentID, func(p *StorageLocation) error {
			kept := p.ChildIDs[:0]
			for _, id := range p.ChildIDs {
				if id != locationID {
					kept = append(kept, id)
				}
			}
			p.ChildIDs = kept
			return nil
		}); err != nil {
			return err
		}
	}
	if _, err := tx.UpdateStorageLocation(newParentID, func(p *StorageLocation) error {
		p.ChildIDs = append(p.ChildIDs, locationID)
		return nil
	}); err != nil {
		return err
	}
	_, err := tx.UpdateStorageLocation(locationID, func(l *StorageLocation) error {
		l.ParentID = &newParentID
		return nil
	})
	return err
}
