package core

import (
	"storagecore/pkg/domain"
)

// ResolvedContainer describes the physical container currently holding a
// vessel: the container itself, the tube formation attesting its layout when
// the container is a rack, and the storage location. CheckedOut marks the
// case where the most recent relevant event for the vessel's location was a
// check-out, meaning the rack and location pair no longer holds the vessel.
type ResolvedContainer struct {
	Container  LabVessel
	Formation  *TubeFormation
	Location   *StorageLocation
	CheckedOut bool
}

// InStorage reports whether the resolution found the vessel in storage.
func (r ResolvedContainer) InStorage() bool {
	return r.Location != nil && !r.CheckedOut
}

// FindOrCreateFormation computes the content label for a layout and converges
// on a single stored record per distinct content. The duplicate race is
// resolved inside the store transaction, never by check-then-create.
func FindOrCreateFormation(tx Transaction, layout map[Position]string, rackType RackType) (TubeFormation, error) {
	return tx.CreateTubeFormation(domain.NewTubeFormation(layout, rackType))
}

// ResolvePhysicalContainer determines the physical container for a vessel.
// Loose vessels are their own container, plate wells resolve to the parent
// plate, and tubes stored in a rack bay resolve to the rack attested by the
// latest trustworthy event at that location.
func ResolvePhysicalContainer(view TransactionView, vessel LabVessel) (ResolvedContainer, error) {
	if !vessel.InStorage() {
		return ResolvedContainer{Container: vessel}, nil
	}
	loc, ok := view.FindStorageLocation(*vessel.StorageLocationID)
	if !ok {
		return ResolvedContainer{}, domain.NotFoundError{Entity: EntityStorageLocation, Ref: *vessel.StorageLocationID}
	}

	if vessel.ContainerType == ContainerPlateWell {
		plate, ok := view.FindLabVessel(vessel.PlateLabel)
		if !ok {
			return ResolvedContainer{}, domain.NotFoundError{Entity: EntityLabVessel, Ref: vessel.PlateLabel}
		}
		return ResolvedContainer{Container: plate, Location: &loc}, nil
	}
	if loc.LocationType == LocationLoose || vessel.ContainerType != ContainerTube {
		return ResolvedContainer{Container: vessel, Location: &loc}, nil
	}

	// Tube in a rack bay. The carrying rack never stores a pointer to its
	// tubes, so the association is recovered from the event stream: the
	// latest storage event at this location whose formation contains the
	// tube names the rack as its ancillary carrier.
	for _, e := range sortedEventsDesc(view) {
		if e.StorageLocationID == nil || *e.StorageLocationID != loc.ID {
			continue
		}
		formation, ok := eventFormation(view, e)
		if !ok || !formation.ContainsTube(vessel.Label) {
			continue
		}
		if e.EventType == EventStorageCheckOut {
			return ResolvedContainer{Container: vessel, Location: &loc, CheckedOut: true}, nil
		}
		rack := LabVessel{Label: e.AncillaryVesselLabel, ContainerType: ContainerRackOfTubes, RackType: formation.RackType}
		if found, ok := view.FindLabVessel(e.AncillaryVesselLabel); ok {
			rack = found
		}
		return ResolvedContainer{Container: rack, Formation: &formation, Location: &loc}, nil
	}
	return ResolvedContainer{Container: vessel, Location: &loc}, nil
}

// eventFormation resolves the formation an event directly references.
func eventFormation(view TransactionView, e LabEvent) (TubeFormation, bool) {
	if e.FormationLabel != "" {
		if f, ok := view.FindTubeFormation(e.FormationLabel); ok {
			return f, true
		}
	}
	if e.InPlaceVesselLabel != "" {
		if f, ok := view.FindTubeFormation(e.InPlaceVesselLabel); ok {
			return f, true
		}
	}
	return TubeFormation{}, false
}
