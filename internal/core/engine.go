package core

import (
	"fmt"
	"time"

	"storagecore/pkg/domain"
)

// Outcome statuses reported to operators for each vessel in a request.
const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusDanger  = "danger"
	StatusInfo    = "info"
)

// Outcome reports the result of a check-in or check-out for one barcode.
// Within a bulk request each barcode gets its own outcome; a danger outcome
// for one vessel never rolls back its siblings.
type Outcome struct {
	Barcode string `json:"barcode"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Policy holds the operator-tunable constants of the storage engine.
type Policy struct {
	// StalenessWorkdays is the freshness window for trusting an in-place
	// scan at rack check-in. Working days skip weekends only.
	StalenessWorkdays int
	// CapacityPageSize caps the entries returned by a capacity gather.
	CapacityPageSize int
}

// DefaultPolicy returns the stock policy constants.
func DefaultPolicy() Policy {
	return Policy{StalenessWorkdays: 2, CapacityPageSize: 500}
}

func checkIn(tx Transaction, policy Policy, now time.Time, barcode, locationID, actor string) (Outcome, error) {
	vessel, ok := tx.FindLabVessel(barcode)
	if !ok {
		return Outcome{}, domain.NotFoundError{Entity: EntityLabVessel, Ref: barcode}
	}
	loc, ok := tx.FindStorageLocation(locationID)
	if !ok {
		return Outcome{}, domain.NotFoundError{Entity: EntityStorageLocation, Ref: locationID}
	}
	switch vessel.ContainerType {
	case ContainerTube, ContainerPlate:
		return checkInLoose(tx, now, vessel, loc, actor)
	case ContainerRackOfTubes:
		return checkInRack(tx, policy, now, vessel, loc, actor)
	default:
		verr := &ValidationError{}
		verr.Add("%s is a %s and cannot be checked in directly", barcode, vessel.ContainerType)
		return Outcome{}, verr
	}
}

func checkInLoose(tx Transaction, now time.Time, vessel LabVessel, loc StorageLocation, actor string) (Outcome, error) {
	if loc.LocationType != LocationLoose {
		verr := &ValidationError{}
		verr.Add("%s is a loose %s and cannot be stored in a %s location; loose containers require a %s location",
			vessel.Label, vessel.ContainerType, loc.LocationType.DisplayName(), LocationLoose.DisplayName())
		return Outcome{}, verr
	}
	if _, err := tx.UpdateLabVessel(vessel.Label, func(v *LabVessel) error {
		v.StorageLocationID = &loc.ID
		return nil
	}); err != nil {
		return Outcome{}, err
	}
	if _, err := tx.AppendLabEvent(LabEvent{
		EventType:          EventStorageCheckIn,
		EventDate:          now,
		InPlaceVesselLabel: vessel.Label,
		StorageLocationID:  &loc.ID,
		ActorID:            actor,
	}); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Barcode: vessel.Label,
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Checked %s into %s", vessel.Label, LocationTrail(tx.Snapshot(), loc.ID)),
	}, nil
}

// checkInRack applies the trust ladder over the rack's event history to pick
// the tube layout being checked in, then assigns the location to the rack and
// every tube in that layout.
func checkInRack(tx Transaction, policy Policy, now time.Time, rack LabVessel, loc StorageLocation, actor string) (Outcome, error) {
	if !loc.LocationType.HoldsContainersDirectly() {
		verr := &ValidationError{}
		verr.Add("%s is a %s; racks are stored in %s or %s locations",
			loc.Label, loc.LocationType.DisplayName(), LocationSlot.DisplayName(), LocationLoose.DisplayName())
		return Outcome{}, verr
	}

	ev, formation, ok := latestRackEvent(tx.Snapshot(), rack)
	if !ok {
		return Outcome{}, domain.InconsistentHistoryError{
			Barcode: rack.Label,
			Reason:  "no event history to derive a tube layout from",
		}
	}

	status := StatusSuccess
	var note string
	switch ev.EventType {
	case EventInPlace:
		if ev.EventDate.Before(domain.PastWorkdayStart(now, policy.StalenessWorkdays)) {
			status = StatusWarning
			note = fmt.Sprintf("layout last verified by a scan on %s, more than %d working days ago",
				ev.EventDate.Format("2006-01-02"), policy.StalenessWorkdays)
		}
	case EventStorageCheckIn:
		status = StatusInfo
		note = "reusing the layout recorded at the previous check-in"
	case EventStorageCheckOut:
		status = StatusWarning
		note = "reusing the layout recorded when the rack was last checked out; it may be stale"
	default:
		status = StatusWarning
		note = "using the last known layout"
	}

	if _, err := tx.UpdateLabVessel(rack.Label, func(v *LabVessel) error {
		v.StorageLocationID = &loc.ID
		v.FormationLabels = appendUnique(v.FormationLabels, formation.Label)
		return nil
	}); err != nil {
		return Outcome{}, err
	}
	for _, tube := range formation.Layout {
		if _, ok := tx.FindLabVessel(tube); !ok {
			// First sighting of this barcode; register it so per-tube
			// location tracking works from here on.
			if _, err := tx.CreateLabVessel(LabVessel{Label: tube, ContainerType: ContainerTube}); err != nil {
				return Outcome{}, err
			}
		}
		if _, err := tx.UpdateLabVessel(tube, func(v *LabVessel) error {
			v.StorageLocationID = &loc.ID
			return nil
		}); err != nil {
			return Outcome{}, err
		}
	}
	if _, err := tx.AppendLabEvent(LabEvent{
		EventType:            EventStorageCheckIn,
		EventDate:            now,
		FormationLabel:       formation.Label,
		AncillaryVesselLabel: rack.Label,
		StorageLocationID:    &loc.ID,
		ActorID:              actor,
	}); err != nil {
		return Outcome{}, err
	}

	message := fmt.Sprintf("Checked %s (%d tubes) into %s", rack.Label, formation.TubeCount(), LocationTrail(tx.Snapshot(), loc.ID))
	if note != "" {
		message += "; " + note
	}
	return Outcome{Barcode: rack.Label, Status: status, Message: message}, nil
}

func checkOut(tx Transaction, now time.Time, barcode, actor string) (Outcome, error) {
	vessel, ok := tx.FindLabVessel(barcode)
	if !ok {
		return Outcome{}, domain.NotFoundError{Entity: EntityLabVessel, Ref: barcode}
	}
	if !vessel.InStorage() {
		verr := &ValidationError{}
		verr.Add("%s is not in storage", barcode)
		return Outcome{}, verr
	}
	loc, ok := tx.FindStorageLocation(*vessel.StorageLocationID)
	if !ok {
		return Outcome{}, domain.NotFoundError{Entity: EntityStorageLocation, Ref: *vessel.StorageLocationID}
	}
	if vessel.ContainerType == ContainerRackOfTubes {
		return checkOutRack(tx, now, vessel, loc, actor)
	}
	if loc.LocationType != LocationLoose {
		verr := &ValidationError{}
		verr.Add("%s is stored inside a rack bay; check out the whole rack instead", barcode)
		return Outcome{}, verr
	}
	trail := LocationTrail(tx.Snapshot(), loc.ID)
	if _, err := tx.UpdateLabVessel(vessel.Label, func(v *LabVessel) error {
		v.StorageLocationID = nil
		return nil
	}); err != nil {
		return Outcome{}, err
	}
	if _, err := tx.AppendLabEvent(LabEvent{
		EventType:          EventStorageCheckOut,
		EventDate:          now,
		InPlaceVesselLabel: vessel.Label,
		StorageLocationID:  &loc.ID,
		ActorID:            actor,
	}); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Barcode: vessel.Label,
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Checked %s out of %s", vessel.Label, trail),
	}, nil
}

// checkOutRack reconstructs the formation checked in at the rack's current
// location and narrows it to the tubes whose own storage assignment still
// matches that location. Tubes pulled individually between events drop out of
// the checkout layout.
func checkOutRack(tx Transaction, now time.Time, rack LabVessel, loc StorageLocation, actor string) (Outcome, error) {
	_, checkedIn, ok := latestCheckInAt(tx.Snapshot(), rack, loc.ID)
	if !ok {
		return Outcome{}, domain.InconsistentHistoryError{
			Barcode: rack.Label,
			Reason:  fmt.Sprintf("no check-in event recorded at its current location %s", loc.Label),
		}
	}

	remaining := make(map[Position]string, len(checkedIn.Layout))
	for pos, tube := range checkedIn.Layout {
		tv, ok := tx.FindLabVessel(tube)
		if !ok || tv.StorageLocationID == nil || *tv.StorageLocationID != loc.ID {
			continue
		}
		remaining[pos] = tube
		if _, err := tx.UpdateLabVessel(tube, func(v *LabVessel) error {
			v.StorageLocationID = nil
			return nil
		}); err != nil {
			return Outcome{}, err
		}
	}

	outFormation := checkedIn
	if domain.FormationLabel(remaining, checkedIn.RackType) != checkedIn.Label {
		var err error
		outFormation, err = FindOrCreateFormation(tx, remaining, checkedIn.RackType)
		if err != nil {
			return Outcome{}, err
		}
	}

	trail := LocationTrail(tx.Snapshot(), loc.ID)
	if _, err := tx.UpdateLabVessel(rack.Label, func(v *LabVessel) error {
		v.StorageLocationID = nil
		v.FormationLabels = appendUnique(v.FormationLabels, outFormation.Label)
		return nil
	}); err != nil {
		return Outcome{}, err
	}
	if _, err := tx.AppendLabEvent(LabEvent{
		EventType:            EventStorageCheckOut,
		EventDate:            now,
		FormationLabel:       outFormation.Label,
		AncillaryVesselLabel: rack.Label,
		StorageLocationID:    &loc.ID,
		ActorID:              actor,
	}); err != nil {
		return Outcome{}, err
	}

	message := fmt.Sprintf("Checked %s (%d tubes) out of %s", rack.Label, len(remaining), trail)
	if removed := checkedIn.TubeCount() - len(remaining); removed > 0 {
		message += fmt.Sprintf("; %d of %d tubes had already been removed individually", removed, checkedIn.TubeCount())
	}
	return Outcome{Barcode: rack.Label, Status: StatusSuccess, Message: message}, nil
}

func appendUnique(labels []string, label string) []string {
	for _, existing := range labels {
		if existing == label {
			return labels
		}
	}
	return append(labels, label)
}
