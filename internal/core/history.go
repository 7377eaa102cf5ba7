package core

import (
	"sort"
	"time"

	"storagecore/pkg/domain"
)

// sortedEventsDesc returns all events most recent first. The order is the
// total order by (EventDate, Sequence); append order is never trusted.
func sortedEventsDesc(view TransactionView) []LabEvent {
	events := view.ListLabEvents()
	out := make([]LabEvent, len(events))
	copy(out, events)
	sort.Slice(out, func(i, j int) bool {
		return domain.EventBefore(out[j], out[i])
	})
	return out
}

// LatestEvent returns the most recent event referencing the given vessel
// label, either as the in-place subject, the ancillary carrier, or a transfer
// endpoint.
func LatestEvent(view TransactionView, label string) (LabEvent, bool) {
	for _, e := range sortedEventsDesc(view) {
		if eventReferencesLabel(e, label) {
			return e, true
		}
	}
	return LabEvent{}, false
}

// EventsSince returns events referencing the container label on or after
// earliest, most recent first. An empty label matches every event.
func EventsSince(view TransactionView, label string, earliest time.Time) []LabEvent {
	var out []LabEvent
	for _, e := range sortedEventsDesc(view) {
		if e.EventDate.Before(earliest) {
			continue
		}
		if label != "" && !eventReferencesLabel(e, label) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func eventReferencesLabel(e LabEvent, label string) bool {
	if e.InPlaceVesselLabel == label || e.AncillaryVesselLabel == label {
		return true
	}
	for _, t := range e.Transfers {
		if t.SourceAncillaryLabel == label || t.TargetAncillaryLabel == label {
			return true
		}
	}
	return false
}

// formationLabelSet indexes a rack's observed formation labels for membership
// tests during event scans.
func formationLabelSet(rack LabVessel) map[string]bool {
	set := make(map[string]bool, len(rack.FormationLabels))
	for _, label := range rack.FormationLabels {
		set[label] = true
	}
	return set
}

// eventTouchesRack reports whether the event involves the rack, directly or
// through one of the rack's known formations.
func eventTouchesRack(e LabEvent, rack LabVessel, formations map[string]bool) bool {
	if eventReferencesLabel(e, rack.Label) {
		return true
	}
	if e.FormationLabel != "" && formations[e.FormationLabel] {
		return true
	}
	if e.InPlaceVesselLabel != "" && formations[e.InPlaceVesselLabel] {
		return true
	}
	for _, t := range e.Transfers {
		if formations[t.SourceFormationLabel] || formations[t.TargetFormationLabel] {
			return true
		}
	}
	return false
}

// resolveEventFormation extracts the tube formation an event attests for the
// given rack. Transfer events resolve the endpoint whose ancillary carrier is
// the rack; an event with no resolvable formation yields false.
func resolveEventFormation(view TransactionView, e LabEvent, rack LabVessel, formations map[string]bool) (TubeFormation, bool) {
	if e.FormationLabel != "" {
		if f, ok := view.FindTubeFormation(e.FormationLabel); ok {
			return f, true
		}
	}
	// In-place scans record the scanned formation as the event subject with
	// the rack as the carrier.
	if e.InPlaceVesselLabel != "" {
		if f, ok := view.FindTubeFormation(e.InPlaceVesselLabel); ok {
			return f, true
		}
	}
	for _, t := range e.Transfers {
		if t.TargetAncillaryLabel == rack.Label || formations[t.TargetFormationLabel] {
			if f, ok := view.FindTubeFormation(t.TargetFormationLabel); ok {
				return f, true
			}
		}
		if t.SourceAncillaryLabel == rack.Label || formations[t.SourceFormationLabel] {
			if f, ok := view.FindTubeFormation(t.SourceFormationLabel); ok {
				return f, true
			}
		}
	}
	return TubeFormation{}, false
}

// latestRackEvent finds the most recent event attesting a tube layout for the
// rack, together with that layout. A rack that only ever carried tubes during
// transfers of other vessels is still found through its ancillary references.
func latestRackEvent(view TransactionView, rack LabVessel) (LabEvent, TubeFormation, bool) {
	formations := formationLabelSet(rack)
	for _, e := range sortedEventsDesc(view) {
		if !eventTouchesRack(e, rack, formations) {
			continue
		}
		if f, ok := resolveEventFormation(view, e, rack, formations); ok {
			return e, f, true
		}
	}
	return LabEvent{}, TubeFormation{}, false
}

// FindAncillaryEvent scans descending through in-place and transfer events on
// or after the reference date for one where the rack served as the ancillary
// carrier, returning the event and the formation it carried.
func FindAncillaryEvent(view TransactionView, rack LabVessel, after time.Time) (LabEvent, TubeFormation, bool) {
	formations := formationLabelSet(rack)
	for _, e := range sortedEventsDesc(view) {
		if e.EventDate.Before(after) {
			break
		}
		matched := e.AncillaryVesselLabel == rack.Label
		for _, t := range e.Transfers {
			if t.SourceAncillaryLabel == rack.Label || t.TargetAncillaryLabel == rack.Label {
				matched = true
			}
		}
		if !matched {
			continue
		}
		if f, ok := resolveEventFormation(view, e, rack, formations); ok {
			return e, f, true
		}
	}
	return LabEvent{}, TubeFormation{}, false
}

// latestCheckInAt finds the most recent STORAGE_CHECK_IN event for the rack
// at the given location, together with the formation it recorded.
func latestCheckInAt(view TransactionView, rack LabVessel, locationID string) (LabEvent, TubeFormation, bool) {
	formations := formationLabelSet(rack)
	for _, e := range sortedEventsDesc(view) {
		if e.EventType != EventStorageCheckIn {
			continue
		}
		if e.StorageLocationID == nil || *e.StorageLocationID != locationID {
			continue
		}
		if !eventTouchesRack(e, rack, formations) {
			continue
		}
		if f, ok := resolveEventFormation(view, e, rack, formations); ok {
			return e, f, true
		}
	}
	return LabEvent{}, TubeFormation{}, false
}
