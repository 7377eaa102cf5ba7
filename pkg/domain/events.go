package domain

import "time"

// EventType classifies a lab event.
type EventType string

// Lab event types. The first three are storage events proper; the transfer
// types move tubes between formations with the carrying rack recorded as an
// ancillary vessel. EventGeneric stands in for the lab-processing event types
// outside the storage subsystem's concern.
const (
	EventInPlace                 EventType = "IN_PLACE"
	EventStorageCheckIn          EventType = "STORAGE_CHECK_IN"
	EventStorageCheckOut         EventType = "STORAGE_CHECK_OUT"
	EventSectionTransfer         EventType = "SECTION_TRANSFER"
	EventCherryPickTransfer      EventType = "CHERRY_PICK_TRANSFER"
	EventVesselToSectionTransfer EventType = "VESSEL_TO_SECTION_TRANSFER"
	EventGeneric                 EventType = "GENERIC"
)

// IsStorageEvent reports whether the event type participates in storage
// check-in/check-out bookkeeping.
func (t EventType) IsStorageEvent() bool {
	switch t {
	case EventStorageCheckIn, EventStorageCheckOut, EventInPlace:
		return true
	default:
		return false
	}
}

// IsTransfer reports whether the event type moves contents between vessels.
func (t EventType) IsTransfer() bool {
	switch t {
	case EventSectionTransfer, EventCherryPickTransfer, EventVesselToSectionTransfer:
		return true
	default:
		return false
	}
}

// Transfer records one movement endpoint pair within a transfer event. The
// ancillary labels name the rack that physically carried the formation during
// the transfer, distinct from the tubes being moved.
type Transfer struct {
	SourceFormationLabel string   `json:"source_formation_label,omitempty"`
	SourcePosition       Position `json:"source_position,omitempty"`
	SourceAncillaryLabel string   `json:"source_ancillary_label,omitempty"`
	TargetFormationLabel string   `json:"target_formation_label,omitempty"`
	TargetPosition       Position `json:"target_position,omitempty"`
	TargetAncillaryLabel string   `json:"target_ancillary_label,omitempty"`
}

// LabEvent is an immutable append-only record of something that happened to a
// vessel. Events are totally ordered by (EventDate, Sequence); Sequence is
// assigned by the store at append time and breaks date ties, so ordering never
// depends on map or slice iteration order.
type LabEvent struct {
	Base
	EventType            EventType  `json:"event_type"`
	EventDate            time.Time  `json:"event_date"`
	Sequence             int64      `json:"sequence"`
	InPlaceVesselLabel   string     `json:"in_place_vessel_label,omitempty"`
	FormationLabel       string     `json:"formation_label,omitempty"`
	AncillaryVesselLabel string     `json:"ancillary_vessel_label,omitempty"`
	StorageLocationID    *string    `json:"storage_location_id"`
	ActorID              string     `json:"actor_id,omitempty"`
	Transfers            []Transfer `json:"transfers,omitempty"`
}

// EventBefore orders events by date, ties broken by store sequence number.
func EventBefore(a, b LabEvent) bool {
	if !a.EventDate.Equal(b.EventDate) {
		return a.EventDate.Before(b.EventDate)
	}
	return a.Sequence < b.Sequence
}
