package core

import (
	"context"
	"testing"
	"time"

	"storagecore/pkg/domain"
)

func TestLatestEventOrdersByDateThenSequence(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(fixedClock(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)))

	sameInstant := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	if _, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		// Appended out of chronological order on purpose: the later date
		// lands first in the log.
		events := []LabEvent{
			{EventType: EventGeneric, EventDate: time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC), InPlaceVesselLabel: "HIST-1", ActorID: "late"},
			{EventType: EventGeneric, EventDate: sameInstant, InPlaceVesselLabel: "HIST-1", ActorID: "first"},
			{EventType: EventGeneric, EventDate: sameInstant, InPlaceVesselLabel: "HIST-1", ActorID: "second"},
		}
		for _, e := range events {
			if _, err := tx.AppendLabEvent(e); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed events: %v", err)
	}

	err := svc.Store().View(ctx, func(view TransactionView) error {
		latest, ok := LatestEvent(view, "HIST-1")
		if !ok {
			t.Fatalf("expected an event")
		}
		if latest.ActorID != "late" {
			t.Fatalf("latest must follow event date, not append order: %+v", latest)
		}

		desc := sortedEventsDesc(view)
		if desc[1].ActorID != "second" || desc[2].ActorID != "first" {
			t.Fatalf("date ties must break by sequence: %+v", desc)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestEventsSinceBoundsTheScan(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(fixedClock(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)))
	if _, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		for day := 1; day <= 4; day++ {
			label := "EV-A"
			if day%2 == 0 {
				label = "EV-B"
			}
			if _, err := tx.AppendLabEvent(LabEvent{
				EventType:            EventGeneric,
				EventDate:            time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
				AncillaryVesselLabel: label,
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := svc.Store().View(ctx, func(view TransactionView) error {
		since := EventsSince(view, "", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
		if len(since) != 2 {
			t.Fatalf("expected 2 events on or after the cutoff, got %d", len(since))
		}
		if !since[0].EventDate.After(since[1].EventDate) {
			t.Fatalf("events must be most recent first: %+v", since)
		}
		scoped := EventsSince(view, "EV-B", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
		if len(scoped) != 2 {
			t.Fatalf("expected 2 events for the container, got %d", len(scoped))
		}
		for _, e := range scoped {
			if e.AncillaryVesselLabel != "EV-B" {
				t.Fatalf("container filter leaked foreign events: %+v", scoped)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestFindAncillaryEventTracesRackThroughTransfers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(fixedClock(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)))

	formation := domain.NewTubeFormation(map[Position]string{"A01": "ANC-T1"}, RackMatrix96)
	if _, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateTubeFormation(formation); err != nil {
			return err
		}
		if _, err := tx.CreateLabVessel(LabVessel{Label: "ANC-RACK", ContainerType: ContainerRackOfTubes, RackType: RackMatrix96}); err != nil {
			return err
		}
		// The rack never appears as the event subject, only as the carrier
		// of a cherry-pick target.
		_, err := tx.AppendLabEvent(LabEvent{
			EventType: EventCherryPickTransfer,
			EventDate: time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC),
			Transfers: []Transfer{{
				SourceFormationLabel: "unrelated",
				SourcePosition:       "B02",
				TargetFormationLabel: formation.Label,
				TargetPosition:       "A01",
				TargetAncillaryLabel: "ANC-RACK",
			}},
		})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := svc.Store().View(ctx, func(view TransactionView) error {
		rack, _ := view.FindLabVessel("ANC-RACK")
		e, got, ok := FindAncillaryEvent(view, rack, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
		if !ok {
			t.Fatalf("expected to find the transfer through the ancillary reference")
		}
		if e.EventType != EventCherryPickTransfer {
			t.Fatalf("unexpected event: %+v", e)
		}
		if got.Label != formation.Label {
			t.Fatalf("resolved formation %s, want %s", got.Label, formation.Label)
		}

		if _, _, ok := FindAncillaryEvent(view, rack, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)); ok {
			t.Fatalf("events before the reference date must not match")
		}

		// latestRackEvent finds the same layout even though the rack was
		// never the primary subject.
		if _, f, ok := latestRackEvent(view, rack); !ok || f.Label != formation.Label {
			t.Fatalf("latestRackEvent must trace the rack through the transfer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
