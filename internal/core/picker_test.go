package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

// seedStoredRack scans and checks a rack into a fresh slot, returning the
// slot. Tube labels are taken from the layout values.
func seedStoredRack(t *testing.T, svc *Service, advance func(), rack string, layout map[Position]string, suffix string) StorageLocation {
	t.Helper()
	ctx := context.Background()
	slot := buildSlot(t, svc, suffix, 4)
	if _, _, err := svc.RecordInPlaceScan(ctx, rack, layout, RackMatrix96, "scanner"); err != nil {
		t.Fatalf("record scan: %v", err)
	}
	advance()
	if out := svc.CheckIn(ctx, rack, slot.ID, "user1"); out.Status != StatusSuccess {
		t.Fatalf("check-in %s: %+v", rack, out)
	}
	return slot
}

func TestPickListGroupsTubesByRack(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	svc := newTestService(func() time.Time { return now })
	advance := func() { now = now.Add(time.Hour) }

	slot := seedStoredRack(t, svc, advance, "PICK-RACK", map[Position]string{"A01": "P1", "B01": "P2", "C01": "P3"}, "P")

	batch, _, err := svc.CreateVesselBatch(ctx, VesselBatch{Name: "LCSET-100", StartingVesselLabels: []string{"P1", "P3"}, Active: true})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	rows, verr, err := svc.BuildPickList(ctx, batch.ID)
	if err != nil {
		t.Fatalf("build pick list: %v", err)
	}
	if verr != nil {
		t.Fatalf("unexpected problems: %v", verr)
	}
	if len(rows) != 1 {
		t.Fatalf("two tubes in one rack must yield one row, got %d", len(rows))
	}
	row := rows[0]
	if row.SourceVessel != "PICK-RACK" {
		t.Fatalf("row container: %s", row.SourceVessel)
	}
	if !row.RackScannable {
		t.Fatalf("Matrix96 rack must be scannable on the picker deck")
	}
	if row.TotalVesselCount != 3 {
		t.Fatalf("total count must cover every tube at the location, got %d", row.TotalVesselCount)
	}
	if len(row.Vessels) != 2 {
		t.Fatalf("expected 2 picker vessels, got %d", len(row.Vessels))
	}
	if row.Vessels[0].SourceVessel != "P1" || row.Vessels[0].SourcePosition != "A01" {
		t.Fatalf("unexpected first vessel: %+v", row.Vessels[0])
	}
	if row.Vessels[1].SourceVessel != "P3" || row.Vessels[1].SourcePosition != "C01" {
		t.Fatalf("unexpected second vessel: %+v", row.Vessels[1])
	}
	trail, _ := svc.LocationTrail(ctx, slot.ID)
	if row.StorageLocationPath != trail {
		t.Fatalf("row path %q, want %q", row.StorageLocationPath, trail)
	}
}

func TestPickListRowsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	svc := newTestService(func() time.Time { return now })
	advance := func() { now = now.Add(time.Hour) }

	seedStoredRack(t, svc, advance, "ORDER-RACK-1", map[Position]string{"A01": "O1", "B01": "O2"}, "Q")
	seedStoredRack(t, svc, advance, "ORDER-RACK-2", map[Position]string{"A01": "O3"}, "R")

	// Membership order interleaves the racks; rows follow first-seen order.
	batch, _, err := svc.CreateVesselBatch(ctx, VesselBatch{Name: "LCSET-101", StartingVesselLabels: []string{"O3", "O1", "O2"}, Active: true})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	rows, verr, err := svc.BuildPickList(ctx, batch.ID)
	if err != nil || verr != nil {
		t.Fatalf("build pick list: %v %v", err, verr)
	}
	if len(rows) != 2 || rows[0].SourceVessel != "ORDER-RACK-2" || rows[1].SourceVessel != "ORDER-RACK-1" {
		t.Fatalf("rows must keep first-seen container order, got %+v", rows)
	}
}

func TestPickListCheckedOutContainerRow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	svc := newTestService(func() time.Time { return now })
	advance := func() { now = now.Add(time.Hour) }

	slot := seedStoredRack(t, svc, advance, "OUT-RACK", map[Position]string{"A01": "X1"}, "S")
	advance()
	if out := svc.CheckOut(ctx, "OUT-RACK", "user1"); out.Status != StatusSuccess {
		t.Fatalf("check-out: %+v", out)
	}

	batch, _, err := svc.CreateVesselBatch(ctx, VesselBatch{Name: "LCSET-102", StartingVesselLabels: []string{"X1"}, Active: true})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	rows, verr, err := svc.BuildPickList(ctx, batch.ID)
	if err != nil || verr != nil {
		t.Fatalf("build pick list: %v %v", err, verr)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	trail, _ := svc.LocationTrail(ctx, slot.ID)
	if rows[0].StorageLocationPath != "Checked out of "+trail {
		t.Fatalf("unexpected path: %q", rows[0].StorageLocationPath)
	}
	if rows[0].SourceVessel != "OUT-RACK" {
		t.Fatalf("row must still name the carrying rack, got %s", rows[0].SourceVessel)
	}
}

func TestRackScannableRequiresMatrixFamily(t *testing.T) {
	cases := []struct {
		rackType RackType
		want     bool
	}{
		{RackMatrix96, true},
		{RackMatrix48, true},
		{RackFluidX96, false},
		{RackHamiltonCarrier, false},
		{RackAbgene96, false},
		{RackTypeUnspecified, false},
	}
	for _, tc := range cases {
		if got := rackScannable(tc.rackType); got != tc.want {
			t.Fatalf("rackScannable(%s) = %v, want %v", tc.rackType, got, tc.want)
		}
	}
}

func TestExportTransferFileFormat(t *testing.T) {
	rows := []PickerDataRow{
		{
			SourceVessel: "SRC-RACK",
			Vessels: []PickerVessel{
				{SourceVessel: "T1", SourcePosition: "A01", TargetVessel: "DEST-RACK", TargetPosition: "A01"},
				{SourceVessel: "T2", SourcePosition: "B01", TargetVessel: "DEST-RACK", TargetPosition: "A02"},
			},
		},
	}
	data, err := ExportTransferFile(rows)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := "SRC-RACK,A01,T1,DEST-RACK,A01\r\nSRC-RACK,B01,T2,DEST-RACK,A02\r\n"
	if string(data) != want {
		t.Fatalf("unexpected file contents:\n%q\nwant\n%q", data, want)
	}
}

func TestExportTransferFileFailsClosed(t *testing.T) {
	rows := []PickerDataRow{
		{
			SourceVessel: "SRC-RACK",
			Vessels: []PickerVessel{
				{SourceVessel: "T1", SourcePosition: "A01", TargetVessel: "DEST-RACK", TargetPosition: "A01"},
				{SourceVessel: "T2", SourcePosition: "B01"},
				{SourceVessel: "T3", SourcePosition: "C01"},
			},
		},
	}
	data, err := ExportTransferFile(rows)
	if err == nil {
		t.Fatalf("expected aggregate error")
	}
	if data != nil {
		t.Fatalf("no partial file may be emitted")
	}
	msg := err.Error()
	if !strings.Contains(msg, "T2") || !strings.Contains(msg, "T3") {
		t.Fatalf("error must list every unassigned vessel: %s", msg)
	}
}
