package worksheet_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"storagecore/internal/blob"
	"storagecore/internal/core"
	"storagecore/internal/worksheet"
)

type captureAudit struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

func (c *captureAudit) Record(_ context.Context, entry core.AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAudit) snapshot() []core.AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.AuditEntry(nil), c.entries...)
}

// seedBatch stores a scanned rack and returns a batch over its tubes.
func seedBatch(t *testing.T, svc *core.Service) core.VesselBatch {
	t.Helper()
	ctx := context.Background()

	freezer, _, err := svc.CreateStorageLocation(ctx, core.StorageLocation{Label: "Freezer W", LocationType: core.LocationFreezer})
	if err != nil {
		t.Fatalf("create freezer: %v", err)
	}
	slot, _, err := svc.CreateStorageLocation(ctx, core.StorageLocation{Label: "Slot W1", LocationType: core.LocationSlot, StorageCapacity: 4, ParentID: &freezer.ID, Movable: true})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}

	layout := map[core.Position]string{"A01": "TUBE-A", "B01": "TUBE-B"}
	if _, _, err := svc.RecordInPlaceScan(ctx, "RACK-1", layout, core.RackMatrix96, "scanner"); err != nil {
		t.Fatalf("record scan: %v", err)
	}
	if out := svc.CheckIn(ctx, "RACK-1", slot.ID, "user1"); out.Status == core.StatusDanger {
		t.Fatalf("check in rack: %+v", out)
	}

	batch, _, err := svc.CreateVesselBatch(ctx, core.VesselBatch{
		Name:                 "LCSET-100",
		StartingVesselLabels: []string{"TUBE-A", "TUBE-B"},
		Active:               true,
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return batch
}

func awaitExport(t *testing.T, worker *worksheet.Worker, id string) worksheet.ExportRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		current, ok := worker.GetExport(id)
		if !ok {
			t.Fatalf("export record %s missing", id)
		}
		if current.Status == worksheet.ExportStatusSucceeded || current.Status == worksheet.ExportStatusFailed {
			return current
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for export, last status %s", current.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkerArchivesWorksheetAndTransferFile(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	batch := seedBatch(t, svc)

	store := blob.NewMemory()
	audit := &captureAudit{}
	worker := worksheet.NewWorker(svc, store, audit, "")
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })

	record, err := worker.EnqueueExport(ctx, worksheet.ExportInput{
		BatchID: batch.ID,
		Targets: []worksheet.TargetAssignment{
			{SourceVessel: "TUBE-A", TargetVessel: "DEST-1", TargetPosition: "A01"},
			{SourceVessel: "TUBE-B", TargetVessel: "DEST-1", TargetPosition: "B01"},
		},
		RequestedBy: "picker@lab",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if record.Status != worksheet.ExportStatusQueued {
		t.Fatalf("expected queued, got %s", record.Status)
	}

	final := awaitExport(t, worker, record.ID)
	if final.Status != worksheet.ExportStatusSucceeded {
		t.Fatalf("export failed: %s", final.Error)
	}
	if len(final.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %+v", final.Artifacts)
	}

	infos, err := worker.ListArchives(ctx, batch.ID)
	if err != nil {
		t.Fatalf("list archives: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 archived blobs, got %d", len(infos))
	}

	var transferKey string
	for _, a := range final.Artifacts {
		if a.Format == worksheet.FormatTransfer {
			transferKey = a.Key
		}
	}
	info, payload, err := worker.FetchArchive(ctx, transferKey)
	if err != nil {
		t.Fatalf("fetch transfer file: %v", err)
	}
	if info.Metadata["tubes"] != "2" {
		t.Fatalf("unexpected archive metadata: %+v", info.Metadata)
	}
	want := "RACK-1,A01,TUBE-A,DEST-1,A01\r\nRACK-1,B01,TUBE-B,DEST-1,B01\r\n"
	if string(payload) != want {
		t.Fatalf("transfer file mismatch:\n%q\nwant\n%q", payload, want)
	}

	entries := audit.snapshot()
	if len(entries) < 2 {
		t.Fatalf("expected queued and completed audit entries, got %+v", entries)
	}
}

func TestWorkerFailsTransferWithoutTargets(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	batch := seedBatch(t, svc)

	worker := worksheet.NewWorker(svc, blob.NewMemory(), nil, "")
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })

	record, err := worker.EnqueueExport(ctx, worksheet.ExportInput{
		BatchID:     batch.ID,
		Formats:     []worksheet.Format{worksheet.FormatTransfer},
		RequestedBy: "picker@lab",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	final := awaitExport(t, worker, record.ID)
	if final.Status != worksheet.ExportStatusFailed {
		t.Fatalf("expected failure, got %+v", final)
	}
	if !strings.Contains(final.Error, "target") {
		t.Fatalf("error should name the missing targets: %s", final.Error)
	}
}

func TestWorkerRejectsUnknownFormat(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	worker := worksheet.NewWorker(svc, blob.NewMemory(), nil, "")
	if _, err := worker.EnqueueExport(context.Background(), worksheet.ExportInput{
		BatchID: "batch",
		Formats: []worksheet.Format{"pdf"},
	}); err == nil {
		t.Fatalf("unknown format must be rejected")
	}
}

func TestWorkerRejectsMissingBatch(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	worker := worksheet.NewWorker(svc, blob.NewMemory(), nil, "")
	if _, err := worker.EnqueueExport(context.Background(), worksheet.ExportInput{}); err == nil {
		t.Fatalf("empty batch id must be rejected")
	}
}
