package core

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type captureMetricsRecorder struct {
	observed []struct {
		op      string
		success bool
	}
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.observed = append(c.observed, struct {
		op      string
		success bool
	}{op, success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, o := range c.observed {
		if o.op == op && o.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	ended []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus) bool {
	for _, e := range c.entries {
		if e.Operation == op && e.Status == status {
			return true
		}
	}
	return false
}

func TestServiceObservabilityHooks(t *testing.T) {
	ctx := context.Background()
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	audit := &captureAuditRecorder{}
	svc := NewInMemoryService(NewDefaultRulesEngine(),
		WithClock(ClockFunc(fixedClock(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)))),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithAuditRecorder(audit),
	)

	loose := mustLocation(t, svc, StorageLocation{Label: "Tray X", LocationType: LocationLoose, StorageCapacity: 5})
	mustVessel(t, svc, LabVessel{Label: "OBS-1", ContainerType: ContainerTube})

	if out := svc.CheckIn(ctx, "OBS-1", loose.ID, "user1"); out.Status != StatusSuccess {
		t.Fatalf("check-in: %+v", out)
	}
	if !metrics.has("check_in", true) {
		t.Fatalf("expected successful check_in metric, got %+v", metrics.observed)
	}
	if !audit.has("check_in", AuditStatusSuccess) {
		t.Fatalf("expected check_in audit entry, got %+v", audit.entries)
	}

	if out := svc.CheckIn(ctx, "MISSING", loose.ID, "user1"); out.Status != StatusDanger {
		t.Fatalf("expected danger for unknown barcode, got %+v", out)
	}
	if !metrics.has("check_in", false) {
		t.Fatalf("expected failed check_in metric")
	}
	if !audit.has("check_in", AuditStatusError) {
		t.Fatalf("expected check_in error audit entry")
	}

	found := false
	for _, span := range tracer.ended {
		if span.op == "check_in" && span.err != nil {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an ended trace span for the failed check_in")
	}
}

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	recorder := NewExpvarMetricsRecorder("")
	recorder.Observe(context.Background(), "check_in", true, 10*time.Millisecond)
	recorder.Observe(context.Background(), "check_in", false, 5*time.Millisecond)

	snap := recorder.Snapshot()
	if snap.Results["check_in"]["success"] != 1 || snap.Results["check_in"]["error"] != 1 {
		t.Fatalf("unexpected result counters: %+v", snap.Results)
	}
	if snap.DurationsMS["check_in"] < 15 {
		t.Fatalf("expected accumulated duration, got %v", snap.DurationsMS["check_in"])
	}
	if !strings.HasPrefix(recorder.Name(), "storagecore_service_metrics_") {
		t.Fatalf("unexpected generated name: %s", recorder.Name())
	}
}

func TestJSONTracerEmitsEntries(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "trace_op")
	span.End(nil)

	entries := tracer.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected single span entry, got %d", len(entries))
	}
	if entries[0].Operation != "trace_op" || entries[0].Status != "success" {
		t.Fatalf("unexpected span entry: %+v", entries[0])
	}
	if !strings.Contains(buf.String(), `"operation":"trace_op"`) {
		t.Fatalf("expected encoded span line, got %s", buf.String())
	}
}

func TestPrometheusMetricsRecorderRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("construct recorder: %v", err)
	}
	recorder.Observe(context.Background(), "check_out", true, 20*time.Millisecond)
	recorder.Observe(context.Background(), "check_out", false, 5*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	if !names["storagecore_operation_duration_seconds"] || !names["storagecore_operation_results_total"] {
		t.Fatalf("expected registered metric families, got %v", names)
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("duplicate registration must fail")
	}
}
