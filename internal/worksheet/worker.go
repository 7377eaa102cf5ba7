// Package worksheet renders pick worksheets for vessel batches and archives
// them, together with the robotic transfer files, on a blob store.
package worksheet

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"storagecore/internal/blob"
	"storagecore/internal/core"
)

// Format identifies a rendered worksheet artifact flavor.
type Format string

const (
	// FormatWorksheet is the JSON pick worksheet, one row per source
	// container with the tubes to pull.
	FormatWorksheet Format = "worksheet"
	// FormatTransfer is the CSV consumed by the tube-picking robot. It can
	// only be rendered once every tube has a target assignment.
	FormatTransfer Format = "transfer"
)

// ExportStatus describes the lifecycle stage of an archive request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// Artifact captures one archived worksheet file.
type Artifact struct {
	ID          string            `json:"id"`
	Key         string            `json:"key"`
	Format      Format            `json:"format"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ExportRecord tracks an archive request and its resulting artifacts.
type ExportRecord struct {
	ID          string       `json:"id"`
	BatchID     string       `json:"batch_id"`
	Formats     []Format     `json:"formats"`
	Status      ExportStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	Artifacts   []Artifact   `json:"artifacts,omitempty"`
	RequestedBy string       `json:"requested_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// TargetAssignment maps one source tube to its destination well on the
// robot deck.
type TargetAssignment struct {
	SourceVessel   string        `json:"source_vessel"`
	TargetVessel   string        `json:"target_vessel"`
	TargetPosition core.Position `json:"target_position"`
}

// ExportInput represents an enqueue request for the worker. Targets are
// optional for worksheet-only archives; the transfer format requires an
// assignment for every tube in the batch.
type ExportInput struct {
	BatchID     string
	Formats     []Format
	Targets     []TargetAssignment
	RequestedBy string
}

// PickListSource produces picker rows and transfer files for a batch.
// *core.Service satisfies it.
type PickListSource interface {
	BuildPickList(ctx context.Context, batchID string) ([]core.PickerDataRow, *core.ValidationError, error)
	ExportTransferFile(ctx context.Context, rows []core.PickerDataRow) ([]byte, error)
}

// Worker archives pick worksheets asynchronously.
type Worker struct {
	source PickListSource
	store  blob.Store
	audit  core.AuditRecorder
	prefix string

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

type renderedArtifact struct {
	Artifact Artifact
	Payload  []byte
}

// NewWorker constructs a worksheet archive worker. The audit recorder may be
// nil. Keys are laid out under prefix (default "picklists").
func NewWorker(source PickListSource, store blob.Store, audit core.AuditRecorder, prefix string) *Worker {
	if prefix == "" {
		prefix = "picklists"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		audit:  audit,
		prefix: strings.Trim(prefix, "/"),
		queue:  make(chan exportTask, 32),
		jobs:   make(map[string]*ExportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing archive requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an archive job and returns the queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.source == nil {
		return ExportRecord{}, fmt.Errorf("pick list source not configured")
	}
	if strings.TrimSpace(input.BatchID) == "" {
		return ExportRecord{}, fmt.Errorf("batch id required")
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatWorksheet, FormatTransfer}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		switch format {
		case FormatWorksheet, FormatTransfer:
		default:
			return ExportRecord{}, fmt.Errorf("unknown worksheet format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		BatchID:     input.BatchID,
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, record, core.AuditStatusSuccess, "queued")

	select {
	case w.queue <- exportTask{id: id, input: input}:
	default:
		return ExportRecord{}, fmt.Errorf("worksheet archive queue full")
	}
	return queued, nil
}

// GetExport returns a snapshot of the archive record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

// ListArchives returns the archived artifacts stored for a batch, newest
// last by key.
func (w *Worker) ListArchives(ctx context.Context, batchID string) ([]blob.Info, error) {
	return w.store.List(ctx, w.prefix+"/"+batchID+"/")
}

// FetchArchive returns the metadata and payload of an archived file.
func (w *Worker) FetchArchive(ctx context.Context, key string) (blob.Info, []byte, error) {
	info, rc, err := w.store.Get(ctx, key)
	if err != nil {
		return blob.Info{}, nil, err
	}
	defer func() { _ = rc.Close() }()
	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(rc); err != nil {
		return blob.Info{}, nil, err
	}
	return info, buf.Bytes(), nil
}

func (w *Worker) process(task exportTask) {
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}
	w.updateStatus(task.id, ExportStatusRunning, "")

	rows, verr, err := w.source.BuildPickList(w.ctx, task.input.BatchID)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("build pick list: %v", err))
		return
	}
	if verr != nil && verr.HasProblems() {
		w.fail(task.id, fmt.Sprintf("build pick list: %v", verr))
		return
	}
	applyTargets(rows, task.input.Targets)

	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		rendered, err := w.materialize(format, record, rows)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		info, err := w.store.Put(w.ctx, rendered.Artifact.Key, bytes.NewReader(rendered.Payload), blob.PutOptions{
			ContentType: rendered.Artifact.ContentType,
			Metadata:    rendered.Artifact.Metadata,
		})
		if err != nil {
			w.fail(task.id, fmt.Sprintf("archive %s: %v", format, err))
			return
		}
		if url, err := w.store.PresignURL(w.ctx, info.Key, blob.SignedURLOptions{}); err == nil {
			rendered.Artifact.URL = url
		}
		rendered.Artifact.SizeBytes = info.Size
		artifacts = append(artifacts, rendered.Artifact)
	}
	w.complete(task.id, artifacts)
}

func (w *Worker) materialize(format Format, record ExportRecord, rows []core.PickerDataRow) (renderedArtifact, error) {
	tubes := 0
	for _, row := range rows {
		tubes += len(row.Vessels)
	}
	meta := map[string]string{
		"batch_id": record.BatchID,
		"rows":     fmt.Sprintf("%d", len(rows)),
		"tubes":    fmt.Sprintf("%d", tubes),
	}
	switch format {
	case FormatWorksheet:
		payload, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return renderedArtifact{}, fmt.Errorf("marshal worksheet: %w", err)
		}
		return renderedArtifact{
			Artifact: Artifact{
				ID:          newID(),
				Key:         w.key(record, "worksheet.json"),
				Format:      FormatWorksheet,
				ContentType: "application/json",
				SizeBytes:   int64(len(payload)),
				Metadata:    meta,
				CreatedAt:   time.Now().UTC(),
			},
			Payload: payload,
		}, nil
	case FormatTransfer:
		payload, err := w.source.ExportTransferFile(w.ctx, rows)
		if err != nil {
			return renderedArtifact{}, fmt.Errorf("render transfer file: %w", err)
		}
		return renderedArtifact{
			Artifact: Artifact{
				ID:          newID(),
				Key:         w.key(record, "transfer.csv"),
				Format:      FormatTransfer,
				ContentType: "text/csv",
				SizeBytes:   int64(len(payload)),
				Metadata:    meta,
				CreatedAt:   time.Now().UTC(),
			},
			Payload: payload,
		}, nil
	default:
		return renderedArtifact{}, fmt.Errorf("unknown worksheet format %s", format)
	}
}

func applyTargets(rows []core.PickerDataRow, targets []TargetAssignment) {
	if len(targets) == 0 {
		return
	}
	byTube := make(map[string]TargetAssignment, len(targets))
	for _, t := range targets {
		byTube[t.SourceVessel] = t
	}
	for ri := range rows {
		for vi := range rows[ri].Vessels {
			if t, ok := byTube[rows[ri].Vessels[vi].SourceVessel]; ok {
				rows[ri].Vessels[vi].TargetVessel = t.TargetVessel
				rows[ri].Vessels[vi].TargetPosition = t.TargetPosition
			}
		}
	}
}

func (w *Worker) key(record ExportRecord, name string) string {
	return fmt.Sprintf("%s/%s/%s/%s", w.prefix, record.BatchID, record.ID, name)
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	var snapshot ExportRecord
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		snapshot = record.copy()
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, snapshot, core.AuditStatusSuccess, fmt.Sprintf("%d artifacts archived", len(artifacts)))
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var snapshot ExportRecord
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		snapshot = record.copy()
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, snapshot, core.AuditStatusError, reason)
}

func (w *Worker) recordAudit(ctx context.Context, record ExportRecord, status core.AuditStatus, detail string) {
	if w.audit == nil || record.ID == "" {
		return
	}
	w.audit.Record(ctx, core.AuditEntry{
		Operation: "worksheet_archive",
		Status:    status,
		EntityID:  record.BatchID,
		Actor:     record.RequestedBy,
		Detail:    detail,
		At:        time.Now().UTC(),
	})
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}
