// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"storagecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain
// persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// StorageLocation aliases domain.StorageLocation for in-memory persistence operations.
	StorageLocation = domain.StorageLocation
	// LabVessel aliases domain.LabVessel.
	LabVessel = domain.LabVessel
	// TubeFormation aliases domain.TubeFormation.
	TubeFormation = domain.TubeFormation
	// LabEvent aliases domain.LabEvent.
	LabEvent = domain.LabEvent
	// VesselBatch aliases domain.VesselBatch.
	VesselBatch = domain.VesselBatch
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	locations  map[string]StorageLocation
	vessels    map[string]LabVessel
	formations map[string]TubeFormation
	events     []LabEvent
	batches    map[string]VesselBatch
	eventSeq   int64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Locations  map[string]StorageLocation `json:"locations"`
	Vessels    map[string]LabVessel       `json:"vessels"`
	Formations map[string]TubeFormation   `json:"formations"`
	Events     []LabEvent                 `json:"events"`
	Batches    map[string]VesselBatch     `json:"batches"`
	EventSeq   int64                      `json:"event_seq"`
}

func newMemoryState() memoryState {
	return memoryState{
		locations:  make(map[string]StorageLocation),
		vessels:    make(map[string]LabVessel),
		formations: make(map[string]TubeFormation),
		batches:    make(map[string]VesselBatch),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.locations {
		cloned.locations[k] = cloneLocation(v)
	}
	for k, v := range s.vessels {
		cloned.vessels[k] = cloneVessel(v)
	}
	for k, v := range s.formations {
		cloned.formations[k] = cloneFormation(v)
	}
	cloned.events = make([]LabEvent, len(s.events))
	for i, e := range s.events {
		cloned.events[i] = cloneEvent(e)
	}
	for k, v := range s.batches {
		cloned.batches[k] = cloneBatch(v)
	}
	cloned.eventSeq = s.eventSeq
	return cloned
}

func cloneLocation(l StorageLocation) StorageLocation {
	cp := l
	cp.ChildIDs = append([]string(nil), l.ChildIDs...)
	if l.ParentID != nil {
		parent := *l.ParentID
		cp.ParentID = &parent
	}
	return cp
}

func cloneVessel(v LabVessel) LabVessel {
	cp := v
	cp.FormationLabels = append([]string(nil), v.FormationLabels...)
	if v.StorageLocationID != nil {
		loc := *v.StorageLocationID
		cp.StorageLocationID = &loc
	}
	return cp
}

func cloneFormation(f TubeFormation) TubeFormation {
	cp := f
	cp.Layout = make(map[domain.Position]string, len(f.Layout))
	for pos, tube := range f.Layout {
		cp.Layout[pos] = tube
	}
	return cp
}

func cloneEvent(e LabEvent) LabEvent {
	cp := e
	cp.Transfers = append([]domain.Transfer(nil), e.Transfers...)
	if e.StorageLocationID != nil {
		loc := *e.StorageLocationID
		cp.StorageLocationID = &loc
	}
	return cp
}

func cloneBatch(b VesselBatch) VesselBatch {
	cp := b
	cp.StartingVesselLabels = append([]string(nil), b.StartingVesselLabels...)
	return cp
}

// Store provides an in-memory transactional store for the core domain.
// Transactions serialize under the store mutex; rule evaluation runs against
// the transactional snapshot before commit.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// RulesEngine returns the engine evaluated at commit time.
func (s *Store) RulesEngine() *RulesEngine { return s.engine }

// NowFunc returns the store clock, overridable in tests via SetNowFunc.
func (s *Store) NowFunc() func() time.Time { return s.nowFn }

// SetNowFunc replaces the store clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// transaction is the mutable unit of work applied to a cloned state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

var _ domain.Transaction = (*transaction)(nil)

// view exposes a read-only snapshot of the transactional state.
type view struct {
	state *memoryState
}

var _ domain.TransactionView = view{}
var _ domain.RuleView = view{}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

// ExportState returns a deep copy of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state.clone()
	snap := Snapshot{
		Locations:  state.locations,
		Vessels:    state.vessels,
		Formations: state.formations,
		Events:     state.events,
		Batches:    state.batches,
		EventSeq:   state.eventSeq,
	}
	return snap
}

// ImportState replaces the committed state with the supplied snapshot.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snap.Locations {
		state.locations[k] = cloneLocation(v)
	}
	for k, v := range snap.Vessels {
		state.vessels[k] = cloneVessel(v)
	}
	for k, v := range snap.Formations {
		state.formations[k] = cloneFormation(v)
	}
	state.events = make([]LabEvent, len(snap.Events))
	for i, e := range snap.Events {
		state.events[i] = cloneEvent(e)
	}
	for k, v := range snap.Batches {
		state.batches[k] = cloneBatch(v)
	}
	state.eventSeq = snap.EventSeq
	for _, e := range state.events {
		if e.Sequence > state.eventSeq {
			state.eventSeq = e.Sequence
		}
	}
	s.state = state
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state to the caller.
func (tx *transaction) Snapshot() TransactionView {
	return view{state: &tx.state}
}

// CreateStorageLocation stores a new hierarchy node and registers it with its parent.
func (tx *transaction) CreateStorageLocation(l StorageLocation) (StorageLocation, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.locations[l.ID]; exists {
		return StorageLocation{}, fmt.Errorf("storage location %q already exists", l.ID)
	}
	if l.StorageCapacity < 0 {
		return StorageLocation{}, errors.New("storage capacity cannot be negative")
	}
	if l.ParentID != nil {
		parent, ok := tx.state.locations[*l.ParentID]
		if !ok {
			return StorageLocation{}, domain.NotFoundError{Entity: domain.EntityStorageLocation, Ref: *l.ParentID}
		}
		parent.ChildIDs = append(parent.ChildIDs, l.ID)
		parent.UpdatedAt = tx.now
		tx.state.locations[parent.ID] = parent
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.locations[l.ID] = cloneLocation(l)
	tx.recordChange(Change{Entity: domain.EntityStorageLocation, Action: domain.ActionCreate, After: cloneLocation(l)})
	return cloneLocation(l), nil
}

// UpdateStorageLocation mutates a hierarchy node using the provided mutator.
func (tx *transaction) UpdateStorageLocation(id string, mutator func(*StorageLocation) error) (StorageLocation, error) {
	current, ok := tx.state.locations[id]
	if !ok {
		return StorageLocation{}, domain.NotFoundError{Entity: domain.EntityStorageLocation, Ref: id}
	}
	before := cloneLocation(current)
	if err := mutator(&current); err != nil {
		return StorageLocation{}, err
	}
	if current.StorageCapacity < 0 {
		return StorageLocation{}, errors.New("storage capacity cannot be negative")
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.locations[id] = cloneLocation(current)
	tx.recordChange(Change{Entity: domain.EntityStorageLocation, Action: domain.ActionUpdate, Before: before, After: cloneLocation(current)})
	return cloneLocation(current), nil
}

// DeleteStorageLocation removes an empty hierarchy node.
func (tx *transaction) DeleteStorageLocation(id string) error {
	current, ok := tx.state.locations[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityStorageLocation, Ref: id}
	}
	for _, v := range tx.state.vessels {
		if v.StorageLocationID != nil && *v.StorageLocationID == id {
			return fmt.Errorf("storage location %q still holds vessel %s", id, v.Label)
		}
	}
	if len(current.ChildIDs) > 0 {
		return fmt.Errorf("storage location %q still has children", id)
	}
	if current.ParentID != nil {
		if parent, ok := tx.state.locations[*current.ParentID]; ok {
			kept := parent.ChildIDs[:0]
			for _, child := range parent.ChildIDs {
				if child != id {
					kept = append(kept, child)
				}
			}
			parent.ChildIDs = kept
			tx.state.locations[parent.ID] = parent
		}
	}
	delete(tx.state.locations, id)
	tx.recordChange(Change{Entity: domain.EntityStorageLocation, Action: domain.ActionDelete, Before: cloneLocation(current)})
	return nil
}

// CreateLabVessel stores a new vessel keyed by its barcode label.
func (tx *transaction) CreateLabVessel(v LabVessel) (LabVessel, error) {
	if v.Label == "" {
		return LabVessel{}, errors.New("vessel label required")
	}
	if _, exists := tx.state.vessels[v.Label]; exists {
		return LabVessel{}, fmt.Errorf("vessel %q already exists", v.Label)
	}
	if v.ID == "" {
		v.ID = tx.store.newID()
	}
	v.CreatedAt = tx.now
	v.UpdatedAt = tx.now
	tx.state.vessels[v.Label] = cloneVessel(v)
	tx.recordChange(Change{Entity: domain.EntityLabVessel, Action: domain.ActionCreate, After: cloneVessel(v)})
	return cloneVessel(v), nil
}

// UpdateLabVessel mutates a vessel using the provided mutator.
func (tx *transaction) UpdateLabVessel(label string, mutator func(*LabVessel) error) (LabVessel, error) {
	current, ok := tx.state.vessels[label]
	if !ok {
		return LabVessel{}, domain.NotFoundError{Entity: domain.EntityLabVessel, Ref: label}
	}
	before := cloneVessel(current)
	if err := mutator(&current); err != nil {
		return LabVessel{}, err
	}
	current.Label = label
	current.UpdatedAt = tx.now
	tx.state.vessels[label] = cloneVessel(current)
	tx.recordChange(Change{Entity: domain.EntityLabVessel, Action: domain.ActionUpdate, Before: before, After: cloneVessel(current)})
	return cloneVessel(current), nil
}

// DeleteLabVessel removes a vessel record.
func (tx *transaction) DeleteLabVessel(label string) error {
	current, ok := tx.state.vessels[label]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityLabVessel, Ref: label}
	}
	delete(tx.state.vessels, label)
	tx.recordChange(Change{Entity: domain.EntityLabVessel, Action: domain.ActionDelete, Before: cloneVessel(current)})
	return nil
}

// CreateTubeFormation stores a formation under its content label. An existing
// record with the same label wins; concurrent creators converge on it.
func (tx *transaction) CreateTubeFormation(f TubeFormation) (TubeFormation, error) {
	if f.Label == "" {
		f.Label = domain.FormationLabel(f.Layout, f.RackType)
	}
	if existing, ok := tx.state.formations[f.Label]; ok {
		return cloneFormation(existing), nil
	}
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.formations[f.Label] = cloneFormation(f)
	tx.recordChange(Change{Entity: domain.EntityTubeFormation, Action: domain.ActionCreate, After: cloneFormation(f)})
	return cloneFormation(f), nil
}

// AppendLabEvent appends an immutable event record, assigning its sequence
// number. Events are never edited or deleted.
func (tx *transaction) AppendLabEvent(e LabEvent) (LabEvent, error) {
	if e.EventType == "" {
		return LabEvent{}, errors.New("event type required")
	}
	if e.EventDate.IsZero() {
		e.EventDate = tx.now
	}
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	tx.state.eventSeq++
	e.Sequence = tx.state.eventSeq
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.events = append(tx.state.events, cloneEvent(e))
	tx.recordChange(Change{Entity: domain.EntityLabEvent, Action: domain.ActionCreate, After: cloneEvent(e)})
	return cloneEvent(e), nil
}

// CreateVesselBatch stores a named batch of starting vessels.
func (tx *transaction) CreateVesselBatch(b VesselBatch) (VesselBatch, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return VesselBatch{}, fmt.Errorf("vessel batch %q already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.batches[b.ID] = cloneBatch(b)
	tx.recordChange(Change{Entity: domain.EntityVesselBatch, Action: domain.ActionCreate, After: cloneBatch(b)})
	return cloneBatch(b), nil
}

// UpdateVesselBatch mutates a batch using the provided mutator.
func (tx *transaction) UpdateVesselBatch(id string, mutator func(*VesselBatch) error) (VesselBatch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return VesselBatch{}, domain.NotFoundError{Entity: domain.EntityVesselBatch, Ref: id}
	}
	before := cloneBatch(current)
	if err := mutator(&current); err != nil {
		return VesselBatch{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.batches[id] = cloneBatch(current)
	tx.recordChange(Change{Entity: domain.EntityVesselBatch, Action: domain.ActionUpdate, Before: before, After: cloneBatch(current)})
	return cloneBatch(current), nil
}

func (tx *transaction) FindStorageLocation(id string) (StorageLocation, bool) {
	return view{state: &tx.state}.FindStorageLocation(id)
}

func (tx *transaction) FindLabVessel(label string) (LabVessel, bool) {
	return view{state: &tx.state}.FindLabVessel(label)
}

func (tx *transaction) FindTubeFormation(label string) (TubeFormation, bool) {
	return view{state: &tx.state}.FindTubeFormation(label)
}

func (tx *transaction) FindVesselBatch(id string) (VesselBatch, bool) {
	return view{state: &tx.state}.FindVesselBatch(id)
}

// View methods -----------------------------------------------------------

func (v view) ListStorageLocations() []StorageLocation {
	out := make([]StorageLocation, 0, len(v.state.locations))
	for _, l := range v.state.locations {
		out = append(out, cloneLocation(l))
	}
	return out
}

func (v view) ListLabVessels() []LabVessel {
	out := make([]LabVessel, 0, len(v.state.vessels))
	for _, vessel := range v.state.vessels {
		out = append(out, cloneVessel(vessel))
	}
	return out
}

func (v view) ListTubeFormations() []TubeFormation {
	out := make([]TubeFormation, 0, len(v.state.formations))
	for _, f := range v.state.formations {
		out = append(out, cloneFormation(f))
	}
	return out
}

func (v view) ListLabEvents() []LabEvent {
	out := make([]LabEvent, len(v.state.events))
	for i, e := range v.state.events {
		out[i] = cloneEvent(e)
	}
	return out
}

func (v view) ListVesselBatches() []VesselBatch {
	out := make([]VesselBatch, 0, len(v.state.batches))
	for _, b := range v.state.batches {
		out = append(out, cloneBatch(b))
	}
	return out
}

func (v view) FindStorageLocation(id string) (StorageLocation, bool) {
	l, ok := v.state.locations[id]
	if !ok {
		return StorageLocation{}, false
	}
	return cloneLocation(l), true
}

func (v view) FindLabVessel(label string) (LabVessel, bool) {
	vessel, ok := v.state.vessels[label]
	if !ok {
		return LabVessel{}, false
	}
	return cloneVessel(vessel), true
}

func (v view) FindTubeFormation(label string) (TubeFormation, bool) {
	f, ok := v.state.formations[label]
	if !ok {
		return TubeFormation{}, false
	}
	return cloneFormation(f), true
}

func (v view) FindVesselBatch(id string) (VesselBatch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return VesselBatch{}, false
	}
	return cloneBatch(b), true
}

// Committed-state read helpers ------------------------------------------

// GetStorageLocation retrieves a location by ID from committed state.
func (s *Store) GetStorageLocation(id string) (StorageLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.locations[id]
	if !ok {
		return StorageLocation{}, false
	}
	return cloneLocation(l), true
}

// ListStorageLocations returns all locations from committed state.
func (s *Store) ListStorageLocations() []StorageLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListStorageLocations()
}

// GetLabVessel retrieves a vessel by barcode label.
func (s *Store) GetLabVessel(label string) (LabVessel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.vessels[label]
	if !ok {
		return LabVessel{}, false
	}
	return cloneVessel(v), true
}

// ListLabVessels returns all vessels.
func (s *Store) ListLabVessels() []LabVessel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListLabVessels()
}

// GetTubeFormation retrieves a formation by content label.
func (s *Store) GetTubeFormation(label string) (TubeFormation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.state.formations[label]
	if !ok {
		return TubeFormation{}, false
	}
	return cloneFormation(f), true
}

// ListTubeFormations returns all formations.
func (s *Store) ListTubeFormations() []TubeFormation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListTubeFormations()
}

// ListLabEvents returns all events in append order.
func (s *Store) ListLabEvents() []LabEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListLabEvents()
}

// GetVesselBatch retrieves a batch by ID.
func (s *Store) GetVesselBatch(id string) (VesselBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return VesselBatch{}, false
	}
	return cloneBatch(b), true
}

// ListVesselBatches returns all batches.
func (s *Store) ListVesselBatches() []VesselBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListVesselBatches()
}
