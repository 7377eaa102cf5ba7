// Package sqlite provides a SQLite-backed persistent store that reuses the
// in-memory transaction semantics and snapshots the full state as JSON
// buckets after every successful commit.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"storagecore/internal/infra/persistence/memory"
	"storagecore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "storagecore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	mem := memory.NewStore(engine)
	s := &Store{Store: mem, db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	bucketLocations  = "locations"
	bucketVessels    = "vessels"
	bucketFormations = "formations"
	bucketEvents     = "events"
	bucketBatches    = "batches"
	bucketEventSeq   = "event_seq"
)

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{}
	loaded := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		loaded = true
		switch bucket {
		case bucketLocations:
			if err := json.Unmarshal(payload, &snapshot.Locations); err != nil {
				return fmt.Errorf("decode locations: %w", err)
			}
		case bucketVessels:
			if err := json.Unmarshal(payload, &snapshot.Vessels); err != nil {
				return fmt.Errorf("decode vessels: %w", err)
			}
		case bucketFormations:
			if err := json.Unmarshal(payload, &snapshot.Formations); err != nil {
				return fmt.Errorf("decode formations: %w", err)
			}
		case bucketEvents:
			if err := json.Unmarshal(payload, &snapshot.Events); err != nil {
				return fmt.Errorf("decode events: %w", err)
			}
		case bucketBatches:
			if err := json.Unmarshal(payload, &snapshot.Batches); err != nil {
				return fmt.Errorf("decode batches: %w", err)
			}
		case bucketEventSeq:
			if err := json.Unmarshal(payload, &snapshot.EventSeq); err != nil {
				return fmt.Errorf("decode event seq: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if loaded {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	write := func(bucket string, payload any) error {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		_, err = tx.Exec(`INSERT INTO state (bucket, payload) VALUES (?, ?)
			ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`, bucket, encoded)
		if err != nil {
			return fmt.Errorf("write %s: %w", bucket, err)
		}
		return nil
	}

	if err := write(bucketLocations, snapshot.Locations); err != nil {
		return err
	}
	if err := write(bucketVessels, snapshot.Vessels); err != nil {
		return err
	}
	if err := write(bucketFormations, snapshot.Formations); err != nil {
		return err
	}
	if err := write(bucketEvents, snapshot.Events); err != nil {
		return err
	}
	if err := write(bucketBatches, snapshot.Batches); err != nil {
		return err
	}
	if err := write(bucketEventSeq, snapshot.EventSeq); err != nil {
		return err
	}
	return tx.Commit()
}

// RunInTransaction applies fn in memory, then snapshots to SQLite on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(); err != nil {
		return res, fmt.Errorf("persist snapshot: %w", err)
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the backing database file path.
func (s *Store) Path() string { return s.path }
