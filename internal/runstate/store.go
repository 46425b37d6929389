package runstate

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"parish/internal/config"
	"parish/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store persists per-event run state backed by SQLite. Reads during a run
// are served from an in-memory cache refreshed on every save; the database
// is the recovery source after a restart.
type Store struct {
	db   *sql.DB
	path string

	mu    sync.RWMutex
	cache map[string]*RunState
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Open initializes or connects to the run state database under the log
// directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "state.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, cache: make(map[string]*RunState)}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}

	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Load returns the persisted state for an event, or a fresh pending state
// when the event has never run. The fresh state is not persisted until the
// first Save.
func (s *Store) Load(ctx context.Context, eventID string) (*RunState, error) {
	s.mu.RLock()
	cached, ok := s.cache[eventID]
	s.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT overall_status, modules_json, created_at, updated_at FROM run_states WHERE event_id = ?`,
		eventID,
	)

	var (
		overall   string
		modules   string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&overall, &modules, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return NewRunState(eventID), nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "", "load", fmt.Sprintf("read run state for %s", eventID), err)
	}

	state := &RunState{
		EventID:       eventID,
		OverallStatus: Status(overall),
		Modules:       make(map[string]ModuleRecord),
	}
	if err := json.Unmarshal([]byte(modules), &state.Modules); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "", "load", fmt.Sprintf("decode module records for %s", eventID), err)
	}
	if state.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "", "load", fmt.Sprintf("decode created_at for %s", eventID), err)
	}
	if state.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "", "load", fmt.Sprintf("decode updated_at for %s", eventID), err)
	}

	s.mu.Lock()
	s.cache[eventID] = state.Clone()
	s.mu.Unlock()
	return state, nil
}

// Save upserts the full state for an event.
func (s *Store) Save(ctx context.Context, state *RunState) error {
	if state == nil {
		return errors.New("state is nil")
	}
	state.UpdatedAt = time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}

	modules := state.Modules
	if modules == nil {
		modules = map[string]ModuleRecord{}
	}
	encoded, err := json.Marshal(modules)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "", "save", fmt.Sprintf("encode module records for %s", state.EventID), err)
	}

	if err := s.execWithRetry(ctx,
		`INSERT INTO run_states (event_id, overall_status, modules_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(event_id) DO UPDATE SET
             overall_status = excluded.overall_status,
             modules_json = excluded.modules_json,
             updated_at = excluded.updated_at`,
		state.EventID,
		string(state.OverallStatus),
		string(encoded),
		state.CreatedAt.Format(time.RFC3339Nano),
		state.UpdatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return services.Wrap(services.ErrPersistence, "", "save", fmt.Sprintf("write run state for %s", state.EventID), err)
	}

	// Cache only after the durable write succeeds so a failed save cannot
	// satisfy a later skip decision.
	s.mu.Lock()
	s.cache[state.EventID] = state.Clone()
	s.mu.Unlock()
	return nil
}

// UpdateModule applies a mutation to one module record and persists the
// recomputed state. The mutation receives the current record (pending when
// the module has never run).
func (s *Store) UpdateModule(ctx context.Context, eventID, module string, mutate func(*ModuleRecord)) (*RunState, error) {
	state, err := s.Load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rec := state.Record(module)
	mutate(&rec)
	state.SetRecord(module, rec)
	if err := s.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// SetOverall persists an explicit overall status, preserving module records.
func (s *Store) SetOverall(ctx context.Context, eventID string, status Status) (*RunState, error) {
	state, err := s.Load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	state.OverallStatus = status
	if err := s.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// List returns all persisted states keyed by event id.
func (s *Store) List(ctx context.Context) (map[string]*RunState, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT event_id FROM run_states ORDER BY event_id`)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "", "list", "list run states", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, services.Wrap(services.ErrPersistence, "", "list", "scan run state id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "", "list", "iterate run states", err)
	}

	states := make(map[string]*RunState, len(ids))
	for _, id := range ids {
		state, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		states[id] = state
	}
	return states, nil
}

func parseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return ts.UTC(), nil
}
