// Package store persists a bounded snapshot of orchestrator state to a
// local SQLite database and restores it at startup.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/model"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNoSnapshot is returned by Load when nothing was ever saved.
var ErrNoSnapshot = errors.New("no saved state")

// Preferences are the user-chosen defaults carried across sessions.
// Loading is forward-compatible: unknown fields are ignored, missing
// fields keep their built-in values.
type Preferences struct {
	DefaultProfile  string             `json:"default_profile,omitempty"`
	ShowAdvanced    bool               `json:"show_advanced,omitempty"`
	DefaultSettings model.ScanSettings `json:"default_settings,omitempty"`
	DefaultOptions  model.ScanOptions  `json:"default_options,omitempty"`
}

// Snapshot is one durable record of client state: the active-scan map,
// a bounded slice of history, and preferences.
type Snapshot struct {
	SavedAt     time.Time     `json:"saved_at"`
	Active      []*model.Scan `json:"active"`
	History     []*model.Scan `json:"history"`
	Preferences Preferences   `json:"preferences"`
}

// Store owns the SQLite database holding snapshots.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open creates the state database at path (directories are created as
// needed) and applies the schema.
func Open(path string, logger logging.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("store")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and applies the schema.
func New(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Save replaces the stored snapshot atomically.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scans`); err != nil {
		return fmt.Errorf("clear scans: %w", err)
	}

	insert := func(kind string, scans []*model.Scan) error {
		for _, sc := range scans {
			payload, err := json.Marshal(sc)
			if err != nil {
				return fmt.Errorf("encode scan %s: %w", sc.ID, err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO scans (id, kind, created_at, payload) VALUES (?, ?, ?, ?)`,
				sc.ID, kind, sc.CreatedAt.UnixMilli(), string(payload))
			if err != nil {
				return fmt.Errorf("insert scan %s: %w", sc.ID, err)
			}
		}
		return nil
	}
	if err := insert("active", snap.Active); err != nil {
		return err
	}
	if err := insert("history", snap.History); err != nil {
		return err
	}

	prefs, err := json.Marshal(snap.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO preferences (id, payload, saved_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		string(prefs), savedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.logger.Debug("saved state snapshot",
		logging.Field{Key: "active", Value: len(snap.Active)},
		logging.Field{Key: "history", Value: len(snap.History)})
	return nil
}

// Load restores the most recent snapshot. Rows that fail to decode are
// skipped with a warning rather than failing the whole load.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	var (
		prefsPayload string
		savedAtMs    int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT payload, saved_at FROM preferences WHERE id = 1`).
		Scan(&prefsPayload, &savedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	snap := &Snapshot{SavedAt: time.UnixMilli(savedAtMs)}
	if err := json.Unmarshal([]byte(prefsPayload), &snap.Preferences); err != nil {
		s.logger.Warn("decoding stored preferences, using defaults",
			logging.Field{Key: "error", Value: err.Error()})
		snap.Preferences = Preferences{}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, payload FROM scans ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("load scans: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, payload string
		if err := rows.Scan(&kind, &payload); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var sc model.Scan
		if err := json.Unmarshal([]byte(payload), &sc); err != nil {
			s.logger.Warn("skipping undecodable scan row",
				logging.Field{Key: "error", Value: err.Error()})
			continue
		}
		if !sc.Status.IsValid() {
			sc.Status = model.StatusIdle
		}
		if kind == "history" {
			snap.History = append(snap.History, &sc)
		} else {
			snap.Active = append(snap.Active, &sc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan rows: %w", err)
	}
	return snap, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
