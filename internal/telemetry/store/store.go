// Package store is the embedding host's local sqlite buffer for zone
// events and smoothed-frame snapshots: the on-disk half of the cloud
// telemetry channel described in spec.md §6 as an external collaborator.
// Schema changes are managed with golang-migrate, exactly as the teacher
// migrates its own sqlite-backed stores.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/presence-radar/corepipe/internal/smoother"
	"github.com/presence-radar/corepipe/internal/zones"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a sqlite-backed sink for ZoneEvents and SmoothedFrame
// snapshots. It is safe to use from a single goroutine only, matching the
// pipeline's own single-threaded tick model — the embedding host owns
// both.
type Store struct {
	db        *sql.DB
	sessionID string
}

// Open creates or migrates the sqlite database at path and returns a Store
// stamped with sessionID (the demo host's per-process uuid, see
// cmd/presenced).
func Open(path, sessionID string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, sessionID: sessionID}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrateUp(db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: sub fs: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("store: iofs source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("store: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertZoneEvents persists every event in events, stamped with the
// current unix time as recorded_at_unix.
func (s *Store) InsertZoneEvents(events []zones.Event, nowUnix int64) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO zone_event (session_id, zone_id, kind, track_id, timestamp_ms, recorded_at_unix)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.Exec(s.sessionID, ev.ZoneID, eventKindName(ev.Kind), ev.TrackID, ev.TimestampMS, nowUnix); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: insert zone_event: %w", err)
		}
	}
	return tx.Commit()
}

// InsertSmoothedFrame persists every zone's Output in frame, stamped with
// the current unix time as recorded_at_unix.
func (s *Store) InsertSmoothedFrame(frame smoother.Frame, nowUnix int64) error {
	if frame.Count == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO smoothed_snapshot (session_id, zone_id, occupied, phase, timestamp_ms, recorded_at_unix)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, z := range frame.Zones[:frame.Count] {
		occupied := 0
		if z.Occupied {
			occupied = 1
		}
		if _, err := stmt.Exec(s.sessionID, z.ZoneID, occupied, z.Phase.String(), frame.TimestampMS, nowUnix); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: insert smoothed_snapshot: %w", err)
		}
	}
	return tx.Commit()
}

// RecentZoneEvents returns the most recent limit events for zoneID across
// every session, newest first.
func (s *Store) RecentZoneEvents(zoneID string, limit int) ([]zones.Event, error) {
	rows, err := s.db.Query(`SELECT kind, zone_id, track_id, timestamp_ms FROM zone_event
		WHERE zone_id = ? ORDER BY id DESC LIMIT ?`, zoneID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query zone_event: %w", err)
	}
	defer rows.Close()

	var out []zones.Event
	for rows.Next() {
		var kindName, zid string
		var trackID uint8
		var tsMS uint32
		if err := rows.Scan(&kindName, &zid, &trackID, &tsMS); err != nil {
			return nil, fmt.Errorf("store: scan zone_event: %w", err)
		}
		out = append(out, zones.Event{
			Kind:        eventKindFromName(kindName),
			ZoneID:      zid,
			TrackID:     trackID,
			TimestampMS: tsMS,
		})
	}
	return out, rows.Err()
}

func eventKindName(k zones.EventKind) string {
	switch k {
	case zones.Enter:
		return "enter"
	case zones.Exit:
		return "exit"
	case zones.Occupied:
		return "occupied"
	case zones.Vacant:
		return "vacant"
	default:
		return "unknown"
	}
}

func eventKindFromName(name string) zones.EventKind {
	switch name {
	case "enter":
		return zones.Enter
	case "exit":
		return zones.Exit
	case "occupied":
		return zones.Occupied
	case "vacant":
		return zones.Vacant
	default:
		return zones.EventKind(255)
	}
}
