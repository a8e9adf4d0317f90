// Package gridstore persists published occupancy snapshots and belief-grid
// checkpoints in SQLite so that a restarted process can resume from its
// last fused state and past grids can be inspected offline.
package gridstore

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/occupancy.map/internal/monitoring"
	"github.com/banshee-data/occupancy.map/internal/occupancy/bbf"
	"github.com/banshee-data/occupancy.map/internal/occupancy/snapshot"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("gridstore: not found")

// Store wraps the database. One Store is one session.
type Store struct {
	*sql.DB
	path    string
	session string
}

// SessionInfo describes the process writing to the store.
type SessionInfo struct {
	Mode    string
	FrameID string
}

// Open opens (creating if needed) the database at path, applies migrations
// and starts a new session.
func Open(path string, info SessionInfo) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writers from contending for the file lock.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	s := &Store{DB: db, path: path, session: uuid.NewString()}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(
		`INSERT INTO sessions (session_id, started_unix_nanos, mode, frame_id) VALUES (?, ?, ?, ?)`,
		s.session, time.Now().UnixNano(), info.Mode, info.FrameID,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("record session: %w", err)
	}
	monitoring.Logf("[gridstore] opened %s session=%s", path, s.session)
	return s, nil
}

// SessionID returns the id recorded with every row this Store writes.
func (s *Store) SessionID() string { return s.session }

// InsertSnapshot stores a snapshot in its wire encoding along with
// queryable metadata.
func (s *Store) InsertSnapshot(snap *snapshot.Snapshot) (int64, error) {
	c := snap.Counts()
	var stamp int64
	if !snap.Stamp.IsZero() {
		stamp = snap.Stamp.UnixNano()
	}
	res, err := s.Exec(`
		INSERT INTO grid_snapshots (
			session_id, sequence, stamp_unix_nanos, frame_id, mode,
			resolution, width, height, origin_x, origin_y, origin_z,
			unknown_cells, free_cells, occupied_cells, grid_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.session, int64(snap.Sequence), stamp, snap.FrameID, snap.Mode,
		snap.Resolution, snap.Width, snap.Height, snap.OriginX, snap.OriginY, snap.OriginZ,
		c.Unknown, c.Free, c.Occupied, snapshot.Marshal(snap),
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

// LatestSnapshot returns the most recently inserted snapshot from any
// session.
func (s *Store) LatestSnapshot() (*snapshot.Snapshot, error) {
	var blob []byte
	err := s.QueryRow(`SELECT grid_blob FROM grid_snapshots ORDER BY snapshot_id DESC LIMIT 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	return snapshot.Unmarshal(blob)
}

// SnapshotCount returns how many snapshots this session has stored.
func (s *Store) SnapshotCount() (int, error) {
	var n int
	err := s.QueryRow(`SELECT COUNT(*) FROM grid_snapshots WHERE session_id = ?`, s.session).Scan(&n)
	return n, err
}

// PruneSnapshots deletes all but the newest keep snapshots of this session.
func (s *Store) PruneSnapshots(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.Exec(`
		DELETE FROM grid_snapshots
		WHERE session_id = ? AND snapshot_id NOT IN (
			SELECT snapshot_id FROM grid_snapshots
			WHERE session_id = ? ORDER BY snapshot_id DESC LIMIT ?
		)`, s.session, s.session, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// SaveCheckpoint stores a belief-grid checkpoint.
func (s *Store) SaveCheckpoint(c bbf.Checkpoint) (int64, error) {
	blob, err := serializeBeliefs(c.Cells)
	if err != nil {
		return 0, fmt.Errorf("serialize checkpoint: %w", err)
	}
	res, err := s.Exec(`
		INSERT INTO belief_checkpoints (
			session_id, created_unix_nanos, width, height, resolution,
			origin_x, origin_y, updates, cells_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.session, time.Now().UnixNano(), c.Width, c.Height, c.Resolution,
		c.OriginX, c.OriginY, int64(c.Updates), blob,
	)
	if err != nil {
		return 0, fmt.Errorf("insert checkpoint: %w", err)
	}
	return res.LastInsertId()
}

// LatestCheckpoint returns the newest checkpoint from any session.
func (s *Store) LatestCheckpoint() (*bbf.Checkpoint, error) {
	var (
		c       bbf.Checkpoint
		updates int64
		blob    []byte
	)
	err := s.QueryRow(`
		SELECT width, height, resolution, origin_x, origin_y, updates, cells_blob
		FROM belief_checkpoints ORDER BY checkpoint_id DESC LIMIT 1`,
	).Scan(&c.Width, &c.Height, &c.Resolution, &c.OriginX, &c.OriginY, &updates, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest checkpoint: %w", err)
	}
	c.Updates = uint64(updates)
	if c.Cells, err = deserializeBeliefs(blob); err != nil {
		return nil, err
	}
	return &c, nil
}

// serializeBeliefs encodes belief cells as a gob+gzip blob.
func serializeBeliefs(cells []bbf.Belief) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(cells); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeBeliefs decodes a gob+gzip blob written by serializeBeliefs.
func deserializeBeliefs(blob []byte) ([]bbf.Belief, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty checkpoint blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var cells []bbf.Belief
	if err := gob.NewDecoder(gz).Decode(&cells); err != nil {
		return nil, fmt.Errorf("failed to decode belief cells: %w", err)
	}
	return cells, nil
}

// AttachAdminRoutes mounts the tsweb debug index with a tailsql console over
// this database.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.DB, &tailsql.DBOptions{
		Label: "Occupancy DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	return nil
}
