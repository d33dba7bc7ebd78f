// Package db persists teleoperation recordings: one row per session and one
// row per forwarded control frame, in SQLite via modernc.org/sqlite.
package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/security"
)

type DB struct {
	*sql.DB
	path string
}

// connPragmas are applied to every pooled connection through the DSN.
// journal_mode persists in the file; the rest are per-connection.
const connPragmas = "_pragma=busy_timeout(5000)" +
	"&_pragma=journal_mode(WAL)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=temp_store(MEMORY)" +
	"&_pragma=foreign_keys(ON)"

// Open opens (creating if needed) the SQLite database at path. Use
// ":memory:" for an in-process database. The schema is managed by
// MigrateUp, which callers run after opening.
func Open(path string) (*DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		dsn += "&" + connPragmas
	} else {
		dsn += "?" + connPragmas
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// An in-memory database exists per connection, so the pool must not
	// spread it across several.
	if isMemoryPath(path) {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return &DB{DB: sqlDB, path: path}, nil
}

func isMemoryPath(path string) bool {
	return strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory")
}

// Session is one recording run.
type Session struct {
	ID          string
	StartedAt   time.Time
	EndedAt     time.Time // zero while the session is open
	FPS         float64
	Instruction string
	Source      string
	FrameCount  int64
}

// Frame is one recorded control frame within a session.
type Frame struct {
	SessionID string
	Index     int64
	T         float64 // publisher timestamp, unix seconds
	RecvAt    time.Time
	X, Y, Z   float64
	Roll      float64
	Pitch     float64
	Yaw       float64
	Gripper   float64
}

// CreateSession inserts a new open session and returns it with a fresh id.
func (db *DB) CreateSession(fps float64, instruction, source string, at time.Time) (Session, error) {
	s := Session{
		ID:          uuid.NewString(),
		StartedAt:   at,
		FPS:         fps,
		Instruction: instruction,
		Source:      source,
	}
	_, err := db.Exec(
		`INSERT INTO sessions (id, started_at_ms, fps, instruction, source, frame_count)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		s.ID, at.UnixMilli(), fps, instruction, source,
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// AppendFrame stores one frame row. Indexes must be unique per session.
func (db *DB) AppendFrame(f Frame) error {
	_, err := db.Exec(
		`INSERT INTO frames (session_id, idx, t, recv_at_ms, x, y, z, roll, pitch, yaw, gripper)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.SessionID, f.Index, f.T, f.RecvAt.UnixMilli(),
		f.X, f.Y, f.Z, f.Roll, f.Pitch, f.Yaw, f.Gripper,
	)
	if err != nil {
		return fmt.Errorf("append frame %d to %s: %w", f.Index, f.SessionID, err)
	}
	return nil
}

// EndSession closes a session, stamping its end time and frame count, and
// returns the count.
func (db *DB) EndSession(id string, at time.Time) (int64, error) {
	result, err := db.Exec(
		`UPDATE sessions
		 SET ended_at_ms = ?,
		     frame_count = (SELECT COUNT(*) FROM frames WHERE session_id = ?)
		 WHERE id = ?`,
		at.UnixMilli(), id, id,
	)
	if err != nil {
		return 0, fmt.Errorf("end session %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, fmt.Errorf("end session %s: no such session", id)
	}

	var count int64
	if err := db.QueryRow(`SELECT frame_count FROM sessions WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("read frame count for %s: %w", id, err)
	}
	return count, nil
}

// Sessions lists all sessions, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(
		`SELECT id, started_at_ms, ended_at_ms, fps, instruction, source, frame_count
		 FROM sessions ORDER BY started_at_ms DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s         Session
			startedMs int64
			endedMs   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &startedMs, &endedMs, &s.FPS, &s.Instruction, &s.Source, &s.FrameCount); err != nil {
			return nil, err
		}
		s.StartedAt = time.UnixMilli(startedMs)
		if endedMs.Valid {
			s.EndedAt = time.UnixMilli(endedMs.Int64)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SessionStats summarizes one session's frames.
type SessionStats struct {
	FrameCount int64
	Duration   time.Duration // spread of publisher timestamps
	Min, Max   [3]float64    // position bounds, x y z
}

// SessionStats computes the frame count, timestamp spread, and position
// bounds for a session.
func (db *DB) SessionStats(id string) (SessionStats, error) {
	var (
		stats      SessionStats
		tMin, tMax float64
	)
	err := db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(MIN(t), 0), COALESCE(MAX(t), 0),
		        COALESCE(MIN(x), 0), COALESCE(MAX(x), 0),
		        COALESCE(MIN(y), 0), COALESCE(MAX(y), 0),
		        COALESCE(MIN(z), 0), COALESCE(MAX(z), 0)
		 FROM frames WHERE session_id = ?`, id).Scan(
		&stats.FrameCount, &tMin, &tMax,
		&stats.Min[0], &stats.Max[0],
		&stats.Min[1], &stats.Max[1],
		&stats.Min[2], &stats.Max[2],
	)
	if err != nil {
		return SessionStats{}, fmt.Errorf("stats for %s: %w", id, err)
	}
	if stats.FrameCount > 0 {
		stats.Duration = time.Duration((tMax - tMin) * float64(time.Second))
	}
	return stats, nil
}

// FramesCSV writes a session's frames to w as CSV, ordered by index.
func (db *DB) FramesCSV(w io.Writer, id string) error {
	rows, err := db.Query(
		`SELECT idx, t, recv_at_ms, x, y, z, roll, pitch, yaw, gripper
		 FROM frames WHERE session_id = ? ORDER BY idx`, id)
	if err != nil {
		return err
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"idx", "t", "recv_at_ms", "x", "y", "z", "roll", "pitch", "yaw", "gripper"}); err != nil {
		return err
	}
	for rows.Next() {
		var (
			idx, recvMs int64
			t           float64
			v           [7]float64
		)
		if err := rows.Scan(&idx, &t, &recvMs, &v[0], &v[1], &v[2], &v[3], &v[4], &v[5], &v[6]); err != nil {
			return err
		}
		record := []string{
			strconv.FormatInt(idx, 10),
			strconv.FormatFloat(t, 'f', -1, 64),
			strconv.FormatInt(recvMs, 10),
		}
		for _, f := range v {
			record = append(record, strconv.FormatFloat(f, 'f', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// AttachAdminRoutes mounts the live SQL console and the backup download on
// mux under /debug/. These routes are accessible only over localhost/via
// Tailscale and are not publicly accessible.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("db: tailsql server unavailable: %v", err)
	} else {
		tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
			Label: "Teleop sessions",
		})
		debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	}

	debug.Handle("frames.csv", "Download a session's frames as CSV (?session=<id>)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.FormValue("session")
		if id == "" {
			http.Error(w, "missing session parameter", http.StatusBadRequest)
			return
		}
		name := security.SanitizeFilename(id) + ".csv"
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
		w.Header().Set("Content-Type", "text/csv")
		if err := db.FramesCSV(w, id); err != nil {
			monitoring.Logf("db: csv export for %s: %v", id, err)
		}
	}))

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("teleop-backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("db: failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
