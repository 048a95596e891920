// Package db persists tactile sessions to SQLite: one row per session,
// contact events and range adjustments recorded against it. The schema
// is owned by embedded golang-migrate migrations; the service migrates
// on open, the migrate subcommand offers manual control.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// connection pragmas. It does not touch the schema; use OpenAndMigrate
// for the service path or the migrate subcommand for manual control.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// WAL lets the recorder write while tailsql or the stats endpoint
	// reads; NORMAL sync is durable enough for session telemetry.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return &DB{DB: sqlDB, path: path}, nil
}

// OpenAndMigrate opens the database and brings the schema up to the
// latest embedded migration. This is what the service calls at startup.
func OpenAndMigrate(path string) (*DB, error) {
	database, err := Open(path)
	if err != nil {
		return nil, err
	}
	fsys, err := getMigrationsFS()
	if err != nil {
		database.Close()
		return nil, err
	}
	if err := database.MigrateUp(fsys); err != nil {
		database.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return database, nil
}

// Path returns the filesystem path the database was opened at.
func (db *DB) Path() string { return db.path }

// Stats summarizes the store for the debug endpoint.
type Stats struct {
	Path             string `json:"path"`
	FileBytes        int64  `json:"file_bytes"`
	Sessions         int64  `json:"sessions"`
	OpenSessions     int64  `json:"open_sessions"`
	ContactEvents    int64  `json:"contact_events"`
	RangeAdjustments int64  `json:"range_adjustments"`
}

// Stats counts the main tables and the file size.
func (db *DB) Stats() (*Stats, error) {
	s := &Stats{Path: db.path}
	if fi, err := os.Stat(db.path); err == nil {
		s.FileBytes = fi.Size()
	}
	counts := []struct {
		query string
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM sessions", &s.Sessions},
		{"SELECT COUNT(*) FROM sessions WHERE ended_unix IS NULL", &s.OpenSessions},
		{"SELECT COUNT(*) FROM contact_events", &s.ContactEvents},
		{"SELECT COUNT(*) FROM range_adjustments", &s.RangeAdjustments},
	}
	for _, c := range counts {
		if err := db.QueryRow(c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats query %q: %w", c.query, err)
		}
	}
	return s, nil
}

// AttachAdminRoutes mounts the database debug surfaces: a tailsql
// console for live queries, a VACUUM INTO backup download, and a JSON
// stats summary.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "HapTable sessions",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.handleBackup))

	debug.Handle("db-stats", "Session store table counts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.Stats()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to collect stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"path":%q,"file_bytes":%d,"sessions":%d,"open_sessions":%d,"contact_events":%d,"range_adjustments":%d}`+"\n",
			stats.Path, stats.FileBytes, stats.Sessions, stats.OpenSessions, stats.ContactEvents, stats.RangeAdjustments)
	}))
}

// handleBackup vacuums a consistent copy of the live database into a
// temp file and streams it back gzipped. The copy is removed once sent.
func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("haptable-backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
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
			log.Printf("Failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		log.Printf("Failed to stream backup: %v", err)
	}
}
