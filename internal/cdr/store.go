// Package cdr archives call detail records to a local SQLite database.
// This is a supplement: the wire spec documents a server-to-client CDR
// frame shape but says nothing about internal persistence, and a
// completed-call archive doesn't touch the router's live routing
// state, so it is added here as an independent sink.
//
// Grounded on the open-migrate-prepared-statement lifecycle implied by
// internal/server/server.go's database.NewSQLiteManager wiring and the
// migration-as-a-slice-of-queries convention in
// internal/huntgroup/manager.go, using modernc.org/sqlite (the
// teacher's own database/sql driver) rather than the teacher's
// higher-level DatabaseManager abstraction, which this module has no
// other use for.
package cdr

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sipmesh/controlplane/internal/logging"
	"github.com/sipmesh/controlplane/internal/sipadapter"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS call_detail_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		meta TEXT NOT NULL,
		start_line TEXT NOT NULL,
		headers TEXT NOT NULL,
		body TEXT NOT NULL,
		recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cdr_recorded_at ON call_detail_records(recorded_at)`,
}

// Store persists CDRs to a SQLite file. It satisfies
// sipadapter.CDRStore.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
	logger logging.Logger
}

// Open opens (creating if necessary) the SQLite database at path and
// runs its schema migration.
func Open(path string, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cdr: open %s: %w", path, err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("cdr: migrate schema: %w", err)
		}
	}

	insert, err := db.Prepare(`INSERT INTO call_detail_records (meta, start_line, headers, body) VALUES (?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cdr: prepare insert: %w", err)
	}

	logger.Info("cdr archive initialized", logging.StringField("path", path))
	return &Store{db: db, insert: insert, logger: logger}, nil
}

// Insert archives one call detail record.
func (s *Store) Insert(cdr sipadapter.CDR) error {
	_, err := s.insert.Exec(cdr.Meta, cdr.StartLine, cdr.Headers, cdr.Body)
	if err != nil {
		return fmt.Errorf("cdr: insert: %w", err)
	}
	return nil
}

// Count returns the number of archived records. Used by tests and
// diagnostics; not on the hot path.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM call_detail_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cdr: count: %w", err)
	}
	return n, nil
}

// Close releases the prepared statement and the underlying database
// handle.
func (s *Store) Close() error {
	s.insert.Close()
	return s.db.Close()
}
