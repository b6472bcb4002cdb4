// Package store persists interaction records to an embedded SQLite
// database (§4.7).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Interaction is one persisted row of the interactions (or
// confirmed_interactions) table (§3 "Interaction record").
type Interaction struct {
	ID           string
	Model        string
	Conversation string // JSON-encoded Conversation
	Timestamp    time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id TEXT PRIMARY KEY,
	model TEXT,
	conversation TEXT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS confirmed_interactions (
	id TEXT PRIMARY KEY,
	model TEXT,
	conversation TEXT,
	original_timestamp DATETIME,
	confirmed_timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Store wraps the interactions/confirmed_interactions tables.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// lazily creates both tables (§4.7 "Both tables are created lazily on
// first use").
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertInteraction inserts one finished conversation. A primary-key
// collision (duplicate response id) leaves the existing row untouched
// and is returned as a *DuplicateError, so callers can tell an
// at-most-once rejection apart from other insert failures (§4.6
// "duplicate inserts are rejected by the store and logged").
func (s *Store) InsertInteraction(ctx context.Context, rec Interaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, model, conversation) VALUES (?, ?, ?)`,
		rec.ID, rec.Model, rec.Conversation,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return &DuplicateError{ID: rec.ID}
		}
		return fmt.Errorf("inserting interaction %s: %w", rec.ID, err)
	}
	return nil
}

// DuplicateError reports a primary-key collision on insert.
type DuplicateError struct{ ID string }

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("interaction %s already exists", e.ID)
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ListInteractions returns up to limit pending interactions, most
// recent first.
func (s *Store) ListInteractions(ctx context.Context, limit int) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, conversation, timestamp FROM interactions ORDER BY timestamp DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var rec Interaction
		if err := rows.Scan(&rec.ID, &rec.Model, &rec.Conversation, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning interaction row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteInteraction removes one pending interaction without confirming it.
func (s *Store) DeleteInteraction(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM interactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting interaction %s: %w", id, err)
	}
	return nil
}

// ErrNotFound is returned by ConfirmInteraction when id has no
// pending row.
var ErrNotFound = errors.New("interaction not found")

// ConfirmInteraction copies one pending row into confirmed_interactions
// and deletes the original, as a single local transaction (§3
// "Interaction record" lifecycle, grounded on original_source/app.py's
// confirm_interaction: copy-then-delete under one connection).
func (s *Store) ConfirmInteraction(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("confirming interaction %s: %w", id, err)
	}
	defer tx.Rollback()

	var rec Interaction
	err = tx.QueryRowContext(ctx,
		`SELECT id, model, conversation, timestamp FROM interactions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Model, &rec.Conversation, &rec.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading interaction %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO confirmed_interactions (id, model, conversation, original_timestamp) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Model, rec.Conversation, rec.Timestamp,
	); err != nil {
		return fmt.Errorf("copying interaction %s to confirmed set: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM interactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting confirmed interaction %s: %w", id, err)
	}

	return tx.Commit()
}
