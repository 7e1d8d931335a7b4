// Package audit keeps a local log of finished consultations.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ambubot/internal/domain"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Entry is a stored consultation.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Symptom   string    `json:"symptom"`
	FollowUps []string  `json:"follow_ups"`
	Answers   []string  `json:"answers"`
	Remedy    string    `json:"remedy"`
	Emergency bool      `json:"emergency"`
	At        time.Time `json:"at"`
}

// SQLiteStore records consultations in a SQLite database; safe for
// concurrent use.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway store.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("audit: database path must not be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers, which SQLite needs anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS consultations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			symptom TEXT NOT NULL,
			follow_ups TEXT NOT NULL,
			answers TEXT NOT NULL,
			remedy TEXT NOT NULL,
			emergency INTEGER NOT NULL DEFAULT 0,
			at_utc TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS consultations_at ON consultations (at_utc);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create table: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record inserts c. An empty ID is replaced with a random one.
func (s *SQLiteStore) Record(ctx context.Context, c domain.Consultation) error {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	followUps, err := json.Marshal(nonNil(c.FollowUps))
	if err != nil {
		return fmt.Errorf("audit: encode follow-ups: %w", err)
	}
	answers, err := json.Marshal(nonNil(c.Answers))
	if err != nil {
		return fmt.Errorf("audit: encode answers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consultations (id, user_id, symptom, follow_ups, answers, remedy, emergency, at_utc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, c.UserID, c.Symptom, string(followUps), string(answers), c.Remedy, c.Emergency,
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("audit: insert consultation: %w", err)
	}
	return nil
}

// Latest returns up to limit entries, newest first. Limits outside 1..50
// fall back to 10.
func (s *SQLiteStore) Latest(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, symptom, follow_ups, answers, remedy, emergency, at_utc
		FROM consultations
		ORDER BY at_utc DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query consultations: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			followUps, answers string
			at                 string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Symptom, &followUps, &answers, &e.Remedy, &e.Emergency, &at); err != nil {
			return nil, fmt.Errorf("audit: scan consultation: %w", err)
		}
		if err := json.Unmarshal([]byte(followUps), &e.FollowUps); err != nil {
			return nil, fmt.Errorf("audit: decode follow-ups of %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(answers), &e.Answers); err != nil {
			return nil, fmt.Errorf("audit: decode answers of %s: %w", e.ID, err)
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("audit: parse time of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate consultations: %w", err)
	}
	return out, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
