// Package sqlite persists session progress in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"negopro-questionnaire/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS session_state (
	session_id TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, key)
);`

// StateStore keeps the two persisted keys of each session as rows of session_state.
type StateStore struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// Open opens (or creates) the database at path and ensures the table exists.
func Open(path string, log zerolog.Logger) (*StateStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer; concurrent writers would hit SQLITE_BUSY
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA busy_timeout=5000`} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session_state: %w", err)
	}
	return &StateStore{db: db, log: log, now: time.Now}, nil
}

func (s *StateStore) Close() error {
	return s.db.Close()
}

func (s *StateStore) Save(ctx context.Context, sessionID string, snap domain.Snapshot) error {
	rows := make(map[string]string, 2)
	if snap.HasAnswers {
		raw, err := domain.EncodeAnswers(snap.Answers)
		if err != nil {
			return err
		}
		rows[domain.AnswersKey] = raw
	}
	if snap.HasPhase {
		rows[domain.PhaseKey] = domain.EncodePhase(snap.PhaseIndex)
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := s.now().UTC()
	for key, value := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_state (session_id, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			sessionID, key, value, now)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *StateStore) Load(ctx context.Context, sessionID string) domain.Snapshot {
	var snap domain.Snapshot
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session_state WHERE session_id = ?`, sessionID)
	if err != nil {
		s.log.Debug().Str("session", sessionID).Err(err).Msg("state read failed")
		return snap
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			s.log.Debug().Str("session", sessionID).Err(err).Msg("state scan failed")
			return domain.Snapshot{}
		}
		switch key {
		case domain.AnswersKey:
			snap.Answers, snap.HasAnswers = domain.DecodeAnswers(value)
		case domain.PhaseKey:
			snap.PhaseIndex, snap.HasPhase = domain.DecodePhase(value)
		}
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.log.Debug().Str("session", sessionID).Err(err).Msg("state read failed")
		return domain.Snapshot{}
	}
	return snap
}

func (s *StateStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE session_id = ?`, sessionID)
	return err
}
