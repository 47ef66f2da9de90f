// Package telemetry persists controller session telemetry to SQLite:
// link events, battery readings and stream counters, grouped by
// session.
package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store records telemetry for one daemon run. Each Store owns a
// session row that all other rows reference.
type Store struct {
	db      *sql.DB
	session string
}

// Open opens (creating if needed) the telemetry database at path and
// starts a new session. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: opening %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS link_events (
			session_id TEXT NOT NULL,
			hand TEXT NOT NULL,
			event TEXT NOT NULL,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS battery (
			session_id TEXT NOT NULL,
			hand TEXT NOT NULL,
			level INTEGER NOT NULL,
			charging BOOLEAN NOT NULL,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS stream_stats (
			session_id TEXT NOT NULL,
			left_frames BIGINT NOT NULL,
			right_frames BIGINT NOT NULL,
			junk_tokens BIGINT NOT NULL,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: creating tables: %w", err)
	}

	session := uuid.NewString()
	if _, err := db.Exec("INSERT INTO sessions (session_id) VALUES (?)", session); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: starting session: %w", err)
	}

	return &Store{db: db, session: session}, nil
}

// Session returns this run's session ID.
func (s *Store) Session() string {
	return s.session
}

// RecordLinkEvent stores one connection lifecycle event for a hand
// ("connected", "disconnected", "hand_lost", "dongle_lost").
func (s *Store) RecordLinkEvent(hand, event string) error {
	_, err := s.db.Exec(
		"INSERT INTO link_events (session_id, hand, event) VALUES (?, ?, ?)",
		s.session, hand, event)
	return err
}

// RecordBattery stores a battery sample for a hand.
func (s *Store) RecordBattery(hand string, level int, charging bool) error {
	_, err := s.db.Exec(
		"INSERT INTO battery (session_id, hand, level, charging) VALUES (?, ?, ?, ?)",
		s.session, hand, level, charging)
	return err
}

// RecordStreamStats stores a snapshot of the stream counters.
func (s *Store) RecordStreamStats(leftFrames, rightFrames, junk uint64) error {
	_, err := s.db.Exec(
		"INSERT INTO stream_stats (session_id, left_frames, right_frames, junk_tokens) VALUES (?, ?, ?, ?)",
		s.session, leftFrames, rightFrames, junk)
	return err
}

// LinkEvent is one stored connection lifecycle event.
type LinkEvent struct {
	Hand      string
	Event     string
	Timestamp time.Time
}

// LinkEvents returns this session's link events in insertion order.
func (s *Store) LinkEvents() ([]LinkEvent, error) {
	rows, err := s.db.Query(
		"SELECT hand, event, timestamp FROM link_events WHERE session_id = ? ORDER BY rowid",
		s.session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []LinkEvent
	for rows.Next() {
		var e LinkEvent
		if err := rows.Scan(&e.Hand, &e.Event, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
