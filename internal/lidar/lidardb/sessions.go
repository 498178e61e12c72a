package lidardb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("capture session not found")

// SessionInfo describes the source a capture session reads from.
type SessionInfo struct {
	Port     string
	BaudRate int
	Magic    string
	DataSize int
	Invert   bool
	Version  string
}

// Session is one run of the capture driver.
type Session struct {
	ID        string     `json:"session_id"`
	Port      string     `json:"port"`
	BaudRate  int        `json:"baud_rate"`
	Magic     string     `json:"magic"`
	DataSize  int        `json:"data_size"`
	Invert    bool       `json:"invert"`
	Version   string     `json:"version"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// CreateSession records the start of a capture session and returns it with
// a fresh id.
func (db *DB) CreateSession(info SessionInfo, startedAt time.Time) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		Port:      info.Port,
		BaudRate:  info.BaudRate,
		Magic:     info.Magic,
		DataSize:  info.DataSize,
		Invert:    info.Invert,
		Version:   info.Version,
		StartedAt: startedAt,
	}
	_, err := db.Exec(`INSERT INTO capture_sessions
		(session_id, port, baud_rate, magic, data_size, invert, version, started_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Port, s.BaudRate, s.Magic, s.DataSize, boolToInt(s.Invert), s.Version, startedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create capture session: %w", err)
	}
	return s, nil
}

// EndSession marks a session as finished. Ending an already ended session
// keeps the first end time and reason.
func (db *DB) EndSession(id string, endedAt time.Time, reason string) error {
	res, err := db.Exec(`UPDATE capture_sessions
		SET ended_unix_nanos = COALESCE(ended_unix_nanos, ?),
		    end_reason = COALESCE(end_reason, ?)
		WHERE session_id = ?`, endedAt.UnixNano(), reason, id)
	if err != nil {
		return fmt.Errorf("failed to end capture session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// GetSession returns the session with the given id.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`SELECT session_id, port, baud_rate, magic, data_size, invert, version,
		started_unix_nanos, ended_unix_nanos, end_reason
		FROM capture_sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// ListSessions returns the most recent sessions first.
func (db *DB) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT session_id, port, baud_rate, magic, data_size, invert, version,
		started_unix_nanos, ended_unix_nanos, end_reason
		FROM capture_sessions ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query capture sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*Session, error) {
	var (
		s       Session
		invert  int
		started int64
		ended   sql.NullInt64
		reason  sql.NullString
	)
	if err := r.Scan(&s.ID, &s.Port, &s.BaudRate, &s.Magic, &s.DataSize, &invert, &s.Version,
		&started, &ended, &reason); err != nil {
		return nil, err
	}
	s.Invert = invert == 1
	s.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		s.EndedAt = &t
	}
	s.EndReason = reason.String
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
