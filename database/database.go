package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// schema holds the event log layout. Events are operational telemetry only;
// share records themselves live in the JSON store file, never here.
const schema = `
CREATE TABLE IF NOT EXISTS share_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL,
	action TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_share_events_code ON share_events(code);
CREATE INDEX IF NOT EXISTS idx_share_events_created_at ON share_events(created_at);
`

// DB wraps the SQLite connection holding the share event log.
type DB struct {
	conn *sql.DB
}

// Event is one recorded share lifecycle action.
type Event struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// InitDB opens (and creates, if needed) the event database at path. The
// special path ":memory:" keeps the log in memory, which tests use.
func InitDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping event database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply event schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// NewFromConn wraps an already opened connection. Tests use it to run the
// event log against a mock.
func NewFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the event database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// LogShareEvent records one share lifecycle action.
func (db *DB) LogShareEvent(code, action, detail string) error {
	_, err := db.conn.Exec(
		"INSERT INTO share_events (code, action, detail, created_at) VALUES (?, ?, ?, ?)",
		code, action, detail, time.Now().UTC(),
	)
	return err
}

// RecentEvents returns the newest events, newest first.
func (db *DB) RecentEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, code, action, detail, created_at FROM share_events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query share events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Code, &ev.Action, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan share event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventsForCode returns every event recorded for one share code, oldest
// first, so a code's history reads top to bottom.
func (db *DB) EventsForCode(code string) ([]Event, error) {
	rows, err := db.conn.Query(
		"SELECT id, code, action, detail, created_at FROM share_events WHERE code = ? ORDER BY id ASC",
		code,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query share events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Code, &ev.Action, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan share event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
