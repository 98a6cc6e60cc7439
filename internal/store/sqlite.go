package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/callwatch/internal/call"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL DEFAULT '',
	extension TEXT NOT NULL UNIQUE,
	status    TEXT NOT NULL DEFAULT 'idle'
);
CREATE TABLE IF NOT EXISTS calls (
	id         TEXT PRIMARY KEY,
	extension  TEXT NOT NULL,
	caller_id  TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL DEFAULT '',
	direction  TEXT NOT NULL,
	status     TEXT NOT NULL,
	start_unix INTEGER NOT NULL,
	end_unix   INTEGER NOT NULL DEFAULT 0,
	duration_s INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS calls_ext_start ON calls(extension, start_unix);
`

// SQLite is the Store adapter backed by a local sqlite database.
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema. Use ":memory:" for an ephemeral database.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) AddCall(rec *call.Record) error {
	_, err := s.db.Exec(
		`INSERT INTO calls (id, extension, caller_id, user_id, direction, status, start_unix, end_unix, duration_s)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Extension, rec.CallerID, rec.UserID,
		string(rec.Direction), string(rec.Status),
		rec.Start.Unix(), endUnix(rec), int64(rec.Duration/time.Second))
	if err != nil {
		return fmt.Errorf("inserting call %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLite) UpdateCall(rec *call.Record) error {
	res, err := s.db.Exec(
		`UPDATE calls SET extension = ?, caller_id = ?, user_id = ?, direction = ?,
		 status = ?, start_unix = ?, end_unix = ?, duration_s = ? WHERE id = ?`,
		rec.Extension, rec.CallerID, rec.UserID, string(rec.Direction),
		string(rec.Status), rec.Start.Unix(), endUnix(rec),
		int64(rec.Duration/time.Second), rec.ID)
	if err != nil {
		return fmt.Errorf("updating call %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating call %s: not found", rec.ID)
	}
	return nil
}

func (s *SQLite) GetUserByExtension(extension string) (*call.User, error) {
	row := s.db.QueryRow(
		`SELECT id, name, extension, status FROM users WHERE extension = ?`, extension)
	u := &call.User{}
	var status string
	err := row.Scan(&u.ID, &u.Name, &u.Extension, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user for %s: %w", extension, err)
	}
	u.Status = call.Status(status)
	return u, nil
}

func (s *SQLite) GetUserCalls(extension string, start, end time.Time) ([]call.Record, error) {
	query := `SELECT id, extension, caller_id, user_id, direction, status, start_unix, end_unix, duration_s
		 FROM calls WHERE start_unix BETWEEN ? AND ?`
	args := []any{start.Unix(), end.Unix()}
	if extension != "" {
		query += ` AND extension = ?`
		args = append(args, extension)
	}
	query += ` ORDER BY start_unix DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	defer rows.Close()

	var recs []call.Record
	for rows.Next() {
		var rec call.Record
		var direction, status string
		var startUnix, endUnix, durationS int64
		if err := rows.Scan(&rec.ID, &rec.Extension, &rec.CallerID, &rec.UserID,
			&direction, &status, &startUnix, &endUnix, &durationS); err != nil {
			return nil, fmt.Errorf("scanning call: %w", err)
		}
		rec.Direction = call.Direction(direction)
		rec.Status = call.Status(status)
		rec.Start = time.Unix(startUnix, 0)
		if endUnix != 0 {
			rec.End = time.Unix(endUnix, 0)
		}
		rec.Duration = time.Duration(durationS) * time.Second
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLite) UpdateUser(u *call.User) error {
	res, err := s.db.Exec(
		`UPDATE users SET name = ?, extension = ?, status = ? WHERE id = ?`,
		u.Name, u.Extension, string(u.Status), u.ID)
	if err != nil {
		return fmt.Errorf("updating user %s: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating user %s: not found", u.ID)
	}
	return nil
}

// AddUser provisions a user. Not part of the engine-facing port; used by
// setup and tests.
func (s *SQLite) AddUser(u *call.User) error {
	if u.Status == "" {
		u.Status = call.StatusIdle
	}
	_, err := s.db.Exec(
		`INSERT INTO users (id, name, extension, status) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Extension, string(u.Status))
	if err != nil {
		return fmt.Errorf("inserting user %s: %w", u.ID, err)
	}
	return nil
}

func endUnix(rec *call.Record) int64 {
	if rec.End.IsZero() {
		return 0
	}
	return rec.End.Unix()
}
