package session

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists session fields in a local SQLite database. Each
// field carries its own expiration matching the token's lifetime; expired
// fields are ignored on load, and Clear removes everything in a single
// statement.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("session: couldn't open database: %v", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session (
			name        TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			expiration  INTEGER NOT NULL
		);`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: failed to init schema: %v", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load() (*Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT name, value
		FROM session
		WHERE expiration > ?;`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("session: couldn't read session: %v", err)
	}
	defer rows.Close()

	snap := &Snapshot{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("session: couldn't scan session row: %v", err)
		}
		switch name {
		case fieldIDToken:
			snap.IDToken = value
		case fieldAccessToken:
			snap.AccessToken = value
		case fieldExpires:
			snap.ExpiresAtMillis = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: couldn't read session: %v", err)
	}

	if snap.IDToken == "" {
		return nil, nil
	}
	return snap, nil
}

func (s *SQLiteStore) Save(snap *Snapshot) error {
	expiration, err := strconv.ParseInt(snap.ExpiresAtMillis, 10, 64)
	if err != nil {
		return fmt.Errorf("session: invalid expiry %q: %v", snap.ExpiresAtMillis, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("session: couldn't begin save: %v", err)
	}
	defer tx.Rollback()

	for name, value := range map[string]string{
		fieldIDToken:     snap.IDToken,
		fieldAccessToken: snap.AccessToken,
		fieldExpires:     snap.ExpiresAtMillis,
	} {
		if _, err := tx.Exec(`
			INSERT INTO session (name, value, expiration)
			VALUES (?, ?, ?)
			ON CONFLICT (name) DO UPDATE
			SET value=excluded.value, expiration=excluded.expiration;`,
			name, value, expiration,
		); err != nil {
			return fmt.Errorf("session: couldn't save field '%s': %v", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: couldn't commit save: %v", err)
	}
	return nil
}

func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM session;`); err != nil {
		return fmt.Errorf("session: couldn't clear session: %v", err)
	}
	return nil
}
