package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore is the SQL-backed alternative to FileStore, grounded on the
// upstream framework's dialect-branching session service: one
// `agentcore_sessions` row per session id, storing the full JSON payload rather than a
// message-by-message schema, since §4.9 treats the whole Session as the
// unit of save/load.
type SQLStore struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite"
}

const createSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS agentcore_sessions (
    id VARCHAR(255) PRIMARY KEY,
    payload TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// NewSQLStore wraps an already-open db under dialect and ensures the
// schema exists. dialect must be one of postgres, mysql, sqlite.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("session: unsupported dialect %q (want postgres|mysql|sqlite)", dialect)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createSessionsTableSQL); err != nil {
		return nil, fmt.Errorf("session: failed to initialize schema: %w", err)
	}

	return &SQLStore{db: db, dialect: dialect}, nil
}

// Save upserts the session's full JSON payload in a single transaction,
// satisfying the same round-trip-atomic contract FileStore gives via
// write-then-rename.
func (s *SQLStore) Save(sess *Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to marshal %s: %w", sess.ID, err)
	}

	ctx := context.Background()
	query := `INSERT INTO agentcore_sessions (id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	if s.dialect == "postgres" {
		query = `INSERT INTO agentcore_sessions (id, payload, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	} else if s.dialect == "mysql" {
		query = `INSERT INTO agentcore_sessions (id, payload, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)`
	}

	if _, err := s.db.ExecContext(ctx, query, sess.ID, string(payload), time.Now()); err != nil {
		return fmt.Errorf("session: failed to save %s: %w", sess.ID, err)
	}
	return nil
}

// Load reads a session's payload back by id.
func (s *SQLStore) Load(id string) (*Session, error) {
	query := `SELECT payload FROM agentcore_sessions WHERE id = ?`
	if s.dialect == "postgres" {
		query = `SELECT payload FROM agentcore_sessions WHERE id = $1`
	}

	var payload string
	err := s.db.QueryRowContext(context.Background(), query, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("NotFound: session %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("session: failed to load %s: %w", id, err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal %s: %w", id, err)
	}
	return &sess, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
