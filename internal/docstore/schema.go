package docstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_owner
	ON documents(collection, json_extract(data, '$.userId'));
`

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("docstore: closed")

// Store is a SQLite-backed Gateway.
type Store struct {
	conn   *sql.DB
	feed   *feed
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for ServerTimestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides document id generation.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, opts ...Option) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("docstore: open db: %w", err)
	}
	// One writer at a time; also keeps a single connection for readers so
	// subscriptions observe every committed write.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("docstore: apply schema: %w", err)
	}

	s := &Store{
		conn:   conn,
		feed:   newFeed(),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SQL returns the underlying connection for packages that keep their own
// tables next to the documents.
func (s *Store) SQL() *sql.DB {
	return s.conn
}

// Close stops every live subscription and closes the database.
func (s *Store) Close() error {
	s.feed.Close()
	return s.conn.Close()
}
