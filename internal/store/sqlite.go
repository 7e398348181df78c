// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides draft/message/media/crypto persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// The store is only touched from the storage worker, one connection is enough
	// and keeps in-memory databases coherent.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS drafts (
			key  TEXT PRIMARY KEY NOT NULL,
			text TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id          TEXT PRIMARY KEY NOT NULL,
			local_id    TEXT,
			thread      TEXT NOT NULL,
			user        TEXT NOT NULL,
			type        INTEGER NOT NULL,
			content     TEXT,
			time        INTEGER NOT NULL,

			CHECK (id != ''),
			CHECK (thread != '')
		);

		CREATE INDEX IF NOT EXISTS idx_messages_thread_time
			ON messages(thread, time);

		CREATE TABLE IF NOT EXISTS media (
			id        TEXT PRIMARY KEY NOT NULL,
			container TEXT NOT NULL,
			thread    TEXT NOT NULL,
			uri       TEXT NOT NULL,
			type      TEXT NOT NULL,
			extras    TEXT NOT NULL,

			CHECK (id != ''),
			CHECK (container != '')
		);

		CREATE INDEX IF NOT EXISTS idx_media_container ON media(container);
		CREATE INDEX IF NOT EXISTS idx_media_thread ON media(thread);

		CREATE TABLE IF NOT EXISTS olm_persist_account (
			id           INTEGER PRIMARY KEY,
			account_data BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS olm_persist_sessions (
			target_user_id TEXT PRIMARY KEY NOT NULL,
			session_data   BLOB NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		table  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('messages') WHERE name = 'future_type'`,
			apply:  `ALTER TABLE messages ADD COLUMN future_type INTEGER`,
			table:  "messages",
			column: "future_type",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// BeginTx opens a transaction for a batch of message mutations.
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	s.logger.Debug("transaction started")
	return &sqliteTx{tx: tx, logger: s.logger}, nil
}

// sqliteTx implements Tx over *sql.Tx.
type sqliteTx struct {
	tx     *sql.Tx
	logger *slog.Logger
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	t.logger.Debug("transaction committed")
	return nil
}

func (t *sqliteTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	t.logger.Debug("transaction rolled back")
	return nil
}

func (t *sqliteTx) RemoveMessages(ctx context.Context, ids []string) error {
	return removeMessages(ctx, t.tx, ids)
}

func (t *sqliteTx) RemoveMessagesForThreads(ctx context.Context, threadIDs []string) error {
	return removeMessagesForThreads(ctx, t.tx, threadIDs)
}

func (t *sqliteTx) ReplaceMessage(ctx context.Context, msg Message) error {
	return replaceMessage(ctx, t.tx, msg)
}

func (t *sqliteTx) RemoveMediaForMessage(ctx context.Context, messageID string) error {
	return removeMediaForMessages(ctx, t.tx, []string{messageID})
}

func (t *sqliteTx) ReplaceMedia(ctx context.Context, media Media) error {
	return replaceMedia(ctx, t.tx, media)
}

func (t *sqliteTx) RekeyMessages(ctx context.Context, from, to string) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE messages SET thread = ? WHERE thread = ?`, to, from); err != nil {
		return fmt.Errorf("rekeying messages: %w", err)
	}
	return nil
}

func (t *sqliteTx) RekeyMedia(ctx context.Context, from, to string) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE media SET thread = ? WHERE thread = ?`, to, from); err != nil {
		return fmt.Errorf("rekeying media: %w", err)
	}
	return nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func removeMessages(ctx context.Context, q querier, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM messages WHERE id IN (%s)`, placeholders(len(ids)))
	if _, err := q.ExecContext(ctx, query, toArgs(ids)...); err != nil {
		return fmt.Errorf("removing messages: %w", err)
	}
	return removeMediaForMessages(ctx, q, ids)
}

func removeMessagesForThreads(ctx context.Context, q querier, threadIDs []string) error {
	if len(threadIDs) == 0 {
		return nil
	}
	in := placeholders(len(threadIDs))
	args := toArgs(threadIDs)
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM messages WHERE thread IN (%s)`, in), args...); err != nil {
		return fmt.Errorf("removing messages for threads: %w", err)
	}
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM media WHERE thread IN (%s)`, in), args...); err != nil {
		return fmt.Errorf("removing media for threads: %w", err)
	}
	return nil
}

func removeMediaForMessages(ctx context.Context, q querier, ids []string) error {
	query := fmt.Sprintf(`DELETE FROM media WHERE container IN (%s)`, placeholders(len(ids)))
	if _, err := q.ExecContext(ctx, query, toArgs(ids)...); err != nil {
		return fmt.Errorf("removing media: %w", err)
	}
	return nil
}

func replaceMessage(ctx context.Context, q querier, msg Message) error {
	query := `
		INSERT OR REPLACE INTO messages (id, local_id, thread, user, type, future_type, content, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		msg.ID,
		msg.LocalID,
		msg.Thread,
		msg.User,
		msg.Type,
		msg.FutureType,
		msg.Content,
		msg.Time,
	)
	if err != nil {
		return fmt.Errorf("replacing message %s: %w", msg.ID, err)
	}
	return nil
}

func replaceMedia(ctx context.Context, q querier, media Media) error {
	query := `
		INSERT OR REPLACE INTO media (id, container, thread, uri, type, extras)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		media.ID,
		media.Container,
		media.Thread,
		media.URI,
		media.Type,
		media.Extras,
	)
	if err != nil {
		return fmt.Errorf("replacing media %s: %w", media.ID, err)
	}
	return nil
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
