// ABOUTME: Draft persistence for SQLiteStore
// ABOUTME: Per-thread unsent text with upsert, move and bulk listing

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetDraft returns the draft text for key, or "" if none is stored.
func (s *SQLiteStore) GetDraft(ctx context.Context, key string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT text FROM drafts WHERE key = ?`, key).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying draft: %w", err)
	}
	return text, nil
}

// UpdateDraft inserts or overwrites the draft for key.
func (s *SQLiteStore) UpdateDraft(ctx context.Context, key, text string) error {
	query := `
		INSERT INTO drafts (key, text) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET text = excluded.text
	`
	if _, err := s.db.ExecContext(ctx, query, key, text); err != nil {
		return fmt.Errorf("updating draft: %w", err)
	}
	s.logger.Debug("updated draft", "key", key)
	return nil
}

// MoveDraft re-keys a draft from oldKey to newKey, overwriting any draft at newKey.
// Returns false without error when oldKey has no draft.
func (s *SQLiteStore) MoveDraft(ctx context.Context, oldKey, newKey string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin draft move: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback draft move: %v", cause, rollbackErr)
		}
		return cause
	}

	var text string
	err = tx.QueryRowContext(ctx, `SELECT text FROM drafts WHERE key = ?`, oldKey).Scan(&text)
	if err == sql.ErrNoRows {
		if err := tx.Rollback(); err != nil {
			return false, fmt.Errorf("rollback draft move: %w", err)
		}
		return false, nil
	}
	if err != nil {
		return false, rollbackWith(fmt.Errorf("querying draft: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, oldKey); err != nil {
		return false, rollbackWith(fmt.Errorf("removing old draft: %w", err))
	}
	upsert := `
		INSERT INTO drafts (key, text) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET text = excluded.text
	`
	if _, err := tx.ExecContext(ctx, upsert, newKey, text); err != nil {
		return false, rollbackWith(fmt.Errorf("writing moved draft: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit draft move: %w", err)
	}

	s.logger.Debug("moved draft", "from", oldKey, "to", newKey)
	return true, nil
}

// GetAllDrafts returns every stored draft, including empty ones, ordered by key.
func (s *SQLiteStore) GetAllDrafts(ctx context.Context) ([]Draft, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, text FROM drafts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("querying drafts: %w", err)
	}
	defer rows.Close()

	drafts := []Draft{}
	for rows.Next() {
		var d Draft
		if err := rows.Scan(&d.Key, &d.Text); err != nil {
			return nil, fmt.Errorf("scanning draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating drafts: %w", err)
	}
	return drafts, nil
}

// RemoveAllDrafts deletes every draft.
func (s *SQLiteStore) RemoveAllDrafts(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts`); err != nil {
		return fmt.Errorf("removing drafts: %w", err)
	}
	return nil
}
