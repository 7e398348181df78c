// ABOUTME: Message and media reads for SQLiteStore
// ABOUTME: Mutations live on sqliteTx; only listing and bulk clear run outside a transaction

package store

import (
	"context"
	"fmt"
)

// GetAllMessages returns every message ordered by thread, newest first within a thread.
func (s *SQLiteStore) GetAllMessages(ctx context.Context) ([]Message, error) {
	query := `
		SELECT id, local_id, thread, user, type, future_type, content, time
		FROM messages
		ORDER BY thread, time DESC, id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID,
			&m.LocalID,
			&m.Thread,
			&m.User,
			&m.Type,
			&m.FutureType,
			&m.Content,
			&m.Time,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// GetMedia returns the media attached to a message, ordered by media ID.
func (s *SQLiteStore) GetMedia(ctx context.Context, container string) ([]Media, error) {
	query := `
		SELECT id, container, thread, uri, type, extras
		FROM media
		WHERE container = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, container)
	if err != nil {
		return nil, fmt.Errorf("querying media: %w", err)
	}
	defer rows.Close()

	media := []Media{}
	for rows.Next() {
		var m Media
		if err := rows.Scan(&m.ID, &m.Container, &m.Thread, &m.URI, &m.Type, &m.Extras); err != nil {
			return nil, fmt.Errorf("scanning media: %w", err)
		}
		media = append(media, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating media: %w", err)
	}
	return media, nil
}

// RemoveAllMessages deletes every message and all media.
func (s *SQLiteStore) RemoveAllMessages(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message clear: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("removing messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM media`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("removing media: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message clear: %w", err)
	}
	return nil
}
