// ABOUTME: Crypto identity persistence for SQLiteStore
// ABOUTME: Stores the serialized account blob and per-peer session blobs atomically

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// accountRowID pins the single account row.
const accountRowID = 1

// GetOlmPersistAccountData returns the stored account blob.
// found is false when no account has ever been stored.
func (s *SQLiteStore) GetOlmPersistAccountData(ctx context.Context) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT account_data FROM olm_persist_account WHERE id = ?`, accountRowID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying account data: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, true, nil
}

// GetOlmPersistSessionsData returns every stored peer session, ordered by target user.
func (s *SQLiteStore) GetOlmPersistSessionsData(ctx context.Context) ([]OlmPersistSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_user_id, session_data FROM olm_persist_sessions ORDER BY target_user_id`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions data: %w", err)
	}
	defer rows.Close()

	sessions := []OlmPersistSession{}
	for rows.Next() {
		var sess OlmPersistSession
		if err := rows.Scan(&sess.TargetUserID, &sess.SessionData); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// StoreOlmPersistData replaces the account and the full session set in one transaction.
func (s *SQLiteStore) StoreOlmPersistData(ctx context.Context, persist OlmPersist) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback persist write: %v", cause, rollbackErr)
		}
		return cause
	}

	account := persist.Account
	if account == nil {
		account = []byte{}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO olm_persist_account (id, account_data) VALUES (?, ?)`,
		accountRowID, account,
	); err != nil {
		return rollbackWith(fmt.Errorf("writing account data: %w", err))
	}

	// The session set is replaced, not merged.
	if _, err := tx.ExecContext(ctx, `DELETE FROM olm_persist_sessions`); err != nil {
		return rollbackWith(fmt.Errorf("clearing sessions: %w", err))
	}
	for target, data := range persist.Sessions {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO olm_persist_sessions (target_user_id, session_data) VALUES (?, ?)`,
			target, data,
		); err != nil {
			return rollbackWith(fmt.Errorf("writing session %s: %w", target, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist write: %w", err)
	}

	s.logger.Debug("stored crypto persist data", "sessions", len(persist.Sessions))
	return nil
}
