// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on snapshot transactions and failure injection

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_TxIsolation(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.ReplaceMessage(ctx, Message{ID: "m1", Thread: "t1"}))

	// Writes are invisible until commit
	messages, err := store.GetAllMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, messages)

	require.NoError(t, tx.Commit())
	messages, err = store.GetAllMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, 1, store.TxCount())
	assert.Equal(t, 1, store.CommitCount())
}

func TestMockStore_Rollback(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.ReplaceMessage(ctx, Message{ID: "m1", Thread: "t1"}))
	require.NoError(t, tx.Rollback())

	messages, err := store.GetAllMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, messages)

	// A finished transaction cannot be reused
	assert.Error(t, tx.Commit())
}

func TestMockStore_SingleTx(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	_, err = store.BeginTx(ctx)
	assert.ErrorIs(t, err, ErrTxInProgress)
	require.NoError(t, tx.Rollback())

	_, err = store.BeginTx(ctx)
	assert.NoError(t, err)
}

func TestMockStore_FailOn(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	boom := errors.New("disk full")

	store.FailOn("StoreOlmPersistData", boom)
	err := store.StoreOlmPersistData(ctx, OlmPersist{Account: []byte("a")})
	assert.ErrorIs(t, err, boom)

	_, found, err := store.GetOlmPersistAccountData(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	store.FailOn("StoreOlmPersistData", nil)
	require.NoError(t, store.StoreOlmPersistData(ctx, OlmPersist{Account: []byte("a")}))
	_, found, err = store.GetOlmPersistAccountData(ctx)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMockStore_PersistReplacesSessions(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.StoreOlmPersistData(ctx, OlmPersist{
		Account:  []byte("a"),
		Sessions: map[string][]byte{"alice": []byte("1"), "bob": []byte("2")},
	}))
	require.NoError(t, store.StoreOlmPersistData(ctx, OlmPersist{
		Account:  []byte("a"),
		Sessions: map[string][]byte{"bob": []byte("3")},
	}))

	sessions, err := store.GetOlmPersistSessionsData(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "bob", sessions[0].TargetUserID)
	assert.Equal(t, []byte("3"), sessions[0].SessionData)
}

func TestMockStore_MoveDraft(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.UpdateDraft(ctx, "a", "text"))
	moved, err := store.MoveDraft(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, moved)

	text, err := store.GetDraft(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "text", text)

	moved, err = store.MoveDraft(ctx, "a", "c")
	require.NoError(t, err)
	assert.False(t, moved)
}
