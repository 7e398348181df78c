// ABOUTME: Tests for message store operations, payload decoding and batch atomicity
// ABOUTME: Uses both the SQLite store and MockStore with injected failures

package messageops

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/comm-core/internal/store"
)

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func msg(id, thread string, time int64) store.Message {
	return store.Message{ID: id, Thread: thread, User: "u1", Time: time}
}

func messageIDs(t *testing.T, s store.MessageReader) []string {
	t.Helper()
	messages, err := s.GetAllMessages(context.Background())
	require.NoError(t, err)
	ids := []string{}
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestDecode_AllKinds(t *testing.T) {
	payload := `[
		{"type": "replace", "payload": {
			"id": "m1", "local_id": "local-1", "thread": "t1", "user": "u1",
			"type": "0", "future_type": "14", "time": "1650000000000",
			"media_infos": [{"id": "md1", "uri": "file:///a.jpg", "type": "photo", "extras": "{}"}]
		}},
		{"type": "remove", "payload": {"ids": ["m2", "m3"]}},
		{"type": "remove_messages_for_threads", "payload": {"threadIDs": ["t9"]}},
		{"type": "rekey", "payload": {"from": "pending/1", "to": "t1"}}
	]`

	batch, err := Decode([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, 4, batch.Len())

	ops := batch.Operations()
	replace, ok := ops[0].(ReplaceMessage)
	require.True(t, ok)
	m := replace.Message()
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "local-1", m.LocalID.V)
	assert.True(t, m.LocalID.Valid)
	assert.Equal(t, int64(14), m.FutureType.V)
	assert.True(t, m.FutureType.Valid)
	assert.False(t, m.Content.Valid, "content was absent")
	assert.Equal(t, int64(1650000000000), m.Time)
	require.Len(t, replace.Media(), 1)
	assert.Equal(t, "m1", replace.Media()[0].Container)
	assert.Equal(t, "t1", replace.Media()[0].Thread)

	remove, ok := ops[1].(RemoveByIDs)
	require.True(t, ok)
	assert.Equal(t, []string{"m2", "m3"}, remove.IDs())

	threads, ok := ops[2].(RemoveByThreadIDs)
	require.True(t, ok)
	assert.Equal(t, []string{"t9"}, threads.ThreadIDs())

	rekey, ok := ops[3].(RekeyThread)
	require.True(t, ok)
	assert.Equal(t, "pending/1", rekey.From())
	assert.Equal(t, "t1", rekey.To())
}

func TestDecode_NumericFieldsAsNumbers(t *testing.T) {
	payload := `[{"type": "replace", "payload": {"id": "m1", "thread": "t1", "user": "u", "type": 3, "time": 42, "content": null}}]`
	batch, err := Decode([]byte(payload))
	require.NoError(t, err)

	m := batch.Operations()[0].(ReplaceMessage).Message()
	assert.Equal(t, int64(3), m.Type)
	assert.Equal(t, int64(42), m.Time)
	assert.False(t, m.Content.Valid, "null content is absent")
}

func TestDecode_Unsupported(t *testing.T) {
	payload := `[{"type": "remove", "payload": {"ids": ["a"]}}, {"type": "bogus", "payload": {}}]`
	_, err := Decode([]byte(payload))
	require.ErrorIs(t, err, ErrUnsupportedOperation)
	assert.EqualError(t, err, "unsupported operation: bogus")
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{`},
		{"not an array", `{"type": "remove"}`},
		{"missing payload", `[{"type": "remove"}]`},
		{"missing ids", `[{"type": "remove", "payload": {}}]`},
		{"ids wrong type", `[{"type": "remove", "payload": {"ids": "a"}}]`},
		{"rekey missing to", `[{"type": "rekey", "payload": {"from": "a"}}]`},
		{"replace missing thread", `[{"type": "replace", "payload": {"id": "m", "user": "u", "type": "0", "time": "1"}}]`},
		{"replace bad time", `[{"type": "replace", "payload": {"id": "m", "thread": "t", "user": "u", "type": "0", "time": "soon"}}]`},
		{"replace bad future type", `[{"type": "replace", "payload": {"id": "m", "thread": "t", "user": "u", "type": "0", "future_type": "x", "time": "1"}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestNewBatch_IsImmutable(t *testing.T) {
	ids := []string{"a", "b"}
	op := NewRemoveByIDs(ids...)
	ops := []Operation{op}
	batch := NewBatch(ops...)

	ids[0] = "changed"
	ops[0] = NewRekeyThread("x", "y")
	got := batch.Operations()
	got[0] = nil

	assert.Equal(t, []string{"a", "b"}, batch.Operations()[0].(RemoveByIDs).IDs())
}

func TestApplyBatch_SQLite(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	seed := NewBatch(
		NewReplaceMessage(msg("a", "t1", 1), []store.Media{{ID: "ma", Container: "a", Thread: "t1", URI: "u", Type: "photo"}}),
		NewReplaceMessage(msg("b", "t1", 2), nil),
		NewReplaceMessage(msg("c", "t2", 3), nil),
		NewReplaceMessage(msg("d", "pending", 4), nil),
	)
	require.NoError(t, ApplyBatch(ctx, s, seed))
	assert.Equal(t, []string{"d", "b", "a", "c"}, messageIDs(t, s))

	// Replace overwrites, and its media list replaces the old one as a unit
	updated := msg("a", "t1", 1)
	updated.Content.V, updated.Content.Valid = "edited", true
	mutate := NewBatch(
		NewReplaceMessage(updated, []store.Media{{ID: "mb", Container: "a", Thread: "t1", URI: "u2", Type: "video"}}),
		NewRemoveByIDs("b", "does-not-exist"),
		NewRemoveByThreadIDs("t2"),
		NewRekeyThread("pending", "t3"),
	)
	require.NoError(t, ApplyBatch(ctx, s, mutate))

	messages, err := s.GetAllMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "a", messages[0].ID)
	assert.Equal(t, "edited", messages[0].Content.V)
	assert.Equal(t, "d", messages[1].ID)
	assert.Equal(t, "t3", messages[1].Thread)

	media, err := s.GetMedia(ctx, "a")
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "mb", media[0].ID)
}

func TestApplyBatch_AtomicOnFailure(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, ApplyBatch(ctx, s, NewBatch(NewReplaceMessage(msg("sentinel", "t0", 1), nil))))

	// Valid operations followed by one the store rejects (empty ID violates a CHECK)
	batch := NewBatch(
		NewReplaceMessage(msg("m1", "t1", 1), nil),
		NewRemoveByIDs("sentinel"),
		NewRekeyThread("t0", "t5"),
		NewReplaceMessage(msg("", "t1", 2), nil),
	)
	err := ApplyBatch(ctx, s, batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "applying replace operation 3")

	// Nothing from the batch is observable
	assert.Equal(t, []string{"sentinel"}, messageIDs(t, s))
	messages, err := s.GetAllMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t0", messages[0].Thread)

	// The store is still usable after the rollback
	require.NoError(t, ApplyBatch(ctx, s, NewBatch(NewReplaceMessage(msg("m2", "t1", 1), nil))))
}

func TestApplyBatch_MockFailureRollsBack(t *testing.T) {
	s := store.NewMockStore()
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	s.FailOn("RekeyMessages", boom)
	err := ApplyBatch(ctx, s, NewBatch(
		NewReplaceMessage(msg("m1", "t1", 1), nil),
		NewRekeyThread("t1", "t2"),
	))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.TxCount())
	assert.Equal(t, 0, s.CommitCount())
	assert.Empty(t, messageIDs(t, s))
}

func TestApplyBatch_BeginFailure(t *testing.T) {
	s := store.NewMockStore()
	boom := errors.New("database is locked")
	s.FailOn("BeginTx", boom)

	err := ApplyBatch(context.Background(), s, NewBatch(NewRemoveByIDs("a")))
	assert.ErrorIs(t, err, boom)
}

func TestApplyBatch_CommitFailure(t *testing.T) {
	s := store.NewMockStore()
	boom := errors.New("commit failed")
	s.FailOn("Commit", boom)

	err := ApplyBatch(context.Background(), s, NewBatch(NewReplaceMessage(msg("m1", "t1", 1), nil)))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, messageIDs(t, s))
}

func TestApplyBatch_EmptyOpensNoTransaction(t *testing.T) {
	s := store.NewMockStore()
	require.NoError(t, ApplyBatch(context.Background(), s, NewBatch()))
	assert.Equal(t, 0, s.TxCount())
}
