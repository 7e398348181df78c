// ABOUTME: Mock Store implementation for testing
// ABOUTME: In-memory state with snapshot transactions and per-method failure injection

package store

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
)

// ErrTxInProgress is returned by MockStore.BeginTx while another transaction is open.
var ErrTxInProgress = errors.New("transaction already in progress")

// mockState is the data held by MockStore; transactions work on a clone of it.
type mockState struct {
	drafts   map[string]string
	messages map[string]Message
	media    map[string]Media
	account  []byte
	hasAcct  bool
	sessions map[string][]byte
}

func newMockState() *mockState {
	return &mockState{
		drafts:   make(map[string]string),
		messages: make(map[string]Message),
		media:    make(map[string]Media),
		sessions: make(map[string][]byte),
	}
}

func (s *mockState) clone() *mockState {
	c := &mockState{
		drafts:   maps.Clone(s.drafts),
		messages: maps.Clone(s.messages),
		media:    maps.Clone(s.media),
		account:  slices.Clone(s.account),
		hasAcct:  s.hasAcct,
		sessions: make(map[string][]byte, len(s.sessions)),
	}
	for k, v := range s.sessions {
		c.sessions[k] = slices.Clone(v)
	}
	return c
}

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.Mutex
	state   *mockState
	inTx    bool
	failOn  map[string]error
	txCount int
	commits int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		state:  newMockState(),
		failOn: make(map[string]error),
	}
}

// FailOn makes every later call to the named method return err.
// Passing a nil err clears the failure.
func (m *MockStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, method)
		return
	}
	m.failOn[method] = err
}

// TxCount reports how many transactions have been opened.
func (m *MockStore) TxCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txCount
}

// CommitCount reports how many transactions have been committed.
func (m *MockStore) CommitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// failure must be called with mu held.
func (m *MockStore) failure(method string) error {
	return m.failOn[method]
}

// GetDraft returns the draft text for key, or "".
func (m *MockStore) GetDraft(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetDraft"); err != nil {
		return "", err
	}
	return m.state.drafts[key], nil
}

// UpdateDraft upserts a draft.
func (m *MockStore) UpdateDraft(ctx context.Context, key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("UpdateDraft"); err != nil {
		return err
	}
	m.state.drafts[key] = text
	return nil
}

// MoveDraft re-keys a draft.
func (m *MockStore) MoveDraft(ctx context.Context, oldKey, newKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("MoveDraft"); err != nil {
		return false, err
	}
	text, ok := m.state.drafts[oldKey]
	if !ok {
		return false, nil
	}
	delete(m.state.drafts, oldKey)
	m.state.drafts[newKey] = text
	return true, nil
}

// GetAllDrafts returns all drafts ordered by key.
func (m *MockStore) GetAllDrafts(ctx context.Context) ([]Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetAllDrafts"); err != nil {
		return nil, err
	}
	drafts := make([]Draft, 0, len(m.state.drafts))
	for k, v := range m.state.drafts {
		drafts = append(drafts, Draft{Key: k, Text: v})
	}
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].Key < drafts[j].Key })
	return drafts, nil
}

// RemoveAllDrafts clears drafts.
func (m *MockStore) RemoveAllDrafts(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("RemoveAllDrafts"); err != nil {
		return err
	}
	clear(m.state.drafts)
	return nil
}

// GetAllMessages returns messages ordered by thread then time descending.
func (m *MockStore) GetAllMessages(ctx context.Context) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetAllMessages"); err != nil {
		return nil, err
	}
	messages := slices.Collect(maps.Values(m.state.messages))
	sort.Slice(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if a.Thread != b.Thread {
			return a.Thread < b.Thread
		}
		if a.Time != b.Time {
			return a.Time > b.Time
		}
		return a.ID < b.ID
	})
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

// GetMedia returns a message's media ordered by ID.
func (m *MockStore) GetMedia(ctx context.Context, container string) ([]Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetMedia"); err != nil {
		return nil, err
	}
	media := []Media{}
	for _, md := range m.state.media {
		if md.Container == container {
			media = append(media, md)
		}
	}
	sort.Slice(media, func(i, j int) bool { return media[i].ID < media[j].ID })
	return media, nil
}

// RemoveAllMessages clears messages and media.
func (m *MockStore) RemoveAllMessages(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("RemoveAllMessages"); err != nil {
		return err
	}
	clear(m.state.messages)
	clear(m.state.media)
	return nil
}

// GetOlmPersistAccountData returns the stored account blob.
func (m *MockStore) GetOlmPersistAccountData(ctx context.Context) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetOlmPersistAccountData"); err != nil {
		return nil, false, err
	}
	if !m.state.hasAcct {
		return nil, false, nil
	}
	return slices.Clone(m.state.account), true, nil
}

// GetOlmPersistSessionsData returns stored sessions ordered by target user.
func (m *MockStore) GetOlmPersistSessionsData(ctx context.Context) ([]OlmPersistSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetOlmPersistSessionsData"); err != nil {
		return nil, err
	}
	sessions := make([]OlmPersistSession, 0, len(m.state.sessions))
	for k, v := range m.state.sessions {
		sessions = append(sessions, OlmPersistSession{TargetUserID: k, SessionData: slices.Clone(v)})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].TargetUserID < sessions[j].TargetUserID })
	return sessions, nil
}

// StoreOlmPersistData replaces the account and the full session set.
func (m *MockStore) StoreOlmPersistData(ctx context.Context, persist OlmPersist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("StoreOlmPersistData"); err != nil {
		return err
	}
	m.state.account = slices.Clone(persist.Account)
	m.state.hasAcct = true
	clear(m.state.sessions)
	for k, v := range persist.Sessions {
		m.state.sessions[k] = slices.Clone(v)
	}
	return nil
}

// BeginTx opens a snapshot transaction. Only one may be open at a time.
func (m *MockStore) BeginTx(ctx context.Context) (Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("BeginTx"); err != nil {
		return nil, err
	}
	if m.inTx {
		return nil, ErrTxInProgress
	}
	m.inTx = true
	m.txCount++
	return &mockTx{store: m, state: m.state.clone()}, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// mockTx mutates a private clone that replaces the store state on Commit.
type mockTx struct {
	store *MockStore
	state *mockState
	done  bool
}

var errTxDone = errors.New("transaction already finished")

func (t *mockTx) fail(method string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.done {
		return errTxDone
	}
	return t.store.failure(method)
}

func (t *mockTx) Commit() error {
	if err := t.fail("Commit"); err != nil {
		return err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.state = t.state
	t.store.inTx = false
	t.store.commits++
	t.done = true
	return nil
}

func (t *mockTx) Rollback() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.done {
		return errTxDone
	}
	t.store.inTx = false
	t.done = true
	return nil
}

func (t *mockTx) RemoveMessages(ctx context.Context, ids []string) error {
	if err := t.fail("RemoveMessages"); err != nil {
		return err
	}
	for _, id := range ids {
		delete(t.state.messages, id)
		t.removeMedia(func(md Media) bool { return md.Container == id })
	}
	return nil
}

func (t *mockTx) RemoveMessagesForThreads(ctx context.Context, threadIDs []string) error {
	if err := t.fail("RemoveMessagesForThreads"); err != nil {
		return err
	}
	for _, thread := range threadIDs {
		maps.DeleteFunc(t.state.messages, func(_ string, msg Message) bool { return msg.Thread == thread })
		t.removeMedia(func(md Media) bool { return md.Thread == thread })
	}
	return nil
}

func (t *mockTx) ReplaceMessage(ctx context.Context, msg Message) error {
	if err := t.fail("ReplaceMessage"); err != nil {
		return err
	}
	if msg.ID == "" || msg.Thread == "" {
		return errors.New("replacing message: constraint failed")
	}
	t.state.messages[msg.ID] = msg
	return nil
}

func (t *mockTx) RemoveMediaForMessage(ctx context.Context, messageID string) error {
	if err := t.fail("RemoveMediaForMessage"); err != nil {
		return err
	}
	t.removeMedia(func(md Media) bool { return md.Container == messageID })
	return nil
}

func (t *mockTx) ReplaceMedia(ctx context.Context, media Media) error {
	if err := t.fail("ReplaceMedia"); err != nil {
		return err
	}
	if media.ID == "" || media.Container == "" {
		return errors.New("replacing media: constraint failed")
	}
	t.state.media[media.ID] = media
	return nil
}

func (t *mockTx) RekeyMessages(ctx context.Context, from, to string) error {
	if err := t.fail("RekeyMessages"); err != nil {
		return err
	}
	for id, msg := range t.state.messages {
		if msg.Thread == from {
			msg.Thread = to
			t.state.messages[id] = msg
		}
	}
	return nil
}

func (t *mockTx) RekeyMedia(ctx context.Context, from, to string) error {
	if err := t.fail("RekeyMedia"); err != nil {
		return err
	}
	for id, md := range t.state.media {
		if md.Thread == from {
			md.Thread = to
			t.state.media[id] = md
		}
	}
	return nil
}

func (t *mockTx) removeMedia(match func(Media) bool) {
	maps.DeleteFunc(t.state.media, func(_ string, md Media) bool { return match(md) })
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)
