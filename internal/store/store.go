// ABOUTME: Store interfaces and record types for comm-core persistence
// ABOUTME: Defines drafts, messages, media, crypto persist blobs and the explicit transaction API

package store

import (
	"context"
	"database/sql"
)

// Draft is an unsent message text keyed by thread.
type Draft struct {
	Key  string
	Text string
}

// Message is a stored message row.
// Optional columns use sql.Null so absence is never confused with a zero value.
type Message struct {
	ID         string
	LocalID    sql.Null[string]
	Thread     string
	User       string
	Type       int64
	FutureType sql.Null[int64] // optional pending/alternate type; Type stays the effective one
	Content    sql.Null[string]
	Time       int64
}

// Media is an attachment row owned by a message (Container is the message ID).
type Media struct {
	ID        string
	Container string
	Thread    string
	URI       string
	Type      string
	Extras    string
}

// OlmPersistSession is one serialized peer session.
type OlmPersistSession struct {
	TargetUserID string
	SessionData  []byte
}

// OlmPersist is the serialized crypto identity as written to the store.
type OlmPersist struct {
	Account  []byte
	Sessions map[string][]byte
}

// IsEmpty reports whether there is nothing to restore from.
func (p OlmPersist) IsEmpty() bool {
	return len(p.Account) == 0
}

// DraftStore holds per-thread drafts.
type DraftStore interface {
	// GetDraft returns "" when no draft exists for key.
	GetDraft(ctx context.Context, key string) (string, error)
	UpdateDraft(ctx context.Context, key, text string) error
	// MoveDraft reports false when oldKey has no draft.
	MoveDraft(ctx context.Context, oldKey, newKey string) (bool, error)
	GetAllDrafts(ctx context.Context) ([]Draft, error)
	RemoveAllDrafts(ctx context.Context) error
}

// MessageReader reads messages and their media outside of a transaction.
type MessageReader interface {
	GetAllMessages(ctx context.Context) ([]Message, error)
	GetMedia(ctx context.Context, container string) ([]Media, error)
	RemoveAllMessages(ctx context.Context) error
}

// MessageWriter is the mutation surface available inside a transaction.
type MessageWriter interface {
	RemoveMessages(ctx context.Context, ids []string) error
	RemoveMessagesForThreads(ctx context.Context, threadIDs []string) error
	ReplaceMessage(ctx context.Context, msg Message) error
	RemoveMediaForMessage(ctx context.Context, messageID string) error
	ReplaceMedia(ctx context.Context, media Media) error
	RekeyMessages(ctx context.Context, from, to string) error
	RekeyMedia(ctx context.Context, from, to string) error
}

// Tx is an open transaction. Exactly one of Commit or Rollback must be called.
type Tx interface {
	MessageWriter
	Commit() error
	Rollback() error
}

// CryptoStore holds the persisted crypto identity.
type CryptoStore interface {
	// GetOlmPersistAccountData reports found=false when no account row exists,
	// which is distinct from a stored empty blob.
	GetOlmPersistAccountData(ctx context.Context) (data []byte, found bool, err error)
	GetOlmPersistSessionsData(ctx context.Context) ([]OlmPersistSession, error)
	StoreOlmPersistData(ctx context.Context, persist OlmPersist) error
}

// Store is the full persistence surface used by the core.
// There are no implicit transactions: batch callers bracket with BeginTx.
type Store interface {
	DraftStore
	MessageReader
	CryptoStore

	BeginTx(ctx context.Context) (Tx, error)

	// Close releases any resources held by the store
	Close() error
}
