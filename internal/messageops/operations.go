// ABOUTME: Closed set of message store mutations with a uniform Apply contract
// ABOUTME: RemoveByIDs, RemoveByThreadIDs, ReplaceMessage and RekeyThread own copies of their data

package messageops

import (
	"context"
	"slices"

	"github.com/2389/comm-core/internal/store"
)

// Kind is the wire name of an operation.
type Kind string

const (
	KindRemove           Kind = "remove"
	KindRemoveForThreads Kind = "remove_messages_for_threads"
	KindReplace          Kind = "replace"
	KindRekey            Kind = "rekey"
)

// Operation is one message store mutation. The set of implementations is
// closed: only the types in this package satisfy it.
type Operation interface {
	Kind() Kind
	Apply(ctx context.Context, tx store.MessageWriter) error

	isOperation()
}

// RemoveByIDs deletes messages (and their media) by ID. Unknown IDs are ignored.
type RemoveByIDs struct {
	ids []string
}

// NewRemoveByIDs copies ids into a new operation.
func NewRemoveByIDs(ids ...string) RemoveByIDs {
	return RemoveByIDs{ids: slices.Clone(ids)}
}

func (RemoveByIDs) Kind() Kind { return KindRemove }
func (RemoveByIDs) isOperation() {}

// IDs returns a copy of the targeted message IDs.
func (o RemoveByIDs) IDs() []string { return slices.Clone(o.ids) }

func (o RemoveByIDs) Apply(ctx context.Context, tx store.MessageWriter) error {
	return tx.RemoveMessages(ctx, o.ids)
}

// RemoveByThreadIDs deletes every message and media row in the given threads.
type RemoveByThreadIDs struct {
	threadIDs []string
}

// NewRemoveByThreadIDs copies threadIDs into a new operation.
func NewRemoveByThreadIDs(threadIDs ...string) RemoveByThreadIDs {
	return RemoveByThreadIDs{threadIDs: slices.Clone(threadIDs)}
}

func (RemoveByThreadIDs) Kind() Kind { return KindRemoveForThreads }
func (RemoveByThreadIDs) isOperation() {}

// ThreadIDs returns a copy of the targeted thread IDs.
func (o RemoveByThreadIDs) ThreadIDs() []string { return slices.Clone(o.threadIDs) }

func (o RemoveByThreadIDs) Apply(ctx context.Context, tx store.MessageWriter) error {
	return tx.RemoveMessagesForThreads(ctx, o.threadIDs)
}

// ReplaceMessage upserts a message and replaces its media as a unit.
type ReplaceMessage struct {
	message store.Message
	media   []store.Media
}

// NewReplaceMessage copies msg and media into a new operation.
func NewReplaceMessage(msg store.Message, media []store.Media) ReplaceMessage {
	return ReplaceMessage{message: msg, media: slices.Clone(media)}
}

func (ReplaceMessage) Kind() Kind { return KindReplace }
func (ReplaceMessage) isOperation() {}

// Message returns the message to write.
func (o ReplaceMessage) Message() store.Message { return o.message }

// Media returns a copy of the media that will replace the message's current media.
func (o ReplaceMessage) Media() []store.Media { return slices.Clone(o.media) }

func (o ReplaceMessage) Apply(ctx context.Context, tx store.MessageWriter) error {
	if err := tx.ReplaceMessage(ctx, o.message); err != nil {
		return err
	}
	if err := tx.RemoveMediaForMessage(ctx, o.message.ID); err != nil {
		return err
	}
	for _, m := range o.media {
		if err := tx.ReplaceMedia(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// RekeyThread moves every message and media row from one thread ID to another.
type RekeyThread struct {
	from string
	to   string
}

// NewRekeyThread creates a rekey from -> to.
func NewRekeyThread(from, to string) RekeyThread {
	return RekeyThread{from: from, to: to}
}

func (RekeyThread) Kind() Kind { return KindRekey }
func (RekeyThread) isOperation() {}

// From returns the old thread ID.
func (o RekeyThread) From() string { return o.from }

// To returns the new thread ID.
func (o RekeyThread) To() string { return o.to }

func (o RekeyThread) Apply(ctx context.Context, tx store.MessageWriter) error {
	if err := tx.RekeyMessages(ctx, o.from, o.to); err != nil {
		return err
	}
	return tx.RekeyMedia(ctx, o.from, o.to)
}

var (
	_ Operation = RemoveByIDs{}
	_ Operation = RemoveByThreadIDs{}
	_ Operation = ReplaceMessage{}
	_ Operation = RekeyThread{}
)
