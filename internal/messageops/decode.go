// ABOUTME: Decodes caller JSON payloads into a message store Batch
// ABOUTME: Unknown kinds and unparseable fields fail before any transaction is opened

package messageops

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/2389/comm-core/internal/store"
)

var (
	// ErrUnsupportedOperation is returned for an operation kind outside the closed set.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrMalformedPayload is returned when a payload cannot be parsed.
	ErrMalformedPayload = errors.New("malformed payload")
)

// RawOperation is the wire envelope of one operation.
type RawOperation struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type removePayload struct {
	IDs []string `json:"ids"`
}

type removeForThreadsPayload struct {
	ThreadIDs []string `json:"threadIDs"`
}

type rekeyPayload struct {
	From *string `json:"from"`
	To   *string `json:"to"`
}

type mediaPayload struct {
	ID     string `json:"id"`
	URI    string `json:"uri"`
	Type   string `json:"type"`
	Extras string `json:"extras"`
}

type replacePayload struct {
	ID         *string         `json:"id"`
	LocalID    *string         `json:"local_id"`
	Thread     *string         `json:"thread"`
	User       *string         `json:"user"`
	Type       *numericString  `json:"type"`
	FutureType *numericString  `json:"future_type"`
	Content    *string         `json:"content"`
	Time       *numericString  `json:"time"`
	MediaInfos *[]mediaPayload `json:"media_infos"`
}

// numericString accepts an integer encoded either as a JSON string or a JSON number.
type numericString string

func (n *numericString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = numericString(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*n = numericString(num.String())
	return nil
}

func (n numericString) int64(field string) (int64, error) {
	v, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrMalformedPayload, field, string(n))
	}
	return v, nil
}

// Decode parses a JSON array of operations into a Batch.
func Decode(data []byte) (Batch, error) {
	var raw []RawOperation
	if err := json.Unmarshal(data, &raw); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return DecodeOperations(raw)
}

// DecodeOperations converts wire envelopes into a Batch, preserving order.
// The whole batch is rejected on the first bad entry.
func DecodeOperations(raw []RawOperation) (Batch, error) {
	ops := make([]Operation, 0, len(raw))
	for i, r := range raw {
		op, err := decodeOne(r)
		if err != nil {
			if errors.Is(err, ErrUnsupportedOperation) {
				return Batch{}, err
			}
			return Batch{}, fmt.Errorf("operation %d (%s): %w", i, r.Type, err)
		}
		ops = append(ops, op)
	}
	return Batch{ops: ops}, nil
}

func decodeOne(r RawOperation) (Operation, error) {
	switch Kind(r.Type) {
	case KindRemove:
		var p removePayload
		if err := unmarshalPayload(r.Payload, &p); err != nil {
			return nil, err
		}
		if p.IDs == nil {
			return nil, fmt.Errorf("%w: missing ids", ErrMalformedPayload)
		}
		return NewRemoveByIDs(p.IDs...), nil

	case KindRemoveForThreads:
		var p removeForThreadsPayload
		if err := unmarshalPayload(r.Payload, &p); err != nil {
			return nil, err
		}
		if p.ThreadIDs == nil {
			return nil, fmt.Errorf("%w: missing threadIDs", ErrMalformedPayload)
		}
		return NewRemoveByThreadIDs(p.ThreadIDs...), nil

	case KindReplace:
		var p replacePayload
		if err := unmarshalPayload(r.Payload, &p); err != nil {
			return nil, err
		}
		return p.toOperation()

	case KindRekey:
		var p rekeyPayload
		if err := unmarshalPayload(r.Payload, &p); err != nil {
			return nil, err
		}
		if p.From == nil || p.To == nil {
			return nil, fmt.Errorf("%w: rekey requires from and to", ErrMalformedPayload)
		}
		return NewRekeyThread(*p.From, *p.To), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, r.Type)
	}
}

func unmarshalPayload(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("%w: missing payload", ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func (p replacePayload) toOperation() (Operation, error) {
	switch {
	case p.ID == nil:
		return nil, fmt.Errorf("%w: missing id", ErrMalformedPayload)
	case p.Thread == nil:
		return nil, fmt.Errorf("%w: missing thread", ErrMalformedPayload)
	case p.User == nil:
		return nil, fmt.Errorf("%w: missing user", ErrMalformedPayload)
	case p.Type == nil:
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	case p.Time == nil:
		return nil, fmt.Errorf("%w: missing time", ErrMalformedPayload)
	}

	msgType, err := p.Type.int64("type")
	if err != nil {
		return nil, err
	}
	msgTime, err := p.Time.int64("time")
	if err != nil {
		return nil, err
	}

	msg := store.Message{
		ID:     *p.ID,
		Thread: *p.Thread,
		User:   *p.User,
		Type:   msgType,
		Time:   msgTime,
	}
	if p.LocalID != nil {
		msg.LocalID = sql.Null[string]{V: *p.LocalID, Valid: true}
	}
	if p.Content != nil {
		msg.Content = sql.Null[string]{V: *p.Content, Valid: true}
	}
	if p.FutureType != nil {
		ft, err := p.FutureType.int64("future_type")
		if err != nil {
			return nil, err
		}
		msg.FutureType = sql.Null[int64]{V: ft, Valid: true}
	}

	var media []store.Media
	if p.MediaInfos != nil {
		media = make([]store.Media, 0, len(*p.MediaInfos))
		for _, mi := range *p.MediaInfos {
			media = append(media, store.Media{
				ID:        mi.ID,
				Container: msg.ID,
				Thread:    msg.Thread,
				URI:       mi.URI,
				Type:      mi.Type,
				Extras:    mi.Extras,
			})
		}
	}

	return NewReplaceMessage(msg, media), nil
}
