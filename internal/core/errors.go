// ABOUTME: Error categories surfaced by the facade
// ABOUTME: StoreError tags collaborator failures; Classify maps any rejection to an ErrorKind

package core

import (
	"errors"

	"github.com/2389/comm-core/internal/account"
	"github.com/2389/comm-core/internal/messageops"
)

// ErrNetworkNotInitialized is returned by network calls before InitializeNetworkModule.
var ErrNetworkNotInitialized = errors.New("network module has not been initialized")

// StoreError wraps a failure from the persistent store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// ErrorKind is the category of a rejected operation.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindStore
	KindNotInitialized
	KindUnsupportedOperation
	KindMalformedPayload
)

func (k ErrorKind) String() string {
	switch k {
	case KindStore:
		return "store"
	case KindNotInitialized:
		return "not-initialized"
	case KindUnsupportedOperation:
		return "unsupported-operation"
	case KindMalformedPayload:
		return "malformed-payload"
	default:
		return "unknown"
	}
}

// Classify returns the category of err.
func Classify(err error) ErrorKind {
	var se *StoreError
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, messageops.ErrUnsupportedOperation):
		return KindUnsupportedOperation
	case errors.Is(err, messageops.ErrMalformedPayload):
		return KindMalformedPayload
	case errors.Is(err, account.ErrNotInitialized), errors.Is(err, ErrNetworkNotInitialized):
		return KindNotInitialized
	case errors.As(err, &se):
		return KindStore
	default:
		return KindUnknown
	}
}
