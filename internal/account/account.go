// ABOUTME: Crypto account bootstrap: secret key, persisted state load, fresh or restore, persist-back
// ABOUTME: Runs on the crypto worker and reaches the store through nested storage worker calls

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/2389/comm-core/internal/crypto"
	"github.com/2389/comm-core/internal/securestore"
	"github.com/2389/comm-core/internal/store"
	"github.com/2389/comm-core/internal/worker"
)

// ErrNotInitialized is returned by key exports before the identity is Ready.
var ErrNotInitialized = errors.New("user has not been initialized")

// DefaultSecretKeyName is the secure store key holding the account secret.
const DefaultSecretKeyName = "comm.encryptionKey"

// DefaultSecretLength is the length of a generated secret key.
const DefaultSecretLength = 64

// State is a bootstrap stage.
type State int

const (
	StateUninitialized State = iota
	StateKeyPending
	StateLoaded
	StateFreshConstruct
	StatePersisted
	StateRestoreConstruct
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateKeyPending:
		return "key_pending"
	case StateLoaded:
		return "state_loaded"
	case StateFreshConstruct:
		return "fresh_construct"
	case StatePersisted:
		return "persisted"
	case StateRestoreConstruct:
		return "restore_construct"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options tunes the bootstrap. Zero values take the defaults.
type Options struct {
	SecretKeyName string
	SecretLength  int
	OneTimeKeys   int
}

func (o Options) withDefaults() Options {
	if o.SecretKeyName == "" {
		o.SecretKeyName = DefaultSecretKeyName
	}
	if o.SecretLength <= 0 {
		o.SecretLength = DefaultSecretLength
	}
	if o.OneTimeKeys <= 0 {
		o.OneTimeKeys = crypto.DefaultOneTimeKeys
	}
	return o
}

// Orchestrator owns the crypto identity. Every method must be called from
// the crypto worker; the store is only touched through the storage worker.
type Orchestrator struct {
	secure  securestore.SecureStore
	store   store.CryptoStore
	storage *worker.Worker
	opts    Options
	logger  *slog.Logger

	state       State
	userID      string
	module      *crypto.Module
	transitions []State
}

// New creates an orchestrator. storage may be nil in synchronous mode.
func New(secure securestore.SecureStore, st store.CryptoStore, storage *worker.Worker, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		secure:  secure,
		store:   st,
		storage: storage,
		opts:    opts.withDefaults(),
		logger:  logger.With("component", "account"),
	}
}

// State returns the current bootstrap stage.
func (o *Orchestrator) State() State {
	return o.state
}

// Transitions returns the stages visited by the most recent Initialize call.
func (o *Orchestrator) Transitions() []State {
	return slices.Clone(o.transitions)
}

// UserID returns the user of the Ready identity, or "".
func (o *Orchestrator) UserID() string {
	if o.state != StateReady {
		return ""
	}
	return o.userID
}

func (o *Orchestrator) enter(s State) {
	o.state = s
	o.transitions = append(o.transitions, s)
	o.logger.Debug("bootstrap transition", "user_id", o.userID, "state", s.String())
}

// fail resets to Uninitialized so the next attempt starts from scratch.
func (o *Orchestrator) fail(err error) error {
	o.logger.Warn("crypto account bootstrap failed", "user_id", o.userID, "state", o.state.String(), "error", err)
	o.state = StateUninitialized
	o.module = nil
	o.userID = ""
	return err
}

// Initialize bootstraps the identity for userID. Once Ready, calling it again
// for the same user is a no-op and calling it for another user is an error.
func (o *Orchestrator) Initialize(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if o.state == StateReady {
		if userID == o.userID {
			return nil
		}
		return fmt.Errorf("crypto account already initialized for %s", o.userID)
	}

	o.transitions = nil
	o.userID = userID

	o.enter(StateKeyPending)
	secret, err := o.secretKey()
	if err != nil {
		return o.fail(err)
	}

	persist, err := worker.Call(o.storage, func() (store.OlmPersist, error) {
		return o.loadPersist(ctx)
	})
	if err != nil {
		return o.fail(fmt.Errorf("loading crypto state: %w", err))
	}
	o.enter(StateLoaded)

	var module *crypto.Module
	path := "restore"
	if persist.IsEmpty() {
		path = "fresh"
		o.enter(StateFreshConstruct)
		module, err = crypto.New(userID, o.opts.OneTimeKeys)
		if err != nil {
			return o.fail(fmt.Errorf("creating crypto account: %w", err))
		}
		fresh, err := module.Persist(secret)
		if err != nil {
			return o.fail(fmt.Errorf("serializing crypto account: %w", err))
		}
		if _, err := worker.Call(o.storage, func() (struct{}, error) {
			return struct{}{}, o.store.StoreOlmPersistData(ctx, fresh)
		}); err != nil {
			return o.fail(fmt.Errorf("persisting crypto account: %w", err))
		}
		o.enter(StatePersisted)
	} else {
		o.enter(StateRestoreConstruct)
		module, err = crypto.Restore(userID, secret, persist)
		if err != nil {
			return o.fail(fmt.Errorf("restoring crypto account: %w", err))
		}
	}

	o.module = module
	o.enter(StateReady)
	o.logger.Info("crypto account ready", "user_id", userID, "path", path)
	return nil
}

// secretKey reads the account secret, generating and storing one on first use.
func (o *Orchestrator) secretKey() (string, error) {
	secret, ok, err := o.secure.Get(o.opts.SecretKeyName)
	if err != nil {
		return "", fmt.Errorf("reading secret key: %w", err)
	}
	if ok && secret != "" {
		return secret, nil
	}

	secret, err = crypto.GenerateRandomString(o.opts.SecretLength)
	if err != nil {
		return "", fmt.Errorf("generating secret key: %w", err)
	}
	if err := o.secure.Set(o.opts.SecretKeyName, secret); err != nil {
		return "", fmt.Errorf("storing secret key: %w", err)
	}
	o.logger.Info("generated new account secret key", "key", o.opts.SecretKeyName)
	return secret, nil
}

// loadPersist runs on the storage worker. Sessions are only read when an
// account row exists; an existing but empty row still counts as empty state.
func (o *Orchestrator) loadPersist(ctx context.Context) (store.OlmPersist, error) {
	acct, found, err := o.store.GetOlmPersistAccountData(ctx)
	if err != nil {
		return store.OlmPersist{}, err
	}
	if !found {
		return store.OlmPersist{}, nil
	}

	rows, err := o.store.GetOlmPersistSessionsData(ctx)
	if err != nil {
		return store.OlmPersist{}, err
	}
	sessions := make(map[string][]byte, len(rows))
	for _, r := range rows {
		sessions[r.TargetUserID] = r.SessionData
	}
	return store.OlmPersist{Account: acct, Sessions: sessions}, nil
}

// IdentityKeys exports the identity keys of the Ready identity.
func (o *Orchestrator) IdentityKeys() (string, error) {
	if o.state != StateReady {
		return "", ErrNotInitialized
	}
	return o.module.IdentityKeys()
}

// OneTimeKeys exports the one-time keys of the Ready identity.
func (o *Orchestrator) OneTimeKeys() (string, error) {
	if o.state != StateReady {
		return "", ErrNotInitialized
	}
	return o.module.OneTimeKeys()
}
