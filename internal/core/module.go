// ABOUTME: Module is the public operation surface; every call returns a promise
// ABOUTME: Routes storage, crypto and network work to their workers and settles on the caller loop

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/2389/comm-core/internal/account"
	"github.com/2389/comm-core/internal/bridge"
	"github.com/2389/comm-core/internal/messageops"
	"github.com/2389/comm-core/internal/network"
	"github.com/2389/comm-core/internal/securestore"
	"github.com/2389/comm-core/internal/store"
	"github.com/2389/comm-core/internal/worker"
)

// Deps are the collaborators a Module drives. The caller keeps ownership of
// Store and SecureStore; Module.Close does not close them.
type Deps struct {
	Store       store.Store
	SecureStore securestore.SecureStore
	Invoker     bridge.Invoker
	Logger      *slog.Logger
}

// Options tune a Module.
type Options struct {
	// Synchronous runs every task inline instead of on worker goroutines.
	Synchronous bool
	Account     account.Options
	NetworkPort int
}

// Module dispatches public operations to workers.
type Module struct {
	store   store.Store
	bridge  *bridge.Bridge
	pool    *worker.Pool
	account *account.Orchestrator
	opts    Options
	logger  *slog.Logger

	// network is only touched from the network worker, and from Close once
	// the workers have stopped.
	network *network.Client

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New builds a Module and starts its workers.
func New(deps Deps, opts Options) (*Module, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.SecureStore == nil {
		return nil, errors.New("secure store is required")
	}
	if deps.Invoker == nil {
		return nil, errors.New("invoker is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool := worker.NewPool(opts.Synchronous, logger)
	pool.Init()

	m := &Module{
		store:   deps.Store,
		bridge:  bridge.New(deps.Invoker, logger),
		pool:    pool,
		account: account.New(deps.SecureStore, deps.Store, pool.Get(worker.Storage), opts.Account, logger),
		opts:    opts,
		logger:  logger.With("component", "core"),
	}
	return m, nil
}

// run schedules fn on the worker for s. After Close every call rejects,
// including in synchronous mode where there is no worker to refuse it.
func run[T any](m *Module, s worker.Subsystem, fn func() (T, error)) *bridge.Promise[T] {
	if m.closed.Load() {
		return bridge.Reject[T](m.bridge, fmt.Errorf("%s worker: %w", s, worker.ErrClosed))
	}
	return bridge.Run(m.bridge, m.pool.Get(s), fn)
}

// storage schedules fn on the storage worker, tagging failures as store errors.
func storage[T any](m *Module, op string, fn func(ctx context.Context) (T, error)) *bridge.Promise[T] {
	return run(m, worker.Storage, func() (T, error) {
		v, err := fn(context.Background())
		return v, storeErr(op, err)
	})
}

// GetDraft resolves with the draft for key, or "" when there is none.
func (m *Module) GetDraft(key string) *bridge.Promise[string] {
	return storage(m, "get draft", func(ctx context.Context) (string, error) {
		return m.store.GetDraft(ctx, key)
	})
}

// UpdateDraft upserts a draft and resolves true.
func (m *Module) UpdateDraft(key, text string) *bridge.Promise[bool] {
	return storage(m, "update draft", func(ctx context.Context) (bool, error) {
		if err := m.store.UpdateDraft(ctx, key, text); err != nil {
			return false, err
		}
		return true, nil
	})
}

// MoveDraft moves a draft to newKey, resolving false when oldKey has none.
func (m *Module) MoveDraft(oldKey, newKey string) *bridge.Promise[bool] {
	return storage(m, "move draft", func(ctx context.Context) (bool, error) {
		return m.store.MoveDraft(ctx, oldKey, newKey)
	})
}

// GetAllDrafts resolves with every draft that has text. Never nil.
func (m *Module) GetAllDrafts() *bridge.Promise[[]store.Draft] {
	return storage(m, "get all drafts", func(ctx context.Context) ([]store.Draft, error) {
		drafts, err := m.store.GetAllDrafts(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]store.Draft, 0, len(drafts))
		for _, d := range drafts {
			if d.Text != "" {
				out = append(out, d)
			}
		}
		return out, nil
	})
}

// RemoveAllDrafts deletes every draft.
func (m *Module) RemoveAllDrafts() *bridge.Promise[struct{}] {
	return storage(m, "remove all drafts", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.store.RemoveAllDrafts(ctx)
	})
}

// GetAllMessages resolves with every message, never nil.
func (m *Module) GetAllMessages() *bridge.Promise[[]store.Message] {
	return storage(m, "get all messages", func(ctx context.Context) ([]store.Message, error) {
		messages, err := m.store.GetAllMessages(ctx)
		if err != nil {
			return nil, err
		}
		if messages == nil {
			messages = []store.Message{}
		}
		return messages, nil
	})
}

// RemoveAllMessages deletes every message and its media.
func (m *Module) RemoveAllMessages() *bridge.Promise[struct{}] {
	return storage(m, "remove all messages", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.store.RemoveAllMessages(ctx)
	})
}

// ProcessMessageStoreOperations decodes a JSON operation list and applies it
// as one batch. Decoding happens here, on the caller, so a bad payload is
// rejected without scheduling anything or opening a transaction.
func (m *Module) ProcessMessageStoreOperations(payload []byte) *bridge.Promise[struct{}] {
	batch, err := messageops.Decode(payload)
	if err != nil {
		m.logger.Warn("rejected message store operations", "error", err)
		return bridge.Reject[struct{}](m.bridge, err)
	}
	return m.ApplyBatch(batch)
}

// ApplyBatch applies an already built batch on the storage worker.
func (m *Module) ApplyBatch(batch messageops.Batch) *bridge.Promise[struct{}] {
	return storage(m, "process message store operations", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, messageops.ApplyBatch(ctx, m.store, batch)
	})
}

// InitializeCryptoAccount bootstraps the identity for userID on the crypto
// worker. Store reads and writes inside it hop to the storage worker.
func (m *Module) InitializeCryptoAccount(userID string) *bridge.Promise[struct{}] {
	return run(m, worker.Crypto, func() (struct{}, error) {
		return struct{}{}, m.account.Initialize(context.Background(), userID)
	})
}

// GetUserPublicKey resolves with the identity keys JSON.
func (m *Module) GetUserPublicKey() *bridge.Promise[string] {
	return run(m, worker.Crypto, m.account.IdentityKeys)
}

// GetUserOneTimeKeys resolves with the one-time keys JSON.
func (m *Module) GetUserOneTimeKeys() *bridge.Promise[string] {
	return run(m, worker.Crypto, m.account.OneTimeKeys)
}

// InitializeNetworkModule builds the relay client on the network worker,
// replacing any previous one.
func (m *Module) InitializeNetworkModule(userID, deviceToken, hostname string) *bridge.Promise[struct{}] {
	opts := network.Options{
		UserID:      userID,
		DeviceToken: deviceToken,
		Hostname:    hostname,
		Port:        m.opts.NetworkPort,
	}
	return run(m, worker.Network, func() (struct{}, error) {
		client, err := network.New(opts, m.logger)
		if err != nil {
			return struct{}{}, fmt.Errorf("initializing network module: %w", err)
		}
		if m.network != nil {
			if err := m.network.Close(); err != nil {
				m.logger.Warn("closing previous network client", "error", err)
			}
		}
		m.network = client
		return struct{}{}, nil
	})
}

// CheckNetworkHealth runs one health check against the relay on the network worker.
func (m *Module) CheckNetworkHealth(ctx context.Context) *bridge.Promise[struct{}] {
	return run(m, worker.Network, func() (struct{}, error) {
		if m.network == nil {
			return struct{}{}, ErrNetworkNotInitialized
		}
		return struct{}{}, m.network.CheckHealth(ctx)
	})
}

// Close stops the workers after their queues drain, then closes the network
// client. Promises scheduled after Close reject.
func (m *Module) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.pool.Close()
		if m.network != nil {
			m.closeErr = m.network.Close()
		}
		m.logger.Info("core module closed")
	})
	return m.closeErr
}
