// ABOUTME: Per-subsystem worker pool for storage, crypto and network
// ABOUTME: Initialized once and idempotently; synchronous mode runs every task inline

package worker

import (
	"log/slog"
	"slices"
	"sync"
)

// Subsystem names a dedicated worker.
type Subsystem string

const (
	Storage Subsystem = "database"
	Crypto  Subsystem = "crypto"
	Network Subsystem = "network"
)

// Subsystems lists every worker the pool owns, in start order.
var Subsystems = []Subsystem{Storage, Crypto, Network}

// Pool owns the long-lived workers. Workers are created by Init, at most once.
type Pool struct {
	synchronous bool
	logger      *slog.Logger

	once    sync.Once
	mu      sync.RWMutex
	workers map[Subsystem]*Worker
	closed  bool
}

// NewPool creates an uninitialized pool. With synchronous set, Init creates no
// goroutines and Get returns nil, so every task runs inline on the scheduler.
func NewPool(synchronous bool, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		synchronous: synchronous,
		logger:      logger.With("component", "pool"),
		workers:     make(map[Subsystem]*Worker),
	}
}

// Init starts one worker per subsystem. Repeated calls are no-ops.
func (p *Pool) Init() {
	p.once.Do(func() {
		if p.synchronous {
			p.logger.Info("worker pool running in synchronous mode")
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		for _, s := range Subsystems {
			p.workers[s] = New(string(s), p.logger)
		}
		p.logger.Info("worker pool initialized", "workers", len(p.workers))
	})
}

// Get returns the worker for s, or nil when running synchronously or before Init.
func (p *Pool) Get(s Subsystem) *Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.workers[s]
}

// Close stops every worker after its queue drains, in reverse start order.
// Crypto tasks hop onto the storage worker, so storage must outlive crypto.
// Safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	workers := make([]*Worker, 0, len(p.workers))
	for _, s := range slices.Backward(Subsystems) {
		if w, ok := p.workers[s]; ok {
			workers = append(workers, w)
		}
	}
	p.mu.Unlock()

	for _, w := range workers {
		w.Close()
	}
	p.logger.Info("worker pool closed")
}
