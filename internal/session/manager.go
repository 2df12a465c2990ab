package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"eyecheck-web/internal/form"
)

// SnapshotStore persists form snapshots outside the process.
type SnapshotStore interface {
	Save(ctx context.Context, id string, snap form.Snapshot) error
	Load(ctx context.Context, id string) (form.Snapshot, bool, error)
	Delete(ctx context.Context, id string) error
}

type Config struct {
	MaxSessions int
	TTL         time.Duration
	// Store is optional. Without it sessions live only in this process.
	Store  SnapshotStore
	Form   form.Options
	Logger *slog.Logger
}

// Manager hands out one form controller per session id. Controllers idle for
// longer than the TTL, or pushed out by MaxSessions, are closed.
type Manager struct {
	mu         sync.Mutex
	classifier form.Classifier
	cfg        Config
	logger     *slog.Logger
	cache      *expirable.LRU[string, *form.Controller]
}

const storeTimeout = 2 * time.Second

func NewManager(classifier form.Classifier, cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}
	m.cache = expirable.NewLRU[string, *form.Controller](cfg.MaxSessions, m.onEvict, cfg.TTL)
	return m
}

// Controller returns the controller for id, restoring it from the store or
// creating a fresh one when needed. The store is read without holding the
// manager lock.
func (m *Manager) Controller(ctx context.Context, id string) *form.Controller {
	if c, ok := m.cached(id); ok {
		return c
	}

	snap, restored := m.load(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()

	// another request for the same session may have won the race
	if c, ok := m.cache.Get(id); ok {
		m.cache.Add(id, c)
		return c
	}

	opts := m.cfg.Form
	opts.Logger = m.logger.With("session", id)
	if m.cfg.Store != nil {
		opts.Observer = m.saver(id)
	}

	var c *form.Controller
	if restored {
		c = form.Restore(m.classifier, snap, opts)
		m.logger.Debug("session restored", "session", id)
	} else {
		c = form.NewController(m.classifier, opts)
		m.logger.Debug("session created", "session", id)
	}
	m.cache.Add(id, c)
	return c
}

func (m *Manager) cached(id string) (*form.Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.cache.Get(id); ok {
		// re-adding refreshes the idle deadline
		m.cache.Add(id, c)
		return c, true
	}
	// an expired entry is still held until the sweeper runs; close it now
	m.cache.Remove(id)
	return nil, false
}

// Discard drops a session that will not be used again: its controller is
// closed and its snapshot deleted from the store.
func (m *Manager) Discard(ctx context.Context, id string) {
	m.mu.Lock()
	m.cache.Remove(id)
	m.mu.Unlock()

	if m.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := m.cfg.Store.Delete(ctx, id); err != nil {
		m.logger.Warn("delete session snapshot failed", "session", id, "error", err)
		return
	}
	m.logger.Debug("session discarded", "session", id)
}

func (m *Manager) Len() int {
	return m.cache.Len()
}

// Close evicts every session, closing its controller.
func (m *Manager) Close() {
	m.cache.Purge()
}

func (m *Manager) load(ctx context.Context, id string) (form.Snapshot, bool) {
	if m.cfg.Store == nil {
		return form.Snapshot{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	snap, ok, err := m.cfg.Store.Load(ctx, id)
	if err != nil {
		m.logger.Warn("load session snapshot failed", "session", id, "error", err)
		return form.Snapshot{}, false
	}
	return snap, ok
}

func (m *Manager) saver(id string) func(form.Snapshot) {
	return func(snap form.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := m.cfg.Store.Save(ctx, id, snap); err != nil {
			m.logger.Warn("save session snapshot failed", "session", id, "error", err)
		}
	}
}

func (m *Manager) onEvict(id string, c *form.Controller) {
	c.Close()
	m.logger.Debug("session evicted", "session", id)
}
