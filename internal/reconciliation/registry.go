package reconciliation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/sirupsen/logrus"
)

type viewKey struct {
	session string
	screen  models.Screen
}

type registryEntry struct {
	engine  *Engine
	session string
}

// Registry holds one engine per open view (session + screen). Opening a view
// again tears the previous engine down first, like a page reload.
type Registry struct {
	mu      sync.Mutex
	engines map[uuid.UUID]*registryEntry
	views   map[viewKey]uuid.UUID

	gateway  Gateway
	policies map[models.Screen]Policy
	logger   *logrus.Logger
	opts     []Option
}

// NewRegistry creates a registry; opts are applied to every engine it creates
func NewRegistry(gateway Gateway, policies map[models.Screen]Policy, logger *logrus.Logger, opts ...Option) *Registry {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		engines:  make(map[uuid.UUID]*registryEntry),
		views:    make(map[viewKey]uuid.UUID),
		gateway:  gateway,
		policies: policies,
		logger:   logger,
		opts:     opts,
	}
}

// Open starts a reconciliation for the session's screen. ctx carries values
// (e.g. the bearer token) for the engine's lookups; its cancellation is ignored.
func (r *Registry) Open(ctx context.Context, session string, screen models.Screen, ref models.PaymentReference) (*Engine, error) {
	policy, ok := r.policies[screen]
	if !ok {
		return nil, fmt.Errorf("no reconciliation policy for screen %q", screen)
	}

	opts := append([]Option{}, r.opts...)
	opts = append(opts,
		WithScreen(screen),
		WithLogger(r.logger),
		WithContext(context.WithoutCancel(ctx)),
	)
	engine := NewEngine(r.gateway, policy, opts...)

	key := viewKey{session: session, screen: screen}
	r.mu.Lock()
	var previous *Engine
	if id, exists := r.views[key]; exists {
		if entry, found := r.engines[id]; found {
			previous = entry.engine
		}
		delete(r.engines, id)
	}
	r.engines[engine.ID()] = &registryEntry{engine: engine, session: session}
	r.views[key] = engine.ID()
	r.mu.Unlock()

	if previous != nil {
		previous.Cancel()
	}

	if err := engine.Start(ref); err != nil {
		r.Close(engine.ID())
		return nil, err
	}
	return engine, nil
}

// Get returns the engine with id if it belongs to session
func (r *Registry) Get(id uuid.UUID, session string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.engines[id]
	if !ok || entry.session != session {
		return nil, false
	}
	return entry.engine, true
}

// Close cancels and forgets the engine with id
func (r *Registry) Close(id uuid.UUID) bool {
	r.mu.Lock()
	entry, ok := r.engines[id]
	if ok {
		delete(r.engines, id)
		key := viewKey{session: entry.session, screen: entry.engine.Screen()}
		if r.views[key] == id {
			delete(r.views, key)
		}
	}
	r.mu.Unlock()

	if ok {
		entry.engine.Cancel()
	}
	return ok
}

// Sweep cancels and forgets engines created more than maxAge before now
func (r *Registry) Sweep(now time.Time, maxAge time.Duration) int {
	r.mu.Lock()
	var stale []uuid.UUID
	for id, entry := range r.engines {
		if now.Sub(entry.engine.CreatedAt()) > maxAge {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.Close(id)
	}
	if len(stale) > 0 {
		r.logger.WithFields(logrus.Fields{
			"swept":   len(stale),
			"max_age": maxAge.String(),
		}).Info("Swept abandoned reconciliations")
	}
	return len(stale)
}

// Len returns the number of tracked engines
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// CloseAll cancels every engine, used on shutdown
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Close(id)
	}
}
