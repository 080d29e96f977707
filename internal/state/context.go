// Package state owns the shared application context: configuration, the
// durable store handle, the reasoning runtime, and the in-memory intent
// queue behind its reader/writer lock.
package state

import (
	"sync"

	"telos/internal/agent"
	"telos/internal/config"
	"telos/internal/queue"
	"telos/internal/store"
	"telos/internal/types"
)

// AppContext is passed by handle to the orchestrator and to every
// submission path. The queue is reachable outside the orchestrator only
// through the push methods; pops are the orchestrator's alone. The lock is
// never held across an awaited operation.
type AppContext struct {
	cfg   *config.Config
	store *store.Store
	agent *agent.Runtime

	mu      sync.RWMutex
	intents queue.IntentQueue
}

// New builds an AppContext around loaded configuration, an opened store and
// a constructed agent runtime.
func New(cfg *config.Config, st *store.Store, rt *agent.Runtime) *AppContext {
	return &AppContext{cfg: cfg, store: st, agent: rt}
}

// Config returns the loaded configuration.
func (c *AppContext) Config() *config.Config {
	return c.cfg
}

// Store returns the durable record store.
func (c *AppContext) Store() *store.Store {
	return c.store
}

// Agent returns the reasoning runtime.
func (c *AppContext) Agent() *agent.Runtime {
	return c.agent
}

// PushIntent appends an intent to the back of the queue.
func (c *AppContext) PushIntent(intent types.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents.Push(intent)
}

// PushFrontIntent inserts a failed-but-retriable intent at the front of the
// queue so it is retried before anything ingested later.
func (c *AppContext) PushFrontIntent(intent types.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents.PushFront(intent)
}

// PopNextIntent removes and returns the front intent, if any.
func (c *AppContext) PopNextIntent() (types.Intent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intents.PopNext()
}

// BacklogSize reports how many intents are currently queued.
func (c *AppContext) BacklogSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.intents.Len()
}
