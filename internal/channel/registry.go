package channel

import (
	"sync"

	"github.com/parley/chat-server/internal/logstore"
	"github.com/parley/chat-server/internal/metrics"
)

// Registry creates and looks up channels by name. Channels are created on
// demand, never deleted, and each runs its own waiter reaper from creation
// until the registry is closed.
type Registry struct {
	store       logstore.Log
	pub         Publisher
	config      Config
	defaultName string

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRegistry creates a registry and seeds the default channel. pub may be
// nil when no downstream consumer is wired.
func NewRegistry(store logstore.Log, pub Publisher, defaultName string, config Config) *Registry {
	r := &Registry{
		store:       store,
		pub:         pub,
		config:      config,
		defaultName: defaultName,
		channels:    make(map[string]*Channel),
	}
	r.Get(defaultName)
	return r
}

// Get returns the channel with the given name, creating and starting it if
// it does not exist yet. Creation is idempotent under concurrent callers.
func (r *Registry) Get(name string) *Channel {
	r.mu.RLock()
	c, ok := r.channels[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock; another caller may have won the race.
	if c, ok := r.channels[name]; ok {
		return c
	}

	c = newChannel(name, r.store, r.pub, r.config)
	c.start()
	r.channels[name] = c
	metrics.ChannelsTotal.Inc()
	return c
}

// Default returns the default channel.
func (r *Registry) Default() *Channel {
	return r.Get(r.defaultName)
}

// DefaultName returns the default channel's name.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Count returns the number of channels created so far.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Close stops every channel's waiter reaper. Intended for process shutdown
// and tests; channels remain usable for appends afterwards.
func (r *Registry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.channels {
		c.stop()
	}
}
