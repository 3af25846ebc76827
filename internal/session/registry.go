package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley/chat-server/internal/channel"
	"github.com/parley/chat-server/internal/metrics"
	"github.com/parley/chat-server/internal/protocol"
)

// Config holds tunable parameters for session lifecycle handling.
type Config struct {
	IdleTimeout   time.Duration // how long a session may go without activity
	SweepInterval time.Duration // how often the idle reaper runs
}

// DefaultConfig returns the production defaults: sessions time out after 60
// seconds of inactivity, checked once per second.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   60 * time.Second,
		SweepInterval: 1 * time.Second,
	}
}

// Registry owns the live-session mapping. All session lifecycle operations
// (create, destroy, channel switch) go through it.
type Registry struct {
	channels *channel.Registry
	config   Config

	mu       sync.RWMutex
	sessions map[string]*Session

	done     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a session registry bound to the given channel registry.
func NewRegistry(channels *channel.Registry, config Config) *Registry {
	return &Registry{
		channels: channels,
		config:   config,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
}

// Create validates the nick, checks it against all live sessions, and on
// success registers a new session on the default channel with a fresh random
// id. The uniqueness scan and the insert happen under one lock, so two
// same-nick registrations cannot both succeed.
func (r *Registry) Create(nick string) (*Session, error) {
	if err := ValidateNick(nick); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.Nick == nick {
			return nil, ErrNickTaken
		}
	}

	s := &Session{
		ID:           uuid.New().String(),
		Nick:         nick,
		channel:      r.channels.Default(),
		lastActivity: time.Now(),
	}
	r.sessions[s.ID] = s
	metrics.SessionsLive.Inc()
	return s, nil
}

// Get returns the live session with the given id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Nicks returns the nicks of all live sessions, in no particular order.
func (r *Registry) Nicks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nicks := make([]string, 0, len(r.sessions))
	for _, s := range r.sessions {
		nicks = append(nicks, s.Nick)
	}
	return nicks
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Destroy appends a part message to the session's current channel, then
// removes the session from the live mapping. Removal is idempotent; a second
// call with a held handle posts a second part message, which is the known
// behavior for double-destroy.
func (r *Registry) Destroy(ctx context.Context, s *Session) error {
	_, appendErr := s.Channel().Append(ctx, s.Nick, protocol.TypePart, s.Nick+" parted")

	r.mu.Lock()
	if _, ok := r.sessions[s.ID]; ok {
		delete(r.sessions, s.ID)
		metrics.SessionsLive.Dec()
	}
	r.mu.Unlock()

	if appendErr != nil {
		return fmt.Errorf("session: destroy %s: %w", s.ID, appendErr)
	}
	return nil
}

// SwitchTo moves the session to the named channel. A part message (no text)
// lands on the old channel before the reassignment and a join message (no
// text) on the new one after it, so both events hit the correct log. Same
// channel name is a no-op.
func (r *Registry) SwitchTo(ctx context.Context, s *Session, channelName string) error {
	current := s.Channel()
	if current.Name() == channelName {
		return nil
	}

	if _, err := current.Append(ctx, s.Nick, protocol.TypePart, ""); err != nil {
		return fmt.Errorf("session: switch part: %w", err)
	}

	next := r.channels.Get(channelName)
	s.setChannel(next)

	if _, err := next.Append(ctx, s.Nick, protocol.TypeJoin, ""); err != nil {
		return fmt.Errorf("session: switch join: %w", err)
	}
	return nil
}

// Start launches the idle-session reaper for the lifetime of the process.
func (r *Registry) Start() {
	go func() {
		ticker := time.NewTicker(r.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
				r.sweepIdle(context.Background(), time.Now())
			}
		}
	}()
}

// Stop terminates the idle reaper.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// sweepIdle destroys every session idle longer than IdleTimeout. Sessions
// removed between the scan and the destroy are skipped. Errors from the part
// append are logged, never propagated. Returns the number of sessions reaped.
func (r *Registry) sweepIdle(ctx context.Context, now time.Time) int {
	r.mu.RLock()
	var expired []*Session
	for _, s := range r.sessions {
		if now.Sub(s.LastActivity()) > r.config.IdleTimeout {
			expired = append(expired, s)
		}
	}
	r.mu.RUnlock()

	reaped := 0
	for _, s := range expired {
		r.mu.RLock()
		_, live := r.sessions[s.ID]
		r.mu.RUnlock()
		if !live {
			continue
		}

		if err := r.Destroy(ctx, s); err != nil {
			log.Printf("[session] reap %s (%s): %v", s.ID, s.Nick, err)
		}
		reaped++
	}

	if reaped > 0 {
		metrics.SessionsReaped.Add(float64(reaped))
		log.Printf("[session] reaped %d idle session(s)", reaped)
	}
	return reaped
}
