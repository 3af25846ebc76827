// Package channel implements the message-delivery core: each channel owns one
// named append-only message stream plus a queue of parked long-poll waiters.
// Appends wake every parked waiter with the new message; a per-channel reaper
// expires waiters that have been parked longer than the grace period.
package channel

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/parley/chat-server/internal/logstore"
	"github.com/parley/chat-server/internal/metrics"
	"github.com/parley/chat-server/internal/protocol"
)

// DefaultChannelName is the channel every new session starts in and the
// fallback destination for /leave.
const DefaultChannelName = "default"

// MessageBacklog is the nominal number of recent messages a client is
// expected to page through when catching up. The log itself is never
// trimmed to this size.
const MessageBacklog = 200

// Publisher receives every successfully appended message for downstream
// consumers (archiver, moderation). Publishing is best effort: failures are
// logged and never fail the append.
type Publisher interface {
	PublishMessage(channel string, data []byte) error
}

// Config holds tunable parameters for channel waiter handling.
type Config struct {
	WaiterTTL     time.Duration // how long a waiter may stay parked
	SweepInterval time.Duration // how often the reaper scans the queue
}

// DefaultConfig returns the production defaults: waiters hang around for at
// most 30 seconds, swept once per second.
func DefaultConfig() Config {
	return Config{
		WaiterTTL:     30 * time.Second,
		SweepInterval: 1 * time.Second,
	}
}

// waiter is one parked long-poll request. deliver is invoked exactly once:
// with the newly appended message, or with an empty slice on timeout.
type waiter struct {
	registeredAt time.Time
	deliver      func([]protocol.Message)
}

// Channel is a named, independently ordered message stream. All log access
// and waiter-queue mutation happens under mu, so a waiter registered while an
// append is in flight is either drained by that append or parked for the
// next one — never lost.
type Channel struct {
	name   string
	store  logstore.Log
	pub    Publisher
	config Config

	mu      sync.Mutex
	waiters []waiter

	done     chan struct{}
	stopOnce sync.Once
}

func newChannel(name string, store logstore.Log, pub Publisher, config Config) *Channel {
	return &Channel{
		name:   name,
		store:  store,
		pub:    pub,
		config: config,
		done:   make(chan struct{}),
	}
}

// Name returns the channel's unique name.
func (c *Channel) Name() string {
	return c.name
}

// Append reads the current log length, constructs a message with that length
// as its index, appends it to the log store, and then drains all parked
// waiters, delivering exactly the new message to each. The whole sequence
// runs under the channel mutex. A log store failure fails the append and
// leaves the waiter queue untouched.
func (c *Channel) Append(ctx context.Context, nick, msgType, text string) (protocol.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	length, err := c.store.Len(ctx, c.name)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("channel %s: length: %w", c.name, err)
	}

	m := protocol.Message{
		Index:     length,
		Nick:      nick,
		Type:      msgType,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}

	data, err := protocol.Encode(m)
	if err != nil {
		return protocol.Message{}, err
	}

	if err := c.store.Append(ctx, c.name, data); err != nil {
		return protocol.Message{}, fmt.Errorf("channel %s: append: %w", c.name, err)
	}

	// Drain every parked waiter, not just those whose watermark the new
	// message satisfies.
	if n := len(c.waiters); n > 0 {
		for _, w := range c.waiters {
			w.deliver([]protocol.Message{m})
		}
		c.waiters = nil
		metrics.WaitersParked.Sub(float64(n))
	}

	metrics.MessagesTotal.WithLabelValues(msgType).Inc()

	if c.pub != nil {
		if err := c.pub.PublishMessage(c.name, data); err != nil {
			log.Printf("[channel] publish %s index=%d failed: %v", c.name, m.Index, err)
		}
	}

	return m, nil
}

// Query resolves a long-poll request. since is the caller's watermark: if at
// least one message beyond it exists, deliver is invoked immediately with the
// range [since, end] in index order. Otherwise the request is parked until
// the next append or the waiter reaper times it out with an empty slice.
func (c *Channel) Query(ctx context.Context, since int64, deliver func([]protocol.Message)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	length, err := c.store.Len(ctx, c.name)
	if err != nil {
		return fmt.Errorf("channel %s: length: %w", c.name, err)
	}

	if since < length-1 {
		entries, err := c.store.Range(ctx, c.name, since, logstore.End)
		if err != nil {
			return fmt.Errorf("channel %s: range: %w", c.name, err)
		}

		matching := make([]protocol.Message, 0, len(entries))
		for _, entry := range entries {
			m, err := protocol.Decode(entry)
			if err != nil {
				return fmt.Errorf("channel %s: %w", c.name, err)
			}
			matching = append(matching, m)
		}

		deliver(matching)
		return nil
	}

	c.waiters = append(c.waiters, waiter{registeredAt: time.Now(), deliver: deliver})
	metrics.WaitersParked.Inc()
	return nil
}

// WaiterCount reports the number of currently parked waiters.
func (c *Channel) WaiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// start launches the waiter reaper for the lifetime of the channel.
func (c *Channel) start() {
	go func() {
		ticker := time.NewTicker(c.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.sweepWaiters(time.Now())
			}
		}
	}()
}

// stop terminates the waiter reaper. Parked waiters are not resolved;
// channels normally live for the whole process and stop only at shutdown.
func (c *Channel) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// sweepWaiters expires waiters older than WaiterTTL, invoking deliver with an
// empty slice as the timeout signal. The queue is ordered by registration
// time, so the scan stops at the first waiter still within the grace period.
// Returns the number of waiters expired.
func (c *Channel) sweepWaiters(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := 0
	for len(c.waiters) > 0 && now.Sub(c.waiters[0].registeredAt) > c.config.WaiterTTL {
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		w.deliver([]protocol.Message{})
		expired++
	}

	if expired > 0 {
		metrics.WaitersParked.Sub(float64(expired))
		metrics.WaitersExpired.Add(float64(expired))
		log.Printf("[channel] %s: expired %d waiter(s)", c.name, expired)
	}
	return expired
}
