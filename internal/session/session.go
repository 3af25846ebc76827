// Package session tracks connected users: nick, id, current channel, and
// last-activity timestamp. The registry enforces nick uniqueness across live
// sessions and reaps sessions idle beyond the timeout.
package session

import (
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/parley/chat-server/internal/channel"
)

// MaxNickLength is the maximum accepted nick length.
const MaxNickLength = 50

var (
	// ErrInvalidNick is returned when a nick is empty, too long, or contains
	// characters outside the allowed set.
	ErrInvalidNick = errors.New("session: invalid nick")

	// ErrNickTaken is returned when another live session already holds the nick.
	ErrNickTaken = errors.New("session: nick in use")
)

// nickRe accepts word characters plus _ - ^ ! up to MaxNickLength.
var nickRe = regexp.MustCompile(`^[\w\-^!]{1,50}$`)

// ValidateNick reports whether a nick is acceptable for a new session.
func ValidateNick(nick string) error {
	if !nickRe.MatchString(nick) {
		return ErrInvalidNick
	}
	return nil
}

// Session is one live client identity. A session belongs to exactly one
// channel at a time; the channel reference is reassigned on switch. ID and
// Nick never change after creation.
type Session struct {
	ID   string
	Nick string

	mu           sync.Mutex
	channel      *channel.Channel
	lastActivity time.Time
}

// Channel returns the session's current channel.
func (s *Session) Channel() *channel.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *Session) setChannel(c *channel.Channel) {
	s.mu.Lock()
	s.channel = c
	s.mu.Unlock()
}

// Poke stamps the session as active now. Called on every successful client
// action addressed to the session.
func (s *Session) Poke() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the time of the session's most recent client action.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}
