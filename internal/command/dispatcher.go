// Package command parses the slash-command syntax out of posted text and
// routes recognized commands to channel-switch operations. Text that is not
// a command is appended to the session's channel as a normal message.
package command

import (
	"context"
	"regexp"
	"strings"

	"github.com/parley/chat-server/internal/protocol"
	"github.com/parley/chat-server/internal/session"
)

// commandRe matches a leading slash, a command word, and an optional
// whitespace-separated argument tail.
var commandRe = regexp.MustCompile(`^/(\S+)\s*(.*)$`)

// Dispatcher routes posted text to either a command handler or a plain
// message append.
type Dispatcher struct {
	sessions       *session.Registry
	defaultChannel string
}

// NewDispatcher creates a dispatcher bound to the given session registry.
// defaultChannel is the destination for /leave.
func NewDispatcher(sessions *session.Registry, defaultChannel string) *Dispatcher {
	return &Dispatcher{
		sessions:       sessions,
		defaultChannel: defaultChannel,
	}
}

// Handle processes text posted by the session. Recognized commands are
// /join <channel> and /leave; unrecognized slash-commands are silently
// dropped (no message is posted, no error surfaced). Anything that does not
// look like a command is appended verbatim as a "msg" message.
func (d *Dispatcher) Handle(ctx context.Context, s *session.Session, text string) error {
	match := commandRe.FindStringSubmatch(text)
	if match == nil {
		_, err := s.Channel().Append(ctx, s.Nick, protocol.TypeMsg, text)
		return err
	}

	args := strings.Fields(match[2])

	switch match[1] {
	case "join":
		if len(args) == 0 {
			return nil
		}
		return d.sessions.SwitchTo(ctx, s, args[0])
	case "leave":
		return d.sessions.SwitchTo(ctx, s, d.defaultChannel)
	}

	// Unknown command: intentional swallow.
	return nil
}
