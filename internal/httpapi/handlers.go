package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/parley/chat-server/internal/metrics"
	"github.com/parley/chat-server/internal/protocol"
	"github.com/parley/chat-server/internal/ratelimit"
	"github.com/parley/chat-server/internal/session"
)

// Error strings returned to clients.
const (
	errBadNick      = "Bad nick."
	errNickInUse    = "Nick in use"
	errNoSession    = "No such session id"
	errMissingSince = "Must supply since parameter"
	errRateLimited  = "Rate limited"
	errInternal     = "Internal error"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[httpapi] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}

// remoteHost strips the port from the request's remote address for
// per-address rate limiting.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleJoin registers a new session for the supplied nick and announces it
// on the default channel.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nick := r.URL.Query().Get("nick")
	if nick == "" {
		writeError(w, http.StatusBadRequest, errBadNick)
		return
	}

	if s.limiter != nil {
		if ok, _ := s.limiter.Allow(ctx, remoteHost(r), ratelimit.RuleJoin); !ok {
			writeError(w, http.StatusTooManyRequests, errRateLimited)
			return
		}
	}

	sess, err := s.sessions.Create(nick)
	switch {
	case errors.Is(err, session.ErrNickTaken):
		writeError(w, http.StatusBadRequest, errNickInUse)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, errBadNick)
		return
	}

	if _, err := sess.Channel().Append(ctx, sess.Nick, protocol.TypeJoin, sess.Nick+" joined"); err != nil {
		log.Printf("[httpapi] join announce for %s: %v", sess.Nick, err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	writeJSON(w, http.StatusOK, protocol.JoinResponse{ID: sess.ID, Nick: sess.Nick})
}

// handlePart destroys the session if it exists. Always succeeds.
func (s *Server) handlePart(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		if sess, ok := s.sessions.Get(id); ok {
			if err := s.sessions.Destroy(r.Context(), sess); err != nil {
				log.Printf("[httpapi] part %s: %v", id, err)
			}
		}
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// handleSend posts text on behalf of a session. Slash-commands are routed to
// channel switches; everything else is appended as a normal message.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	id := q.Get("id")
	text := q.Get("text")

	sess, ok := s.sessions.Get(id)
	if !ok || text == "" {
		writeError(w, http.StatusBadRequest, errNoSession)
		return
	}

	sess.Poke()

	if s.limiter != nil {
		if allowed, _ := s.limiter.Allow(ctx, sess.ID, ratelimit.RuleSend); !allowed {
			writeError(w, http.StatusTooManyRequests, errRateLimited)
			return
		}
	}

	if err := s.commands.Handle(ctx, sess, text); err != nil {
		log.Printf("[httpapi] send for %s: %v", sess.Nick, err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

// handleRecv resolves a long-poll for messages past the client's since
// watermark. Without a valid session id it falls back to the default
// channel. The response is written when the channel delivers: immediately
// for backlog, on the next append, or as an empty list when the waiter
// reaper times the request out.
func (s *Server) handleRecv(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	sinceParam := q.Get("since")
	if sinceParam == "" {
		writeError(w, http.StatusBadRequest, errMissingSince)
		return
	}
	since, err := strconv.ParseInt(sinceParam, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errMissingSince)
		return
	}

	var sess *session.Session
	if id := q.Get("id"); id != "" {
		if found, ok := s.sessions.Get(id); ok {
			sess = found
			sess.Poke()
		}
	}

	ch := s.channels.Default()
	if sess != nil {
		ch = sess.Channel()
	}

	start := time.Now()
	resolved := make(chan []protocol.Message, 1)

	if err := ch.Query(ctx, since, func(msgs []protocol.Message) { resolved <- msgs }); err != nil {
		log.Printf("[httpapi] recv on %s: %v", ch.Name(), err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	select {
	case msgs := <-resolved:
		metrics.PollWaitSeconds.Observe(time.Since(start).Seconds())
		if sess != nil {
			sess.Poke()
		}
		if msgs == nil {
			msgs = []protocol.Message{}
		}
		writeJSON(w, http.StatusOK, protocol.RecvResponse{Messages: msgs})
	case <-ctx.Done():
		// Client gone. The parked waiter stays queued until the channel
		// reaper expires it; its delivery lands in the buffered channel.
	}
}

// handleWho lists the nicks of all live sessions.
func (s *Server) handleWho(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.WhoResponse{Nicks: s.sessions.Nicks()})
}

// handleHealth reports liveness plus a few cheap counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Duration(0)
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(uptime.Seconds()),
		"sessions":       s.sessions.Count(),
		"channels":       s.channels.Count(),
	})
}
