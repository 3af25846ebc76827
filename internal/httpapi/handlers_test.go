package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/parley/chat-server/internal/channel"
	"github.com/parley/chat-server/internal/command"
	"github.com/parley/chat-server/internal/logstore"
	"github.com/parley/chat-server/internal/protocol"
	"github.com/parley/chat-server/internal/session"
)

func newTestServer(t *testing.T) (*Server, *logstore.MemoryLog) {
	t.Helper()
	store := logstore.NewMemoryLog()
	channels := channel.NewRegistry(store, nil, channel.DefaultChannelName, channel.DefaultConfig())
	t.Cleanup(channels.Close)
	sessions := session.NewRegistry(channels, session.DefaultConfig())
	commands := command.NewDispatcher(sessions, channel.DefaultChannelName)
	return NewServer(DefaultConfig(), sessions, channels, commands, nil), store
}

func doGet(t *testing.T, s *Server, path string, params url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path+"?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp protocol.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func join(t *testing.T, s *Server, nick string) protocol.JoinResponse {
	t.Helper()
	rec := doGet(t, s, "/join", url.Values{"nick": {nick}})
	if rec.Code != http.StatusOK {
		t.Fatalf("join %q: status %d body %s", nick, rec.Code, rec.Body.String())
	}
	var resp protocol.JoinResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode join body: %v", err)
	}
	return resp
}

func TestJoinCreatesSessionAndAnnounces(t *testing.T) {
	s, store := newTestServer(t)

	resp := join(t, s, "alice")
	if resp.ID == "" || resp.Nick != "alice" {
		t.Errorf("unexpected join response %+v", resp)
	}

	entries, _ := store.Range(context.Background(), channel.DefaultChannelName, 0, logstore.End)
	if len(entries) != 1 {
		t.Fatalf("expected 1 announce message, got %d", len(entries))
	}
	m, _ := protocol.Decode(entries[0])
	if m.Type != protocol.TypeJoin || m.Text != "alice joined" || m.Index != 0 {
		t.Errorf("unexpected announce %+v", m)
	}
}

func TestJoinRejectsBadNick(t *testing.T) {
	s, _ := newTestServer(t)

	for _, nick := range []string{"", "has space", "ém"} {
		rec := doGet(t, s, "/join", url.Values{"nick": {nick}})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("nick %q: expected 400, got %d", nick, rec.Code)
			continue
		}
		if got := decodeError(t, rec); got != errBadNick {
			t.Errorf("nick %q: expected %q, got %q", nick, errBadNick, got)
		}
	}
}

func TestJoinRejectsTakenNick(t *testing.T) {
	s, _ := newTestServer(t)

	join(t, s, "bob")
	rec := doGet(t, s, "/join", url.Values{"nick": {"bob"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got != errNickInUse {
		t.Errorf("expected %q, got %q", errNickInUse, got)
	}
}

func TestPartAlwaysSucceeds(t *testing.T) {
	s, _ := newTestServer(t)

	// Unknown id is a soft no-op.
	rec := doGet(t, s, "/part", url.Values{"id": {"not-a-session"}})
	if rec.Code != http.StatusOK {
		t.Errorf("part with unknown id: expected 200, got %d", rec.Code)
	}

	// A real session is destroyed.
	resp := join(t, s, "carol")
	doGet(t, s, "/part", url.Values{"id": {resp.ID}})

	who := doGet(t, s, "/who", url.Values{})
	var whoResp protocol.WhoResponse
	json.Unmarshal(who.Body.Bytes(), &whoResp)
	if len(whoResp.Nicks) != 0 {
		t.Errorf("expected no live sessions after part, got %v", whoResp.Nicks)
	}
}

func TestSendRequiresSessionAndText(t *testing.T) {
	s, _ := newTestServer(t)
	resp := join(t, s, "dave")

	rec := doGet(t, s, "/send", url.Values{"id": {"bogus"}, "text": {"hi"}})
	if rec.Code != http.StatusBadRequest || decodeError(t, rec) != errNoSession {
		t.Errorf("unknown session: got %d %s", rec.Code, rec.Body.String())
	}

	rec = doGet(t, s, "/send", url.Values{"id": {resp.ID}})
	if rec.Code != http.StatusBadRequest || decodeError(t, rec) != errNoSession {
		t.Errorf("missing text: got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSendThenRecvBacklog(t *testing.T) {
	s, _ := newTestServer(t)
	resp := join(t, s, "erin")

	rec := doGet(t, s, "/send", url.Values{"id": {resp.ID}, "text": {"first post"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("send failed: %d %s", rec.Code, rec.Body.String())
	}

	// since=0: the client has the join announce; only newer messages exist.
	rec = doGet(t, s, "/recv", url.Values{"id": {resp.ID}, "since": {"0"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("recv failed: %d %s", rec.Code, rec.Body.String())
	}

	var recv protocol.RecvResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &recv); err != nil {
		t.Fatalf("decode recv body: %v", err)
	}
	if len(recv.Messages) != 2 {
		t.Fatalf("expected range [since,end] of 2 messages, got %d", len(recv.Messages))
	}
	last := recv.Messages[len(recv.Messages)-1]
	if last.Type != protocol.TypeMsg || last.Text != "first post" {
		t.Errorf("unexpected tail message %+v", last)
	}
}

func TestRecvRequiresSince(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGet(t, s, "/recv", url.Values{})
	if rec.Code != http.StatusBadRequest || decodeError(t, rec) != errMissingSince {
		t.Errorf("missing since: got %d %s", rec.Code, rec.Body.String())
	}

	rec = doGet(t, s, "/recv", url.Values{"since": {"not-a-number"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed since: expected 400, got %d", rec.Code)
	}
}

func TestRecvUnknownSessionFallsBackToDefault(t *testing.T) {
	s, _ := newTestServer(t)
	join(t, s, "frank") // posts the announce on the default channel

	rec := doGet(t, s, "/recv", url.Values{"id": {"stale-id"}, "since": {"-1"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("recv failed: %d %s", rec.Code, rec.Body.String())
	}

	var recv protocol.RecvResponse
	json.Unmarshal(rec.Body.Bytes(), &recv)
	if len(recv.Messages) != 1 || recv.Messages[0].Text != "frank joined" {
		t.Errorf("expected default-channel backlog, got %+v", recv.Messages)
	}
}

func TestRecvLongPollResolvedByAppend(t *testing.T) {
	s, _ := newTestServer(t)
	poster := join(t, s, "gina")
	reader := join(t, s, "henry")

	// The reader is caught up (two announces, since=1), so the request parks.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/recv?"+url.Values{
		"id": {reader.ID}, "since": {"1"},
	}.Encode(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Handler().ServeHTTP(rec, req)
	}()

	// Give the poll a moment to park, then wake it with an append.
	time.Sleep(50 * time.Millisecond)
	send := doGet(t, s, "/send", url.Values{"id": {poster.ID}, "text": {"wake up"}})
	if send.Code != http.StatusOK {
		t.Fatalf("send failed: %d %s", send.Code, send.Body.String())
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("long-poll did not resolve after append")
	}

	var recv protocol.RecvResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &recv); err != nil {
		t.Fatalf("decode recv body %q: %v", rec.Body.String(), err)
	}
	if len(recv.Messages) != 1 || recv.Messages[0].Text != "wake up" {
		t.Errorf("expected exactly the new message, got %+v", recv.Messages)
	}
}

func TestSendLeaveCommandSwitchesWithoutPosting(t *testing.T) {
	s, store := newTestServer(t)
	resp := join(t, s, "iris")

	doGet(t, s, "/send", url.Values{"id": {resp.ID}, "text": {"/join general"}})
	rec := doGet(t, s, "/send", url.Values{"id": {resp.ID}, "text": {"/leave"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("send /leave failed: %d", rec.Code)
	}

	// No channel log may contain the literal command text.
	for _, name := range []string{channel.DefaultChannelName, "general"} {
		entries, _ := store.Range(context.Background(), name, 0, logstore.End)
		for _, e := range entries {
			m, _ := protocol.Decode(e)
			if m.Type == protocol.TypeMsg {
				t.Errorf("command text leaked to %s: %+v", name, m)
			}
		}
	}
}

func TestSendBogusCommandLeavesStateUnchanged(t *testing.T) {
	s, store := newTestServer(t)
	resp := join(t, s, "jack")

	before, _ := store.Len(context.Background(), channel.DefaultChannelName)
	rec := doGet(t, s, "/send", url.Values{"id": {resp.ID}, "text": {"/bogus foo"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("send /bogus failed: %d", rec.Code)
	}
	after, _ := store.Len(context.Background(), channel.DefaultChannelName)
	if before != after {
		t.Errorf("bogus command changed the log: %d -> %d", before, after)
	}
}

func TestWhoListsLiveNicks(t *testing.T) {
	s, _ := newTestServer(t)
	join(t, s, "kate")
	join(t, s, "liam")

	rec := doGet(t, s, "/who", url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("who failed: %d", rec.Code)
	}

	var resp protocol.WhoResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Nicks) != 2 {
		t.Errorf("expected 2 nicks, got %v", resp.Nicks)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGet(t, s, "/health", url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("health failed: %d", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("unexpected health payload %v", resp)
	}
}
