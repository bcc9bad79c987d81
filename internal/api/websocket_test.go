package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/librarium-core/internal/auth"
	"github.com/nerrad567/librarium-core/internal/infrastructure/config"
	"github.com/nerrad567/librarium-core/internal/infrastructure/logging"
)

func newTestHub() *Hub {
	return NewHub(config.WebSocketConfig{}, logging.Default(), nil)
}

func newHubClient(h *Hub, channels ...string) *WSClient {
	c := &WSClient{
		hub:           h,
		send:          make(chan []byte, 4),
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	h.Register(c)
	return c
}

func TestNewHub_Defaults(t *testing.T) {
	h := newTestHub()
	if h.cfg.MaxMessageSize != defaultWSMaxMessageSize || h.cfg.PingInterval != defaultWSPingInterval || h.cfg.PongTimeout != defaultWSPongTimeout {
		t.Errorf("cfg = %+v, want defaults", h.cfg)
	}
}

func TestHub_BroadcastRespectsSubscriptions(t *testing.T) {
	h := newTestHub()
	exact := newHubClient(h, "catalog.book_created")
	wildcard := newHubClient(h, "catalog.*")
	none := newHubClient(h)

	h.Broadcast("catalog.book_created", map[string]string{"book_id": "book-1"})
	h.Broadcast("catalog.book_updated", map[string]string{"book_id": "book-1"})

	if n := len(exact.send); n != 1 {
		t.Errorf("exact subscriber got %d messages, want 1", n)
	}
	if n := len(wildcard.send); n != 2 {
		t.Errorf("wildcard subscriber got %d messages, want 2", n)
	}
	if n := len(none.send); n != 0 {
		t.Errorf("unsubscribed client got %d messages, want 0", n)
	}
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	h := newTestHub()
	c := newHubClient(h, "catalog.*")

	for range cap(c.send) + 3 {
		h.Broadcast("catalog.book_created", nil)
	}
	if n := len(c.send); n != cap(c.send) {
		t.Errorf("buffered = %d, want %d", n, cap(c.send))
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := newTestHub()
	a := newHubClient(h)
	newHubClient(h)

	if n := h.ClientCount(); n != 2 {
		t.Fatalf("ClientCount() = %d, want 2", n)
	}

	h.Unregister(a)
	h.Unregister(a) // second call must not double-close
	if n := h.ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}
	if _, ok := <-a.send; ok {
		t.Error("send channel should be closed after Unregister")
	}

	// Broadcasting to a closed client is absorbed.
	a.trySend([]byte("late"))
}

func TestHub_RunClosesAllOnCancel(t *testing.T) {
	h := newTestHub()
	c := newHubClient(h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.ClientCount() != 0 {
		t.Error("clients remain after Run returned")
	}
	if _, ok := <-c.send; ok {
		t.Error("client send channel should be closed")
	}
}

func TestWSClient_Subscription(t *testing.T) {
	h := newTestHub()
	c := newHubClient(h)

	c.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["catalog.*"]}}`))
	if !c.isSubscribed("catalog.book_deleted") {
		t.Error("wildcard subscription not applied")
	}
	if c.isSubscribed("accounts.changed") {
		t.Error("wildcard matched an unrelated channel")
	}

	c.handleMessage([]byte(`{"type":"unsubscribe","id":"2","payload":{"channels":["catalog.*"]}}`))
	if c.isSubscribed("catalog.book_deleted") {
		t.Error("unsubscribe not applied")
	}

	c.handleMessage([]byte(`not json`))
	c.handleMessage([]byte(`{"type":"ping","id":"3"}`))

	want := []string{WSTypeResponse, WSTypeResponse, WSTypeError, WSTypePong}
	for _, typ := range want {
		select {
		case data := <-c.send:
			if !strings.Contains(string(data), `"type":"`+typ+`"`) {
				t.Errorf("message %s, want type %s", data, typ)
			}
		default:
			t.Fatalf("missing %s message", typ)
		}
	}
}

// ─── Integration ───────────────────────────────────────────────────

func TestWebSocket_RejectsBadTickets(t *testing.T) {
	env := newTestEnv(t)

	assertError(t, env.do(t, http.MethodGet, "/api/v1/ws", "", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
	assertError(t, env.do(t, http.MethodGet, "/api/v1/ws?ticket=forged", "", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestWebSocket_DeletedAccountCannotConnect(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createAccount(t, "alice", auth.RolePatron)
	ticket := env.srv.tickets.issue(alice.ID, alice.Role, env.clock.Now())

	if err := env.accounts.Delete(t.Context(), alice.ID); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, "/api/v1/ws?ticket="+ticket, "", nil)
	e := assertError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
	if e.Message != reauthenticateMessage {
		t.Errorf("message = %q", e.Message)
	}
}

func TestWebSocket_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "librarian", auth.RoleStaff)
	token := env.login(t, "librarian")

	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)

	resp := decode[map[string]any](t, env.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", token, nil))
	ticket, _ := resp["ticket"].(string)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + ticket
	conn, httpResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	httpResp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"catalog.*"}},
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "sub-1" {
		t.Fatalf("ack = %+v", ack)
	}
	if n := env.srv.hub.ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}

	book := env.createBook(t, token, dune)

	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != "catalog.book_created" {
		t.Errorf("event = %+v", event)
	}
	payload, _ := event.Payload.(map[string]any)
	if payload["book_id"] != book.ID {
		t.Errorf("book_id = %v, want %s", payload["book_id"], book.ID)
	}

	// The ticket was consumed by the first connection.
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Error("second dial with the same ticket should fail")
	}
}
