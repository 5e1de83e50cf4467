package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micmove/micmove/internal/domain"
	"github.com/micmove/micmove/internal/protocol"
)

type noopHandler struct{}

func (noopHandler) HandleSignal(context.Context, domain.Identity, json.RawMessage) {}

func TestClientDispatch(t *testing.T) {
	c := NewClient("ws://unused")

	var gotHello domain.Identity
	var gotPeers []domain.Peer
	var gotFrom domain.Identity
	var gotPayload json.RawMessage
	c.OnHello = func(id domain.Identity) { gotHello = id }
	c.OnPeers = func(p []domain.Peer) { gotPeers = p }
	c.OnSignal = func(from domain.Identity, payload json.RawMessage) {
		gotFrom = from
		gotPayload = payload
	}

	c.dispatch([]byte(`{"type":"hello","id":"abc"}`))
	assert.Equal(t, domain.Identity("abc"), gotHello)

	c.dispatch([]byte(`{"type":"peers","peers":[{"id":"abc","nickname":"Bob","role":"receiver"}]}`))
	require.Len(t, gotPeers, 1)
	assert.Equal(t, "Bob", gotPeers[0].Nickname)

	c.dispatch([]byte(`{"type":"signal","from":"xyz","payload":{"type":"offer","sdp":"S"}}`))
	assert.Equal(t, domain.Identity("xyz"), gotFrom)
	assert.JSONEq(t, `{"type":"offer","sdp":"S"}`, string(gotPayload))

	// Garbage and unknown types are ignored.
	c.dispatch([]byte("{nope"))
	c.dispatch([]byte(`{"type":"teleport"}`))
}

func TestEndpointReregistersAfterReconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var admissions atomic.Int32

	type admission struct {
		id  string
		reg protocol.Register
	}
	var mu sync.Mutex
	var seen []admission

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := admissions.Add(1)
		id := fmt.Sprintf("session-%d", n)
		if err := conn.WriteJSON(protocol.Hello{Type: protocol.TypeHello, ID: domain.Identity(id)}); err != nil {
			return
		}
		var reg protocol.Register
		if err := conn.ReadJSON(&reg); err != nil {
			return
		}
		mu.Lock()
		seen = append(seen, admission{id: id, reg: reg})
		mu.Unlock()

		if n == 1 {
			// Kill the first connection to force a reconnect.
			_ = conn.Close()
			return
		}
		// Keep the second connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := strings.Replace(srv.URL, "http", "ws", 1)
	client := NewClient(url)
	ep := New(client, domain.RoleSender, "Mic", noopHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = ep.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2
	}, 5*time.Second, 50*time.Millisecond, "client should re-register after reconnect")

	mu.Lock()
	first, second := seen[0], seen[1]
	mu.Unlock()

	assert.NotEqual(t, first.id, second.id, "reconnect must produce a fresh identity")
	for _, a := range []admission{first, second} {
		assert.Equal(t, protocol.TypeRegister, a.reg.Type)
		assert.Equal(t, "sender", a.reg.Role)
		assert.Equal(t, "Mic", a.reg.Nickname)
	}
	assert.Equal(t, domain.Identity(second.id), ep.ID())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop on context cancel")
	}
}
