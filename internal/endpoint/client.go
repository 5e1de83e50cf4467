package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/micmove/micmove/internal/domain"
	"github.com/micmove/micmove/internal/protocol"
)

var ErrNotConnected = errors.New("not connected to relay")

// reconnectBackoff is deliberately fixed: the client retries the relay
// unconditionally and indefinitely.
const reconnectBackoff = time.Second

// Client is the endpoint's relay transport: one persistent WebSocket,
// re-dialed forever on loss. Every successful dial is a fresh admission,
// so the relay hands out a new identity each time.
type Client struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn

	OnHello  func(id domain.Identity)
	OnPeers  func(peers []domain.Peer)
	OnSignal func(from domain.Identity, payload json.RawMessage)
	OnDown   func(err error)
}

func NewClient(url string) *Client {
	return &Client{url: url}
}

// Run dials the relay and pumps inbound frames until ctx is canceled.
// Transport loss is not an error; it triggers a re-dial after the fixed
// backoff.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			log.Warn().Err(err).Str("module", "endpoint.client").Str("url", c.url).Msg("dial failed, retrying")
			if c.OnDown != nil {
				c.OnDown(err)
			}
			if !sleepCtx(ctx, reconnectBackoff) {
				return ctx.Err()
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		log.Info().Str("module", "endpoint.client").Str("url", c.url).Msg("connected to relay")

		// Unblock the read loop when the caller gives up.
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		err = c.readLoop(ctx, conn)
		stop()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("module", "endpoint.client").Msg("relay connection lost, retrying")
		if c.OnDown != nil {
			c.OnDown(err)
		}
		if !sleepCtx(ctx, reconnectBackoff) {
			return ctx.Err()
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

// dispatch mirrors the relay's input policy: malformed frames and unknown
// types are dropped without comment.
func (c *Client) dispatch(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Type {
	case protocol.TypeHello:
		var msg protocol.Hello
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if c.OnHello != nil {
			c.OnHello(msg.ID)
		}
	case protocol.TypePeers:
		var msg protocol.Peers
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if c.OnPeers != nil {
			c.OnPeers(msg.Peers)
		}
	case protocol.TypeSignal:
		var msg protocol.Signal
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if c.OnSignal != nil {
			c.OnSignal(msg.From, msg.Payload)
		}
	}
}

func (c *Client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(v)
}

// Register announces role and nickname. Called after every hello, since
// each reconnect is a new identity that knows nothing about the old one.
func (c *Client) Register(role domain.Role, nickname string) error {
	return c.send(protocol.Register{
		Type:     protocol.TypeRegister,
		Role:     string(role),
		Nickname: nickname,
	})
}

// Signal relays a negotiation payload to a peer identity.
func (c *Client) Signal(to domain.Identity, payload protocol.NegotiationPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.send(protocol.Signal{
		Type:    protocol.TypeSignal,
		To:      to,
		Payload: raw,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
