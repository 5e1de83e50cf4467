package endpoint

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/micmove/micmove/internal/domain"
	"github.com/micmove/micmove/internal/protocol"
)

// Signaler is what the negotiation machines need from the relay transport.
type Signaler interface {
	Signal(to domain.Identity, payload protocol.NegotiationPayload) error
}

// SignalHandler consumes relayed negotiation payloads; Receiver and Sender
// both implement it.
type SignalHandler interface {
	HandleSignal(ctx context.Context, from domain.Identity, payload json.RawMessage)
}

// Endpoint couples the signaling client with one role's negotiation
// machine. It re-registers role and nickname after every hello, since a
// reconnect is always a fresh identity.
type Endpoint struct {
	client   *Client
	role     domain.Role
	nickname string
	handler  SignalHandler

	mu    sync.Mutex
	ctx   context.Context
	id    domain.Identity
	peers []domain.Peer

	OnRoster func([]domain.Peer)
}

func New(client *Client, role domain.Role, nickname string, handler SignalHandler) *Endpoint {
	e := &Endpoint{
		client:   client,
		role:     role,
		nickname: nickname,
		handler:  handler,
		ctx:      context.Background(),
	}

	client.OnHello = func(id domain.Identity) {
		e.mu.Lock()
		e.id = id
		e.mu.Unlock()
		log.Info().Str("module", "endpoint").Str("id", string(id)).
			Str("role", string(e.role)).Msg("admitted, registering")
		if err := client.Register(e.role, e.nickname); err != nil {
			log.Error().Err(err).Str("module", "endpoint").Msg("register")
		}
	}
	client.OnPeers = func(peers []domain.Peer) {
		e.mu.Lock()
		e.peers = peers
		e.mu.Unlock()
		if e.OnRoster != nil {
			e.OnRoster(peers)
		}
	}
	client.OnSignal = func(from domain.Identity, payload json.RawMessage) {
		e.mu.Lock()
		ctx := e.ctx
		e.mu.Unlock()
		e.handler.HandleSignal(ctx, from, payload)
	}
	return e
}

// Run drives the signaling client until ctx is canceled. In-flight
// negotiations survive a relay drop only as far as their own media
// connection carries them; the relay identity is gone either way.
func (e *Endpoint) Run(ctx context.Context) error {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()
	return e.client.Run(ctx)
}

// ID returns the current relay-assigned identity; empty before the first
// hello and between reconnects.
func (e *Endpoint) ID() domain.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// Peers returns the latest roster snapshot, excluding this endpoint.
func (e *Endpoint) Peers() []domain.Peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Peer, 0, len(e.peers))
	for _, p := range e.peers {
		if p.ID != e.id {
			out = append(out, p)
		}
	}
	return out
}

// PeersWithRole filters the roster by role, for "who can I call" lists.
func (e *Endpoint) PeersWithRole(role domain.Role) []domain.Peer {
	out := make([]domain.Peer, 0)
	for _, p := range e.Peers() {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}
