package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/micmove/micmove/internal/core"
	"github.com/micmove/micmove/internal/domain"
)

type sessionEntry struct {
	Peer   *domain.Peer
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry owns all live sessions, keyed by identity. Callers never see
// the underlying map; every access goes through the methods below under a
// single lock so snapshots are never torn.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.Identity]*sessionEntry
	order    []domain.Identity

	onAdmit  func(domain.Identity, core.SignalConnection)
	onChange func()
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.Identity]*sessionEntry),
	}
}

// OnAdmit sets the greeting hook, invoked with a new session's identity
// while the registry lock is still held, so the greeting is queued before
// any fan-out can observe the new connection. The hook must only touch the
// connection, never the registry.
func (r *Registry) OnAdmit(fn func(domain.Identity, core.SignalConnection)) {
	r.onAdmit = fn
}

// OnChange sets the membership-changed hook, invoked after every Admit,
// Register and Remove, outside the registry lock. Must be set before the
// registry starts accepting connections.
func (r *Registry) OnChange(fn func()) {
	r.onChange = fn
}

func (r *Registry) emitChange() {
	if r.onChange != nil {
		r.onChange()
	}
}

// Admit creates a session for a new transport connection and returns its
// fresh identity. Identities are never reused; a collision with a live
// session is retried.
func (r *Registry) Admit(conn core.SignalConnection, cancel context.CancelFunc) domain.Identity {
	r.mu.Lock()
	var id domain.Identity
	for {
		id = domain.Identity(uuid.NewString())
		if _, taken := r.sessions[id]; !taken {
			break
		}
	}
	r.sessions[id] = &sessionEntry{
		Peer: &domain.Peer{
			ID:       id,
			Nickname: domain.PlaceholderNickname(id),
			Role:     domain.RoleUnknown,
		},
		Conn:   conn,
		Cancel: cancel,
	}
	r.order = append(r.order, id)
	if r.onAdmit != nil {
		r.onAdmit(id, conn)
	}
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("admitted session")
	r.emitChange()
	return id
}

// Register updates role and nickname for a live session. A dead identity
// is a silent no-op. An empty sanitized nickname keeps the current one.
func (r *Registry) Register(id domain.Identity, rawRole, rawNickname string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	e.Peer.Role = domain.NormalizeRole(rawRole)
	if nick := domain.SanitizeNickname(rawNickname); nick != "" {
		e.Peer.Nickname = nick
	}
	peer := *e.Peer
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("id", string(id)).
		Str("role", string(peer.Role)).Str("nickname", peer.Nickname).Msg("registered session")
	r.emitChange()
	return true
}

// Remove evicts a session. Removing an unknown identity is a no-op and
// emits no event.
func (r *Registry) Remove(id domain.Identity) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("removed session")
	r.emitChange()
}

// Lookup resolves a forwarding target. The returned connection is borrowed
// for sending only.
func (r *Registry) Lookup(id domain.Identity) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

// Snapshot exports the live roster in admission order, recomputed from a
// single consistent point in time.
func (r *Registry) Snapshot() []domain.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Peer, 0, len(r.order))
	for _, id := range r.order {
		if e, ok := r.sessions[id]; ok {
			out = append(out, *e.Peer)
		}
	}
	return out
}

type connSnap struct {
	ID   domain.Identity
	Conn core.SignalConnection
}

// connections returns every live transport handle, for fan-out.
func (r *Registry) connections() []connSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]connSnap, 0, len(r.order))
	for _, id := range r.order {
		if e, ok := r.sessions[id]; ok {
			out = append(out, connSnap{ID: id, Conn: e.Conn})
		}
	}
	return out
}
