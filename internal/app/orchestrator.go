package app

import (
	"context"
	"encoding/json"

	"github.com/micmove/micmove/internal/core"
	"github.com/micmove/micmove/internal/domain"
)

// Orchestrator wires the registry, the roster broadcaster and the signal
// relay together. Every registry mutation triggers a roster publish via
// the registry's change hook.
type Orchestrator struct {
	Registry *Registry
	Roster   *Broadcaster
	Signals  *Relay
}

func NewOrchestrator() *Orchestrator {
	reg := NewRegistry()
	o := &Orchestrator{
		Registry: reg,
		Roster:   NewBroadcaster(reg, SimplePolicy{}),
		Signals:  NewRelay(reg),
	}
	reg.OnChange(func() { o.Roster.Publish() })
	return o
}

func (o *Orchestrator) Admit(conn core.SignalConnection, cancel context.CancelFunc) domain.Identity {
	return o.Registry.Admit(conn, cancel)
}

func (o *Orchestrator) Register(id domain.Identity, role, nickname string) {
	o.Registry.Register(id, role, nickname)
}

func (o *Orchestrator) Disconnect(id domain.Identity) {
	o.Registry.Remove(id)
}

func (o *Orchestrator) Forward(from, to domain.Identity, payload json.RawMessage) RelayResult {
	return o.Signals.Forward(from, to, payload)
}
