package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/micmove/micmove/internal/core"
	"github.com/micmove/micmove/internal/domain"
	"github.com/micmove/micmove/internal/protocol"
)

// RelayResult is internal only: the wire protocol never surfaces delivery
// failures to the sending client.
type RelayResult int

const (
	RelayDelivered RelayResult = iota
	RelayTargetAbsent
	RelayBackpressure
)

// Relay forwards an addressed opaque payload between identities. It never
// parses or rewrites the payload; only the envelope changes (to → from).
type Relay struct {
	registry *Registry
}

func NewRelay(registry *Registry) *Relay {
	return &Relay{registry: registry}
}

// Forward delivers payload to the target's transport, fire-and-forget.
// An absent target is a race with disconnect, not an error.
func (s *Relay) Forward(from, to domain.Identity, payload json.RawMessage) RelayResult {
	conn, ok := s.registry.Lookup(to)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).
			Str("to", string(to)).Msg("target gone, dropping signal")
		return RelayTargetAbsent
	}

	frame, err := json.Marshal(protocol.Signal{
		Type:    protocol.TypeSignal,
		From:    from,
		Payload: payload,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("marshal signal envelope")
		return RelayTargetAbsent
	}

	if err := conn.TrySend(core.Frame(frame)); err != nil {
		log.Warn().Str("module", "app.relay").Str("to", string(to)).Msg("signal dropped on backpressure")
		return RelayBackpressure
	}
	return RelayDelivered
}
