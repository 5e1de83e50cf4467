package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/micmove/micmove/internal/domain"
	"github.com/micmove/micmove/internal/protocol"
)

// ErrSuperseded reports that a newer Dial displaced this attempt while it
// was waiting on ICE gathering.
var ErrSuperseded = errors.New("negotiation superseded by a newer attempt")

// Receiver runs the receive-side negotiation: dial a sender, relay a fully
// gathered offer, accept exactly one answer while that offer is
// outstanding.
type Receiver struct {
	signaler Signaler
	newMedia ReceiverMediaFactory

	mu     sync.Mutex
	state  State
	target domain.Identity
	media  ReceiverMedia
	gen    uint64

	// OnState observes transitions. Called with the lock held; must not
	// call back into the receiver.
	OnState func(State)
}

func NewReceiver(signaler Signaler, newMedia ReceiverMediaFactory) *Receiver {
	return &Receiver{signaler: signaler, newMedia: newMedia}
}

func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Receiver) setStateLocked(s State) {
	r.state = s
	if r.OnState != nil {
		r.OnState(s)
	}
}

// Dial starts a negotiation toward a chosen sender identity. Resources of
// any prior attempt are released first; the prior attempt, if still
// waiting on gathering, aborts with ErrSuperseded. Dial blocks until the
// local descriptor is fully gathered and relayed.
func (r *Receiver) Dial(ctx context.Context, target domain.Identity) error {
	r.mu.Lock()
	if r.media != nil {
		r.media.Close()
		r.media = nil
	}
	r.gen++
	gen := r.gen
	r.target = target
	r.setStateLocked(StateIdle)

	media, err := r.newMedia()
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.media = media
	r.mu.Unlock()

	media.OnConnectionState(func(cs ConnState) { r.onConnState(gen, cs) })

	offer, err := media.CreateOffer(ctx)
	if err != nil {
		r.abort(gen, media)
		return err
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		media.Close()
		return ErrSuperseded
	}
	r.setStateLocked(StateOfferCreated)
	r.mu.Unlock()

	err = r.signaler.Signal(target, protocol.NegotiationPayload{
		Type: protocol.PayloadOffer,
		SDP:  offer,
	})
	if err != nil {
		r.abort(gen, media)
		return err
	}

	r.mu.Lock()
	if r.gen == gen {
		r.setStateLocked(StateOfferSent)
	}
	r.mu.Unlock()
	log.Info().Str("module", "endpoint.receiver").Str("target", string(target)).Msg("offer sent")
	return nil
}

// HandleSignal applies a relayed payload. Only an answer from the dialed
// target while an offer is outstanding is accepted; anything else is
// ignored without side effects.
func (r *Receiver) HandleSignal(_ context.Context, from domain.Identity, raw json.RawMessage) {
	var p protocol.NegotiationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if p.Type != protocol.PayloadAnswer {
		log.Debug().Str("module", "endpoint.receiver").Str("type", p.Type).Msg("ignoring non-answer payload")
		return
	}

	r.mu.Lock()
	if r.state != StateOfferSent || from != r.target || r.media == nil {
		log.Debug().Str("module", "endpoint.receiver").Str("from", string(from)).
			Str("state", r.state.String()).Msg("ignoring stale answer")
		r.mu.Unlock()
		return
	}
	gen := r.gen
	media := r.media
	r.mu.Unlock()

	if err := media.ApplyAnswer(p.SDP); err != nil {
		log.Error().Err(err).Str("module", "endpoint.receiver").Msg("apply answer")
		r.mu.Lock()
		if r.gen == gen {
			r.setStateLocked(StateFailed)
		}
		r.mu.Unlock()
		return
	}
	log.Info().Str("module", "endpoint.receiver").Str("from", string(from)).Msg("answer applied")
	// Connected/Failed comes from the connection-state observer.
}

// Close discards the current attempt and returns to Idle.
func (r *Receiver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if r.media != nil {
		r.media.Close()
		r.media = nil
	}
	r.target = ""
	r.setStateLocked(StateIdle)
}

func (r *Receiver) abort(gen uint64, media ReceiverMedia) {
	media.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return
	}
	r.media = nil
	r.setStateLocked(StateIdle)
}

func (r *Receiver) onConnState(gen uint64, cs ConnState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return
	}
	switch cs {
	case ConnConnected:
		r.setStateLocked(StateConnected)
	case ConnFailed:
		r.setStateLocked(StateFailed)
	}
}
