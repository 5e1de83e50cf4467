package endpoint

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/micmove/micmove/internal/domain"
	"github.com/micmove/micmove/internal/protocol"
)

type pendingOffer struct {
	from domain.Identity
	sdp  json.RawMessage
}

// Sender runs the send-side negotiation: wait for an offer, answer it once
// the local audio source is ready. Offers arriving before the source is
// ready are held, never dropped; a newer held offer displaces an older
// unconsumed one.
type Sender struct {
	signaler Signaler
	newMedia SenderMediaFactory

	mu          sync.Mutex
	state       State
	media       SenderMedia
	gen         uint64
	sourceReady bool
	pending     *pendingOffer

	// OnState observes transitions. Called with the lock held; must not
	// call back into the sender.
	OnState func(State)
	// OnStatus surfaces user-facing conditions such as "offer held, start
	// the mic". Never propagated to peers.
	OnStatus func(string)
}

func NewSender(signaler Signaler, newMedia SenderMediaFactory) *Sender {
	return &Sender{signaler: signaler, newMedia: newMedia}
}

func (s *Sender) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sender) setStateLocked(st State) {
	s.state = st
	if s.OnState != nil {
		s.OnState(st)
	}
}

func (s *Sender) status(msg string) {
	if s.OnStatus != nil {
		s.OnStatus(msg)
	}
}

// SourceReady marks the local audio source as available and resumes the
// held offer, if any.
func (s *Sender) SourceReady(ctx context.Context) {
	s.mu.Lock()
	s.sourceReady = true
	held := s.pending
	s.pending = nil
	s.mu.Unlock()

	if held != nil {
		log.Info().Str("module", "endpoint.sender").Str("from", string(held.from)).Msg("resuming held offer")
		s.negotiate(ctx, held.from, held.sdp)
	}
}

// HandleSignal applies a relayed payload. A sender only ever consumes
// offers; answers and unknown tags are ignored without side effects.
func (s *Sender) HandleSignal(ctx context.Context, from domain.Identity, raw json.RawMessage) {
	var p protocol.NegotiationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if p.Type != protocol.PayloadOffer {
		log.Debug().Str("module", "endpoint.sender").Str("type", p.Type).Msg("ignoring non-offer payload")
		return
	}

	s.mu.Lock()
	if !s.sourceReady {
		// Hold exactly one offer until the user supplies the source.
		s.pending = &pendingOffer{from: from, sdp: p.SDP}
		s.mu.Unlock()
		log.Info().Str("module", "endpoint.sender").Str("from", string(from)).Msg("offer held, no audio source yet")
		s.status("Offer received. Start the audio source to answer.")
		return
	}
	s.mu.Unlock()

	s.negotiate(ctx, from, p.SDP)
}

// negotiate answers one inbound offer. A new offer displaces any prior
// media session, so at most one answer computation is in flight.
func (s *Sender) negotiate(ctx context.Context, from domain.Identity, offer json.RawMessage) {
	s.mu.Lock()
	if s.media != nil {
		s.media.Close()
		s.media = nil
	}
	s.gen++
	gen := s.gen
	s.setStateLocked(StateOfferReceived)

	media, err := s.newMedia()
	if err != nil {
		s.setStateLocked(StateIdle)
		s.mu.Unlock()
		log.Error().Err(err).Str("module", "endpoint.sender").Msg("media session create")
		s.status("Could not start local media.")
		return
	}
	s.media = media
	s.mu.Unlock()

	media.OnConnectionState(func(cs ConnState) { s.onConnState(gen, cs) })

	answer, err := media.Answer(ctx, offer)
	if err != nil {
		log.Error().Err(err).Str("module", "endpoint.sender").Msg("answer offer")
		s.abort(gen, media)
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		media.Close()
		return
	}
	s.setStateLocked(StateAnswerCreated)
	s.mu.Unlock()

	err = s.signaler.Signal(from, protocol.NegotiationPayload{
		Type: protocol.PayloadAnswer,
		SDP:  answer,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "endpoint.sender").Msg("relay answer")
		s.abort(gen, media)
		return
	}

	s.mu.Lock()
	if s.gen == gen {
		s.setStateLocked(StateAnswerSent)
	}
	s.mu.Unlock()
	log.Info().Str("module", "endpoint.sender").Str("to", string(from)).Msg("answer sent")
}

// Close discards the current attempt and any held offer.
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.media != nil {
		s.media.Close()
		s.media = nil
	}
	s.pending = nil
	s.setStateLocked(StateIdle)
}

func (s *Sender) abort(gen uint64, media SenderMedia) {
	media.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.media = nil
	s.setStateLocked(StateIdle)
}

func (s *Sender) onConnState(gen uint64, cs ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	switch cs {
	case ConnConnected:
		s.setStateLocked(StateConnected)
	case ConnFailed:
		s.setStateLocked(StateFailed)
	}
}
