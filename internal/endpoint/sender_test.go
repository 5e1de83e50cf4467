package endpoint

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micmove/micmove/internal/protocol"
)

type fakeSenderMedia struct {
	mu     sync.Mutex
	answer json.RawMessage
	offers []json.RawMessage
	onConn func(ConnState)
	closed bool
}

func (m *fakeSenderMedia) Answer(_ context.Context, offer json.RawMessage) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers = append(m.offers, offer)
	return m.answer, nil
}

func (m *fakeSenderMedia) OnConnectionState(fn func(ConnState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConn = fn
}

func (m *fakeSenderMedia) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *fakeSenderMedia) reportConn(cs ConnState) {
	m.mu.Lock()
	fn := m.onConn
	m.mu.Unlock()
	if fn != nil {
		fn(cs)
	}
}

func TestSenderAnswersOfferWhenSourceReady(t *testing.T) {
	sig := &fakeSignaler{}
	media := &fakeSenderMedia{answer: rawSDP("ANSWER1")}
	s := NewSender(sig, func() (SenderMedia, error) { return media, nil })
	s.SourceReady(context.Background())

	s.HandleSignal(context.Background(), "recv-1", mustPayload(t, protocol.PayloadOffer, "OFFER1"))

	assert.Equal(t, StateAnswerSent, s.State())
	require.Len(t, media.offers, 1)
	assert.Equal(t, string(rawSDP("OFFER1")), string(media.offers[0]))

	sent := sig.signals()
	require.Len(t, sent, 1)
	assert.Equal(t, "recv-1", string(sent[0].To))
	assert.Equal(t, protocol.PayloadAnswer, sent[0].Payload.Type)
	assert.Equal(t, string(rawSDP("ANSWER1")), string(sent[0].Payload.SDP))

	media.reportConn(ConnConnected)
	assert.Equal(t, StateConnected, s.State())
}

func TestSenderHoldsOfferUntilSourceReady(t *testing.T) {
	sig := &fakeSignaler{}
	media := &fakeSenderMedia{answer: rawSDP("ANSWER")}
	s := NewSender(sig, func() (SenderMedia, error) { return media, nil })

	var statuses []string
	s.OnStatus = func(msg string) { statuses = append(statuses, msg) }

	s.HandleSignal(context.Background(), "recv-1", mustPayload(t, protocol.PayloadOffer, "OFFER1"))
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, sig.signals())
	assert.NotEmpty(t, statuses)

	s.SourceReady(context.Background())
	assert.Equal(t, StateAnswerSent, s.State())
	require.Len(t, media.offers, 1)
	assert.Equal(t, string(rawSDP("OFFER1")), string(media.offers[0]))
}

func TestSenderNewerHeldOfferDisplacesOlder(t *testing.T) {
	sig := &fakeSignaler{}
	media := &fakeSenderMedia{answer: rawSDP("ANSWER")}
	s := NewSender(sig, func() (SenderMedia, error) { return media, nil })

	s.HandleSignal(context.Background(), "recv-1", mustPayload(t, protocol.PayloadOffer, "OLD"))
	s.HandleSignal(context.Background(), "recv-2", mustPayload(t, protocol.PayloadOffer, "NEW"))

	s.SourceReady(context.Background())
	require.Len(t, media.offers, 1)
	assert.Equal(t, string(rawSDP("NEW")), string(media.offers[0]))

	sent := sig.signals()
	require.Len(t, sent, 1)
	assert.Equal(t, "recv-2", string(sent[0].To))
}

func TestSenderIgnoresAnswers(t *testing.T) {
	sig := &fakeSignaler{}
	s := NewSender(sig, func() (SenderMedia, error) {
		return &fakeSenderMedia{answer: rawSDP("A")}, nil
	})
	s.SourceReady(context.Background())

	s.HandleSignal(context.Background(), "recv-1", mustPayload(t, protocol.PayloadAnswer, "NOPE"))
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, sig.signals())
}

func TestSenderNewOfferDisplacesActiveSession(t *testing.T) {
	sig := &fakeSignaler{}
	first := &fakeSenderMedia{answer: rawSDP("A1")}
	second := &fakeSenderMedia{answer: rawSDP("A2")}
	sessions := []*fakeSenderMedia{first, second}
	i := 0
	s := NewSender(sig, func() (SenderMedia, error) {
		m := sessions[i]
		i++
		return m, nil
	})
	s.SourceReady(context.Background())

	s.HandleSignal(context.Background(), "recv-1", mustPayload(t, protocol.PayloadOffer, "OFFER1"))
	s.HandleSignal(context.Background(), "recv-1", mustPayload(t, protocol.PayloadOffer, "OFFER2"))

	assert.True(t, first.closed)
	assert.False(t, second.closed)
	assert.Len(t, sig.signals(), 2)

	// The displaced session's connection reports are stale.
	first.reportConn(ConnFailed)
	assert.Equal(t, StateAnswerSent, s.State())

	second.reportConn(ConnConnected)
	assert.Equal(t, StateConnected, s.State())
}

func TestSenderCloseDiscardsHeldOffer(t *testing.T) {
	sig := &fakeSignaler{}
	media := &fakeSenderMedia{answer: rawSDP("A")}
	s := NewSender(sig, func() (SenderMedia, error) { return media, nil })

	s.HandleSignal(context.Background(), "recv-1", mustPayload(t, protocol.PayloadOffer, "OFFER1"))
	s.Close()
	s.SourceReady(context.Background())

	assert.Empty(t, media.offers)
	assert.Empty(t, sig.signals())
	assert.Equal(t, StateIdle, s.State())
}
