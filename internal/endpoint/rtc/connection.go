// Package rtc implements the endpoint media interfaces on pion/webrtc.
// Descriptors cross the package boundary as marshaled session
// descriptions, so everything above this package stays codec-agnostic.
package rtc

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/micmove/micmove/internal/endpoint"
)

func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

type peerSession struct {
	pc     *webrtc.PeerConnection
	onConn func(endpoint.ConnState)
}

func (s *peerSession) bindStateHandler() {
	s.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", st.String()).Msg("peer state")
		if s.onConn == nil {
			return
		}
		switch st {
		case webrtc.PeerConnectionStateConnected:
			s.onConn(endpoint.ConnConnected)
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			s.onConn(endpoint.ConnFailed)
		}
	})
}

func (s *peerSession) OnConnectionState(fn func(endpoint.ConnState)) {
	s.onConn = fn
}

func (s *peerSession) Close() {
	if err := s.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	}
}

// waitGathered sets the local description and blocks until ICE gathering
// completes, then returns the fully gathered descriptor. No trickle ICE:
// one blob per direction is all the relay ever carries.
func (s *peerSession) waitGathered(ctx context.Context, desc webrtc.SessionDescription) (json.RawMessage, error) {
	gathered := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(desc); err != nil {
		return nil, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return json.Marshal(s.pc.LocalDescription())
}

// ReceiverSession is a receive-only audio session.
type ReceiverSession struct {
	peerSession
}

func NewReceiverSession(cfg webrtc.Configuration) (*ReceiverSession, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		_ = pc.Close()
		return nil, err
	}
	s := &ReceiverSession{peerSession{pc: pc}}
	s.bindStateHandler()
	return s, nil
}

// OnTrack surfaces the inbound remote audio track. Rendering it is the
// caller's business.
func (s *ReceiverSession) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	s.pc.OnTrack(fn)
}

func (s *ReceiverSession) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	return s.waitGathered(ctx, offer)
}

func (s *ReceiverSession) ApplyAnswer(raw json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return err
	}
	return s.pc.SetRemoteDescription(desc)
}

// SenderSession is a sending audio session with the local track attached
// up front, before the answer is computed.
type SenderSession struct {
	peerSession
}

func NewSenderSession(cfg webrtc.Configuration, track webrtc.TrackLocal) (*SenderSession, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := pc.AddTrack(track); err != nil {
		_ = pc.Close()
		return nil, err
	}
	s := &SenderSession{peerSession{pc: pc}}
	s.bindStateHandler()
	return s, nil
}

func (s *SenderSession) Answer(ctx context.Context, rawOffer json.RawMessage) (json.RawMessage, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(rawOffer, &offer); err != nil {
		return nil, err
	}
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	return s.waitGathered(ctx, answer)
}
