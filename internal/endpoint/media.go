package endpoint

import (
	"context"
	"encoding/json"
)

// ConnState is the media stack's view of the transport underneath a
// negotiated session.
type ConnState int

const (
	ConnPending ConnState = iota
	ConnConnected
	ConnFailed
)

// ReceiverMedia is the local media black box for a receive-only session.
// Descriptors are opaque blobs; the state machine never inspects them.
type ReceiverMedia interface {
	// CreateOffer builds the receive-only local descriptor and blocks
	// until ICE candidate gathering is complete, so the returned blob is
	// self-contained and a single relay message suffices.
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	// ApplyAnswer installs the remote descriptor.
	ApplyAnswer(answer json.RawMessage) error
	// OnConnectionState registers the observer driving Connected/Failed.
	OnConnectionState(func(ConnState))
	Close()
}

// SenderMedia is the local media black box for a sending session with the
// local audio source already attached.
type SenderMedia interface {
	// Answer applies the remote offer, builds the answering descriptor and
	// blocks until ICE candidate gathering is complete.
	Answer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)
	OnConnectionState(func(ConnState))
	Close()
}

// Factories create one media session per negotiation attempt. The sender
// factory is expected to attach whatever audio source the user supplied.
type (
	ReceiverMediaFactory func() (ReceiverMedia, error)
	SenderMediaFactory   func() (SenderMedia, error)
)
