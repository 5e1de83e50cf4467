// Package protocol defines the JSON envelopes exchanged between the relay
// and its clients. The relay only ever looks at the envelope type and the
// addressing fields; signal payloads pass through untouched.
package protocol

import (
	"encoding/json"

	"github.com/micmove/micmove/internal/domain"
)

const (
	TypeHello    = "hello"
	TypeRegister = "register"
	TypePeers    = "peers"
	TypeSignal   = "signal"
)

// Envelope is the minimal frame header used to dispatch inbound messages.
type Envelope struct {
	Type string `json:"type"`
}

// Hello assigns an identity to a freshly admitted connection.
type Hello struct {
	Type string          `json:"type"`
	ID   domain.Identity `json:"id"`
}

// Register sets or updates a session's role and nickname.
type Register struct {
	Type     string `json:"type"`
	Role     string `json:"role"`
	Nickname string `json:"nickname"`
}

// Peers carries a full roster snapshot in admission order.
type Peers struct {
	Type  string        `json:"type"`
	Peers []domain.Peer `json:"peers"`
}

// Signal is the relayed envelope. Clients set To; the relay rewrites the
// envelope with From before forwarding. Payload is opaque to the relay.
type Signal struct {
	Type    string          `json:"type"`
	To      domain.Identity `json:"to,omitempty"`
	From    domain.Identity `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Negotiation payload tags, interpreted only by endpoints.
const (
	PayloadOffer  = "offer"
	PayloadAnswer = "answer"
)

// NegotiationPayload is what endpoints put inside Signal.Payload: a
// discriminant tag plus an opaque session descriptor.
type NegotiationPayload struct {
	Type string          `json:"type"`
	SDP  json.RawMessage `json:"sdp"`
}
