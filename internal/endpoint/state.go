// Package endpoint implements the client half of the signaling protocol:
// the WebSocket signaling client and the per-role negotiation state
// machines that drive a local media session through an offer/answer
// exchange. The media stack itself sits behind the interfaces in media.go.
package endpoint

// State tracks one negotiation attempt. Receiver attempts move
// Idle → OfferCreated → OfferSent, sender attempts move
// Idle → OfferReceived → AnswerCreated → AnswerSent; both end in
// Connected or Failed. Failed has no outgoing transition: the endpoint
// discards the attempt and starts over from Idle.
type State int

const (
	StateIdle State = iota
	StateOfferCreated
	StateOfferSent
	StateOfferReceived
	StateAnswerCreated
	StateAnswerSent
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferCreated:
		return "offer_created"
	case StateOfferSent:
		return "offer_sent"
	case StateOfferReceived:
		return "offer_received"
	case StateAnswerCreated:
		return "answer_created"
	case StateAnswerSent:
		return "answer_sent"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}
