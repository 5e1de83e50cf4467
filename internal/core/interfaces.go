package core

import "github.com/micmove/micmove/internal/domain"

// Frame is a raw signaling payload (one UTF-8 JSON text frame).
type Frame []byte

// SignalConnection abstracts the per-client messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []domain.Identity
}
