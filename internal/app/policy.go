package app

import "github.com/micmove/micmove/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	CloseConn
)

// Policy decides what happens to a session whose send buffer is full.
type Policy interface {
	OnBackPressure(id domain.Identity) BackpressureAction
}

// SimplePolicy closes slow connections; their read loop then fails and the
// session is evicted through the normal disconnect path.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.Identity) BackpressureAction {
	return CloseConn
}
