package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/micmove/micmove/internal/core"
	"github.com/micmove/micmove/internal/protocol"
)

// Broadcaster pushes the current roster to every live connection. Each
// Publish recomputes the snapshot from the registry; nothing is cached, so
// a later Publish always carries a roster at least as fresh as an earlier
// one.
type Broadcaster struct {
	mu       sync.Mutex
	registry *Registry
	policy   Policy
}

func NewBroadcaster(registry *Registry, policy Policy) *Broadcaster {
	return &Broadcaster{registry: registry, policy: policy}
}

// Publish fans the roster out to all live transports. Snapshot and fan-out
// run under one lock, so rosters reach each connection in snapshot order
// and a client never ends up holding a stale roster behind a newer one.
// Sessions admitted after the snapshot was taken miss this round but get
// the snapshot from their own admission-triggered publish.
func (b *Broadcaster) Publish() core.PublishResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := b.registry.Snapshot()
	frame, err := json.Marshal(protocol.Peers{Type: protocol.TypePeers, Peers: snap})
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcaster").Msg("marshal roster")
		return core.PublishResult{}
	}

	res := core.PublishResult{}
	for _, cs := range b.registry.connections() {
		if err := cs.Conn.TrySend(core.Frame(frame)); err != nil {
			res.Dropped = append(res.Dropped, cs.ID)
			if b.policy != nil && b.policy.OnBackPressure(cs.ID) == CloseConn {
				cs.Conn.Close()
			}
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.broadcaster").Int("peers", len(snap)).
		Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("published roster")
	return res
}
