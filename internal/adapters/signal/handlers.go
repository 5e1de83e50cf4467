package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/micmove/micmove/internal/domain"
	"github.com/micmove/micmove/internal/protocol"
)

func (ctl *Controller) handleRegister(id domain.Identity, data []byte) {
	var p protocol.Register
	if err := json.Unmarshal(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad register payload")
		return
	}
	ctl.Orch.Register(id, p.Role, p.Nickname)
}

func (ctl *Controller) handleSignal(id domain.Identity, data []byte) {
	var p protocol.Signal
	if err := json.Unmarshal(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad signal payload")
		return
	}
	if p.To == "" {
		log.Debug().Str("module", "signal").Str("id", string(id)).Msg("signal without target")
		return
	}
	// Delivery failures stay internal; the wire protocol never echoes them.
	ctl.Orch.Forward(id, p.To, p.Payload)
}
