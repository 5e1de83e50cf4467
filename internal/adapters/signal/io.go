package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/micmove/micmove/internal/domain"
	"github.com/micmove/micmove/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsSignalConn) {
	ping := time.NewTicker(ctl.cfg.PingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump owns eviction: whatever kills the read loop removes the session
// from the registry, which re-publishes the roster.
func (ctl *Controller) readPump(ctx context.Context, id domain.Identity, c *wsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("id", string(id)).Msg("readPump closing")
		c.Close()
		ctl.limiter.Forget(id)
		ctl.Orch.Disconnect(id)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("id", string(id)).Msg("readPump read error")
				return
			}
			if !ctl.limiter.Allow(id) {
				log.Debug().Str("module", "signal").Str("id", string(id)).Msg("rate limit, frame dropped")
				continue
			}
			ctl.handleFrame(id, data)
		}
	}
}

// handleFrame dispatches one inbound frame. Malformed frames and unknown
// types are dropped without a reply.
func (ctl *Controller) handleFrame(id domain.Identity, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("id", string(id)).Msg("bad json, frame dropped")
		return
	}

	switch env.Type {
	case protocol.TypeRegister:
		ctl.handleRegister(id, data)
	case protocol.TypeSignal:
		ctl.handleSignal(id, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal type")
	}
}
