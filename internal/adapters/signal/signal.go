package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/micmove/micmove/internal/app"
	"github.com/micmove/micmove/internal/config"
	"github.com/micmove/micmove/internal/core"
	"github.com/micmove/micmove/internal/domain"
	"github.com/micmove/micmove/internal/protocol"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller owns the WebSocket side of the relay: one connection per
// client, admitted into the registry on upgrade and evicted when the read
// loop ends.
type Controller struct {
	Orch    *app.Orchestrator
	cfg     *config.Config
	limiter *MessageRateLimiter
}

func NewController(orch *app.Orchestrator, cfg *config.Config) *Controller {
	ctl := &Controller{
		Orch:    orch,
		cfg:     cfg,
		limiter: NewMessageRateLimiter(64, time.Second),
	}
	orch.Registry.OnAdmit(ctl.greet)
	return ctl
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn) *wsSignalConn {
	return &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// greet delivers hello{id} to a freshly admitted connection, ahead of the
// roster push triggered by the same admission.
func (ctl *Controller) greet(id domain.Identity, conn core.SignalConnection) {
	ctl.sendJSON(conn, protocol.Hello{Type: protocol.TypeHello, ID: id})
}

func (ctl *Controller) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// HandleSignal upgrades the request and runs the session until the
// transport dies.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	conn := newWsSignalConn(ws)
	ctx, cancel := context.WithCancel(ctx)

	id := ctl.Orch.Admit(conn, cancel)
	log.Info().Str("module", "signal").Str("id", string(id)).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, id, conn)
}
