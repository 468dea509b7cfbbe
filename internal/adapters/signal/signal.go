package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Campus/internal/app"
	"github.com/dkeye/Campus/internal/app/orch"
	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Settings struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	SendBuffer   int
	PositionRate float64
	// MediaTimeout bounds every media-engine call made on behalf of a client.
	MediaTimeout time.Duration
}

func (s *Settings) withDefaults() {
	if s.ReadLimit <= 0 {
		s.ReadLimit = 32768
	}
	if s.PingPeriod <= 0 {
		s.PingPeriod = 54 * time.Second
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = 64
	}
	if s.MediaTimeout <= 0 {
		s.MediaTimeout = 10 * time.Second
	}
}

// pongWait must outlast the ping period so one lost pong doesn't drop the client.
func (s Settings) pongWait() time.Duration { return s.PingPeriod * 10 / 9 }

type SignalWSController struct {
	Orch *orch.Orchestrator
	Auth core.AuthGateway

	settings Settings
	limiter  *PositionLimiter
	upgrader websocket.Upgrader
}

// NewSignalWSController builds the gateway. checkOrigin nil accepts any origin.
func NewSignalWSController(o *orch.Orchestrator, auth core.AuthGateway, settings Settings, checkOrigin func(*http.Request) bool) *SignalWSController {
	settings.withDefaults()
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &SignalWSController{
		Orch:     o,
		Auth:     auth,
		settings: settings,
		limiter:  NewPositionLimiter(settings.PositionRate, time.Second),
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// WsSignalConn is the websocket side of a connection. Frames are queued on send and
// written by writePump only.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
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

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.settings.SendBuffer),
	}

	id := app.NewConnID()
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Register(id, conn, cancel)
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("remote", c.ClientIP()).Msg("new WS connection")

	go ctl.writePump(ctx, id, conn)
	go ctl.readPump(ctx, id, conn)
}

// identity returns the verified identity of conn, if it has presented one.
func (ctl *SignalWSController) identity(id domain.ConnID) (domain.Identity, bool) {
	return ctl.Orch.Registry.IdentityOf(id)
}
