package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Conclave/internal/app/orch"
	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Config tunes the websocket pumps.
type Config struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	RequestTimeout time.Duration
	SendBuffer     int
}

func DefaultConfig() Config {
	return Config{
		ReadLimit:      32 << 10,
		PingPeriod:     54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      5 * time.Second,
		RequestTimeout: 10 * time.Second,
		SendBuffer:     64,
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RateLimiter
	Config  Config

	handlerMap map[string]handler
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RateLimiter, cfg Config) *SignalWSController {
	ctl := &SignalWSController{Orch: o, Limiter: limiter, Config: cfg}
	ctl.handlerMap = ctl.handlers()
	return ctl
}

type outFrame struct {
	typ  int
	data []byte
}

// WsSignalConn is the adapter side of one websocket. Sends never block: a
// full buffer fails with ErrBackpressure.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan outFrame

	// codec is the codec of the last inbound frame; pushes reuse it.
	codec atomic.Pointer[codecRef]

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	c := &WsSignalConn{conn: ws, send: make(chan outFrame, buffer)}
	c.setCodec(JSON)
	return c
}

// codecRef gives every stored codec the same concrete type.
type codecRef struct{ Codec }

func (c *WsSignalConn) Codec() Codec { return c.codec.Load().Codec }

func (c *WsSignalConn) setCodec(cd Codec) { c.codec.Store(&codecRef{cd}) }

// TrySend queues a prebuilt JSON text frame.
func (c *WsSignalConn) TrySend(f core.Frame) error {
	return c.enqueue(outFrame{typ: websocket.TextMessage, data: f})
}

// SendValue encodes v with the connection's current codec and queues it. A
// full buffer closes the connection.
func (c *WsSignalConn) SendValue(v any) error {
	cd := c.Codec()
	b, err := cd.Marshal(v)
	if err != nil {
		return err
	}
	err = c.enqueue(outFrame{typ: cd.FrameType(), data: b})
	if errors.Is(err, ErrBackpressure) {
		// A dropped response or push leaves the client out of sync; it has to
		// reconnect.
		log.Warn().Str("module", "signal").Msg("signal buffer full, closing connection")
		c.Close()
	}
	return err
}

func (c *WsSignalConn) enqueue(f outFrame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until either
// side closes it. Each connection is a new peer.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	peer := domain.NewPeerID()
	token := c.GetString("client_token")
	logger := log.With().Str("module", "signal").Str("peer", string(peer)).Str("client", token).Logger()
	logger.Info().Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	conn := newWsSignalConn(ws, ctl.Config.SendBuffer)

	sess, err := ctl.Orch.Connect(peer, c.Query("name"), &notifier{conn: conn})
	if err != nil {
		logger.Warn().Err(err).Msg("connect rejected")
		_ = ws.WriteJSON(errResponse(0, err))
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sess, conn)
		sess.Disconnect()
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(peer)
		}
		logger.Info().Msg("WS connection finished")
	}()
}
