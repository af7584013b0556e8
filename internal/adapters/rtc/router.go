package rtc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dkeye/Conclave/internal/app/sfu"
	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Router is one room's routing context: its transports share a relay set.
type Router struct {
	engine *Engine
	room   domain.RoomName
	caps   core.Params
	relays *sfu.RelayManager

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	transports map[*Transport]struct{}
	closeOnce  sync.Once
}

func newRouter(e *Engine, room domain.RoomName) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		engine:     e,
		room:       room,
		caps:       encodeCapabilities(e.codecs),
		relays:     sfu.NewRelayManager(),
		ctx:        ctx,
		cancel:     cancel,
		transports: make(map[*Transport]struct{}),
	}
}

func (r *Router) Capabilities() core.Params { return r.caps }

func (r *Router) CanConsume(producer core.Producer, caps core.Params) bool {
	p, ok := producer.(*Producer)
	if !ok {
		return false
	}
	if len(caps) == 0 {
		caps = r.caps
	}
	var c capabilities
	if err := json.Unmarshal(caps, &c); err != nil {
		return false
	}
	return c.supports(p.kind, p.codec.MimeType)
}

func (r *Router) CreateTransport(ctx context.Context, dir domain.Direction) (core.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.ctx.Err() != nil {
		return nil, errors.Wrapf(domain.ErrClosed, "router %s", r.room)
	}
	pc, err := r.engine.peerConnection()
	if err != nil {
		return nil, err
	}
	t := newTransport(r, dir, pc)
	r.mu.Lock()
	r.transports[t] = struct{}{}
	r.mu.Unlock()
	return t, nil
}

func (r *Router) forget(t *Transport) {
	r.mu.Lock()
	delete(r.transports, t)
	r.mu.Unlock()
}

func (r *Router) Close() {
	r.closeOnce.Do(func() {
		r.cancel()
		r.relays.StopAll()
		r.mu.Lock()
		ts := make([]*Transport, 0, len(r.transports))
		for t := range r.transports {
			ts = append(ts, t)
		}
		r.mu.Unlock()
		for _, t := range ts {
			t.Close()
		}
		r.engine.forget(r)
		log.Info().Str("module", "rtc").Str("room", string(r.room)).Msg("router closed")
	})
}
