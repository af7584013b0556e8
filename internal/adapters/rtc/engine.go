// Package rtc is the pion based media engine. Each transport is one
// PeerConnection; producers are remote tracks fanned out by sfu relays.
package rtc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ICEServers    []string
	MinPort       uint16
	MaxPort       uint16
	NATIPs        []string
	GatherTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ICEServers:    []string{"stun:stun.l.google.com:19302"},
		MinPort:       10000,
		MaxPort:       20000,
		GatherTimeout: 2 * time.Second,
	}
}

// maxSetupFailures is how many PeerConnections in a row may fail to build
// before the engine is declared dead.
const maxSetupFailures = 3

// Engine implements core.MediaEngine on top of a single pion API instance.
type Engine struct {
	cfg    Config
	api    *webrtc.API
	codecs []codec

	newPC         func(webrtc.Configuration) (*webrtc.PeerConnection, error)
	setupFailures atomic.Int32

	mu      sync.Mutex
	routers map[*Router]struct{}
	err     error
	done    chan struct{}
	once    sync.Once
}

func NewEngine(cfg Config) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range supportedCodecs {
		if err := m.RegisterCodec(c.params, c.typ); err != nil {
			return nil, errors.Wrapf(err, "register codec %s", c.params.MimeType)
		}
	}
	se := webrtc.SettingEngine{}
	if cfg.MinPort > 0 && cfg.MaxPort >= cfg.MinPort {
		if err := se.SetEphemeralUDPPortRange(cfg.MinPort, cfg.MaxPort); err != nil {
			return nil, errors.Wrap(err, "udp port range")
		}
	}
	if len(cfg.NATIPs) > 0 {
		se.SetNAT1To1IPs(cfg.NATIPs, webrtc.ICECandidateTypeHost)
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = DefaultConfig().GatherTimeout
	}
	e := &Engine{
		cfg:     cfg,
		api:     webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		codecs:  supportedCodecs,
		routers: make(map[*Router]struct{}),
		done:    make(chan struct{}),
	}
	e.newPC = e.api.NewPeerConnection
	return e, nil
}

// peerConnection builds a PeerConnection. Repeated failures mean the
// process can no longer open sockets or allocate ports, and fail the engine.
func (e *Engine) peerConnection() (*webrtc.PeerConnection, error) {
	pc, err := e.newPC(webrtc.Configuration{ICEServers: e.iceServers()})
	if err != nil {
		if e.setupFailures.Add(1) >= maxSetupFailures {
			e.Fail(errors.Wrap(err, "peer connection setup keeps failing"))
		}
		return nil, errors.Wrap(err, "new peer connection")
	}
	e.setupFailures.Store(0)
	return pc, nil
}

func (e *Engine) CreateRouter(ctx context.Context, room domain.RoomName) (core.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-e.done:
		return nil, errors.Wrap(domain.ErrEngineFault, "engine stopped")
	default:
	}
	r := newRouter(e, room)
	e.mu.Lock()
	e.routers[r] = struct{}{}
	e.mu.Unlock()
	log.Info().Str("module", "rtc").Str("room", string(room)).Msg("router created")
	return r, nil
}

func (e *Engine) forget(r *Router) {
	e.mu.Lock()
	delete(e.routers, r)
	e.mu.Unlock()
}

func (e *Engine) iceServers() []webrtc.ICEServer {
	if len(e.cfg.ICEServers) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: e.cfg.ICEServers}}
}

func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Fail stops the engine with err. Every router is closed and Done fires.
func (e *Engine) Fail(err error) {
	e.once.Do(func() {
		e.mu.Lock()
		e.err = err
		routers := make([]*Router, 0, len(e.routers))
		for r := range e.routers {
			routers = append(routers, r)
		}
		e.mu.Unlock()
		for _, r := range routers {
			r.Close()
		}
		close(e.done)
		if err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("media engine failed")
		}
	})
}

func (e *Engine) Close() { e.Fail(nil) }
