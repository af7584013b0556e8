package rtc

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// handshake is what a client needs to build its side of a transport.
type handshake struct {
	Direction  domain.Direction   `json:"direction"`
	ICEServers []webrtc.ICEServer `json:"iceServers,omitempty"`
}

// connectParams carries one SDP in either direction.
type connectParams struct {
	Description *webrtc.SessionDescription `json:"description"`
}

// produceParams optionally pins the remote track a producer is bound to.
type produceParams struct {
	TrackID string `json:"trackId,omitempty"`
}

// Transport is one PeerConnection in a single direction.
type Transport struct {
	router *Router
	dir    domain.Direction
	pc     *webrtc.PeerConnection
	logger zerolog.Logger

	// negotiate serializes offer/answer rounds.
	negotiate sync.Mutex

	mu       sync.Mutex
	incoming []*webrtc.TrackRemote
	arrived  chan struct{}
	failed   bool
	onClose  []func()

	done      chan struct{}
	closeOnce sync.Once
}

func newTransport(r *Router, dir domain.Direction, pc *webrtc.PeerConnection) *Transport {
	t := &Transport{
		router:  r,
		dir:     dir,
		pc:      pc,
		arrived: make(chan struct{}),
		done:    make(chan struct{}),
		logger:  log.With().Str("module", "rtc").Str("room", string(r.room)).Str("direction", string(dir)).Logger(),
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.logger.Info().Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			t.shutdown(true)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		t.mu.Lock()
		t.incoming = append(t.incoming, track)
		close(t.arrived)
		t.arrived = make(chan struct{})
		t.mu.Unlock()
	})
	return t
}

func (t *Transport) Direction() domain.Direction { return t.dir }

func (t *Transport) HandshakeParams() core.Params {
	b, _ := json.Marshal(handshake{Direction: t.dir, ICEServers: t.router.engine.iceServers()})
	return b
}

// Connect applies a remote description. An offer is answered and the answer
// returned; an answer completes a renegotiation started by Consume.
func (t *Transport) Connect(ctx context.Context, params core.Params) (core.Params, error) {
	var p connectParams
	if err := json.Unmarshal(params, &p); err != nil || p.Description == nil {
		return nil, errors.Wrap(domain.ErrBadRequest, "connect params need a description")
	}
	t.negotiate.Lock()
	defer t.negotiate.Unlock()

	if err := t.pc.SetRemoteDescription(*p.Description); err != nil {
		return nil, errors.Wrapf(domain.ErrBadRequest, "set remote description: %v", err)
	}
	if p.Description.Type != webrtc.SDPTypeOffer {
		return nil, nil
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create answer")
	}
	local, err := t.setLocal(ctx, answer)
	if err != nil {
		return nil, err
	}
	return json.Marshal(connectParams{Description: local})
}

// setLocal applies desc and waits for candidate gathering so the returned
// description is complete.
func (t *Transport) setLocal(ctx context.Context, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(desc); err != nil {
		return nil, errors.Wrap(err, "set local description")
	}
	ctx, cancel := context.WithTimeout(ctx, t.router.engine.cfg.GatherTimeout)
	defer cancel()
	select {
	case <-gathered:
	case <-ctx.Done():
		t.logger.Warn().Msg("ICE gathering incomplete, sending partial description")
	}
	return t.pc.LocalDescription(), nil
}

// Produce binds the next remote track of kind to a new producer. It waits
// for the track if the client's media has not arrived yet.
func (t *Transport) Produce(ctx context.Context, kind domain.MediaKind, params core.Params) (core.Producer, error) {
	if t.dir != domain.DirectionSend {
		return nil, errors.Wrap(domain.ErrBadRequest, "produce on receive transport")
	}
	var p produceParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, errors.Wrap(domain.ErrBadRequest, "produce params")
		}
	}
	for {
		t.mu.Lock()
		i := slices.IndexFunc(t.incoming, func(tr *webrtc.TrackRemote) bool {
			return kindOf(tr.Kind()) == kind && (p.TrackID == "" || tr.ID() == p.TrackID)
		})
		if i >= 0 {
			track := t.incoming[i]
			t.incoming = slices.Delete(t.incoming, i, i+1)
			t.mu.Unlock()
			return newProducer(t, track), nil
		}
		arrived := t.arrived
		t.mu.Unlock()

		select {
		case <-arrived:
		case <-t.done:
			return nil, errors.Wrap(domain.ErrClosed, "transport closed")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Consume adds a paused forwarding track for producer and returns a consumer
// whose params carry the renegotiation offer.
func (t *Transport) Consume(ctx context.Context, producer core.Producer, caps core.Params) (core.Consumer, error) {
	if t.dir != domain.DirectionRecv {
		return nil, errors.Wrap(domain.ErrBadRequest, "consume on send transport")
	}
	src, ok := producer.(*Producer)
	if !ok {
		return nil, errors.New("foreign producer handle")
	}
	if !t.router.relays.HasRelay(src.key()) {
		return nil, errors.Wrap(domain.ErrNotFound, "producer relay gone")
	}
	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticRTP(src.codec, id, src.streamID)
	if err != nil {
		return nil, errors.Wrap(err, "new local track")
	}

	t.negotiate.Lock()
	defer t.negotiate.Unlock()

	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return nil, errors.Wrap(err, "add track")
	}
	c := newConsumer(t, src, local, sender)
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "create offer")
	}
	desc, err := t.setLocal(ctx, offer)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.setOffer(desc)
	if !c.attach() {
		c.Close()
		return nil, errors.Wrap(domain.ErrNotFound, "producer relay gone")
	}
	return c, nil
}

// OnClose runs fn at once when the PeerConnection already failed.
func (t *Transport) OnClose(fn func()) {
	t.mu.Lock()
	if t.failed {
		t.mu.Unlock()
		fn()
		return
	}
	t.onClose = append(t.onClose, fn)
	t.mu.Unlock()
}

func (t *Transport) Close() { t.shutdown(false) }

// shutdown closes the PeerConnection once. Callbacks run only when the
// transport ended on its own.
func (t *Transport) shutdown(notify bool) {
	t.closeOnce.Do(func() {
		close(t.done)
		t.router.forget(t)
		t.mu.Lock()
		t.failed = notify
		fns := slices.Clone(t.onClose)
		t.mu.Unlock()
		go func() {
			if err := t.pc.Close(); err != nil {
				t.logger.Error().Err(err).Msg("close error")
			}
		}()
		if notify {
			for _, fn := range fns {
				fn()
			}
		}
		t.logger.Info().Bool("engine_closed", notify).Msg("transport closed")
	})
}
