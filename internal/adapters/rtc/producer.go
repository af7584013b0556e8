package rtc

import (
	"slices"
	"sync"

	"github.com/dkeye/Conclave/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type trackSource struct {
	track *webrtc.TrackRemote
}

func (s trackSource) ReadRTP() (*rtp.Packet, error) {
	p, _, err := s.track.ReadRTP()
	return p, err
}

// Producer is a remote track published on a send transport.
type Producer struct {
	id        string
	transport *Transport
	track     *webrtc.TrackRemote
	kind      domain.MediaKind
	codec     webrtc.RTPCodecCapability
	streamID  string

	mu        sync.Mutex
	gone      bool
	onClose   []func()
	closeOnce sync.Once
}

func newProducer(t *Transport, track *webrtc.TrackRemote) *Producer {
	p := &Producer{
		id:        uuid.NewString(),
		transport: t,
		track:     track,
		kind:      kindOf(track.Kind()),
		codec:     track.Codec().RTPCodecCapability,
		streamID:  track.StreamID(),
	}
	t.router.relays.StartRelay(t.router.ctx, p.key(), trackSource{track}, p.ended)
	return p
}

func (p *Producer) key() domain.ProducerID { return domain.ProducerID(p.id) }

func (p *Producer) Kind() domain.MediaKind { return p.kind }

// OnClose runs fn at once when the track already ended.
func (p *Producer) OnClose(fn func()) {
	p.mu.Lock()
	if p.gone {
		p.mu.Unlock()
		fn()
		return
	}
	p.onClose = append(p.onClose, fn)
	p.mu.Unlock()
}

// ended runs when the source track stops delivering.
func (p *Producer) ended() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.gone = true
		fns := slices.Clone(p.onClose)
		p.mu.Unlock()
		p.transport.logger.Info().Str("producer", p.id).Msg("producer track ended")
		for _, fn := range fns {
			fn()
		}
	})
}

func (p *Producer) Close() {
	p.closeOnce.Do(func() {
		p.transport.router.relays.StopRelay(p.key())
	})
}

// requestKeyframe asks the publisher for a fresh keyframe.
func (p *Producer) requestKeyframe() {
	if p.kind != domain.KindVideo {
		return
	}
	err := p.transport.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(p.track.SSRC())}})
	if err != nil {
		p.transport.logger.Debug().Err(err).Str("producer", p.id).Msg("keyframe request failed")
	}
}
