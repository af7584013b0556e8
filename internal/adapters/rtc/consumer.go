package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/dkeye/Conclave/internal/app/sfu"
	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// consumerParams is what a subscriber needs to render the forwarded track
// and answer the renegotiation.
type consumerParams struct {
	TrackID     string                     `json:"trackId"`
	StreamID    string                     `json:"streamId"`
	Kind        domain.MediaKind           `json:"kind"`
	Description *webrtc.SessionDescription `json:"description"`
}

// Consumer is a producer's track forwarded onto a receive transport.
type Consumer struct {
	transport *Transport
	producer  *Producer
	local     *webrtc.TrackLocalStaticRTP
	sender    *webrtc.RTPSender

	mu     sync.Mutex
	params core.Params
	out    *sfu.OutTrack

	closeOnce sync.Once
}

func newConsumer(t *Transport, p *Producer, local *webrtc.TrackLocalStaticRTP, sender *webrtc.RTPSender) *Consumer {
	c := &Consumer{transport: t, producer: p, local: local, sender: sender}
	go c.readRTCP()
	return c
}

func (c *Consumer) key() domain.ConsumerID { return domain.ConsumerID(c.local.ID()) }

func (c *Consumer) attach() bool {
	out, ok := c.transport.router.relays.AddSubscriber(c.producer.key(), c.key(), c.local)
	if !ok {
		return false
	}
	c.mu.Lock()
	c.out = out
	c.mu.Unlock()
	return true
}

func (c *Consumer) setOffer(desc *webrtc.SessionDescription) {
	b, _ := json.Marshal(consumerParams{
		TrackID:     c.local.ID(),
		StreamID:    c.local.StreamID(),
		Kind:        c.producer.kind,
		Description: desc,
	})
	c.mu.Lock()
	c.params = b
	c.mu.Unlock()
}

// readRTCP drains subscriber feedback and relays keyframe requests upstream.
func (c *Consumer) readRTCP() {
	for {
		pkts, _, err := c.sender.ReadRTCP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.transport.logger.Debug().Err(err).Msg("rtcp read stopped")
			}
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				c.producer.requestKeyframe()
			}
		}
	}
}

func (c *Consumer) Kind() domain.MediaKind { return c.producer.kind }

func (c *Consumer) Params() core.Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out == nil || c.out.GetState() != sfu.TrackStateOk
}

func (c *Consumer) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	out := c.out
	c.mu.Unlock()
	if out == nil {
		return domain.ErrClosed
	}
	if out.MarkOk() {
		c.producer.requestKeyframe()
	}
	if out.GetState() == sfu.TrackStateDelete {
		return domain.ErrClosed
	}
	return nil
}

func (c *Consumer) Close() {
	c.closeOnce.Do(func() {
		c.transport.router.relays.MarkSubscriberDelete(c.producer.key(), c.key())
		if err := c.transport.pc.RemoveTrack(c.sender); err != nil {
			c.transport.logger.Debug().Err(err).Msg("remove track")
		}
	})
}
