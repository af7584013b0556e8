package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/dkeye/Conclave/internal/domain"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// Source yields RTP read from a published track.
type Source interface {
	ReadRTP() (*rtp.Packet, error)
}

// Relay copies packets from one producer's source to every consumer leg.
type Relay struct {
	Src Source

	mu        sync.RWMutex
	outTracks map[domain.ConsumerID]*OutTrack

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(src Source, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:       src,
		outTracks: make(map[domain.ConsumerID]*OutTrack),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// loop reads RTP packets from the source and forwards them to all OutTracks.
// onEnd runs once when the source fails rather than on cancellation.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger, onEnd func()) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, err := r.Src.ReadRTP()
		if err != nil {
			if ctx.Err() != nil {
				r.markAllDelete()
				return
			}
			logger.Warn().Err(err).Msg("relay read RTP error, stopping")
			r.markAllDelete()
			if onEnd != nil {
				onEnd()
			}
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	dirty := make([]domain.ConsumerID, 0, len(snapshot))
	for cid, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, cid)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Sink.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("consumer", string(cid)).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, cid)
			}
		}
	}

	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []domain.ConsumerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cid := range dirty {
		if ot, ok := r.outTracks[cid]; ok && ot.GetState() == TrackStateDelete {
			delete(r.outTracks, cid)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(cid domain.ConsumerID, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[cid] = ot
}

func (r *Relay) outTrack(cid domain.ConsumerID) (*OutTrack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ot, ok := r.outTracks[cid]
	return ot, ok
}
