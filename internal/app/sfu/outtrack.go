package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// Sink receives forwarded RTP. *webrtc.TrackLocalStaticRTP satisfies it.
type Sink interface {
	WriteRTP(p *rtp.Packet) error
}

// OutTrack is one consumer's leg of a relay. It starts muted and only
// forwards once MarkOk is called.
type OutTrack struct {
	Sink  Sink
	state atomic.Int32
}

func NewOutTrack(sink Sink) *OutTrack {
	ot := &OutTrack{Sink: sink}
	ot.state.Store(int32(TrackStateMuted))
	return ot
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

// MarkOk unmutes the track unless it was already deleted. It reports whether
// the state changed.
func (ot *OutTrack) MarkOk() bool {
	return ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
