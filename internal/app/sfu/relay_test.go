package sfu

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Conclave/internal/domain"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	ch chan *rtp.Packet
}

func newChanSource() *chanSource { return &chanSource{ch: make(chan *rtp.Packet)} }

func (s *chanSource) ReadRTP() (*rtp.Packet, error) {
	p, ok := <-s.ch
	if !ok {
		return nil, io.EOF
	}
	return p, nil
}

type recordSink struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (s *recordSink) WriteRTP(p *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.seqs = append(s.seqs, p.SequenceNumber)
	return nil
}

func (s *recordSink) got() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.seqs...)
}

// legs counts out tracks not yet cleaned up.
func (r *Relay) legs() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}

func pkt(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: seq}}
}

func TestOutTrack_States(t *testing.T) {
	ot := NewOutTrack(&recordSink{})
	require.Equal(t, TrackStateMuted, ot.GetState())
	require.True(t, ot.MarkOk())
	require.False(t, ot.MarkOk())
	ot.MarkDelete()
	require.False(t, ot.MarkOk())
	require.Equal(t, TrackStateDelete, ot.GetState())
}

func TestRelay_ForwardsOnlyUnmuted(t *testing.T) {
	m := NewRelayManager()
	src := newChanSource()
	relay := m.StartRelay(context.Background(), "p1", src, nil)

	active, muted := &recordSink{}, &recordSink{}
	ot, ok := m.AddSubscriber("p1", "c1", active)
	require.True(t, ok)
	ot.MarkOk()
	_, ok = m.AddSubscriber("p1", "c2", muted)
	require.True(t, ok)

	src.ch <- pkt(1)
	src.ch <- pkt(2)
	require.Eventually(t, func() bool { return len(active.got()) == 2 }, time.Second, 5*time.Millisecond)
	require.Empty(t, muted.got())
	require.Equal(t, 2, relay.legs())

	m.StopRelay("p1")
	require.False(t, m.HasRelay("p1"))
}

func TestRelay_DropsFailingLeg(t *testing.T) {
	m := NewRelayManager()
	src := newChanSource()
	relay := m.StartRelay(context.Background(), "p1", src, nil)
	bad := &recordSink{err: errors.New("closed pipe")}
	ot, _ := m.AddSubscriber("p1", "c1", bad)
	ot.MarkOk()

	src.ch <- pkt(1)
	src.ch <- pkt(2)
	require.Eventually(t, func() bool { return relay.legs() == 0 }, time.Second, 5*time.Millisecond)
	require.Equal(t, TrackStateDelete, ot.GetState())
	m.StopAll()
}

func TestRelay_SourceEndRunsCallback(t *testing.T) {
	m := NewRelayManager()
	src := newChanSource()
	var ended atomic.Int32
	m.StartRelay(context.Background(), "p1", src, func() { ended.Add(1) })
	ot, _ := m.AddSubscriber("p1", "c1", &recordSink{})

	close(src.ch)
	require.Eventually(t, func() bool { return ended.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.False(t, m.HasRelay("p1"))
	require.Equal(t, TrackStateDelete, ot.GetState())
}

func TestRelayManager_MarkSubscriberDelete(t *testing.T) {
	m := NewRelayManager()
	_, ok := m.AddSubscriber("missing", "c", &recordSink{})
	require.False(t, ok)

	src := newChanSource()
	m.StartRelay(context.Background(), domain.ProducerID("p1"), src, nil)
	ot, ok := m.AddSubscriber("p1", "c1", &recordSink{})
	require.True(t, ok)
	m.MarkSubscriberDelete("p1", "c1")
	require.Equal(t, TrackStateDelete, ot.GetState())
	m.StopAll()
	require.False(t, m.HasRelay("p1"))
}
