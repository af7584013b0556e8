package sfu

import (
	"context"
	"sync"

	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
)

// RelayManager keeps one relay per producer.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[domain.ProducerID]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[domain.ProducerID]*Relay),
	}
}

// StartRelay creates the relay for pid and starts its loop. onEnd runs when
// the source stops on its own.
func (m *RelayManager) StartRelay(ctx context.Context, pid domain.ProducerID, src Source, onEnd func()) *Relay {
	logger := log.With().
		Str("module", "sfu").
		Str("producer", string(pid)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(src, cancel)

	m.mu.Lock()
	if old, ok := m.relays[pid]; ok {
		logger.Info().Msg("replacing existing relay for producer")
		old.markAllDelete()
		old.cancel()
	}
	m.relays[pid] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	go relay.loop(relayCtx, &logger, func() {
		m.remove(pid, relay)
		if onEnd != nil {
			onEnd()
		}
	})
	return relay
}

// AddSubscriber attaches a muted OutTrack for cid to the relay of pid.
func (m *RelayManager) AddSubscriber(pid domain.ProducerID, cid domain.ConsumerID, sink Sink) (*OutTrack, bool) {
	m.mu.RLock()
	relay, ok := m.relays[pid]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	ot := NewOutTrack(sink)
	relay.AddOutTrack(cid, ot)
	return ot, true
}

// MarkSubscriberDelete marks the OutTrack of cid as TrackStateDelete.
func (m *RelayManager) MarkSubscriberDelete(pid domain.ProducerID, cid domain.ConsumerID) {
	m.mu.RLock()
	relay, ok := m.relays[pid]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if ot, ok := relay.outTrack(cid); ok {
		ot.MarkDelete()
	}
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(pid domain.ProducerID) {
	m.mu.Lock()
	relay, ok := m.relays[pid]
	if ok {
		delete(m.relays, pid)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	relay.cancel()
}

func (m *RelayManager) remove(pid domain.ProducerID, relay *Relay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.relays[pid] == relay {
		delete(m.relays, pid)
	}
}

func (m *RelayManager) HasRelay(pid domain.ProducerID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[pid]
	return ok
}

// StopAll stops every relay.
func (m *RelayManager) StopAll() {
	m.mu.Lock()
	relays := m.relays
	m.relays = make(map[domain.ProducerID]*Relay)
	m.mu.Unlock()
	for _, r := range relays {
		r.markAllDelete()
		r.cancel()
	}
}
