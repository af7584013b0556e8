package orch

import (
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

// teardown releases everything peer owns and takes it out of its room.
// Consumers go first, then producers with their cascade, then transports.
func (o *Orchestrator) teardown(peer domain.PeerID) {
	snap, err := o.Registry.Peer(peer)
	if err != nil || snap.Room == "" {
		return
	}
	o.closeConsumers(snap.Consumers)
	for _, pid := range snap.Producers {
		o.closeProducer(pid)
	}
	p := pool.New().WithMaxGoroutines(closeWorkers)
	for _, tid := range snap.Transports {
		rec, ok := o.Registry.RemoveTransport(tid)
		if !ok {
			continue
		}
		p.Go(rec.Handle.Close)
	}
	p.Wait()
	o.leave(peer)
	log.Info().Str("module", "orch").Str("peer", string(peer)).Str("room", string(snap.Room)).
		Int("transports", len(snap.Transports)).
		Int("producers", len(snap.Producers)).
		Int("consumers", len(snap.Consumers)).
		Msg("peer resources released")
}

// Disconnect tears the session down. It runs at most once; requests that
// arrive afterwards fail with domain.ErrClosed.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	s.o.teardown(s.id)
	s.o.Chats.LeaveAll(s.id)
	s.o.Registry.RemovePeer(s.id)
	s.o.forget(s.id)
	log.Info().Str("module", "orch").Str("peer", string(s.id)).Msg("peer disconnected")
}
