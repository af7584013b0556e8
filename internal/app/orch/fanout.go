package orch

import (
	"github.com/dkeye/Conclave/internal/app"
	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

// announce pushes producerAvailable to the audience captured when rec was
// inserted.
func (o *Orchestrator) announce(rec app.ProducerRecord, audience []app.PeerSnap) {
	msg := core.ProducerAvailable{Producer: rec.ID, Peer: rec.Peer, Kind: rec.Kind}
	for _, snap := range audience {
		if snap.Notifier == nil {
			continue
		}
		if err := snap.Notifier.Notify(msg); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("peer", string(snap.Peer)).Str("producer", string(rec.ID)).Msg("producerAvailable not delivered")
		}
	}
	log.Debug().Str("module", "orch").Str("producer", string(rec.ID)).Int("audience", len(audience)).Msg("producer announced")
}

// closeProducer removes pid and its dependent consumers, closes their
// handles and tells each subscriber. Later calls for the same pid are no-ops.
func (o *Orchestrator) closeProducer(pid domain.ProducerID) bool {
	rec, dependents, ok := o.Registry.RemoveProducer(pid)
	if !ok {
		return false
	}
	p := pool.New().WithMaxGoroutines(closeWorkers)
	for _, c := range dependents {
		p.Go(c.Handle.Close)
	}
	p.Wait()
	rec.Handle.Close()

	for _, c := range dependents {
		o.notify(c.Peer, core.ProducerClosed{Producer: pid, Consumer: c.ID})
	}
	log.Info().Str("module", "orch").Str("producer", string(pid)).Int("consumers", len(dependents)).Msg("producer closed")
	return true
}

// closeConsumers removes and closes every listed consumer still registered.
func (o *Orchestrator) closeConsumers(ids []domain.ConsumerID) {
	p := pool.New().WithMaxGoroutines(closeWorkers)
	for _, cid := range ids {
		rec, ok := o.Registry.RemoveConsumer(cid)
		if !ok {
			continue
		}
		p.Go(rec.Handle.Close)
	}
	p.Wait()
}
