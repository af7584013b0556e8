package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Conclave/internal/app"
	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
)

// CreateTransport opens a transport of direction dir on the peer's room and
// returns it with the parameters the client needs for its own handshake.
func (s *Session) CreateTransport(ctx context.Context, dir domain.Direction) (domain.Transport, core.Params, error) {
	unlock, err := s.begin()
	if err != nil {
		return domain.Transport{}, nil, err
	}
	defer unlock()

	room, ok := s.o.Registry.RoomOf(s.id)
	if !ok {
		return domain.Transport{}, nil, domain.ErrNotInRoom
	}
	router, ok := s.o.Registry.RoomRouter(room)
	if !ok {
		return domain.Transport{}, nil, domain.ErrNotInRoom
	}
	h, err := app.EngineCall(ctx, s.o.Timeout, "create transport", func(ctx context.Context) (core.Transport, error) {
		return router.CreateTransport(ctx, dir)
	}, func(t core.Transport) { t.Close() })
	if err != nil {
		return domain.Transport{}, nil, err
	}
	t, err := s.o.Registry.AddTransport(s.id, dir, h)
	if err != nil {
		h.Close()
		return domain.Transport{}, nil, err
	}
	h.OnClose(func() { s.o.onTransportClosed(t.ID) })
	// A transport that died before OnClose was registered is already gone.
	if _, err := s.o.Registry.Transport(s.id, t.ID); err != nil {
		return domain.Transport{}, nil, fmt.Errorf("transport %s closed by engine: %w", t.ID, domain.ErrNotFound)
	}
	return t, h.HandshakeParams(), nil
}

// ConnectTransport completes the engine side of the handshake for an owned
// transport of either direction.
func (s *Session) ConnectTransport(ctx context.Context, tid domain.TransportID, params core.Params) (core.Params, error) {
	unlock, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := s.o.Registry.Transport(s.id, tid)
	if err != nil {
		return nil, err
	}
	return app.EngineCall(ctx, s.o.Timeout, "connect transport", func(ctx context.Context) (core.Params, error) {
		return t.Handle.Connect(ctx, params)
	}, nil)
}

// Publish creates a producer on an owned send transport and announces it to
// every other member of the room. existed reports whether the room already
// had producers from other peers.
func (s *Session) Publish(ctx context.Context, tid domain.TransportID, kind domain.MediaKind, params core.Params) (pid domain.ProducerID, existed bool, err error) {
	unlock, err := s.begin()
	if err != nil {
		return "", false, err
	}
	defer unlock()

	if _, ok := s.o.Registry.RoomOf(s.id); !ok {
		return "", false, domain.ErrNotInRoom
	}
	t, err := s.o.Registry.Transport(s.id, tid)
	if err != nil {
		return "", false, err
	}
	if t.Direction != domain.DirectionSend {
		return "", false, fmt.Errorf("transport %s is not a send transport: %w", tid, domain.ErrNotFound)
	}
	h, err := app.EngineCall(ctx, s.o.Timeout, "produce", func(ctx context.Context) (core.Producer, error) {
		return t.Handle.Produce(ctx, kind, params)
	}, func(p core.Producer) { p.Close() })
	if err != nil {
		return "", false, err
	}
	rec, audience, existed, err := s.o.Registry.AddProducer(s.id, tid, kind, h)
	if err != nil {
		h.Close()
		return "", false, err
	}
	h.OnClose(func() { s.o.closeProducer(rec.ID) })
	if _, err := s.o.Registry.Producer(rec.ID); err != nil {
		return "", false, fmt.Errorf("producer %s ended by engine: %w", rec.ID, domain.ErrNotFound)
	}
	s.o.announce(rec, audience)
	return rec.ID, existed, nil
}

// Subscribe creates a paused consumer of a live producer in the peer's room
// on an owned receive transport. Empty caps means the room's capabilities.
func (s *Session) Subscribe(ctx context.Context, tid domain.TransportID, pid domain.ProducerID, caps core.Params) (app.ConsumerRecord, error) {
	unlock, err := s.begin()
	if err != nil {
		return app.ConsumerRecord{}, err
	}
	defer unlock()

	room, ok := s.o.Registry.RoomOf(s.id)
	if !ok {
		return app.ConsumerRecord{}, domain.ErrNotInRoom
	}
	t, err := s.o.Registry.Transport(s.id, tid)
	if err != nil {
		return app.ConsumerRecord{}, err
	}
	if t.Direction != domain.DirectionRecv {
		return app.ConsumerRecord{}, fmt.Errorf("transport %s is not a receive transport: %w", tid, domain.ErrNotFound)
	}
	prod, err := s.o.Registry.Producer(pid)
	if err != nil {
		return app.ConsumerRecord{}, err
	}
	if prod.Room != room {
		return app.ConsumerRecord{}, fmt.Errorf("producer %s: %w", pid, domain.ErrNotFound)
	}
	router, ok := s.o.Registry.RoomRouter(room)
	if !ok {
		return app.ConsumerRecord{}, domain.ErrNotInRoom
	}
	if !router.CanConsume(prod.Handle, caps) {
		return app.ConsumerRecord{}, fmt.Errorf("producer %s: %w", pid, domain.ErrIncompatibleCapabilities)
	}
	h, err := app.EngineCall(ctx, s.o.Timeout, "consume", func(ctx context.Context) (core.Consumer, error) {
		return t.Handle.Consume(ctx, prod.Handle, caps)
	}, func(c core.Consumer) { c.Close() })
	if err != nil {
		return app.ConsumerRecord{}, err
	}
	// The producer may have closed while the engine was working.
	rec, err := s.o.Registry.AddConsumer(s.id, tid, pid, h)
	if err != nil {
		h.Close()
		return app.ConsumerRecord{}, err
	}
	return rec, nil
}

// Resume starts media on an owned consumer. Resuming an active consumer
// succeeds without touching the engine.
func (s *Session) Resume(ctx context.Context, cid domain.ConsumerID) error {
	unlock, err := s.begin()
	if err != nil {
		return err
	}
	defer unlock()

	c, err := s.o.Registry.Consumer(s.id, cid)
	if err != nil {
		return err
	}
	if !c.Paused {
		return nil
	}
	if _, err := app.EngineCall(ctx, s.o.Timeout, "resume", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Handle.Resume(ctx)
	}, nil); err != nil {
		return err
	}
	s.o.Registry.SetConsumerPaused(cid, false)
	return nil
}

// CloseProducer closes an owned producer and every consumer built on it.
func (s *Session) CloseProducer(_ context.Context, pid domain.ProducerID) error {
	unlock, err := s.begin()
	if err != nil {
		return err
	}
	defer unlock()

	p, err := s.o.Registry.Producer(pid)
	if err != nil {
		return err
	}
	if p.Peer != s.id {
		return fmt.Errorf("producer %s: %w", pid, domain.ErrNotFound)
	}
	s.o.closeProducer(pid)
	return nil
}

// onTransportClosed runs on the engine's callback when a transport reaches a
// terminal state on its own.
func (o *Orchestrator) onTransportClosed(tid domain.TransportID) {
	t, ok := o.Registry.TransportByID(tid)
	if !ok {
		return
	}
	log.Warn().Str("module", "orch").Str("peer", string(t.Peer)).Str("transport", string(tid)).Msg("transport closed by engine")
	producers, consumers := o.Registry.TransportResources(tid)
	o.closeConsumers(consumers)
	for _, pid := range producers {
		o.closeProducer(pid)
	}
	if rec, ok := o.Registry.RemoveTransport(tid); ok {
		rec.Handle.Close()
	}
}
