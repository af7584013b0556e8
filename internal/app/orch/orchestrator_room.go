package orch

import (
	"context"

	"github.com/dkeye/Conclave/internal/app"
	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinRoom puts the peer into room, creating it on first use, and returns
// the room's routing capabilities. A non-nil displayName replaces the
// peer's display metadata.
func (s *Session) JoinRoom(ctx context.Context, room string, displayName *string) (core.Params, error) {
	unlock, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer unlock()

	name, err := domain.ParseRoomName(room)
	if err != nil {
		return nil, err
	}
	if displayName != nil {
		dn, err := domain.NormalizeDisplayName(*displayName)
		if err != nil {
			return nil, err
		}
		if err := s.o.Registry.SetDisplayName(s.id, dn); err != nil {
			return nil, err
		}
	}
	return s.o.Rooms.JoinOrCreate(ctx, name, s.id)
}

// LeaveRoom releases every media resource the peer owns and drops it from
// its room. The session stays open.
func (s *Session) LeaveRoom(context.Context) error {
	unlock, err := s.begin()
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := s.o.Registry.RoomOf(s.id); !ok {
		return domain.ErrNotInRoom
	}
	s.o.teardown(s.id)
	return nil
}

func (s *Session) ListRoomProducers(context.Context) ([]domain.ProducerID, error) {
	unlock, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.o.Registry.RoomProducers(s.id)
}

// leave removes peer from its room and reclaims the room when the policy
// asks for it.
func (o *Orchestrator) leave(peer domain.PeerID) {
	name, remaining, err := o.Registry.LeaveRoom(peer)
	if err != nil {
		return
	}
	if remaining > 0 || o.Policy == nil {
		return
	}
	switch o.Policy.OnRoomEmpty(name) {
	case app.ReclaimRoom:
		o.Rooms.Release(name)
	case app.RetainRoom:
		log.Debug().Str("module", "orch").Str("room", string(name)).Msg("retaining empty room")
	}
}
