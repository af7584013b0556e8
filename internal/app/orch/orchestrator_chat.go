package orch

import (
	"slices"

	"github.com/dkeye/Conclave/internal/app"
	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
)

// ChatJoin adds the peer to a text relay room. Chat rooms are independent of
// media rooms.
func (s *Session) ChatJoin(room string, ms core.MemberSession) error {
	unlock, err := s.begin()
	if err != nil {
		return err
	}
	defer unlock()

	name, err := domain.ParseRoomName(room)
	if err != nil {
		return err
	}
	s.o.Chats.Join(name, ms)
	return nil
}

func (s *Session) ChatLeave(room string) error {
	unlock, err := s.begin()
	if err != nil {
		return err
	}
	defer unlock()

	name, err := domain.ParseRoomName(room)
	if err != nil {
		return err
	}
	if !s.o.inChat(name, s.id) {
		return domain.ErrNotInRoom
	}
	s.o.Chats.Leave(name, s.id)
	return nil
}

// ChatSend relays frame to every member of room, sender included. Members
// whose channel is full are handled by the back-pressure policy.
func (s *Session) ChatSend(room string, frame core.Frame) (core.PublishResult, error) {
	unlock, err := s.begin()
	if err != nil {
		return core.PublishResult{}, err
	}
	defer unlock()

	name, err := domain.ParseRoomName(room)
	if err != nil {
		return core.PublishResult{}, err
	}
	cr, ok := s.o.Chats.Get(name)
	if !ok || !s.o.inChat(name, s.id) {
		return core.PublishResult{}, domain.ErrNotInRoom
	}
	res := cr.Broadcast(s.id, frame)
	if s.o.Policy == nil {
		return res, nil
	}
	for _, slow := range res.Dropped {
		switch s.o.Policy.OnBackPressure(cr, slow) {
		case app.KickMember:
			s.o.Chats.Leave(name, slow)
			log.Warn().Str("module", "orch").Str("room", string(name)).Str("peer", string(slow)).Msg("kicked slow chat member")
		case app.NoAction:
		}
	}
	return res, nil
}

func (o *Orchestrator) inChat(name domain.RoomName, peer domain.PeerID) bool {
	cr, ok := o.Chats.Get(name)
	if !ok {
		return false
	}
	return slices.ContainsFunc(cr.MembersSnapshot(), func(m core.MemberDTO) bool { return m.ID == peer })
}
