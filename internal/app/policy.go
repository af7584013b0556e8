package app

import (
	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
)

type EmptyRoomAction int

const (
	RetainRoom EmptyRoomAction = iota
	ReclaimRoom
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

type Policy interface {
	// OnRoomEmpty decides what happens to a media room after its last member leaves.
	OnRoomEmpty(name domain.RoomName) EmptyRoomAction
	// OnBackPressure decides what happens to a chat member whose channel is full.
	OnBackPressure(room core.ChatRoom, peer domain.PeerID) BackpressureAction
}

type SimplePolicy struct {
	ReclaimEmptyRooms bool
}

func (p SimplePolicy) OnRoomEmpty(domain.RoomName) EmptyRoomAction {
	if p.ReclaimEmptyRooms {
		return ReclaimRoom
	}
	return RetainRoom
}

func (SimplePolicy) OnBackPressure(core.ChatRoom, domain.PeerID) BackpressureAction {
	return KickMember
}
