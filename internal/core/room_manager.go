package core

import (
	"sync"

	"github.com/dkeye/Conclave/internal/domain"
)

// ChatRooms keeps chat rooms by name. Rooms are dropped once empty.
type ChatRooms struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]ChatRoom
}

func NewChatRooms() *ChatRooms {
	return &ChatRooms{rooms: make(map[domain.RoomName]ChatRoom)}
}

func (rm *ChatRooms) Join(name domain.RoomName, ms MemberSession) ChatRoom {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	room, ok := rm.rooms[name]
	if !ok {
		room = NewChatRoom(name)
		rm.rooms[name] = room
	}
	room.AddMember(ms)
	return room
}

func (rm *ChatRooms) Get(name domain.RoomName) (ChatRoom, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	room, ok := rm.rooms[name]
	return room, ok
}

func (rm *ChatRooms) Leave(name domain.RoomName, peer domain.PeerID) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	room, ok := rm.rooms[name]
	if !ok {
		return
	}
	if room.RemoveMember(peer) == 0 {
		delete(rm.rooms, name)
	}
}

// LeaveAll removes peer from every chat room it joined.
func (rm *ChatRooms) LeaveAll(peer domain.PeerID) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for name, room := range rm.rooms {
		if room.RemoveMember(peer) == 0 {
			delete(rm.rooms, name)
		}
	}
}

func (rm *ChatRooms) List() []RoomInfo {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	rl := make([]RoomInfo, 0, len(rm.rooms))
	for name, r := range rm.rooms {
		rl = append(rl, RoomInfo{Name: name, MemberCount: r.MemberCount()})
	}
	return rl
}
