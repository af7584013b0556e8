package core

import (
	"sync"

	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
)

// chatRoom is a threadsafe in-memory chat room.
// It never closes adapter-owned resources.
type chatRoom struct {
	name   domain.RoomName
	mu     sync.RWMutex
	byPeer map[domain.PeerID]MemberSession
}

func NewChatRoom(name domain.RoomName) ChatRoom {
	return &chatRoom{
		name:   name,
		byPeer: make(map[domain.PeerID]MemberSession),
	}
}

func (r *chatRoom) Name() domain.RoomName { return r.name }

func (r *chatRoom) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPeer)
}

func (r *chatRoom) AddMember(ms MemberSession) {
	peer := ms.Meta().Peer
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPeer[peer] = ms
	log.Debug().Str("module", "core.chat").Str("room", string(r.name)).Str("peer", string(peer)).Msg("member added")
}

func (r *chatRoom) RemoveMember(peer domain.PeerID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPeer, peer)
	log.Debug().Str("module", "core.chat").Str("room", string(r.name)).Str("peer", string(peer)).Msg("member removed")
	return len(r.byPeer)
}

func (r *chatRoom) Broadcast(from domain.PeerID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for peer, m := range r.byPeer {
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, peer)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.chat").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *chatRoom) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.byPeer))
	for _, ms := range r.byPeer {
		m := ms.Meta()
		out = append(out, MemberDTO{ID: m.Peer, DisplayName: m.DisplayName})
	}
	return out
}
