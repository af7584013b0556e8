package core

import (
	"github.com/dkeye/Conclave/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SendTo  int
	Dropped []domain.PeerID
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID          domain.PeerID `json:"id"`
	DisplayName string        `json:"display_name"`
}

// ChatRoom is a text relay room. It owns the membership set but never
// touches transport resources.
type ChatRoom interface {
	Name() domain.RoomName
	MemberCount() int
	MembersSnapshot() []MemberDTO

	AddMember(ms MemberSession)
	// RemoveMember returns the remaining member count.
	RemoveMember(peer domain.PeerID) int
	Broadcast(from domain.PeerID, data Frame) PublishResult
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
}
