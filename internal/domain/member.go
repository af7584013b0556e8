package domain

// Member represents a peer's participation meta for a chat room.
// No transport or lifecycle logic here.
type Member struct {
	Peer        PeerID
	DisplayName string
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(peer PeerID, displayName string) *Member {
	return &Member{Peer: peer, DisplayName: displayName}
}
