package domain

type RoomName string

// Room is a read-only view of a room held by the registry.
type Room struct {
	Name      RoomName
	Members   []PeerID
	Producers int
}
