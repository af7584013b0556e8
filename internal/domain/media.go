package domain

import "fmt"

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionSend, DirectionRecv:
		return d, nil
	}
	return "", fmt.Errorf("direction %q: %w", s, ErrBadRequest)
}

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch k := MediaKind(s); k {
	case KindAudio, KindVideo:
		return k, nil
	}
	return "", fmt.Errorf("media kind %q: %w", s, ErrBadRequest)
}

// Peer is a snapshot of a connected participant and the ids it owns.
type Peer struct {
	ID          PeerID
	DisplayName string
	Room        RoomName // empty when not joined
	Transports  []TransportID
	Producers   []ProducerID
	Consumers   []ConsumerID
}

type Transport struct {
	ID        TransportID
	Peer      PeerID
	Room      RoomName
	Direction Direction
}

type Producer struct {
	ID        ProducerID
	Peer      PeerID
	Room      RoomName
	Transport TransportID
	Kind      MediaKind
}

// Consumer references its producer by id only; it never outlives it.
type Consumer struct {
	ID        ConsumerID
	Peer      PeerID
	Room      RoomName
	Transport TransportID
	Producer  ProducerID
	Kind      MediaKind
	Paused    bool
}
