package core

import "github.com/dkeye/Conclave/internal/domain"

// Notification is a server push. The set of variants is closed.
type Notification interface {
	isNotification()
}

// ProducerAvailable is fanned out to room members when a peer publishes.
type ProducerAvailable struct {
	Producer domain.ProducerID
	Peer     domain.PeerID
	Kind     domain.MediaKind
}

// ProducerClosed tells a subscriber that its consumer died with the producer.
type ProducerClosed struct {
	Producer domain.ProducerID
	Consumer domain.ConsumerID
}

// EngineFault tells every peer to reconnect.
type EngineFault struct {
	Reason string
}

func (ProducerAvailable) isNotification() {}
func (ProducerClosed) isNotification()    {}
func (EngineFault) isNotification()       {}

// Notifier delivers pushes to one peer. It must not block.
type Notifier interface {
	Notify(Notification) error
}
