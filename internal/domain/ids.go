package domain

import "github.com/google/uuid"

type (
	PeerID      string
	TransportID string
	ProducerID  string
	ConsumerID  string
)

func NewPeerID() PeerID           { return PeerID(uuid.NewString()) }
func NewTransportID() TransportID { return TransportID(uuid.NewString()) }
func NewProducerID() ProducerID   { return ProducerID(uuid.NewString()) }
func NewConsumerID() ConsumerID   { return ConsumerID(uuid.NewString()) }
