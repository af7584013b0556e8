package core

import "github.com/dkeye/Conclave/internal/domain"

// Frame is an encoded signaling frame, ready to be written as is.
type Frame []byte

// SignalConnection is the outbound side of a peer's websocket. TrySend never
// blocks; it fails when the peer's buffer is full. The adapter owns Close.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession is what a chat room stores per member: who it is and where
// to write.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}
