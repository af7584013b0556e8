package core

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Conclave/internal/domain"
)

// Params is an opaque negotiation payload handed through to the client untouched.
type Params = json.RawMessage

// MediaEngine is the external media engine. It hands out routing contexts and
// reports its own death through Done/Err.
type MediaEngine interface {
	CreateRouter(ctx context.Context, room domain.RoomName) (Router, error)
	Done() <-chan struct{}
	Err() error
	Close()
}

// Router is a room's routing context. Capabilities never change after creation.
type Router interface {
	Capabilities() Params
	// CanConsume reports whether a consumer with caps may receive producer.
	// Empty caps means the router's own capabilities.
	CanConsume(producer Producer, caps Params) bool
	CreateTransport(ctx context.Context, dir domain.Direction) (Transport, error)
	Close()
}

// Transport is one direction of a peer's media channel. Close must be idempotent.
type Transport interface {
	Direction() domain.Direction
	// HandshakeParams returns what the client needs to complete its side.
	HandshakeParams() Params
	// Connect applies the client's handshake; the engine may answer with params.
	Connect(ctx context.Context, params Params) (Params, error)
	Produce(ctx context.Context, kind domain.MediaKind, params Params) (Producer, error)
	// Consume creates a paused consumer of producer.
	Consume(ctx context.Context, producer Producer, caps Params) (Consumer, error)
	// OnClose registers fn to run once when the transport reaches a terminal state.
	OnClose(fn func())
	Close()
}

type Producer interface {
	Kind() domain.MediaKind
	// OnClose registers fn to run once when the engine ends the stream.
	OnClose(fn func())
	Close()
}

type Consumer interface {
	Kind() domain.MediaKind
	Params() Params
	Paused() bool
	// Resume is a no-op on an active consumer.
	Resume(ctx context.Context) error
	Close()
}
