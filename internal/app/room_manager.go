package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const joinAttempts = 3

// RoomManager creates one routing context per room name and reuses it for
// every later join.
type RoomManager struct {
	registry *Registry
	engine   core.MediaEngine
	timeout  time.Duration
	group    singleflight.Group
}

func NewRoomManager(reg *Registry, engine core.MediaEngine, timeout time.Duration) *RoomManager {
	return &RoomManager{registry: reg, engine: engine, timeout: timeout}
}

// JoinOrCreate adds peer to room, creating the room's routing context on the
// first join, and returns the room's capabilities.
func (m *RoomManager) JoinOrCreate(ctx context.Context, name domain.RoomName, peer domain.PeerID) (core.Params, error) {
	if cur, ok := m.registry.RoomOf(peer); ok && cur != name {
		return nil, fmt.Errorf("peer %s in room %s: %w", peer, cur, domain.ErrAlreadyInRoom)
	}
	for range joinAttempts {
		if _, ok := m.registry.RoomRouter(name); !ok {
			if err := m.ensure(ctx, name); err != nil {
				return nil, err
			}
		}
		caps, err := m.registry.JoinRoom(peer, name)
		if err == nil {
			return caps, nil
		}
		// The room may have been reclaimed between ensure and join.
		if _, ok := m.registry.RoomRouter(name); ok || !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		log.Debug().Str("module", "app.rooms").Str("room", string(name)).Msg("room reclaimed during join, retrying")
	}
	return nil, fmt.Errorf("room %s kept disappearing: %w", name, domain.ErrNotFound)
}

func (m *RoomManager) ensure(ctx context.Context, name domain.RoomName) error {
	_, err, _ := m.group.Do(string(name), func() (any, error) {
		if _, ok := m.registry.RoomRouter(name); ok {
			return nil, nil
		}
		router, err := EngineCall(ctx, m.timeout, "create router", func(ctx context.Context) (core.Router, error) {
			return m.engine.CreateRouter(ctx, name)
		}, func(r core.Router) { r.Close() })
		if err != nil {
			return nil, err
		}
		if kept := m.registry.AddRoom(name, router); kept != router {
			router.Close()
		}
		log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("routing context created")
		return nil, nil
	})
	return err
}

// Release drops name if it is empty and closes its routing context.
func (m *RoomManager) Release(name domain.RoomName) bool {
	router, ok := m.registry.ReclaimRoom(name)
	if !ok {
		return false
	}
	router.Close()
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("routing context released")
	return true
}

func (m *RoomManager) List() []domain.Room {
	return m.registry.Rooms()
}

// Shutdown closes every routing context regardless of membership.
func (m *RoomManager) Shutdown() {
	for _, r := range m.registry.DropRooms() {
		r.Close()
	}
}
