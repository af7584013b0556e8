package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Conclave/internal/core/corefakes"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestRoomManager_ConcurrentJoinsShareRouter(t *testing.T) {
	reg := NewRegistry()
	engine := corefakes.NewEngine()
	rm := NewRoomManager(reg, engine, time.Second)

	const n = 16
	ids := make([]domain.PeerID, n)
	for i := range ids {
		ids[i] = domain.NewPeerID()
		require.NoError(t, reg.AddPeer(ids[i], "p", nil))
	}

	release := engine.Stall(corefakes.OpCreateRouter)
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = rm.JoinOrCreate(context.Background(), "room", ids[i])
		}()
	}
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	open := 0
	for _, r := range engine.Routers() {
		if !r.Closed() {
			open++
		}
	}
	require.Equal(t, 1, open)
	room, ok := reg.Room("room")
	require.True(t, ok)
	require.Len(t, room.Members, n)
}

func TestRoomManager_AlreadyInRoom(t *testing.T) {
	reg := NewRegistry()
	rm := NewRoomManager(reg, corefakes.NewEngine(), time.Second)
	id := domain.NewPeerID()
	require.NoError(t, reg.AddPeer(id, "p", nil))

	caps, err := rm.JoinOrCreate(context.Background(), "a", id)
	require.NoError(t, err)
	again, err := rm.JoinOrCreate(context.Background(), "a", id)
	require.NoError(t, err)
	require.Equal(t, caps, again)

	_, err = rm.JoinOrCreate(context.Background(), "b", id)
	require.ErrorIs(t, err, domain.ErrAlreadyInRoom)
	_, ok := reg.RoomRouter("b")
	require.False(t, ok)
}

func TestRoomManager_EngineFailure(t *testing.T) {
	reg := NewRegistry()
	engine := corefakes.NewEngine()
	engine.CreateRouterErr = errors.New("no workers")
	rm := NewRoomManager(reg, engine, time.Second)
	id := domain.NewPeerID()
	require.NoError(t, reg.AddPeer(id, "p", nil))

	_, err := rm.JoinOrCreate(context.Background(), "a", id)
	require.Error(t, err)
	_, ok := reg.RoomOf(id)
	require.False(t, ok)
	require.Empty(t, rm.List())
}

func TestRoomManager_Timeout(t *testing.T) {
	reg := NewRegistry()
	engine := corefakes.NewEngine()
	rm := NewRoomManager(reg, engine, 30*time.Millisecond)
	id := domain.NewPeerID()
	require.NoError(t, reg.AddPeer(id, "p", nil))

	release := engine.Stall(corefakes.OpCreateRouter)
	defer release()
	_, err := rm.JoinOrCreate(context.Background(), "a", id)
	require.ErrorIs(t, err, domain.ErrTimeout)
}

func TestRoomManager_ReleaseAndRecreate(t *testing.T) {
	reg := NewRegistry()
	engine := corefakes.NewEngine()
	rm := NewRoomManager(reg, engine, time.Second)
	id := domain.NewPeerID()
	require.NoError(t, reg.AddPeer(id, "p", nil))

	_, err := rm.JoinOrCreate(context.Background(), "a", id)
	require.NoError(t, err)
	require.False(t, rm.Release("a"))

	_, _, err = reg.LeaveRoom(id)
	require.NoError(t, err)
	require.True(t, rm.Release("a"))
	require.True(t, engine.Routers()[0].Closed())

	_, err = rm.JoinOrCreate(context.Background(), "a", id)
	require.NoError(t, err)
	require.Len(t, engine.Routers(), 2)

	rm.Shutdown()
	require.True(t, engine.Routers()[1].Closed())
	require.Empty(t, rm.List())
}
