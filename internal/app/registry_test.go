package app

import (
	"testing"

	"github.com/dkeye/Conclave/internal/core/corefakes"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/stretchr/testify/require"
)

func roomWithPeers(t *testing.T, reg *Registry, room domain.RoomName, n int) []domain.PeerID {
	t.Helper()
	reg.AddRoom(room, &corefakes.Router{Room: room})
	ids := make([]domain.PeerID, n)
	for i := range ids {
		ids[i] = domain.NewPeerID()
		require.NoError(t, reg.AddPeer(ids[i], "p", nil))
		_, err := reg.JoinRoom(ids[i], room)
		require.NoError(t, err)
	}
	return ids
}

func TestRegistry_PeerLifecycle(t *testing.T) {
	reg := NewRegistry()
	id := domain.NewPeerID()
	require.NoError(t, reg.AddPeer(id, "ann", nil))
	require.ErrorIs(t, reg.AddPeer(id, "ann", nil), domain.ErrBadRequest)

	p, err := reg.Peer(id)
	require.NoError(t, err)
	require.Equal(t, "ann", p.DisplayName)
	require.Empty(t, p.Room)

	require.NoError(t, reg.SetDisplayName(id, "bea"))
	p, err = reg.Peer(id)
	require.NoError(t, err)
	require.Equal(t, "bea", p.DisplayName)

	require.True(t, reg.RemovePeer(id))
	require.False(t, reg.RemovePeer(id))
	_, err = reg.Peer(id)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_OneRoomPerPeer(t *testing.T) {
	reg := NewRegistry()
	ids := roomWithPeers(t, reg, "a", 1)
	reg.AddRoom("b", &corefakes.Router{Room: "b"})

	_, err := reg.JoinRoom(ids[0], "b")
	require.ErrorIs(t, err, domain.ErrAlreadyInRoom)
	_, err = reg.JoinRoom(ids[0], "a")
	require.NoError(t, err)

	room, ok := reg.Room("a")
	require.True(t, ok)
	require.Equal(t, []domain.PeerID{ids[0]}, room.Members)
	require.NoError(t, reg.CheckInvariants())
}

func TestRegistry_AddRoomKeepsFirstRouter(t *testing.T) {
	reg := NewRegistry()
	first := &corefakes.Router{Room: "r"}
	second := &corefakes.Router{Room: "r"}
	require.Same(t, first, reg.AddRoom("r", first))
	require.Same(t, first, reg.AddRoom("r", second))
}

func TestRegistry_ReclaimOnlyEmptyRooms(t *testing.T) {
	reg := NewRegistry()
	ids := roomWithPeers(t, reg, "r", 2)

	_, ok := reg.ReclaimRoom("r")
	require.False(t, ok)

	name, remaining, err := reg.LeaveRoom(ids[0])
	require.NoError(t, err)
	require.Equal(t, domain.RoomName("r"), name)
	require.Equal(t, 1, remaining)

	_, _, err = reg.LeaveRoom(ids[0])
	require.ErrorIs(t, err, domain.ErrNotInRoom)

	_, remaining, err = reg.LeaveRoom(ids[1])
	require.NoError(t, err)
	require.Zero(t, remaining)

	router, ok := reg.ReclaimRoom("r")
	require.True(t, ok)
	require.NotNil(t, router)
	_, ok = reg.RoomRouter("r")
	require.False(t, ok)
}

func TestRegistry_TransportOwnership(t *testing.T) {
	reg := NewRegistry()
	ids := roomWithPeers(t, reg, "r", 2)

	lone := domain.NewPeerID()
	require.NoError(t, reg.AddPeer(lone, "x", nil))
	_, err := reg.AddTransport(lone, domain.DirectionSend, &corefakes.Transport{})
	require.ErrorIs(t, err, domain.ErrNotInRoom)

	tr, err := reg.AddTransport(ids[0], domain.DirectionSend, &corefakes.Transport{})
	require.NoError(t, err)
	require.Equal(t, domain.RoomName("r"), tr.Room)

	_, err = reg.Transport(ids[1], tr.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	got, err := reg.Transport(ids[0], tr.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DirectionSend, got.Direction)

	_, ok := reg.RemoveTransport(tr.ID)
	require.True(t, ok)
	_, ok = reg.RemoveTransport(tr.ID)
	require.False(t, ok)
	p, err := reg.Peer(ids[0])
	require.NoError(t, err)
	require.Empty(t, p.Transports)
}

func TestRegistry_ProducerAudienceAndDiscovery(t *testing.T) {
	reg := NewRegistry()
	ids := roomWithPeers(t, reg, "r", 3)
	send, err := reg.AddTransport(ids[0], domain.DirectionSend, &corefakes.Transport{})
	require.NoError(t, err)

	rec, audience, existed, err := reg.AddProducer(ids[0], send.ID, domain.KindAudio, &corefakes.Producer{})
	require.NoError(t, err)
	require.False(t, existed)
	require.Len(t, audience, 2)
	for _, a := range audience {
		require.NotEqual(t, ids[0], a.Peer)
	}

	own, err := reg.RoomProducers(ids[0])
	require.NoError(t, err)
	require.Empty(t, own)
	others, err := reg.RoomProducers(ids[1])
	require.NoError(t, err)
	require.Equal(t, []domain.ProducerID{rec.ID}, others)

	// A later joiner sees the producer by pulling.
	late := domain.NewPeerID()
	require.NoError(t, reg.AddPeer(late, "late", nil))
	_, err = reg.JoinRoom(late, "r")
	require.NoError(t, err)
	got, err := reg.RoomProducers(late)
	require.NoError(t, err)
	require.Equal(t, []domain.ProducerID{rec.ID}, got)

	send2, err := reg.AddTransport(ids[1], domain.DirectionSend, &corefakes.Transport{})
	require.NoError(t, err)
	_, _, existed, err = reg.AddProducer(ids[1], send2.ID, domain.KindVideo, &corefakes.Producer{})
	require.NoError(t, err)
	require.True(t, existed)
}

func TestRegistry_ProducerNeedsSendTransport(t *testing.T) {
	reg := NewRegistry()
	ids := roomWithPeers(t, reg, "r", 2)
	recv, err := reg.AddTransport(ids[0], domain.DirectionRecv, &corefakes.Transport{})
	require.NoError(t, err)
	_, _, _, err = reg.AddProducer(ids[0], recv.ID, domain.KindAudio, &corefakes.Producer{})
	require.ErrorIs(t, err, domain.ErrNotFound)

	send, err := reg.AddTransport(ids[1], domain.DirectionSend, &corefakes.Transport{})
	require.NoError(t, err)
	_, _, _, err = reg.AddProducer(ids[0], send.ID, domain.KindAudio, &corefakes.Producer{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_RemoveProducerCascades(t *testing.T) {
	reg := NewRegistry()
	ids := roomWithPeers(t, reg, "r", 3)
	send, err := reg.AddTransport(ids[0], domain.DirectionSend, &corefakes.Transport{})
	require.NoError(t, err)
	prod, _, _, err := reg.AddProducer(ids[0], send.ID, domain.KindAudio, &corefakes.Producer{})
	require.NoError(t, err)

	for _, sub := range ids[1:] {
		recv, err := reg.AddTransport(sub, domain.DirectionRecv, &corefakes.Transport{})
		require.NoError(t, err)
		c, err := reg.AddConsumer(sub, recv.ID, prod.ID, &corefakes.Consumer{})
		require.NoError(t, err)
		require.True(t, c.Paused)
	}
	require.Len(t, reg.ConsumersOf(prod.ID), 2)

	_, deps, ok := reg.RemoveProducer(prod.ID)
	require.True(t, ok)
	require.Len(t, deps, 2)
	require.Empty(t, reg.ConsumersOf(prod.ID))
	for _, sub := range ids[1:] {
		p, err := reg.Peer(sub)
		require.NoError(t, err)
		require.Empty(t, p.Consumers)
	}
	_, _, ok = reg.RemoveProducer(prod.ID)
	require.False(t, ok)

	recv, err := reg.AddTransport(ids[1], domain.DirectionRecv, &corefakes.Transport{})
	require.NoError(t, err)
	_, err = reg.AddConsumer(ids[1], recv.ID, prod.ID, &corefakes.Consumer{})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, reg.CheckInvariants())
}

func TestRegistry_ConsumerPause(t *testing.T) {
	reg := NewRegistry()
	ids := roomWithPeers(t, reg, "r", 2)
	send, err := reg.AddTransport(ids[0], domain.DirectionSend, &corefakes.Transport{})
	require.NoError(t, err)
	prod, _, _, err := reg.AddProducer(ids[0], send.ID, domain.KindVideo, &corefakes.Producer{})
	require.NoError(t, err)
	recv, err := reg.AddTransport(ids[1], domain.DirectionRecv, &corefakes.Transport{})
	require.NoError(t, err)
	c, err := reg.AddConsumer(ids[1], recv.ID, prod.ID, &corefakes.Consumer{})
	require.NoError(t, err)
	require.Equal(t, domain.KindVideo, c.Kind)

	require.True(t, reg.SetConsumerPaused(c.ID, false))
	got, err := reg.Consumer(ids[1], c.ID)
	require.NoError(t, err)
	require.False(t, got.Paused)

	_, err = reg.Consumer(ids[0], c.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, ok := reg.RemoveConsumer(c.ID)
	require.True(t, ok)
	require.False(t, reg.SetConsumerPaused(c.ID, true))
}

func TestRegistry_Counts(t *testing.T) {
	reg := NewRegistry()
	ids := roomWithPeers(t, reg, "r", 2)
	_, err := reg.AddTransport(ids[0], domain.DirectionSend, &corefakes.Transport{})
	require.NoError(t, err)
	require.Equal(t, Counts{Rooms: 1, Peers: 2, Transports: 1}, reg.Counts())
	require.Len(t, reg.Rooms(), 1)
	require.Len(t, reg.Peers(), 2)
	require.Len(t, reg.DropRooms(), 1)
	require.Empty(t, reg.Rooms())
}
