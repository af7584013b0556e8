package core_test

import (
	"errors"
	"testing"

	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/core/mocks"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func member(ctrl *gomock.Controller, id, name string) (core.MemberSession, *mocks.MockSignalConnection) {
	conn := mocks.NewMockSignalConnection(ctrl)
	return core.NewMemberSession(domain.NewMember(domain.PeerID(id), name), conn), conn
}

func TestChatRoom_BroadcastReportsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	room := core.NewChatRoom("lobby")
	a, aConn := member(ctrl, "a", "Ann")
	b, bConn := member(ctrl, "b", "Bob")
	room.AddMember(a)
	room.AddMember(b)

	frame := core.Frame(`{"type":"chatMessage"}`)
	aConn.EXPECT().TrySend(frame).Return(nil)
	bConn.EXPECT().TrySend(frame).Return(errors.New("full"))

	res := room.Broadcast("a", frame)
	require.Equal(t, 1, res.SendTo)
	require.Equal(t, []domain.PeerID{"b"}, res.Dropped)
	require.Equal(t, 2, room.MemberCount())
	require.ElementsMatch(t, []core.MemberDTO{{ID: "a", DisplayName: "Ann"}, {ID: "b", DisplayName: "Bob"}}, room.MembersSnapshot())
}

func TestChatRooms_DropEmptyRooms(t *testing.T) {
	ctrl := gomock.NewController(t)
	rooms := core.NewChatRooms()
	a, _ := member(ctrl, "a", "Ann")
	b, _ := member(ctrl, "b", "Bob")

	rooms.Join("one", a)
	rooms.Join("one", b)
	rooms.Join("two", a)
	require.Len(t, rooms.List(), 2)

	rooms.LeaveAll("a")
	_, ok := rooms.Get("two")
	require.False(t, ok)
	one, ok := rooms.Get("one")
	require.True(t, ok)
	require.Equal(t, 1, one.MemberCount())

	rooms.Leave("one", "b")
	require.Empty(t, rooms.List())
	rooms.Leave("one", "b")
}

func TestChatRoom_RejoinReplacesEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	room := core.NewChatRoom("lobby")
	meta := domain.NewMember("a", "Ann")

	stale := mocks.NewMockMemberSession(ctrl)
	stale.EXPECT().Meta().Return(meta).AnyTimes()
	fresh := mocks.NewMockMemberSession(ctrl)
	freshConn := mocks.NewMockSignalConnection(ctrl)
	fresh.EXPECT().Meta().Return(meta).AnyTimes()
	fresh.EXPECT().Signal().Return(freshConn)

	room.AddMember(stale)
	room.AddMember(fresh)
	require.Equal(t, 1, room.MemberCount())

	frame := core.Frame("hi")
	freshConn.EXPECT().TrySend(frame).Return(nil)
	res := room.Broadcast("a", frame)
	require.Equal(t, 1, res.SendTo)
	require.Empty(t, res.Dropped)
}
