package orch

import (
	"errors"
	"testing"

	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/core/mocks"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func chatMember(t *testing.T, h *harness, ctrl *gomock.Controller, name string) (*Session, *mocks.MockSignalConnection) {
	t.Helper()
	n := mocks.NewMockNotifier(ctrl)
	s, err := h.orch.Connect(domain.NewPeerID(), name, n)
	require.NoError(t, err)
	conn := mocks.NewMockSignalConnection(ctrl)
	require.NoError(t, s.ChatJoin("lobby", core.NewMemberSession(domain.NewMember(s.ID(), name), conn)))
	return s, conn
}

func TestChatSend_KicksSlowMember(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHarness(t, true)
	a, aConn := chatMember(t, h, ctrl, "a")
	_, bConn := chatMember(t, h, ctrl, "b")

	frame := core.Frame(`hello`)
	aConn.EXPECT().TrySend(frame).Return(nil).Times(2)
	bConn.EXPECT().TrySend(frame).Return(errors.New("backpressure")).Times(1)

	res, err := a.ChatSend("lobby", frame)
	require.NoError(t, err)
	require.Equal(t, 1, res.SendTo)
	require.Len(t, res.Dropped, 1)

	room, ok := h.orch.Chats.Get("lobby")
	require.True(t, ok)
	require.Equal(t, 1, room.MemberCount())

	res, err = a.ChatSend("lobby", frame)
	require.NoError(t, err)
	require.Equal(t, 1, res.SendTo)
	require.Empty(t, res.Dropped)
}

func TestChat_MembershipChecks(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHarness(t, true)
	a, _ := chatMember(t, h, ctrl, "a")
	outsider, err := h.orch.Connect(domain.NewPeerID(), "o", mocks.NewMockNotifier(ctrl))
	require.NoError(t, err)

	_, err = outsider.ChatSend("lobby", core.Frame("x"))
	require.ErrorIs(t, err, domain.ErrNotInRoom)
	require.ErrorIs(t, outsider.ChatLeave("lobby"), domain.ErrNotInRoom)
	require.Error(t, a.ChatJoin("", nil))

	require.NoError(t, a.ChatLeave("lobby"))
	_, ok := h.orch.Chats.Get("lobby")
	require.False(t, ok)
}

func TestDisconnect_LeavesChats(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHarness(t, true)
	a, _ := chatMember(t, h, ctrl, "a")
	a.Disconnect()
	require.Empty(t, h.orch.Chats.List())
}
