package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleChatJoin(_ context.Context, req request) (any, error) {
	var p chatRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	peer, err := ctl.Orch.Registry.Peer(req.sess.ID())
	if err != nil {
		return nil, err
	}
	ms := core.NewMemberSession(domain.NewMember(peer.ID, peer.DisplayName), req.conn)
	if err := req.sess.ChatJoin(p.Room, ms); err != nil {
		return nil, err
	}
	log.Info().Str("module", "signal").Str("peer", string(peer.ID)).Str("chat", p.Room).Msg("chat join")
	return nil, nil
}

func (ctl *SignalWSController) handleChatLeave(_ context.Context, req request) (any, error) {
	var p chatRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	return nil, req.sess.ChatLeave(p.Room)
}

// handleChatSend relays a text message. Chat frames are always JSON text so
// one encoding serves every member.
func (ctl *SignalWSController) handleChatSend(_ context.Context, req request) (any, error) {
	var p chatRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	peer, err := ctl.Orch.Registry.Peer(req.sess.ID())
	if err != nil {
		return nil, err
	}
	frame, err := json.Marshal(push{Type: TypeChatMessage, Data: chatMessage{
		Room:        p.Room,
		From:        peer.ID,
		DisplayName: peer.DisplayName,
		Message:     p.Message,
	}})
	if err != nil {
		return nil, err
	}
	res, err := req.sess.ChatSend(p.Room, frame)
	if err != nil {
		return nil, err
	}
	return chatSendResponse{SentTo: res.SendTo, Dropped: len(res.Dropped)}, nil
}
