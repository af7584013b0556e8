package signal

import (
	"context"

	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoinRoom(ctx context.Context, req request) (any, error) {
	var p joinRoomRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	caps, err := req.sess.JoinRoom(ctx, p.RoomName, p.DisplayName)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "signal").Str("peer", string(req.sess.ID())).Str("room", p.RoomName).Msg("join")
	return joinRoomResponse{RTPCapabilities: caps}, nil
}

// handleLeaveRoom leaves the media room; the connection stays open.
func (ctl *SignalWSController) handleLeaveRoom(ctx context.Context, req request) (any, error) {
	if err := req.sess.LeaveRoom(ctx); err != nil {
		return nil, err
	}
	log.Info().Str("module", "signal").Str("peer", string(req.sess.ID())).Msg("leave")
	return nil, nil
}

func (ctl *SignalWSController) handleListRoomProducers(ctx context.Context, req request) (any, error) {
	ids, err := req.sess.ListRoomProducers(ctx)
	if err != nil {
		return nil, err
	}
	return listRoomProducersResponse{ProducerIDs: ids}, nil
}
