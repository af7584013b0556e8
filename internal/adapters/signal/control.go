package signal

import "context"

func (ctl *SignalWSController) handlePing(context.Context, request) (any, error) {
	return "pong", nil
}

func (ctl *SignalWSController) handleWhoAmI(_ context.Context, req request) (any, error) {
	p, err := ctl.Orch.Registry.Peer(req.sess.ID())
	if err != nil {
		return nil, err
	}
	return whoAmIResponse{PeerID: p.ID, DisplayName: p.DisplayName, Room: p.Room}, nil
}
