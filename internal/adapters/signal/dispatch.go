package signal

import (
	"context"
	"fmt"

	"github.com/dkeye/Conclave/internal/app/orch"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
)

// handler serves one request type. data decodes the request payload.
type handler func(ctx context.Context, req request) (any, error)

type request struct {
	sess  *orch.Session
	conn  *WsSignalConn
	codec Codec
	raw   rawValue
}

func (r request) decode(v any) error {
	if err := r.raw.decode(r.codec, v); err != nil {
		return fmt.Errorf("decode data: %v: %w", err, domain.ErrBadRequest)
	}
	return nil
}

func (ctl *SignalWSController) handlers() map[string]handler {
	return map[string]handler{
		TypeJoinRoom:          ctl.handleJoinRoom,
		TypeLeaveRoom:         ctl.handleLeaveRoom,
		TypeListRoomProducers: ctl.handleListRoomProducers,
		TypeCreateTransport:   ctl.handleCreateTransport,
		TypeConnectTransport:  ctl.handleConnectTransport,
		TypePublish:           ctl.handlePublish,
		TypeCloseProducer:     ctl.handleCloseProducer,
		TypeSubscribe:         ctl.handleSubscribe,
		TypeResume:            ctl.handleResume,
		TypePing:              ctl.handlePing,
		TypeWhoAmI:            ctl.handleWhoAmI,
		TypeChatJoin:          ctl.handleChatJoin,
		TypeChatLeave:         ctl.handleChatLeave,
		TypeChatSend:          ctl.handleChatSend,
	}
}

func (ctl *SignalWSController) handleFrame(ctx context.Context, sess *orch.Session, c *WsSignalConn, frameType int, data []byte) {
	codec, ok := codecFor(frameType)
	if !ok {
		return
	}
	c.setCodec(codec)

	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(sess.ID())).Msg("bad envelope")
		ctl.reply(c, errResponse(0, fmt.Errorf("malformed envelope: %w", domain.ErrBadRequest)))
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sess.ID()) {
		ctl.reply(c, errResponse(env.ID, domain.ErrRateLimited))
		return
	}

	h, ok := ctl.handlerMap[env.Type]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.reply(c, errResponse(env.ID, fmt.Errorf("unknown type %q: %w", env.Type, domain.ErrBadRequest)))
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, ctl.Config.RequestTimeout)
	defer cancel()
	out, err := serve(reqCtx, h, request{sess: sess, conn: c, codec: codec, raw: env.Data})
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("peer", string(sess.ID())).Str("type", env.Type).Msg("request failed")
		ctl.reply(c, errResponse(env.ID, err))
		return
	}
	ctl.reply(c, okResponse(env.ID, out))
}

// serve runs h and turns a panic into an Internal error for this request.
func serve(ctx context.Context, h handler, req request) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Interface("panic", r).Msg("handler panicked")
			out, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, req)
}

func (ctl *SignalWSController) reply(c *WsSignalConn, resp response) {
	if err := c.SendValue(resp); err != nil {
		log.Warn().Err(err).Str("module", "signal").Uint64("id", resp.ID).Msg("response not queued")
	}
}
