package signal

import (
	"context"

	"github.com/dkeye/Conclave/internal/domain"
)

func (ctl *SignalWSController) handleCreateTransport(ctx context.Context, req request) (any, error) {
	var p createTransportRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	dir, err := domain.ParseDirection(p.Direction)
	if err != nil {
		return nil, err
	}
	t, params, err := req.sess.CreateTransport(ctx, dir)
	if err != nil {
		return nil, err
	}
	return createTransportResponse{TransportID: t.ID, Params: params}, nil
}

func (ctl *SignalWSController) handleConnectTransport(ctx context.Context, req request) (any, error) {
	var p connectTransportRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	params, err := req.sess.ConnectTransport(ctx, p.TransportID, p.Params)
	if err != nil {
		return nil, err
	}
	return connectTransportResponse{Params: params}, nil
}

func (ctl *SignalWSController) handlePublish(ctx context.Context, req request) (any, error) {
	var p publishRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	kind, err := domain.ParseMediaKind(p.Kind)
	if err != nil {
		return nil, err
	}
	pid, existed, err := req.sess.Publish(ctx, p.TransportID, kind, p.RTPParameters)
	if err != nil {
		return nil, err
	}
	return publishResponse{ProducerID: pid, ProducersExist: existed}, nil
}

func (ctl *SignalWSController) handleCloseProducer(ctx context.Context, req request) (any, error) {
	var p closeProducerRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	return nil, req.sess.CloseProducer(ctx, p.ProducerID)
}

func (ctl *SignalWSController) handleSubscribe(ctx context.Context, req request) (any, error) {
	var p subscribeRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	c, err := req.sess.Subscribe(ctx, p.TransportID, p.ProducerID, p.RTPCapabilities)
	if err != nil {
		return nil, err
	}
	return subscribeResponse{
		ConsumerID:    c.ID,
		ProducerID:    c.Producer,
		Kind:          c.Kind,
		RTPParameters: c.Handle.Params(),
	}, nil
}

func (ctl *SignalWSController) handleResume(ctx context.Context, req request) (any, error) {
	var p resumeRequest
	if err := req.decode(&p); err != nil {
		return nil, err
	}
	return nil, req.sess.Resume(ctx, p.ConsumerID)
}
