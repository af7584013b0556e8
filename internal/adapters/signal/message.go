package signal

import (
	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
)

// Request types.
const (
	TypeJoinRoom          = "joinRoom"
	TypeLeaveRoom         = "leaveRoom"
	TypeCreateTransport   = "createTransport"
	TypeConnectTransport  = "connectTransport"
	TypePublish           = "publish"
	TypeCloseProducer     = "closeProducer"
	TypeListRoomProducers = "listRoomProducers"
	TypeSubscribe         = "subscribe"
	TypeResume            = "resume"
	TypePing              = "ping"
	TypeWhoAmI            = "whoami"
	TypeChatJoin          = "chatJoin"
	TypeChatLeave         = "chatLeave"
	TypeChatSend          = "chatSend"
)

// Outbound types.
const (
	TypeResponse          = "response"
	TypeProducerAvailable = "producerAvailable"
	TypeProducerClosed    = "producerClosed"
	TypeEngineFault       = "engineFault"
	TypeChatMessage       = "chatMessage"
)

type joinRoomRequest struct {
	RoomName    string  `json:"roomName"`
	DisplayName *string `json:"displayName,omitempty"`
}

type joinRoomResponse struct {
	RTPCapabilities core.Params `json:"rtpCapabilities"`
}

type createTransportRequest struct {
	Direction string `json:"direction"`
}

type createTransportResponse struct {
	TransportID domain.TransportID `json:"transportId"`
	Params      core.Params        `json:"params"`
}

type connectTransportRequest struct {
	TransportID domain.TransportID `json:"transportId"`
	Params      core.Params        `json:"params"`
}

type connectTransportResponse struct {
	Params core.Params `json:"params,omitempty"`
}

type publishRequest struct {
	TransportID   domain.TransportID `json:"transportId"`
	Kind          string             `json:"kind"`
	RTPParameters core.Params        `json:"rtpParameters"`
}

type publishResponse struct {
	ProducerID     domain.ProducerID `json:"producerId"`
	ProducersExist bool              `json:"producersExist"`
}

type closeProducerRequest struct {
	ProducerID domain.ProducerID `json:"producerId"`
}

type listRoomProducersResponse struct {
	ProducerIDs []domain.ProducerID `json:"producerIds"`
}

type subscribeRequest struct {
	TransportID     domain.TransportID `json:"transportId"`
	ProducerID      domain.ProducerID  `json:"producerId"`
	RTPCapabilities core.Params        `json:"rtpCapabilities,omitempty"`
}

type subscribeResponse struct {
	ConsumerID    domain.ConsumerID `json:"consumerId"`
	ProducerID    domain.ProducerID `json:"producerId"`
	Kind          domain.MediaKind  `json:"kind"`
	RTPParameters core.Params       `json:"rtpParameters"`
}

type resumeRequest struct {
	ConsumerID domain.ConsumerID `json:"consumerId"`
}

type whoAmIResponse struct {
	PeerID      domain.PeerID   `json:"peerId"`
	DisplayName string          `json:"displayName"`
	Room        domain.RoomName `json:"room,omitempty"`
}

type chatRequest struct {
	Room    string `json:"room"`
	Message string `json:"message,omitempty"`
}

type chatSendResponse struct {
	SentTo  int `json:"sentTo"`
	Dropped int `json:"dropped"`
}

type chatMessage struct {
	Room        string        `json:"room"`
	From        domain.PeerID `json:"from"`
	DisplayName string        `json:"displayName"`
	Message     string        `json:"message"`
}

type producerAvailable struct {
	ProducerID domain.ProducerID `json:"producerId"`
	PeerID     domain.PeerID     `json:"peerId"`
	Kind       domain.MediaKind  `json:"kind"`
}

type producerClosed struct {
	ProducerID domain.ProducerID `json:"producerId"`
	ConsumerID domain.ConsumerID `json:"consumerId"`
}

type engineFault struct {
	Reason string `json:"reason"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type response struct {
	Type  string     `json:"type"`
	ID    uint64     `json:"id"`
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *wireError `json:"error,omitempty"`
}

type push struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func okResponse(id uint64, data any) response {
	return response{Type: TypeResponse, ID: id, OK: true, Data: data}
}

func errResponse(id uint64, err error) response {
	return response{Type: TypeResponse, ID: id, Error: &wireError{Code: domain.Code(err), Message: err.Error()}}
}
