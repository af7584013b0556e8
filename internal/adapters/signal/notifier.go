package signal

import (
	"fmt"

	"github.com/dkeye/Conclave/internal/core"
)

// notifier turns core notifications into push frames on one connection.
type notifier struct {
	conn *WsSignalConn
}

func (n *notifier) Notify(msg core.Notification) error {
	var p push
	switch m := msg.(type) {
	case core.ProducerAvailable:
		p = push{Type: TypeProducerAvailable, Data: producerAvailable{ProducerID: m.Producer, PeerID: m.Peer, Kind: m.Kind}}
	case core.ProducerClosed:
		p = push{Type: TypeProducerClosed, Data: producerClosed{ProducerID: m.Producer, ConsumerID: m.Consumer}}
	case core.EngineFault:
		p = push{Type: TypeEngineFault, Data: engineFault{Reason: m.Reason}}
	default:
		return fmt.Errorf("unsupported notification %T", msg)
	}
	return n.conn.SendValue(p)
}
