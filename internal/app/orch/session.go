package orch

import (
	"sync"

	"github.com/dkeye/Conclave/internal/domain"
)

// Session is the per-peer controller. Its mutex serializes every request of
// one peer and its disconnect; cross-peer effects go through the registry
// and never take another session's mutex.
type Session struct {
	o  *Orchestrator
	id domain.PeerID

	mu     sync.Mutex
	closed bool
}

func (s *Session) ID() domain.PeerID { return s.id }

func (s *Session) begin() (unlock func(), err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}, domain.ErrClosed
	}
	return s.mu.Unlock, nil
}
