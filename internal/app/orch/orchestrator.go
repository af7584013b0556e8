package orch

import (
	"sync"
	"time"

	"github.com/dkeye/Conclave/internal/app"
	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
)

// closeWorkers bounds concurrent engine closes during a cascade.
const closeWorkers = 8

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Policy   app.Policy
	Chats    *core.ChatRooms
	// Timeout bounds every media engine round trip.
	Timeout time.Duration

	mu       sync.Mutex
	sessions map[domain.PeerID]*Session
}

func New(reg *app.Registry, rooms *app.RoomManager, policy app.Policy, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		Chats:    core.NewChatRooms(),
		Timeout:  timeout,
		sessions: make(map[domain.PeerID]*Session),
	}
}

// Connect registers a freshly opened signaling channel and returns its
// session controller.
func (o *Orchestrator) Connect(id domain.PeerID, displayName string, n core.Notifier) (*Session, error) {
	name, err := domain.NormalizeDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	if err := o.Registry.AddPeer(id, name, n); err != nil {
		return nil, err
	}
	s := &Session{o: o, id: id}
	o.mu.Lock()
	o.sessions[id] = s
	o.mu.Unlock()
	log.Info().Str("module", "orch").Str("peer", string(id)).Str("name", name).Msg("peer connected")
	return s, nil
}

func (o *Orchestrator) Session(id domain.PeerID) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[id]
	return s, ok
}

func (o *Orchestrator) forget(id domain.PeerID) {
	o.mu.Lock()
	delete(o.sessions, id)
	o.mu.Unlock()
}

func (o *Orchestrator) notify(peer domain.PeerID, msg core.Notification) {
	n, ok := o.Registry.Notifier(peer)
	if !ok || n == nil {
		log.Debug().Str("module", "orch").Str("peer", string(peer)).Msg("notify: peer gone")
		return
	}
	if err := n.Notify(msg); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("peer", string(peer)).Msg("notify failed")
	}
}

// HandleEngineFault tells every peer to reconnect and tears all state down.
func (o *Orchestrator) HandleEngineFault(cause error) {
	reason := "media engine stopped"
	if cause != nil {
		reason = cause.Error()
	}
	log.Error().Err(cause).Str("module", "orch").Msg("media engine fault, tearing down all rooms")
	for _, snap := range o.Registry.Peers() {
		if snap.Notifier == nil {
			continue
		}
		if err := snap.Notifier.Notify(core.EngineFault{Reason: reason}); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("peer", string(snap.Peer)).Msg("engine fault notify failed")
		}
	}
	o.Shutdown()
}

// Shutdown disconnects every session and releases all routing contexts.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	sessions := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.mu.Unlock()
	for _, s := range sessions {
		s.Disconnect()
	}
	o.Rooms.Shutdown()
}
