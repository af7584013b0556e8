package app

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/rs/zerolog/log"
)

type TransportRecord struct {
	domain.Transport
	Handle core.Transport
}

type ProducerRecord struct {
	domain.Producer
	Handle core.Producer
}

type ConsumerRecord struct {
	domain.Consumer
	Handle core.Consumer
}

// PeerSnap pairs a peer with its push channel.
type PeerSnap struct {
	Peer     domain.PeerID
	Notifier core.Notifier
}

type roomEntry struct {
	router    core.Router
	members   []domain.PeerID
	producers []domain.ProducerID
}

type peerEntry struct {
	displayName string
	room        domain.RoomName
	notifier    core.Notifier
	transports  map[domain.TransportID]struct{}
	producers   map[domain.ProducerID]struct{}
	consumers   map[domain.ConsumerID]struct{}
}

// Registry owns every room, peer, transport, producer and consumer. Entities
// reference each other by id only. Each method is atomic under mu; engine
// handles are returned to callers and never closed here.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[domain.RoomName]*roomEntry
	peers      map[domain.PeerID]*peerEntry
	transports map[domain.TransportID]*TransportRecord
	producers  map[domain.ProducerID]*ProducerRecord
	consumers  map[domain.ConsumerID]*ConsumerRecord
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:      make(map[domain.RoomName]*roomEntry),
		peers:      make(map[domain.PeerID]*peerEntry),
		transports: make(map[domain.TransportID]*TransportRecord),
		producers:  make(map[domain.ProducerID]*ProducerRecord),
		consumers:  make(map[domain.ConsumerID]*ConsumerRecord),
	}
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, domain.ErrNotFound)
}

func (r *Registry) AddPeer(id domain.PeerID, displayName string, n core.Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; ok {
		return fmt.Errorf("peer %s already registered: %w", id, domain.ErrBadRequest)
	}
	r.peers[id] = &peerEntry{
		displayName: displayName,
		notifier:    n,
		transports:  make(map[domain.TransportID]struct{}),
		producers:   make(map[domain.ProducerID]struct{}),
		consumers:   make(map[domain.ConsumerID]struct{}),
	}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("added peer")
	return nil
}

func (r *Registry) Peer(id domain.PeerID) (domain.Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return domain.Peer{}, notFound("peer", id)
	}
	return domain.Peer{
		ID:          id,
		DisplayName: p.displayName,
		Room:        p.room,
		Transports:  slices.Sorted(maps.Keys(p.transports)),
		Producers:   slices.Sorted(maps.Keys(p.producers)),
		Consumers:   slices.Sorted(maps.Keys(p.consumers)),
	}, nil
}

// SetDisplayName updates the peer's display metadata.
func (r *Registry) SetDisplayName(id domain.PeerID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return notFound("peer", id)
	}
	p.displayName = name
	return nil
}

func (r *Registry) Notifier(id domain.PeerID) (core.Notifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	return p.notifier, true
}

// Peers returns every connected peer.
func (r *Registry) Peers() []PeerSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerSnap, 0, len(r.peers))
	for id, p := range r.peers {
		out = append(out, PeerSnap{Peer: id, Notifier: p.notifier})
	}
	return out
}

// RemovePeer deletes the peer record. Owned resources must already be gone.
func (r *Registry) RemovePeer(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return false
	}
	if len(p.transports)+len(p.producers)+len(p.consumers) > 0 || p.room != "" {
		log.Warn().Str("module", "app.registry").Str("peer", string(id)).Msg("removing peer that still owns resources")
	}
	delete(r.peers, id)
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("removed peer")
	return true
}

func (r *Registry) RoomRouter(name domain.RoomName) (core.Router, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	if !ok {
		return nil, false
	}
	return room.router, true
}

// AddRoom stores router for name unless the room already exists, and returns
// the router the room ends up with.
func (r *Registry) AddRoom(name domain.RoomName, router core.Router) core.Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[name]; ok {
		return room.router
	}
	r.rooms[name] = &roomEntry{router: router}
	log.Info().Str("module", "app.registry").Str("room", string(name)).Msg("created room")
	return router
}

// JoinRoom makes peer a member of an existing room. Joining the room the
// peer is already in is a no-op.
func (r *Registry) JoinRoom(id domain.PeerID, name domain.RoomName) (core.Params, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return nil, notFound("peer", id)
	}
	if p.room != "" && p.room != name {
		return nil, fmt.Errorf("peer %s in room %s: %w", id, p.room, domain.ErrAlreadyInRoom)
	}
	room, ok := r.rooms[name]
	if !ok {
		return nil, notFound("room", name)
	}
	if p.room == "" {
		room.members = append(room.members, id)
		p.room = name
		log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("room", string(name)).Msg("joined room")
	}
	return room.router.Capabilities(), nil
}

func (r *Registry) RoomOf(id domain.PeerID) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok || p.room == "" {
		return "", false
	}
	return p.room, true
}

// LeaveRoom drops peer from its room's member set and reports how many
// members remain.
func (r *Registry) LeaveRoom(id domain.PeerID) (domain.RoomName, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return "", 0, notFound("peer", id)
	}
	if p.room == "" {
		return "", 0, domain.ErrNotInRoom
	}
	name := p.room
	p.room = ""
	room, ok := r.rooms[name]
	if !ok {
		return name, 0, nil
	}
	room.members = slices.DeleteFunc(room.members, func(m domain.PeerID) bool { return m == id })
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("room", string(name)).Int("remaining", len(room.members)).Msg("left room")
	return name, len(room.members), nil
}

// ReclaimRoom deletes name if it has no members and returns its router so
// the caller can release it.
func (r *Registry) ReclaimRoom(name domain.RoomName) (core.Router, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	if !ok || len(room.members) > 0 {
		return nil, false
	}
	delete(r.rooms, name)
	log.Info().Str("module", "app.registry").Str("room", string(name)).Msg("reclaimed room")
	return room.router, true
}

// DropRooms deletes every room regardless of membership and returns their routers.
func (r *Registry) DropRooms() []core.Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Router, 0, len(r.rooms))
	for name, room := range r.rooms {
		out = append(out, room.router)
		delete(r.rooms, name)
	}
	return out
}

func (r *Registry) Room(name domain.RoomName) (domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	if !ok {
		return domain.Room{}, false
	}
	return domain.Room{Name: name, Members: slices.Clone(room.members), Producers: len(room.producers)}, true
}

func (r *Registry) Rooms() []domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Room, 0, len(r.rooms))
	for name, room := range r.rooms {
		out = append(out, domain.Room{Name: name, Members: slices.Clone(room.members), Producers: len(room.producers)})
	}
	slices.SortFunc(out, func(a, b domain.Room) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

func (r *Registry) AddTransport(id domain.PeerID, dir domain.Direction, h core.Transport) (domain.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return domain.Transport{}, notFound("peer", id)
	}
	if p.room == "" {
		return domain.Transport{}, domain.ErrNotInRoom
	}
	t := domain.Transport{
		ID:        domain.NewTransportID(),
		Peer:      id,
		Room:      p.room,
		Direction: dir,
	}
	r.transports[t.ID] = &TransportRecord{Transport: t, Handle: h}
	p.transports[t.ID] = struct{}{}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("transport", string(t.ID)).Str("direction", string(dir)).Msg("added transport")
	return t, nil
}

// Transport returns tid if peer owns it.
func (r *Registry) Transport(id domain.PeerID, tid domain.TransportID) (TransportRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[tid]
	if !ok || t.Peer != id {
		return TransportRecord{}, notFound("transport", tid)
	}
	return *t, nil
}

// TransportByID looks tid up regardless of owner.
func (r *Registry) TransportByID(tid domain.TransportID) (TransportRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[tid]
	if !ok {
		return TransportRecord{}, false
	}
	return *t, true
}

// TransportResources lists producers and consumers bound to tid.
func (r *Registry) TransportResources(tid domain.TransportID) ([]domain.ProducerID, []domain.ConsumerID) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ps []domain.ProducerID
	for id, p := range r.producers {
		if p.Transport == tid {
			ps = append(ps, id)
		}
	}
	var cs []domain.ConsumerID
	for id, c := range r.consumers {
		if c.Transport == tid {
			cs = append(cs, id)
		}
	}
	return ps, cs
}

func (r *Registry) RemoveTransport(tid domain.TransportID) (TransportRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transports[tid]
	if !ok {
		return TransportRecord{}, false
	}
	delete(r.transports, tid)
	if p, ok := r.peers[t.Peer]; ok {
		delete(p.transports, tid)
	}
	log.Info().Str("module", "app.registry").Str("peer", string(t.Peer)).Str("transport", string(tid)).Msg("removed transport")
	return *t, true
}

// AddProducer registers a producer on a send transport owned by peer. The
// insertion and the audience snapshot happen under one lock: every member
// present before it is in audience, every later joiner sees the producer in
// RoomProducers. existed reports whether another producer was already live in
// the room.
func (r *Registry) AddProducer(id domain.PeerID, tid domain.TransportID, kind domain.MediaKind, h core.Producer) (rec ProducerRecord, audience []PeerSnap, existed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return ProducerRecord{}, nil, false, notFound("peer", id)
	}
	if p.room == "" {
		return ProducerRecord{}, nil, false, domain.ErrNotInRoom
	}
	t, ok := r.transports[tid]
	if !ok || t.Peer != id || t.Direction != domain.DirectionSend || t.Room != p.room {
		return ProducerRecord{}, nil, false, notFound("send transport", tid)
	}
	room, ok := r.rooms[p.room]
	if !ok {
		return ProducerRecord{}, nil, false, notFound("room", p.room)
	}
	existed = slices.ContainsFunc(room.producers, func(pid domain.ProducerID) bool {
		return r.producers[pid].Peer != id
	})
	rec = ProducerRecord{
		Producer: domain.Producer{
			ID:        domain.NewProducerID(),
			Peer:      id,
			Room:      p.room,
			Transport: tid,
			Kind:      kind,
		},
		Handle: h,
	}
	r.producers[rec.ID] = &rec
	p.producers[rec.ID] = struct{}{}
	room.producers = append(room.producers, rec.ID)
	for _, m := range room.members {
		if m == id {
			continue
		}
		if mp, ok := r.peers[m]; ok {
			audience = append(audience, PeerSnap{Peer: m, Notifier: mp.notifier})
		}
	}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("producer", string(rec.ID)).Str("kind", string(kind)).Int("audience", len(audience)).Msg("added producer")
	return rec, audience, existed, nil
}

// RoomProducers lists live producers in peer's room, excluding its own.
func (r *Registry) RoomProducers(id domain.PeerID) ([]domain.ProducerID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return nil, notFound("peer", id)
	}
	if p.room == "" {
		return nil, domain.ErrNotInRoom
	}
	room, ok := r.rooms[p.room]
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	out := make([]domain.ProducerID, 0, len(room.producers))
	for _, pid := range room.producers {
		if r.producers[pid].Peer != id {
			out = append(out, pid)
		}
	}
	return out, nil
}

func (r *Registry) Producer(pid domain.ProducerID) (ProducerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[pid]
	if !ok {
		return ProducerRecord{}, notFound("producer", pid)
	}
	return *p, nil
}

// RemoveProducer deletes pid together with every consumer referencing it.
// No consumer of pid can be added once this returns.
func (r *Registry) RemoveProducer(pid domain.ProducerID) (ProducerRecord, []ConsumerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[pid]
	if !ok {
		return ProducerRecord{}, nil, false
	}
	delete(r.producers, pid)
	if owner, ok := r.peers[p.Peer]; ok {
		delete(owner.producers, pid)
	}
	if room, ok := r.rooms[p.Room]; ok {
		room.producers = slices.DeleteFunc(room.producers, func(id domain.ProducerID) bool { return id == pid })
	}
	var dependents []ConsumerRecord
	for cid, c := range r.consumers {
		if c.Producer != pid {
			continue
		}
		dependents = append(dependents, *c)
		delete(r.consumers, cid)
		if sub, ok := r.peers[c.Peer]; ok {
			delete(sub.consumers, cid)
		}
	}
	log.Info().Str("module", "app.registry").Str("producer", string(pid)).Int("dependents", len(dependents)).Msg("removed producer")
	return *p, dependents, true
}

// AddConsumer registers a consumer of pid on a receive transport owned by
// peer. It fails with ErrNotFound if pid closed in the meantime.
func (r *Registry) AddConsumer(id domain.PeerID, tid domain.TransportID, pid domain.ProducerID, h core.Consumer) (ConsumerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return ConsumerRecord{}, notFound("peer", id)
	}
	t, ok := r.transports[tid]
	if !ok || t.Peer != id || t.Direction != domain.DirectionRecv || t.Room != p.room {
		return ConsumerRecord{}, notFound("recv transport", tid)
	}
	prod, ok := r.producers[pid]
	if !ok || prod.Room != p.room {
		return ConsumerRecord{}, notFound("producer", pid)
	}
	rec := ConsumerRecord{
		Consumer: domain.Consumer{
			ID:        domain.NewConsumerID(),
			Peer:      id,
			Room:      p.room,
			Transport: tid,
			Producer:  pid,
			Kind:      prod.Kind,
			Paused:    true,
		},
		Handle: h,
	}
	r.consumers[rec.ID] = &rec
	p.consumers[rec.ID] = struct{}{}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("consumer", string(rec.ID)).Str("producer", string(pid)).Msg("added consumer")
	return rec, nil
}

// Consumer returns cid if peer owns it.
func (r *Registry) Consumer(id domain.PeerID, cid domain.ConsumerID) (ConsumerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consumers[cid]
	if !ok || c.Peer != id {
		return ConsumerRecord{}, notFound("consumer", cid)
	}
	return *c, nil
}

func (r *Registry) SetConsumerPaused(cid domain.ConsumerID, paused bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consumers[cid]
	if !ok {
		return false
	}
	c.Paused = paused
	return true
}

func (r *Registry) RemoveConsumer(cid domain.ConsumerID) (ConsumerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consumers[cid]
	if !ok {
		return ConsumerRecord{}, false
	}
	delete(r.consumers, cid)
	if p, ok := r.peers[c.Peer]; ok {
		delete(p.consumers, cid)
	}
	log.Info().Str("module", "app.registry").Str("peer", string(c.Peer)).Str("consumer", string(cid)).Msg("removed consumer")
	return *c, true
}

// ConsumersOf lists consumers referencing pid.
func (r *Registry) ConsumersOf(pid domain.ProducerID) []domain.ConsumerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ConsumerID
	for id, c := range r.consumers {
		if c.Producer == pid {
			out = append(out, id)
		}
	}
	return out
}

type Counts struct {
	Rooms, Peers, Transports, Producers, Consumers int
}

func (r *Registry) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Counts{
		Rooms:      len(r.rooms),
		Peers:      len(r.peers),
		Transports: len(r.transports),
		Producers:  len(r.producers),
		Consumers:  len(r.consumers),
	}
}

// CheckInvariants reports the first broken cross-reference, if any.
func (r *Registry) CheckInvariants() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for cid, c := range r.consumers {
		if _, ok := r.producers[c.Producer]; !ok {
			return fmt.Errorf("consumer %s references dead producer %s", cid, c.Producer)
		}
	}
	for id, p := range r.peers {
		rooms := 0
		for name, room := range r.rooms {
			if slices.Contains(room.members, id) {
				rooms++
				if p.room != name {
					return fmt.Errorf("peer %s listed in room %s but points at %q", id, name, p.room)
				}
			}
		}
		if rooms > 1 {
			return fmt.Errorf("peer %s in %d rooms", id, rooms)
		}
		for tid := range p.transports {
			if t, ok := r.transports[tid]; !ok || t.Room != p.room {
				return fmt.Errorf("peer %s owns stale transport %s", id, tid)
			}
		}
		for pid := range p.producers {
			if pr, ok := r.producers[pid]; !ok || pr.Room != p.room {
				return fmt.Errorf("peer %s owns stale producer %s", id, pid)
			}
		}
		for cid := range p.consumers {
			if c, ok := r.consumers[cid]; !ok || c.Room != p.room {
				return fmt.Errorf("peer %s owns stale consumer %s", id, cid)
			}
		}
	}
	return nil
}
