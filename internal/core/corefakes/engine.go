// Package corefakes provides an in-memory media engine for tests.
package corefakes

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
)

// Operation names accepted by Stall.
const (
	OpCreateRouter    = "createRouter"
	OpCreateTransport = "createTransport"
	OpConnect         = "connect"
	OpProduce         = "produce"
	OpConsume         = "consume"
)

// Engine is a fake core.MediaEngine. Handles close idempotently and count
// every Close call so tests can observe double closes.
type Engine struct {
	mu      sync.Mutex
	stalls  map[string]chan struct{}
	routers []*Router
	done    chan struct{}
	err     error
	once    sync.Once

	// CreateRouterErr, when set, fails router creation.
	CreateRouterErr error
	// ProduceHook and TransportHook run on every new handle before it is
	// returned. Set them before the handles are created.
	ProduceHook   func(*Producer)
	TransportHook func(*Transport)
}

func NewEngine() *Engine {
	return &Engine{
		stalls: make(map[string]chan struct{}),
		done:   make(chan struct{}),
	}
}

// Stall makes op block, ignoring its context, until release is called.
func (e *Engine) Stall(op string) (release func()) {
	ch := make(chan struct{})
	e.mu.Lock()
	e.stalls[op] = ch
	e.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			if e.stalls[op] == ch {
				delete(e.stalls, op)
			}
			e.mu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) wait(op string) {
	e.mu.Lock()
	ch := e.stalls[op]
	e.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

// Die simulates the engine process dying.
func (e *Engine) Die(err error) {
	e.once.Do(func() {
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		close(e.done)
	})
}

func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Engine) Close() { e.Die(nil) }

func (e *Engine) CreateRouter(ctx context.Context, room domain.RoomName) (core.Router, error) {
	e.wait(OpCreateRouter)
	if e.CreateRouterErr != nil {
		return nil, e.CreateRouterErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := &Router{engine: e, Room: room}
	e.mu.Lock()
	e.routers = append(e.routers, r)
	e.mu.Unlock()
	return r, nil
}

// Routers returns every router ever created.
func (e *Engine) Routers() []*Router {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.routers)
}

type closer struct {
	calls atomic.Int32
}

func (c *closer) close() bool { return c.calls.Add(1) == 1 }

// Closed reports whether Close was called at least once.
func (c *closer) Closed() bool { return c.calls.Load() > 0 }

// CloseCalls reports how many times Close was called.
func (c *closer) CloseCalls() int { return int(c.calls.Load()) }

type capabilities struct {
	Kinds []domain.MediaKind `json:"kinds"`
}

var defaultCaps = capabilities{Kinds: []domain.MediaKind{domain.KindAudio, domain.KindVideo}}

type Router struct {
	closer
	engine *Engine
	Room   domain.RoomName

	mu         sync.Mutex
	transports []*Transport
}

func (r *Router) Capabilities() core.Params {
	b, _ := json.Marshal(defaultCaps)
	return b
}

func (r *Router) CanConsume(producer core.Producer, caps core.Params) bool {
	c := defaultCaps
	if len(caps) > 0 {
		if err := json.Unmarshal(caps, &c); err != nil {
			return false
		}
	}
	return slices.Contains(c.Kinds, producer.Kind())
}

func (r *Router) CreateTransport(ctx context.Context, dir domain.Direction) (core.Transport, error) {
	r.engine.wait(OpCreateTransport)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := &Transport{engine: r.engine, router: r, dir: dir}
	r.mu.Lock()
	r.transports = append(r.transports, t)
	r.mu.Unlock()
	if r.engine.TransportHook != nil {
		r.engine.TransportHook(t)
	}
	return t, nil
}

func (r *Router) Transports() []*Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.transports)
}

func (r *Router) Close() { r.close() }

type Transport struct {
	closer
	engine *Engine
	router *Router
	dir    domain.Direction

	mu        sync.Mutex
	connected bool
	failed    bool
	onClose   []func()
	producers []*Producer
	consumers []*Consumer
}

func (t *Transport) Direction() domain.Direction { return t.dir }

func (t *Transport) HandshakeParams() core.Params {
	b, _ := json.Marshal(map[string]string{"direction": string(t.dir)})
	return b
}

func (t *Transport) Connect(ctx context.Context, params core.Params) (core.Params, error) {
	t.engine.wait(OpConnect)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil, nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Produce(ctx context.Context, kind domain.MediaKind, params core.Params) (core.Producer, error) {
	t.engine.wait(OpProduce)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := &Producer{kind: kind}
	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	if t.engine.ProduceHook != nil {
		t.engine.ProduceHook(p)
	}
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, producer core.Producer, caps core.Params) (core.Consumer, error) {
	t.engine.wait(OpConsume)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &Consumer{kind: producer.Kind()}
	c.paused.Store(true)
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c, nil
}

func (t *Transport) Producers() []*Producer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.producers)
}

func (t *Transport) Consumers() []*Consumer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.consumers)
}

// OnClose runs fn at once when the transport already failed.
func (t *Transport) OnClose(fn func()) {
	t.mu.Lock()
	if t.failed {
		t.mu.Unlock()
		fn()
		return
	}
	t.onClose = append(t.onClose, fn)
	t.mu.Unlock()
}

// Fail simulates the engine reporting terminal transport state.
func (t *Transport) Fail() {
	if !t.close() {
		return
	}
	t.mu.Lock()
	t.failed = true
	fns := slices.Clone(t.onClose)
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (t *Transport) Close() { t.close() }

type Producer struct {
	closer
	kind domain.MediaKind

	mu      sync.Mutex
	ended   bool
	onClose []func()
}

func (p *Producer) Kind() domain.MediaKind { return p.kind }

// OnClose runs fn at once when the stream already ended.
func (p *Producer) OnClose(fn func()) {
	p.mu.Lock()
	if p.ended {
		p.mu.Unlock()
		fn()
		return
	}
	p.onClose = append(p.onClose, fn)
	p.mu.Unlock()
}

// End simulates the engine ending the stream.
func (p *Producer) End() {
	if !p.close() {
		return
	}
	p.mu.Lock()
	p.ended = true
	fns := slices.Clone(p.onClose)
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (p *Producer) Close() { p.close() }

type Consumer struct {
	closer
	kind    domain.MediaKind
	paused  atomic.Bool
	resumes atomic.Int32
}

func (c *Consumer) Kind() domain.MediaKind { return c.kind }

func (c *Consumer) Params() core.Params {
	b, _ := json.Marshal(map[string]string{"kind": string(c.kind)})
	return b
}

func (c *Consumer) Paused() bool { return c.paused.Load() }

func (c *Consumer) Resume(ctx context.Context) error {
	if c.paused.CompareAndSwap(true, false) {
		c.resumes.Add(1)
	}
	return nil
}

// Resumes counts effective pause→active transitions.
func (c *Consumer) Resumes() int { return int(c.resumes.Load()) }

func (c *Consumer) Close() { c.close() }
