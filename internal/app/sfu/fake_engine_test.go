package sfu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Campus/internal/core"
)

var fakeSeq atomic.Uint64

func fakeID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, fakeSeq.Add(1))
}

type fakeEngine struct {
	mu      sync.Mutex
	routers []*fakeRouter
	died    chan error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{died: make(chan error, 1)}
}

func (e *fakeEngine) CreateRouter(context.Context) (core.Router, error) {
	r := &fakeRouter{id: fakeID("router"), producers: make(map[string]*fakeProducer)}
	e.mu.Lock()
	e.routers = append(e.routers, r)
	e.mu.Unlock()
	return r, nil
}

func (e *fakeEngine) Died() <-chan error { return e.died }
func (e *fakeEngine) Close()             {}

func (e *fakeEngine) routerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.routers)
}

type fakeRouter struct {
	id        string
	mu        sync.Mutex
	producers map[string]*fakeProducer
	closed    atomic.Bool
}

func (r *fakeRouter) ID() string { return r.id }

func (r *fakeRouter) RtpCapabilities() core.RtpCapabilities {
	return core.RtpCapabilities{Codecs: []core.RtpCodecCapability{
		{Kind: "audio", MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: "video", MimeType: "video/VP8", ClockRate: 90000},
	}}
}

func (r *fakeRouter) CreateTransport(context.Context) (core.Transport, error) {
	return &fakeTransport{id: fakeID("transport"), router: r}, nil
}

func (r *fakeRouter) CanConsume(producerID string, caps core.RtpCapabilities) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok || p.Closed() {
		return false
	}
	for _, c := range caps.Codecs {
		if c.Kind == p.kind.CodecKind() {
			return true
		}
	}
	return false
}

func (r *fakeRouter) Close()       { r.closed.Store(true) }
func (r *fakeRouter) Closed() bool { return r.closed.Load() }

type fakeTransport struct {
	id      string
	router  *fakeRouter
	mu      sync.Mutex
	onClose []func()
	prods   []*fakeProducer
	conss   []*fakeConsumer
	closed  atomic.Bool
	connect atomic.Int32
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) Descriptor() core.TransportDescriptor {
	return core.TransportDescriptor{ID: t.id}
}

func (t *fakeTransport) Connect(context.Context, core.ConnectParams) error {
	t.connect.Add(1)
	return nil
}

func (t *fakeTransport) Produce(_ context.Context, kind core.MediaKind, _ core.RtpParameters) (core.Producer, error) {
	p := &fakeProducer{id: fakeID("producer"), kind: kind}
	t.router.mu.Lock()
	t.router.producers[p.id] = p
	t.router.mu.Unlock()
	t.mu.Lock()
	t.prods = append(t.prods, p)
	t.mu.Unlock()
	return p, nil
}

func (t *fakeTransport) Consume(_ context.Context, producerID string, _ core.RtpCapabilities) (core.Consumer, error) {
	t.router.mu.Lock()
	p := t.router.producers[producerID]
	t.router.mu.Unlock()
	c := &fakeConsumer{id: fakeID("consumer"), producerID: producerID, kind: p.kind}
	t.mu.Lock()
	t.conss = append(t.conss, c)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeTransport) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = append(t.onClose, fn)
}

func (t *fakeTransport) Close() {
	if t.closed.Swap(true) {
		return
	}
	t.mu.Lock()
	prods, conss, cbs := t.prods, t.conss, t.onClose
	t.mu.Unlock()
	for _, p := range prods {
		p.Close()
	}
	for _, c := range conss {
		c.Close()
	}
	for _, fn := range cbs {
		fn()
	}
}

func (t *fakeTransport) Closed() bool { return t.closed.Load() }

type fakeProducer struct {
	id      string
	kind    core.MediaKind
	mu      sync.Mutex
	onClose []func()
	closed  atomic.Bool
}

func (p *fakeProducer) ID() string           { return p.id }
func (p *fakeProducer) Kind() core.MediaKind { return p.kind }

func (p *fakeProducer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = append(p.onClose, fn)
}

func (p *fakeProducer) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.mu.Lock()
	cbs := p.onClose
	p.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

func (p *fakeProducer) Closed() bool { return p.closed.Load() }

type fakeConsumer struct {
	id         string
	producerID string
	kind       core.MediaKind
	closed     atomic.Bool
}

func (c *fakeConsumer) ID() string         { return c.id }
func (c *fakeConsumer) ProducerID() string { return c.producerID }
func (c *fakeConsumer) Kind() core.MediaKind {
	return c.kind
}

func (c *fakeConsumer) Descriptor() core.ConsumerDescriptor {
	return core.ConsumerDescriptor{ID: c.id, ProducerID: c.producerID, Kind: c.kind}
}

func (c *fakeConsumer) Close()       { c.closed.Store(true) }
func (c *fakeConsumer) Closed() bool { return c.closed.Load() }
