package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/Campus/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Router owns the transports of one room and indexes every live producer on them.
type Router struct {
	id     string
	engine *Engine

	mu         sync.Mutex
	transports map[string]*Transport
	producers  map[string]*Producer
	closed     bool
}

func newRouter(e *Engine, id string) *Router {
	return &Router{
		id:         id,
		engine:     e,
		transports: make(map[string]*Transport),
		producers:  make(map[string]*Producer),
	}
}

func (r *Router) ID() string { return r.id }

func (r *Router) RtpCapabilities() core.RtpCapabilities { return capabilities() }

func (r *Router) CreateTransport(ctx context.Context) (core.Transport, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrRouterClosed
	}

	t, err := newTransport(ctx, r, uuid.NewString())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		go t.Close()
		return nil, ErrRouterClosed
	}
	r.transports[t.id] = t
	return t, nil
}

func (r *Router) CanConsume(producerID string, caps core.RtpCapabilities) bool {
	p := r.producer(producerID)
	if p == nil || p.Closed() {
		return false
	}
	return supports(caps, p.codec.RTPCodecCapability)
}

func (r *Router) producer(id string) *Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.producers[id]
}

func (r *Router) addProducer(p *Producer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.producers[p.id] = p
	return true
}

func (r *Router) removeProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *Router) removeTransport(id string) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
}

func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	r.engine.forget(r.id)
	log.Info().Str("module", "rtc").Str("router", r.id).Msg("router closed")
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
