package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	conn   domain.Connection
	signal core.SignalConnection
	cancel context.CancelFunc
}

// Registry is the single source of truth for "who is this socket".
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnID]*connEntry),
		now:   time.Now,
	}
}

func NewConnID() domain.ConnID {
	return domain.ConnID(uuid.NewString())
}

// Register binds a fresh transport session. The connection starts unidentified.
func (r *Registry) Register(id domain.ConnID, signal core.SignalConnection, cancel context.CancelFunc) domain.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := domain.Connection{ID: id, CreatedAt: r.now()}
	r.conns[id] = &connEntry{conn: c, signal: signal, cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("registered connection")
	return c
}

// Identify attaches a verified identity. Once set it can only be confirmed, never replaced.
func (r *Registry) Identify(id domain.ConnID, ident domain.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	if e.conn.Identity != nil {
		return e.conn.Identity.UserID == ident.UserID
	}
	e.conn.Identity = &ident
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(ident.UserID)).Msg("identified connection")
	return true
}

func (r *Registry) IdentityOf(id domain.ConnID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.conn.Identity == nil {
		return domain.Identity{}, false
	}
	return *e.conn.Identity, true
}

func (r *Registry) Alive(id domain.ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

func (r *Registry) Connection(id domain.ConnID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, false
	}
	return e.conn, true
}

func (r *Registry) Signal(id domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.signal, true
}

// Identified returns a snapshot of every connection that has presented an identity.
func (r *Registry) Identified() []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ConnID, 0, len(r.conns))
	for id, e := range r.conns {
		if e.conn.Identified() {
			out = append(out, id)
		}
	}
	return out
}

// Connections returns a snapshot of every registered connection id.
func (r *Registry) Connections() []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ConnID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

func (r *Registry) ConnectionsOf(user domain.UserID) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ConnID
	for id, e := range r.conns {
		if e.conn.Identity != nil && e.conn.Identity.UserID == user {
			out = append(out, id)
		}
	}
	return out
}

// Unregister removes the connection. Only the first caller gets true, which is what
// lets disconnect cleanup run exactly once per connection.
func (r *Registry) Unregister(id domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered connection")
	return true
}

// Cancel stops the connection's pumps; the pumps then drive the normal disconnect path.
func (r *Registry) Cancel(id domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("canceled connection")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
