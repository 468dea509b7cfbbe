package sfu

import (
	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
)

type producerEntry struct {
	producer    core.Producer
	transportID string
}

type consumerEntry struct {
	consumer    core.Consumer
	transportID string
}

// peer is one user's media graph inside a room. Everything in it is owned by the peer
// and closed with it.
type peer struct {
	user        domain.UserID
	conn        domain.ConnID
	displayName string
	caps        *core.RtpCapabilities

	transports map[string]core.Transport
	producers  map[string]*producerEntry
	consumers  map[string]*consumerEntry
}

func newPeer(user domain.UserID, conn domain.ConnID, displayName string, caps *core.RtpCapabilities) *peer {
	return &peer{
		user:        user,
		conn:        conn,
		displayName: displayName,
		caps:        caps,
		transports:  make(map[string]core.Transport),
		producers:   make(map[string]*producerEntry),
		consumers:   make(map[string]*consumerEntry),
	}
}

func (p *peer) producing(kind core.MediaKind) bool {
	for _, e := range p.producers {
		if e.producer.Kind() == kind && !e.producer.Closed() {
			return true
		}
	}
	return false
}

// closeAll is idempotent; the engine objects tolerate repeated Close.
func (p *peer) closeAll() {
	for id, e := range p.consumers {
		e.consumer.Close()
		delete(p.consumers, id)
	}
	for id, e := range p.producers {
		e.producer.Close()
		delete(p.producers, id)
	}
	for id, t := range p.transports {
		t.Close()
		delete(p.transports, id)
	}
}

type room struct {
	id     domain.RoomID
	router core.Router
	peers  map[domain.UserID]*peer
}

func newRoom(id domain.RoomID) *room {
	return &room{id: id, peers: make(map[domain.UserID]*peer)}
}

// peerOf resolves the caller. A user's peer only answers to the connection that joined it.
func (r *room) peerOf(user domain.UserID, conn domain.ConnID) (*peer, bool) {
	p, ok := r.peers[user]
	if !ok || p.conn != conn {
		return nil, false
	}
	return p, true
}

func (r *room) findProducer(id string) (*peer, *producerEntry) {
	for _, p := range r.peers {
		if e, ok := p.producers[id]; ok {
			return p, e
		}
	}
	return nil, nil
}

func (r *room) connsExcept(skip domain.UserID) []domain.ConnID {
	var out []domain.ConnID
	for uid, p := range r.peers {
		if uid != skip {
			out = append(out, p.conn)
		}
	}
	return out
}
