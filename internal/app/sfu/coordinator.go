// Package sfu coordinates routed voice rooms on top of an external media engine.
package sfu

import (
	"context"
	"os"
	"time"

	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
	"github.com/rs/zerolog/log"
)

const DefaultFatalGrace = 2 * time.Second

// JoinResult is what a joining client needs to configure its local device.
type JoinResult struct {
	RtpCapabilities core.RtpCapabilities
	Producers       []proto.NewProducer
}

type Coordinator struct {
	rooms  *core.Store[domain.RoomID, *room]
	engine core.MediaEngine
	live   core.Liveness
	bus    core.Publisher

	grace time.Duration
	exit  func(code int)
}

type Option func(*Coordinator)

// WithExit replaces os.Exit for the fatal engine path.
func WithExit(exit func(int)) Option {
	return func(c *Coordinator) { c.exit = exit }
}

func WithFatalGrace(d time.Duration) Option {
	return func(c *Coordinator) { c.grace = d }
}

func NewCoordinator(engine core.MediaEngine, live core.Liveness, bus core.Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		rooms:  core.NewStore(newRoom),
		engine: engine,
		live:   live,
		bus:    bus,
		grace:  DefaultFatalGrace,
		exit:   os.Exit,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WatchEngine treats a dead media worker as fatal for the process. The router graph
// cannot be rebuilt in place, so it logs and exits after the grace delay.
func (c *Coordinator) WatchEngine(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case err := <-c.engine.Died():
			log.Error().Str("module", "sfu").Err(err).Dur("grace", c.grace).Msg("media engine died, exiting")
			time.Sleep(c.grace)
			c.exit(1)
		}
	}()
}

// JoinRoom creates the router on first use and a peer for the caller. A second join from
// the same connection is answered again; a live peer on another connection is refused.
func (c *Coordinator) JoinRoom(ctx context.Context, roomID domain.RoomID, user domain.UserID, conn domain.ConnID, displayName string, caps *core.RtpCapabilities) (JoinResult, error) {
	var (
		res JoinResult
		err error
	)
	c.rooms.Update(roomID, func(r *room) bool {
		if !c.live.Alive(conn) {
			err = core.ErrNotJoined
			return len(r.peers) > 0
		}
		if r.router == nil || r.router.Closed() {
			router, cerr := c.engine.CreateRouter(ctx)
			if cerr != nil {
				err = cerr
				return len(r.peers) > 0
			}
			r.router = router
			log.Info().Str("module", "sfu").Str("room", string(roomID)).Str("router", router.ID()).Msg("router created")
		}

		fresh := true
		if old, ok := r.peers[user]; ok {
			if old.conn == conn {
				if caps != nil {
					old.caps = caps
				}
				res = c.joinResultLocked(r, user)
				return true
			}
			if c.live.Alive(old.conn) {
				err = core.ErrAlreadyJoined
				return true
			}
			// stale peer from a closed connection
			c.dropPeerLocked(r, old)
			fresh = false
		}
		r.peers[user] = newPeer(user, conn, displayName, caps)
		res = c.joinResultLocked(r, user)
		if rest := r.connsExcept(user); fresh && len(rest) > 0 {
			c.bus.Publish(core.Event{
				Name: proto.EventVoiceUserJoined,
				To:   rest,
				Data: proto.VoiceUser{RoomID: string(roomID), UserID: string(user), DisplayName: displayName},
			})
		}
		log.Info().Str("module", "sfu").Str("room", string(roomID)).Str("user", string(user)).Int("peers", len(r.peers)).Msg("peer joined")
		return true
	})
	return res, err
}

func (c *Coordinator) joinResultLocked(r *room, user domain.UserID) JoinResult {
	res := JoinResult{RtpCapabilities: r.router.RtpCapabilities(), Producers: []proto.NewProducer{}}
	for uid, p := range r.peers {
		if uid == user {
			continue
		}
		for id, e := range p.producers {
			if e.producer.Closed() {
				continue
			}
			res.Producers = append(res.Producers, proto.NewProducer{
				RoomID:     string(r.id),
				UserID:     string(uid),
				ProducerID: id,
				Kind:       e.producer.Kind(),
			})
		}
	}
	return res
}

// withPeer runs fn on the caller's peer under the room lock.
func (c *Coordinator) withPeer(roomID domain.RoomID, user domain.UserID, conn domain.ConnID, fn func(*room, *peer) error) error {
	var err error
	found := c.rooms.UpdateExisting(roomID, func(r *room) bool {
		p, ok := r.peerOf(user, conn)
		if !ok {
			err = core.ErrNotJoined
			return len(r.peers) > 0
		}
		err = fn(r, p)
		return len(r.peers) > 0
	})
	if !found {
		return core.ErrRoomNotFound
	}
	return err
}

// CreateTransport adds one transport to the peer. Clients call it twice, once per direction.
func (c *Coordinator) CreateTransport(ctx context.Context, roomID domain.RoomID, user domain.UserID, conn domain.ConnID) (core.TransportDescriptor, error) {
	var desc core.TransportDescriptor
	err := c.withPeer(roomID, user, conn, func(r *room, p *peer) error {
		t, err := r.router.CreateTransport(ctx)
		if err != nil {
			return err
		}
		p.transports[t.ID()] = t
		tid := t.ID()
		t.OnClose(func() { go c.onTransportClosed(roomID, user, tid) })
		desc = t.Descriptor()
		return nil
	})
	if err != nil {
		log.Warn().Str("module", "sfu").Str("room", string(roomID)).Str("user", string(user)).Err(err).Msg("create transport failed")
	}
	return desc, err
}

func (c *Coordinator) ConnectTransport(ctx context.Context, roomID domain.RoomID, user domain.UserID, conn domain.ConnID, transportID string, params core.ConnectParams) error {
	return c.withPeer(roomID, user, conn, func(_ *room, p *peer) error {
		t, ok := p.transports[transportID]
		if !ok || t.Closed() {
			return core.ErrTransportNotFound
		}
		return t.Connect(ctx, params)
	})
}

// Produce opens a producer and announces it to the rest of the room.
func (c *Coordinator) Produce(ctx context.Context, roomID domain.RoomID, user domain.UserID, conn domain.ConnID, transportID string, kind core.MediaKind, params core.RtpParameters) (string, error) {
	var id string
	err := c.withPeer(roomID, user, conn, func(r *room, p *peer) error {
		t, ok := p.transports[transportID]
		if !ok || t.Closed() {
			return core.ErrTransportNotFound
		}
		if !kind.Valid() {
			return core.NewError(core.ErrCodeMediaError, "unknown media kind")
		}
		if p.producing(kind) {
			return core.ErrAlreadyProducing
		}
		prod, err := t.Produce(ctx, kind, params)
		if err != nil {
			return err
		}
		id = prod.ID()
		p.producers[id] = &producerEntry{producer: prod, transportID: transportID}
		pid := id
		prod.OnClose(func() { go c.onProducerClosed(roomID, pid) })

		if rest := r.connsExcept(user); len(rest) > 0 {
			c.bus.Publish(core.Event{
				Name: proto.EventVoiceNewProducer,
				To:   rest,
				Data: proto.NewProducer{RoomID: string(roomID), UserID: string(user), ProducerID: id, Kind: kind},
			})
		}
		log.Info().Str("module", "sfu").Str("room", string(roomID)).Str("user", string(user)).Str("producer", id).Str("kind", string(kind)).Msg("producing")
		return nil
	})
	return id, err
}

// Consume subscribes the caller to a producer of any peer in the room.
func (c *Coordinator) Consume(ctx context.Context, roomID domain.RoomID, user domain.UserID, conn domain.ConnID, transportID, producerID string, caps core.RtpCapabilities) (core.ConsumerDescriptor, error) {
	var desc core.ConsumerDescriptor
	err := c.withPeer(roomID, user, conn, func(r *room, p *peer) error {
		t, ok := p.transports[transportID]
		if !ok || t.Closed() {
			return core.ErrTransportNotFound
		}
		_, e := r.findProducer(producerID)
		if e == nil || e.producer.Closed() {
			return core.ErrProducerNotFound
		}
		if !r.router.CanConsume(producerID, caps) {
			return core.ErrCannotConsume
		}
		cons, err := t.Consume(ctx, producerID, caps)
		if err != nil {
			return err
		}
		p.consumers[cons.ID()] = &consumerEntry{consumer: cons, transportID: transportID}
		desc = cons.Descriptor()
		return nil
	})
	if err != nil {
		log.Debug().Str("module", "sfu").Str("room", string(roomID)).Str("producer", producerID).Err(err).Msg("consume refused")
	}
	return desc, err
}

// CloseProducer lets a peer stop one of its own producers.
func (c *Coordinator) CloseProducer(roomID domain.RoomID, user domain.UserID, conn domain.ConnID, producerID string) error {
	return c.withPeer(roomID, user, conn, func(r *room, p *peer) error {
		e, ok := p.producers[producerID]
		if !ok {
			return core.ErrProducerNotFound
		}
		delete(p.producers, producerID)
		e.producer.Close()
		c.closeConsumersOfLocked(r, producerID)
		return nil
	})
}

// LeaveRoom tears down the caller's peer. The last peer out destroys the router.
func (c *Coordinator) LeaveRoom(roomID domain.RoomID, user domain.UserID, conn domain.ConnID) error {
	return c.withPeer(roomID, user, conn, func(r *room, p *peer) error {
		c.leaveLocked(r, p)
		return nil
	})
}

// RemovePeerIfPresent is the disconnect path: it leaves every room conn has a peer in.
func (c *Coordinator) RemovePeerIfPresent(conn domain.ConnID) {
	for _, id := range c.rooms.Keys() {
		c.rooms.UpdateExisting(id, func(r *room) bool {
			for _, p := range r.peers {
				if p.conn == conn {
					c.leaveLocked(r, p)
				}
			}
			return len(r.peers) > 0
		})
	}
}

func (c *Coordinator) leaveLocked(r *room, p *peer) {
	c.dropPeerLocked(r, p)
	if rest := r.connsExcept(p.user); len(rest) > 0 {
		c.bus.Publish(core.Event{
			Name: proto.EventVoiceUserLeft,
			To:   rest,
			Data: proto.VoiceUser{RoomID: string(r.id), UserID: string(p.user), DisplayName: p.displayName},
		})
	}
	log.Info().Str("module", "sfu").Str("room", string(r.id)).Str("user", string(p.user)).Int("peers", len(r.peers)).Msg("peer left")
	if len(r.peers) == 0 && r.router != nil {
		r.router.Close()
		log.Info().Str("module", "sfu").Str("room", string(r.id)).Str("router", r.router.ID()).Msg("router closed")
		r.router = nil
	}
}

// dropPeerLocked closes the peer's graph and the consumers other peers hold on it.
func (c *Coordinator) dropPeerLocked(r *room, p *peer) {
	delete(r.peers, p.user)
	for id := range p.producers {
		c.closeConsumersOfLocked(r, id)
	}
	p.closeAll()
}

// closeConsumersOfLocked closes every consumer of producerID and tells its owner once.
func (c *Coordinator) closeConsumersOfLocked(r *room, producerID string) {
	for _, p := range r.peers {
		for cid, e := range p.consumers {
			if e.consumer.ProducerID() != producerID {
				continue
			}
			delete(p.consumers, cid)
			e.consumer.Close()
			c.bus.Publish(core.Event{
				Name: proto.EventVoiceProducerClosed,
				To:   []domain.ConnID{p.conn},
				Data: proto.ProducerClosed{ConsumerID: cid},
			})
		}
	}
}

// onProducerClosed handles a close reported by the engine. It runs off the engine's
// callback goroutine and finds nothing when the coordinator closed the producer itself.
func (c *Coordinator) onProducerClosed(roomID domain.RoomID, producerID string) {
	c.rooms.UpdateExisting(roomID, func(r *room) bool {
		owner, _ := r.findProducer(producerID)
		if owner != nil {
			delete(owner.producers, producerID)
		}
		c.closeConsumersOfLocked(r, producerID)
		return len(r.peers) > 0
	})
}

// onTransportClosed forgets a transport the engine closed. Its producers go away silently;
// the consumers elsewhere are handled when each producer reports its own close.
func (c *Coordinator) onTransportClosed(roomID domain.RoomID, user domain.UserID, transportID string) {
	c.rooms.UpdateExisting(roomID, func(r *room) bool {
		p, ok := r.peers[user]
		if !ok {
			return len(r.peers) > 0
		}
		t, ok := p.transports[transportID]
		if !ok || !t.Closed() {
			return true
		}
		delete(p.transports, transportID)
		for id, e := range p.producers {
			if e.transportID == transportID {
				delete(p.producers, id)
				c.closeConsumersOfLocked(r, id)
			}
		}
		for id, e := range p.consumers {
			if e.transportID == transportID {
				delete(p.consumers, id)
			}
		}
		log.Debug().Str("module", "sfu").Str("room", string(roomID)).Str("transport", transportID).Msg("transport closed")
		return true
	})
}

func (c *Coordinator) RoomExists(roomID domain.RoomID) bool { return c.rooms.Has(roomID) }

// Router exposes the live router of a room, mostly for inspection.
func (c *Coordinator) Router(roomID domain.RoomID) (core.Router, bool) {
	var r core.Router
	c.rooms.View(roomID, func(rm *room) { r = rm.router })
	return r, r != nil
}

func (c *Coordinator) Peers(roomID domain.RoomID) []domain.UserID {
	var out []domain.UserID
	c.rooms.View(roomID, func(r *room) {
		for uid := range r.peers {
			out = append(out, uid)
		}
	})
	return out
}
