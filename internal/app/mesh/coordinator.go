// Package mesh relays peer-to-peer voice negotiation between participants of small rooms.
// It never touches media; clients build a full mesh of direct connections.
package mesh

import (
	"encoding/json"
	"sort"

	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
	"github.com/rs/zerolog/log"
)

type participant struct {
	displayName string
	conns       map[domain.ConnID]struct{}
}

type room struct {
	id    domain.RoomID
	users map[domain.UserID]*participant
}

func newRoom(id domain.RoomID) *room {
	return &room{id: id, users: make(map[domain.UserID]*participant)}
}

func (r *room) has(user domain.UserID, conn domain.ConnID) bool {
	p, ok := r.users[user]
	if !ok {
		return false
	}
	_, ok = p.conns[conn]
	return ok
}

// connsExcept lists every connection of every user other than skip.
func (r *room) connsExcept(skip domain.UserID) []domain.ConnID {
	var out []domain.ConnID
	for uid, p := range r.users {
		if uid == skip {
			continue
		}
		for c := range p.conns {
			out = append(out, c)
		}
	}
	return out
}

type Coordinator struct {
	rooms *core.Store[domain.RoomID, *room]
	live  core.Liveness
	bus   core.Publisher
	// maxParticipants caps distinct users per room; zero disables the cap.
	maxParticipants int
}

func NewCoordinator(live core.Liveness, bus core.Publisher, maxParticipants int) *Coordinator {
	return &Coordinator{
		rooms:           core.NewStore(newRoom),
		live:            live,
		bus:             bus,
		maxParticipants: maxParticipants,
	}
}

// Join adds conn to the room and returns the other participants. "userJoined" goes out
// only when the user was not already present through another connection.
func (c *Coordinator) Join(roomID domain.RoomID, user domain.UserID, conn domain.ConnID, displayName string) ([]domain.UserID, bool) {
	return c.JoinAck(roomID, user, conn, displayName, 0)
}

// JoinAck is Join with the participants reply correlated to request ack.
func (c *Coordinator) JoinAck(roomID domain.RoomID, user domain.UserID, conn domain.ConnID, displayName string, ack uint64) ([]domain.UserID, bool) {
	var others []domain.UserID
	joined := false
	c.rooms.Update(roomID, func(r *room) bool {
		if !c.live.Alive(conn) {
			return len(r.users) > 0
		}
		p, fresh := r.users[user], false
		if p == nil {
			if c.maxParticipants > 0 && len(r.users) >= c.maxParticipants {
				return len(r.users) > 0
			}
			p = &participant{displayName: displayName, conns: make(map[domain.ConnID]struct{})}
			r.users[user] = p
			fresh = true
		}
		if displayName != "" {
			p.displayName = displayName
		}
		p.conns[conn] = struct{}{}
		for uid := range r.users {
			if uid != user {
				others = append(others, uid)
			}
		}
		sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })
		ids := make([]string, len(others))
		for i, u := range others {
			ids[i] = string(u)
		}
		c.bus.Publish(core.Event{
			Name: proto.EventVoiceParticipants,
			To:   []domain.ConnID{conn},
			Ack:  ack,
			Data: proto.VoiceParticipants{RoomID: string(roomID), Participants: ids},
		})
		if notify := r.connsExcept(user); fresh && len(notify) > 0 {
			c.bus.Publish(core.Event{
				Name: proto.EventVoiceUserJoined,
				To:   notify,
				Data: proto.VoiceUser{RoomID: string(roomID), UserID: string(user), DisplayName: p.displayName},
			})
		}
		joined = true
		return true
	})
	if !joined {
		log.Debug().Str("module", "mesh").Str("room", string(roomID)).Str("conn", string(conn)).Msg("join rejected")
		return nil, false
	}
	log.Info().Str("module", "mesh").Str("room", string(roomID)).Str("user", string(user)).Int("others", len(others)).Msg("joined voice")
	return others, true
}

func (c *Coordinator) RelayOffer(roomID domain.RoomID, from domain.UserID, conn domain.ConnID, target domain.UserID, offer json.RawMessage) bool {
	return c.relay(roomID, from, conn, target, proto.EventVoiceOffer,
		proto.VoiceOffer{RoomID: string(roomID), FromUserID: string(from), Offer: offer})
}

func (c *Coordinator) RelayAnswer(roomID domain.RoomID, from domain.UserID, conn domain.ConnID, target domain.UserID, answer json.RawMessage) bool {
	return c.relay(roomID, from, conn, target, proto.EventVoiceAnswer,
		proto.VoiceAnswer{RoomID: string(roomID), FromUserID: string(from), Answer: answer})
}

func (c *Coordinator) RelayIceCandidate(roomID domain.RoomID, from domain.UserID, conn domain.ConnID, target domain.UserID, candidate json.RawMessage) bool {
	return c.relay(roomID, from, conn, target, proto.EventVoiceIceCandidate,
		proto.VoiceCandidate{RoomID: string(roomID), FromUserID: string(from), Candidate: candidate})
}

// relay forwards to every connection the target has in the room. A missing sender or
// target just means the peer already left.
func (c *Coordinator) relay(roomID domain.RoomID, from domain.UserID, conn domain.ConnID, target domain.UserID, event string, data any) bool {
	var targets []domain.ConnID
	c.rooms.View(roomID, func(r *room) {
		if !r.has(from, conn) {
			return
		}
		p, ok := r.users[target]
		if !ok {
			return
		}
		for tc := range p.conns {
			targets = append(targets, tc)
		}
	})
	if len(targets) == 0 {
		return false
	}
	c.bus.Publish(core.Event{Name: event, To: targets, Data: data})
	return true
}

// Leave removes conn. The user is announced as gone once its last connection leaves.
func (c *Coordinator) Leave(roomID domain.RoomID, user domain.UserID, conn domain.ConnID) {
	c.rooms.UpdateExisting(roomID, func(r *room) bool {
		c.removeLocked(r, user, conn)
		return len(r.users) > 0
	})
}

func (c *Coordinator) RemoveConnection(conn domain.ConnID) {
	for _, id := range c.rooms.Keys() {
		c.rooms.UpdateExisting(id, func(r *room) bool {
			for uid, p := range r.users {
				if _, ok := p.conns[conn]; ok {
					c.removeLocked(r, uid, conn)
				}
			}
			return len(r.users) > 0
		})
	}
}

// removeLocked publishes under the room lock, keeping userJoined/userLeft in room order.
func (c *Coordinator) removeLocked(r *room, user domain.UserID, conn domain.ConnID) {
	p, ok := r.users[user]
	if !ok {
		return
	}
	if _, ok := p.conns[conn]; !ok {
		return
	}
	delete(p.conns, conn)
	if len(p.conns) > 0 {
		return
	}
	delete(r.users, user)
	log.Info().Str("module", "mesh").Str("room", string(r.id)).Str("user", string(user)).Msg("left voice")
	if rest := r.connsExcept(user); len(rest) > 0 {
		c.bus.Publish(core.Event{
			Name: proto.EventVoiceUserLeft,
			To:   rest,
			Data: proto.VoiceUser{RoomID: string(r.id), UserID: string(user), DisplayName: p.displayName},
		})
	}
}

// Participants lists users currently in the room's voice session.
func (c *Coordinator) Participants(roomID domain.RoomID) []domain.UserID {
	var out []domain.UserID
	c.rooms.View(roomID, func(r *room) {
		for uid := range r.users {
			out = append(out, uid)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Coordinator) InRoom(roomID domain.RoomID, user domain.UserID, conn domain.ConnID) bool {
	in := false
	c.rooms.View(roomID, func(r *room) { in = r.has(user, conn) })
	return in
}

func (c *Coordinator) RoomExists(roomID domain.RoomID) bool { return c.rooms.Has(roomID) }
