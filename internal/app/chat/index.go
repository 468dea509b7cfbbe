// Package chat tracks which connections are joined to which chat rooms and gates
// every relay on that membership.
package chat

import (
	"time"

	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
	"github.com/rs/zerolog/log"
)

const DefaultTypingTTL = 3 * time.Second

type room struct {
	id      domain.RoomID
	members map[domain.UserID]map[domain.ConnID]struct{}
	typing  map[domain.UserID]*typingEntry
}

func newRoom(id domain.RoomID) *room {
	return &room{
		id:      id,
		members: make(map[domain.UserID]map[domain.ConnID]struct{}),
		typing:  make(map[domain.UserID]*typingEntry),
	}
}

func (r *room) empty() bool { return len(r.members) == 0 }

func (r *room) isMember(user domain.UserID, conn domain.ConnID) bool {
	_, ok := r.members[user][conn]
	return ok
}

// recipients lists every joined connection that passes keep.
func (r *room) recipients(keep func(domain.UserID, domain.ConnID) bool) []domain.ConnID {
	var out []domain.ConnID
	for uid, conns := range r.members {
		for c := range conns {
			if keep(uid, c) {
				out = append(out, c)
			}
		}
	}
	return out
}

// Index is the chat membership store.
type Index struct {
	rooms *core.Store[domain.RoomID, *room]
	live  core.Liveness
	bus   core.Publisher
	ttl   time.Duration
	now   func() time.Time
}

type Option func(*Index)

// WithClock replaces the wall clock used for typing expiry reads.
func WithClock(now func() time.Time) Option {
	return func(ix *Index) { ix.now = now }
}

func NewIndex(live core.Liveness, bus core.Publisher, typingTTL time.Duration, opts ...Option) *Index {
	if typingTTL <= 0 {
		typingTTL = DefaultTypingTTL
	}
	ix := &Index{
		rooms: core.NewStore(newRoom),
		live:  live,
		bus:   bus,
		ttl:   typingTTL,
		now:   time.Now,
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Join is idempotent and confirms to the joining connection only.
func (ix *Index) Join(roomID domain.RoomID, user domain.UserID, conn domain.ConnID) bool {
	joined := false
	ix.rooms.Update(roomID, func(r *room) bool {
		if !ix.live.Alive(conn) {
			return !r.empty()
		}
		conns, ok := r.members[user]
		if !ok {
			conns = make(map[domain.ConnID]struct{})
			r.members[user] = conns
		}
		conns[conn] = struct{}{}
		joined = true
		return true
	})
	if !joined {
		return false
	}
	log.Debug().Str("module", "chat").Str("room", string(roomID)).Str("user", string(user)).Str("conn", string(conn)).Msg("joined")
	ix.bus.Publish(core.Event{
		Name: proto.EventChatRoomJoined,
		To:   []domain.ConnID{conn},
		Data: proto.ChatRoomJoined{RoomID: string(roomID)},
	})
	return true
}

func (ix *Index) Leave(roomID domain.RoomID, user domain.UserID, conn domain.ConnID) {
	ix.rooms.UpdateExisting(roomID, func(r *room) bool {
		ix.removeLocked(r, user, conn)
		return !r.empty()
	})
}

func (ix *Index) IsMember(roomID domain.RoomID, user domain.UserID, conn domain.ConnID) bool {
	member := false
	ix.rooms.View(roomID, func(r *room) { member = r.isMember(user, conn) })
	return member
}

// SetTyping relays a typing change to the rest of the room. A stop for a state that is
// already absent or expired is dropped.
func (ix *Index) SetTyping(roomID domain.RoomID, user domain.UserID, conn domain.ConnID, state string) bool {
	var targets []domain.ConnID
	relayed := false
	ix.rooms.UpdateExisting(roomID, func(r *room) bool {
		if !r.isMember(user, conn) {
			return true
		}
		switch state {
		case proto.TypingStarted:
			ix.startTypingLocked(r, user)
		case proto.TypingStopped:
			t, ok := r.typing[user]
			if !ok {
				return true
			}
			active := ix.now().Before(t.expires)
			t.stop()
			delete(r.typing, user)
			if !active {
				return true
			}
		default:
			return true
		}
		// the sender's other tabs don't need its own indicator
		targets = r.recipients(func(uid domain.UserID, _ domain.ConnID) bool { return uid != user })
		relayed = true
		return true
	})
	if relayed && len(targets) > 0 {
		ix.bus.Publish(core.Event{
			Name: proto.EventChatTyping,
			To:   targets,
			Data: proto.ChatTyping{RoomID: string(roomID), UserID: string(user), State: state},
		})
	}
	return relayed
}

// Typing lists users whose typing state has not expired yet.
func (ix *Index) Typing(roomID domain.RoomID) []domain.UserID {
	var out []domain.UserID
	now := ix.now()
	ix.rooms.View(roomID, func(r *room) {
		for uid, t := range r.typing {
			if now.Before(t.expires) {
				out = append(out, uid)
			}
		}
	})
	return out
}

func (ix *Index) IsTyping(roomID domain.RoomID, user domain.UserID) bool {
	typing := false
	now := ix.now()
	ix.rooms.View(roomID, func(r *room) {
		if t, ok := r.typing[user]; ok {
			typing = now.Before(t.expires)
		}
	})
	return typing
}

// RelayMessage forwards an opaque payload to every other connection in the room.
// It reports false, and sends nothing, when conn is not joined.
func (ix *Index) RelayMessage(roomID domain.RoomID, user domain.UserID, conn domain.ConnID, message any) bool {
	return ix.relay(roomID, user, conn, proto.EventChatMessage, message)
}

func (ix *Index) RelayReceipt(roomID domain.RoomID, user domain.UserID, conn domain.ConnID, messageID, status string) bool {
	return ix.relay(roomID, user, conn, proto.EventChatReceipt, proto.ChatReceipt{
		RoomID:    string(roomID),
		UserID:    string(user),
		MessageID: messageID,
		Status:    status,
	})
}

func (ix *Index) relay(roomID domain.RoomID, user domain.UserID, conn domain.ConnID, event string, data any) bool {
	var targets []domain.ConnID
	member := false
	ix.rooms.View(roomID, func(r *room) {
		if !r.isMember(user, conn) {
			return
		}
		member = true
		targets = r.recipients(func(_ domain.UserID, c domain.ConnID) bool { return c != conn })
	})
	if !member {
		return false
	}
	if len(targets) > 0 {
		ix.bus.Publish(core.Event{Name: event, To: targets, Data: data})
	}
	return true
}

// RemoveConnection drops conn from every room it joined.
func (ix *Index) RemoveConnection(conn domain.ConnID) {
	for _, id := range ix.rooms.Keys() {
		ix.rooms.UpdateExisting(id, func(r *room) bool {
			for uid, conns := range r.members {
				if _, ok := conns[conn]; ok {
					ix.removeLocked(r, uid, conn)
				}
			}
			return !r.empty()
		})
	}
}

// RoomExists reports whether any connection is joined to roomID.
func (ix *Index) RoomExists(roomID domain.RoomID) bool { return ix.rooms.Has(roomID) }

func (ix *Index) RoomCount() int { return ix.rooms.Len() }

// HasUser reports whether user is joined to roomID through any connection.
func (ix *Index) HasUser(roomID domain.RoomID, user domain.UserID) bool {
	joined := false
	ix.rooms.View(roomID, func(r *room) { joined = len(r.members[user]) > 0 })
	return joined
}

// Members lists the users joined to roomID.
func (ix *Index) Members(roomID domain.RoomID) []domain.UserID {
	var out []domain.UserID
	ix.rooms.View(roomID, func(r *room) {
		for uid := range r.members {
			out = append(out, uid)
		}
	})
	return out
}

func (ix *Index) removeLocked(r *room, user domain.UserID, conn domain.ConnID) {
	conns, ok := r.members[user]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) > 0 {
		return
	}
	delete(r.members, user)
	if t, ok := r.typing[user]; ok {
		t.stop()
		delete(r.typing, user)
	}
	log.Debug().Str("module", "chat").Str("room", string(r.id)).Str("user", string(user)).Msg("left")
}
