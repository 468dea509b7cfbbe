// Package presence tracks where every user stands in the shared 2D space.
package presence

import (
	"math"
	"slices"
	"sync"

	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
	"github.com/rs/zerolog/log"
)

type record struct {
	player domain.Player
	// standby holds other live connections of the same user, newest last.
	// One of them inherits the record when the owner closes.
	standby []domain.ConnID
}

// Directory is a last-write-wins position store. It imposes no rate limit.
type Directory struct {
	mu      sync.Mutex
	players map[domain.UserID]*record
	byConn  map[domain.ConnID]domain.UserID

	live   core.Liveness
	bus    core.Publisher
	spawnX float64
	spawnY float64
}

func NewDirectory(live core.Liveness, bus core.Publisher, spawnX, spawnY float64) *Directory {
	return &Directory{
		players: make(map[domain.UserID]*record),
		byConn:  make(map[domain.ConnID]domain.UserID),
		live:    live,
		bus:     bus,
		spawnX:  spawnX,
		spawnY:  spawnY,
	}
}

// Join registers conn as the owner of user's record, keeping the last position on reconnect.
// If another live connection still owns the record, conn is parked as standby.
func (d *Directory) Join(conn domain.ConnID, user domain.UserID, displayName string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.live.Alive(conn) {
		return
	}

	rec, ok := d.players[user]
	switch {
	case !ok:
		rec = &record{player: domain.Player{UserID: user, X: d.spawnX, Y: d.spawnY}}
		d.players[user] = rec
	case rec.player.Owner != conn && d.live.Alive(rec.player.Owner):
		if !slices.Contains(rec.standby, conn) {
			rec.standby = append(rec.standby, conn)
		}
		d.byConn[conn] = user
		log.Debug().Str("module", "presence").Str("conn", string(conn)).Str("user", string(user)).Msg("joined as standby")
		d.publishState(conn, user)
		return
	case rec.player.Owner != conn:
		delete(d.byConn, rec.player.Owner)
	}

	rec.player.Owner = conn
	rec.standby = slices.DeleteFunc(rec.standby, func(c domain.ConnID) bool { return c == conn })
	if displayName != "" {
		rec.player.DisplayName = displayName
	}
	d.byConn[conn] = user
	log.Debug().Str("module", "presence").Str("conn", string(conn)).Str("user", string(user)).Float64("x", rec.player.X).Float64("y", rec.player.Y).Msg("joined")

	d.publishState(conn, user)
	d.bus.Publish(core.Event{
		Name:   proto.EventPresenceJoined,
		All:    true,
		Except: conn,
		Data:   toState(rec.player),
	})
}

// UpdatePosition moves the player owned by conn. Non-finite axes keep their last value.
func (d *Directory) UpdatePosition(conn domain.ConnID, x, y float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.byConn[conn]
	if !ok {
		return
	}
	rec := d.players[user]
	if rec == nil || rec.player.Owner != conn {
		return
	}
	moved := false
	if finite(x) {
		rec.player.X = x
		moved = true
	}
	if finite(y) {
		rec.player.Y = y
		moved = true
	}
	if !moved {
		return
	}
	d.bus.Publish(core.Event{
		Name:   proto.EventPositionUpdate,
		All:    true,
		Except: conn,
		Data:   proto.PositionBroadcast{UserID: string(user), X: rec.player.X, Y: rec.player.Y},
	})
}

// Leave drops conn's claim. The record is removed only when conn owns it and no
// standby connection is left to inherit it.
func (d *Directory) Leave(conn domain.ConnID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, ok := d.byConn[conn]
	if !ok {
		return
	}
	delete(d.byConn, conn)
	rec := d.players[user]
	if rec == nil {
		return
	}
	if rec.player.Owner != conn {
		rec.standby = slices.DeleteFunc(rec.standby, func(c domain.ConnID) bool { return c == conn })
		return
	}

	for len(rec.standby) > 0 {
		next := rec.standby[len(rec.standby)-1]
		rec.standby = rec.standby[:len(rec.standby)-1]
		if d.live.Alive(next) {
			rec.player.Owner = next
			log.Debug().Str("module", "presence").Str("conn", string(next)).Str("user", string(user)).Msg("standby promoted")
			return
		}
		delete(d.byConn, next)
	}

	delete(d.players, user)
	log.Debug().Str("module", "presence").Str("conn", string(conn)).Str("user", string(user)).Msg("left")
	d.bus.Publish(core.Event{
		Name:   proto.EventPresenceLeft,
		All:    true,
		Except: conn,
		Data:   proto.PresenceLeft{UserID: string(user)},
	})
}

// Player returns a copy of user's record.
func (d *Directory) Player(user domain.UserID) (domain.Player, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.players[user]
	if !ok {
		return domain.Player{}, false
	}
	return rec.player, true
}

// Snapshot lists every player except the given user.
func (d *Directory) Snapshot(except domain.UserID) []proto.PlayerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked(except)
}

func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.players)
}

func (d *Directory) snapshotLocked(except domain.UserID) []proto.PlayerState {
	out := make([]proto.PlayerState, 0, len(d.players))
	for uid, rec := range d.players {
		if uid == except {
			continue
		}
		out = append(out, toState(rec.player))
	}
	return out
}

func (d *Directory) publishState(conn domain.ConnID, user domain.UserID) {
	d.bus.Publish(core.Event{
		Name: proto.EventPresenceState,
		To:   []domain.ConnID{conn},
		Data: d.snapshotLocked(user),
	})
}

func toState(p domain.Player) proto.PlayerState {
	return proto.PlayerState{UserID: string(p.UserID), X: p.X, Y: p.Y, DisplayName: p.DisplayName}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
