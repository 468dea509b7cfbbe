package presence

import (
	"math"
	"testing"

	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
)

type liveSet map[domain.ConnID]bool

func (l liveSet) Alive(c domain.ConnID) bool { return l[c] }

func drain(b *core.Bus) []core.Event {
	var out []core.Event
	for {
		select {
		case ev := <-b.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func find(evs []core.Event, name string) []core.Event {
	var out []core.Event
	for _, ev := range evs {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func newDirectory(conns ...domain.ConnID) (*Directory, *core.Bus, liveSet) {
	live := liveSet{}
	for _, c := range conns {
		live[c] = true
	}
	bus := core.NewBus(256)
	return NewDirectory(live, bus, 10, 20), bus, live
}

func TestJoinSnapshotExcludesSelf(t *testing.T) {
	d, bus, _ := newDirectory("c1", "c2", "c3")

	d.Join("c1", "alice", "Alice")
	d.Join("c2", "bob", "")
	drain(bus)
	d.Join("c3", "carol", "Carol")

	evs := drain(bus)
	states := find(evs, proto.EventPresenceState)
	if len(states) != 1 || states[0].To[0] != "c3" {
		t.Fatalf("expected one state event for c3, got %+v", states)
	}
	snap := states[0].Data.([]proto.PlayerState)
	if len(snap) != 2 {
		t.Fatalf("expected two other players, got %+v", snap)
	}
	for _, p := range snap {
		if p.UserID == "carol" {
			t.Fatalf("snapshot contains joiner's own record")
		}
	}

	joined := find(evs, proto.EventPresenceJoined)
	if len(joined) != 1 || !joined[0].All || joined[0].Except != "c3" {
		t.Fatalf("expected joined broadcast excluding c3, got %+v", joined)
	}
	st := joined[0].Data.(proto.PlayerState)
	if st.X != 10 || st.Y != 20 || st.DisplayName != "Carol" {
		t.Fatalf("new player should be at spawn: %+v", st)
	}
}

func TestNonFiniteAxisKeepsLastValue(t *testing.T) {
	d, bus, _ := newDirectory("c1")
	d.Join("c1", "alice", "")
	d.UpdatePosition("c1", 3, 4)
	drain(bus)

	d.UpdatePosition("c1", math.NaN(), 7)
	p, _ := d.Player("alice")
	if p.X != 3 || p.Y != 7 {
		t.Fatalf("expected (3,7), got (%v,%v)", p.X, p.Y)
	}

	d.UpdatePosition("c1", 9, math.Inf(1))
	p, _ = d.Player("alice")
	if p.X != 9 || p.Y != 7 {
		t.Fatalf("expected (9,7), got (%v,%v)", p.X, p.Y)
	}

	evs := find(drain(bus), proto.EventPositionUpdate)
	if len(evs) != 2 {
		t.Fatalf("expected two position broadcasts, got %d", len(evs))
	}
	last := evs[1].Data.(proto.PositionBroadcast)
	if last.UserID != "alice" || last.X != 9 || last.Y != 7 || evs[1].Except != "c1" {
		t.Fatalf("unexpected broadcast %+v", evs[1])
	}
}

func TestUpdateBeforeJoinIsNoop(t *testing.T) {
	d, bus, _ := newDirectory("c1")
	d.UpdatePosition("c1", 1, 1)
	if len(drain(bus)) != 0 || d.Len() != 0 {
		t.Fatalf("update without join must not create or broadcast")
	}
}

func TestReconnectPreservesPositionAfterOldConnClosed(t *testing.T) {
	d, bus, live := newDirectory("old")
	d.Join("old", "alice", "")
	d.UpdatePosition("old", 42, 43)

	// transport dropped but cleanup has not run yet
	delete(live, "old")
	live["new"] = true
	d.Join("new", "alice", "")
	drain(bus)

	p, _ := d.Player("alice")
	if p.X != 42 || p.Y != 43 || p.Owner != "new" {
		t.Fatalf("expected preserved position owned by new conn, got %+v", p)
	}

	// stale close of the old connection must not remove the record
	d.Leave("old")
	if _, ok := d.Player("alice"); !ok {
		t.Fatalf("stale leave removed the superseding record")
	}
	if len(find(drain(bus), proto.EventPresenceLeft)) != 0 {
		t.Fatalf("stale leave must not broadcast")
	}
}

func TestStandbyPromotedWhenOwnerLeaves(t *testing.T) {
	d, bus, live := newDirectory("tab1", "tab2")
	d.Join("tab1", "alice", "")
	d.Join("tab2", "alice", "")

	p, _ := d.Player("alice")
	if p.Owner != "tab1" {
		t.Fatalf("live owner must be kept, got %s", p.Owner)
	}
	d.UpdatePosition("tab2", 100, 100)
	if p, _ = d.Player("alice"); p.X == 100 {
		t.Fatalf("standby connection must not move the player")
	}
	drain(bus)

	delete(live, "tab1")
	d.Leave("tab1")
	p, ok := d.Player("alice")
	if !ok || p.Owner != "tab2" {
		t.Fatalf("standby should inherit the record, got %+v ok=%v", p, ok)
	}
	if len(find(drain(bus), proto.EventPresenceLeft)) != 0 {
		t.Fatalf("promotion must not broadcast left")
	}

	d.Leave("tab2")
	if _, ok := d.Player("alice"); ok {
		t.Fatalf("record should be gone after last connection left")
	}
	left := find(drain(bus), proto.EventPresenceLeft)
	if len(left) != 1 || left[0].Data.(proto.PresenceLeft).UserID != "alice" {
		t.Fatalf("expected one left broadcast, got %+v", left)
	}
}

func TestSnapshotNeverContainsJoiner(t *testing.T) {
	d, bus, live := newDirectory()
	users := []domain.UserID{"a", "b", "c", "a", "b", "d"}
	for i, u := range users {
		conn := domain.ConnID(string(u) + string(rune('0'+i)))
		live[conn] = true
		d.Join(conn, u, "")
		for _, ev := range find(drain(bus), proto.EventPresenceState) {
			for _, p := range ev.Data.([]proto.PlayerState) {
				if p.UserID == string(u) {
					t.Fatalf("snapshot for %s contained itself", u)
				}
			}
		}
		if i%2 == 1 {
			delete(live, conn)
			d.Leave(conn)
		}
	}
}

func TestJoinFromDeadConnectionIsIgnored(t *testing.T) {
	d, bus, _ := newDirectory()
	d.Join("ghost", "alice", "")
	if d.Len() != 0 || len(drain(bus)) != 0 {
		t.Fatalf("dead connection must fail closed")
	}
}
