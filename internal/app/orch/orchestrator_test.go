package orch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Campus/internal/app/voice"
	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
	"github.com/dkeye/Campus/internal/store"
	"github.com/dkeye/Campus/internal/store/sqlite"
)

type nopSignal struct{}

func (nopSignal) TrySend(core.Frame) error { return nil }
func (nopSignal) Close()                   {}

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

func connect(o *Orchestrator, conn domain.ConnID, user domain.UserID) {
	o.Registry.Register(conn, nopSignal{}, nil)
	o.Registry.Identify(conn, domain.Identity{UserID: user})
}

func TestDisconnectCleansEveryComponentOnce(t *testing.T) {
	o := New(Options{BusCapacity: 256, DefaultBackend: "mesh"}, nil, nil)
	connect(o, "a1", "alice")
	connect(o, "b1", "bob")
	for _, c := range []struct {
		conn domain.ConnID
		user domain.UserID
	}{{"a1", "alice"}, {"b1", "bob"}} {
		o.Presence.Join(c.conn, c.user, "")
		o.Chat.Join("r1", c.user, c.conn)
		o.Voice.Join(context.Background(), voiceReq("v1", c.user, c.conn), "")
	}
	drain(o.Bus)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Disconnect("a1")
		}()
	}
	wg.Wait()

	left, voiceLeft := 0, 0
	for _, ev := range drain(o.Bus) {
		switch ev.Name {
		case proto.EventPresenceLeft:
			left++
		case proto.EventVoiceUserLeft:
			voiceLeft++
		}
	}
	if left != 1 || voiceLeft != 1 {
		t.Fatalf("expected one presence:left and one voice:userLeft, got %d and %d", left, voiceLeft)
	}
	if o.Chat.IsMember("r1", "alice", "a1") || !o.Chat.IsMember("r1", "bob", "b1") {
		t.Fatalf("chat membership not cleaned")
	}
	if len(o.Mesh.Participants("v1")) != 1 {
		t.Fatalf("mesh should only hold bob")
	}
	if o.Registry.Alive("a1") {
		t.Fatalf("connection should be unregistered")
	}

	// late operations from the dead connection fail closed
	if o.Chat.Join("r1", "alice", "a1") {
		t.Fatalf("dead connection must not rejoin chat")
	}
	o.Presence.Join("a1", "alice", "")
	if _, ok := o.Presence.Player("alice"); ok {
		t.Fatalf("dead connection must not recreate a player")
	}
}

func TestRelayChatMessagePersists(t *testing.T) {
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	o := New(Options{BusCapacity: 64}, nil, st)
	defer o.Shutdown()
	connect(o, "a1", "alice")
	connect(o, "b1", "bob")
	o.Chat.Join("r1", "alice", "a1")
	o.Chat.Join("r1", "bob", "b1")
	ctx := context.Background()

	if o.RelayChatMessage(ctx, "r1", "mallory", "x1", json.RawMessage(`{"id":"m0"}`)) {
		t.Fatalf("non-member message must be dropped")
	}
	if !o.RelayChatMessage(ctx, "r1", "alice", "a1", json.RawMessage(`{"id":"m1","text":"hi"}`)) {
		t.Fatalf("member message should relay")
	}
	o.RelayChatMessage(ctx, "r1", "alice", "a1", json.RawMessage(`{"text":"no id"}`))
	o.RelayChatReceipt(ctx, "r1", "bob", "b1", "m1", "read")

	msgs, err := o.History(ctx, "r1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[0].Status != "read" {
		t.Fatalf("unexpected history %+v", msgs)
	}
	if msgs[1].ID == "" {
		t.Fatalf("messages without an id should get one")
	}
}

func TestBackpressureKicks(t *testing.T) {
	o := New(Options{BusCapacity: 8, KickSlow: true}, nil, nil)
	canceled := make(chan struct{})
	o.Registry.Register("a1", nopSignal{}, func() { close(canceled) })
	o.OnBackpressure("a1", proto.EventPositionUpdate)
	select {
	case <-canceled:
	default:
		t.Fatalf("slow client should have been kicked")
	}
}

func voiceReq(room domain.RoomID, user domain.UserID, conn domain.ConnID) voice.JoinRequest {
	return voice.JoinRequest{RoomID: room, User: user, Conn: conn}
}

func TestShutdownWithFullBusAndNoDispatcher(t *testing.T) {
	o := New(Options{BusCapacity: 4}, nil, nil)
	for i := 0; i < 8; i++ {
		conn := domain.ConnID(fmt.Sprintf("c%d", i))
		connect(o, conn, domain.UserID(fmt.Sprintf("u%d", i)))
		o.Presence.Join(conn, domain.UserID(fmt.Sprintf("u%d", i)), "")
		drain(o.Bus)
	}

	done := make(chan struct{})
	go func() {
		o.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("shutdown blocked on a full bus")
	}
	if o.Presence.Len() != 0 || len(o.Registry.Connections()) != 0 {
		t.Fatalf("shutdown should disconnect everyone")
	}
}

func TestReceiptCannotTouchOtherRooms(t *testing.T) {
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	o := New(Options{BusCapacity: 64}, nil, st)
	defer o.Shutdown()
	ctx := context.Background()
	err = st.CreateMessage(ctx, &store.Message{
		ID:     "secret-msg",
		RoomID: "private",
		UserID: "alice",
		Body:   json.RawMessage(`{"text":"psst"}`),
		Status: store.StatusSent,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	connect(o, "m1", "mallory")
	connect(o, "b1", "bob")
	o.Chat.Join("lobby", "mallory", "m1")
	o.Chat.Join("lobby", "bob", "b1")

	o.RelayChatReceipt(ctx, "lobby", "mallory", "m1", "secret-msg", store.StatusRead)

	m, err := st.GetMessage(ctx, "secret-msg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Status != store.StatusSent {
		t.Fatalf("receipt from lobby changed a private message to %q", m.Status)
	}
}
