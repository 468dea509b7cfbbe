package signal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Campus/internal/app"
	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return core.ErrBackpressure
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

func (f *fakeSignal) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		var o struct {
			Event string `json:"event"`
		}
		_ = json.Unmarshal(fr, &o)
		out = append(out, o.Event)
	}
	return out
}

func register(reg *app.Registry, id domain.ConnID, user domain.UserID) *fakeSignal {
	sig := &fakeSignal{}
	reg.Register(id, sig, nil)
	if user != "" {
		ident, _ := domain.NewIdentity(string(user), "")
		reg.Identify(id, ident)
	}
	return sig
}

func TestDispatcherTargets(t *testing.T) {
	reg := app.NewRegistry()
	a := register(reg, "a", "alice")
	b := register(reg, "b", "bob")
	anon := register(reg, "x", "")

	d := NewDispatcher(reg, core.NewBus(8), nil)
	d.deliver(core.Event{Name: proto.EventPresenceJoined, All: true, Except: "a"})
	d.deliver(core.Event{Name: proto.EventPong, To: []domain.ConnID{"a", "gone"}, Ack: 3})

	if got := a.events(); len(got) != 1 || got[0] != proto.EventPong {
		t.Fatalf("a got %v", got)
	}
	if got := b.events(); len(got) != 1 || got[0] != proto.EventPresenceJoined {
		t.Fatalf("b got %v", got)
	}
	if got := anon.events(); len(got) != 0 {
		t.Fatalf("broadcasts skip unidentified connections, got %v", got)
	}

	var out proto.Outbound
	_ = json.Unmarshal(a.frames[0], &out)
	if out.Ack != 3 {
		t.Fatalf("ack = %d, want 3", out.Ack)
	}
}

func TestDispatcherReportsSlowConnections(t *testing.T) {
	reg := app.NewRegistry()
	slow := register(reg, "s", "sam")
	slow.full = true

	var (
		mu   sync.Mutex
		hits []string
	)
	bus := core.NewBus(8)
	d := NewDispatcher(reg, bus, func(conn domain.ConnID, event string) {
		mu.Lock()
		hits = append(hits, string(conn)+":"+event)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	bus.Publish(core.Event{Name: proto.EventChatMessage, To: []domain.ConnID{"s"}})
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(hits)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("backpressure was not reported")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if hits[0] != "s:"+proto.EventChatMessage {
		t.Fatalf("hit = %s", hits[0])
	}

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("dispatcher should stop when the bus closes")
	}
}

func TestPositionLimiter(t *testing.T) {
	rl := NewPositionLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("c") || !rl.Allow("c") {
		t.Fatalf("first two updates pass")
	}
	if rl.Allow("c") {
		t.Fatalf("third update inside the window is dropped")
	}
	if !rl.Allow("other") {
		t.Fatalf("limits are per connection")
	}

	now = now.Add(1001 * time.Millisecond)
	if !rl.Allow("c") {
		t.Fatalf("window slides")
	}

	rl.Forget("c")
	if _, ok := rl.history["c"]; ok {
		t.Fatalf("forget drops history")
	}

	off := NewPositionLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		if !off.Allow("c") {
			t.Fatalf("rate zero disables limiting")
		}
	}
}
