package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
)

type nopSignal struct{}

func (nopSignal) TrySend(core.Frame) error { return nil }
func (nopSignal) Close()                   {}

func TestRegistryIdentifyIsFixedOnceSet(t *testing.T) {
	r := NewRegistry()
	id := NewConnID()
	r.Register(id, nopSignal{}, nil)

	if _, ok := r.IdentityOf(id); ok {
		t.Fatalf("fresh connection must be unidentified")
	}
	if !r.Identify(id, domain.Identity{UserID: "alice"}) {
		t.Fatalf("first identify should succeed")
	}
	if !r.Identify(id, domain.Identity{UserID: "alice"}) {
		t.Fatalf("re-identifying as the same user should be accepted")
	}
	if r.Identify(id, domain.Identity{UserID: "mallory"}) {
		t.Fatalf("identity must not be replaced")
	}
	ident, _ := r.IdentityOf(id)
	if ident.UserID != "alice" {
		t.Fatalf("unexpected identity %+v", ident)
	}
}

func TestRegistryIdentifiedAndConnectionsOf(t *testing.T) {
	r := NewRegistry()
	a1, a2, anon := NewConnID(), NewConnID(), NewConnID()
	for _, id := range []domain.ConnID{a1, a2, anon} {
		r.Register(id, nopSignal{}, nil)
	}
	r.Identify(a1, domain.Identity{UserID: "alice"})
	r.Identify(a2, domain.Identity{UserID: "alice"})

	if got := len(r.Identified()); got != 2 {
		t.Fatalf("expected 2 identified connections, got %d", got)
	}
	if got := len(r.ConnectionsOf("alice")); got != 2 {
		t.Fatalf("expected 2 connections for alice, got %d", got)
	}
}

func TestRegistryUnregisterExactlyOnce(t *testing.T) {
	r := NewRegistry()
	id := NewConnID()
	r.Register(id, nopSignal{}, nil)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Unregister(id) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one successful unregister, got %d", wins.Load())
	}
	if r.Alive(id) {
		t.Fatalf("connection should be gone")
	}
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	id := NewConnID()
	ctx, cancel := context.WithCancel(context.Background())
	r.Register(id, nopSignal{}, cancel)

	if !r.Cancel(id) {
		t.Fatalf("cancel should find the connection")
	}
	if ctx.Err() == nil {
		t.Fatalf("cancel func was not invoked")
	}
	if r.Cancel(NewConnID()) {
		t.Fatalf("cancel of unknown connection should report false")
	}
}

func TestSimplePolicy(t *testing.T) {
	if (SimplePolicy{}).OnBackPressure("c", "x") != DropFrame {
		t.Fatalf("default policy drops frames")
	}
	if (SimplePolicy{KickSlow: true}).OnBackPressure("c", "x") != KickMember {
		t.Fatalf("kick policy kicks")
	}
}
