package orch

import (
	"time"

	"github.com/dkeye/Campus/internal/app"
	"github.com/dkeye/Campus/internal/app/chat"
	"github.com/dkeye/Campus/internal/app/mesh"
	"github.com/dkeye/Campus/internal/app/presence"
	"github.com/dkeye/Campus/internal/app/sfu"
	"github.com/dkeye/Campus/internal/app/voice"
	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/store"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the process-lifetime context: every component is built once and
// reached through it.
type Orchestrator struct {
	Registry *app.Registry
	Presence *presence.Directory
	Chat     *chat.Index
	Mesh     *mesh.Coordinator
	SFU      *sfu.Coordinator
	Voice    *voice.Service
	Bus      *core.Bus
	Policy   app.Policy
	// Store is optional; nil disables chat history.
	Store store.PersistenceGateway
}

type Options struct {
	SpawnX, SpawnY      float64
	TypingTTL           time.Duration
	MeshMaxParticipants int
	DefaultBackend      voice.Kind
	BusCapacity         int
	KickSlow            bool
	FatalGrace          time.Duration
}

// New wires every component around one registry and one event bus.
// engine may be nil when no room will ever be pinned to the SFU.
func New(opts Options, engine core.MediaEngine, st store.PersistenceGateway) *Orchestrator {
	if opts.BusCapacity <= 0 {
		opts.BusCapacity = 1024
	}
	reg := app.NewRegistry()
	bus := core.NewBus(opts.BusCapacity)
	m := mesh.NewCoordinator(reg, bus, opts.MeshMaxParticipants)

	backends := []voice.Backend{voice.MeshBackend(m)}
	var s *sfu.Coordinator
	if engine != nil {
		var sfuOpts []sfu.Option
		if opts.FatalGrace > 0 {
			sfuOpts = append(sfuOpts, sfu.WithFatalGrace(opts.FatalGrace))
		}
		s = sfu.NewCoordinator(engine, reg, bus, sfuOpts...)
		backends = append(backends, voice.SFUBackend(s))
	}
	return &Orchestrator{
		Registry: reg,
		Presence: presence.NewDirectory(reg, bus, opts.SpawnX, opts.SpawnY),
		Chat:     chat.NewIndex(reg, bus, opts.TypingTTL),
		Mesh:     m,
		SFU:      s,
		Voice:    voice.NewService(opts.DefaultBackend, backends...),
		Bus:      bus,
		Policy:   app.SimplePolicy{KickSlow: opts.KickSlow},
		Store:    st,
	}
}

// Disconnect runs the cleanup chain once per connection, however many times it is called.
func (o *Orchestrator) Disconnect(conn domain.ConnID) {
	if !o.Registry.Unregister(conn) {
		return
	}
	o.Presence.Leave(conn)
	o.Chat.RemoveConnection(conn)
	o.Voice.RemoveConnection(conn)
	log.Info().Str("module", "orch").Str("conn", string(conn)).Msg("connection cleaned up")
}

// Kick stops the connection's pumps; their exit drives Disconnect.
func (o *Orchestrator) Kick(conn domain.ConnID) {
	o.Registry.Cancel(conn)
}

// OnBackpressure applies the policy to a recipient whose send buffer is full.
func (o *Orchestrator) OnBackpressure(conn domain.ConnID, event string) {
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(conn, event) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("conn", string(conn)).Str("event", event).Msg("kicking slow client")
		o.Kick(conn)
	case app.DropFrame, app.NoAction:
		log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("event", event).Msg("dropped frame for slow client")
	}
}
