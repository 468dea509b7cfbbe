package orch

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Start launches the background watchers that live as long as ctx.
func (o *Orchestrator) Start(ctx context.Context) {
	if o.SFU != nil {
		o.SFU.WatchEngine(ctx)
	}
}

// Shutdown closes the event bus, then disconnects every remaining connection.
// The dispatcher may already have stopped, so cleanup events must not wait on the buffer.
func (o *Orchestrator) Shutdown() {
	o.Bus.Close()
	for _, conn := range o.Registry.Connections() {
		o.Registry.Cancel(conn)
		o.Disconnect(conn)
	}
	if o.Store != nil {
		if err := o.Store.Close(); err != nil {
			log.Warn().Str("module", "orch").Err(err).Msg("close store")
		}
	}
	log.Info().Str("module", "orch").Msg("orchestrator stopped")
}
