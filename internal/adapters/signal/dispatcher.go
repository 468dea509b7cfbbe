package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Campus/internal/app"
	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
	"github.com/rs/zerolog/log"
)

// Dispatcher drains the event bus and writes each event to its recipients. It is the
// only writer of outbound frames, so nothing in the components touches a socket.
type Dispatcher struct {
	reg    *app.Registry
	bus    *core.Bus
	onSlow func(conn domain.ConnID, event string)
}

func NewDispatcher(reg *app.Registry, bus *core.Bus, onSlow func(domain.ConnID, string)) *Dispatcher {
	return &Dispatcher{reg: reg, bus: bus, onSlow: onSlow}
}

// Run blocks until ctx is done or the bus is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.bus.Done():
			return
		case ev := <-d.bus.Events():
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) deliver(ev core.Event) {
	frame, err := json.Marshal(proto.Outbound{Event: ev.Name, Ack: ev.Ack, Data: ev.Data})
	if err != nil {
		log.Error().Err(err).Str("module", "signal.dispatch").Str("event", ev.Name).Msg("marshal event")
		return
	}
	targets := ev.To
	if ev.All {
		targets = d.reg.Identified()
	}
	for _, conn := range targets {
		if conn == ev.Except {
			continue
		}
		sig, ok := d.reg.Signal(conn)
		if !ok {
			// recipient went away after the event was published
			continue
		}
		err := sig.TrySend(frame)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrBackpressure):
			if d.onSlow != nil {
				d.onSlow(conn, ev.Name)
			}
		default:
			log.Debug().Err(err).Str("module", "signal.dispatch").Str("conn", string(conn)).Msg("send failed")
		}
	}
}
