package signal

import (
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePresenceJoin(id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.PresenceJoinData
	if !decode(id, in, &p) || !sameUser(id, ident, p.UserID, in.Event) {
		return
	}
	name := p.DisplayName
	if name == "" {
		name = ident.DisplayName
	}
	ctl.Orch.Presence.Join(id, ident.UserID, name)
}

// handlePosition throttles per connection; a dropped update is superseded by the next one.
func (ctl *SignalWSController) handlePosition(id domain.ConnID, in proto.Inbound) {
	if !ctl.limiter.Allow(id) {
		log.Trace().Str("module", "signal").Str("conn", string(id)).Msg("position throttled")
		return
	}
	var p proto.PositionData
	if !decode(id, in, &p) {
		return
	}
	ctl.Orch.Presence.UpdatePosition(id, proto.Axis(p.X), proto.Axis(p.Y))
}
