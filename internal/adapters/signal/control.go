package signal

import (
	"context"
	"time"

	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
	"github.com/rs/zerolog/log"
)

const identifyTimeout = 5 * time.Second

func (ctl *SignalWSController) handlePing(id domain.ConnID, in proto.Inbound) {
	ctl.reply(id, in, proto.EventPong, nil)
}

// handleIdentify binds a verified identity. A connection keeps its first identity.
func (ctl *SignalWSController) handleIdentify(ctx context.Context, id domain.ConnID, in proto.Inbound) {
	var p proto.IdentifyData
	if !decode(id, in, &p) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, identifyTimeout)
	defer cancel()
	ident, err := ctl.Auth.Verify(ctx, p.Token)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("identify rejected")
		return
	}
	if !ctl.Orch.Registry.Identify(id, ident) {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Str("user", string(ident.UserID)).Msg("identify conflicts with bound identity")
		return
	}
	ctl.reply(id, in, proto.EventIdentified, ident)
}
