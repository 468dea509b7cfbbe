package signal

import (
	"context"

	"github.com/dkeye/Campus/internal/app/voice"
	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
	"github.com/rs/zerolog/log"
)

var errSFUDisabled = core.NewError(core.ErrCodeMediaError, "sfu disabled")

func (ctl *SignalWSController) mediaContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ctl.settings.MediaTimeout)
}

// handleVoiceJoin routes to whichever backend the room is pinned to. Mesh rooms answer
// with voice:participants; SFU rooms answer with the router capabilities.
func (ctl *SignalWSController) handleVoiceJoin(ctx context.Context, id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.VoiceJoinData
	if !decode(id, in, &p) || !sameUser(id, ident, p.UserID, in.Event) {
		return
	}
	name := p.DisplayName
	if name == "" {
		name = ident.DisplayName
	}
	hint, _ := voice.ParseKind(p.Backend)

	ctx, cancel := ctl.mediaContext(ctx)
	defer cancel()
	kind, reply, err := ctl.Orch.Voice.Join(ctx, voice.JoinRequest{
		RoomID:      domain.RoomID(p.RoomID),
		User:        ident.UserID,
		Conn:        id,
		DisplayName: name,
		Caps:        p.RtpCapabilities,
		Ack:         in.ID,
	}, hint)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", p.RoomID).Str("backend", string(kind)).Msg("voice join failed")
		ctl.replyError(id, in, err)
		return
	}
	if reply != nil {
		ctl.reply(id, in, proto.EventVoiceRouterCapabilities, reply)
	}
}

func (ctl *SignalWSController) handleVoiceLeave(id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.VoiceLeaveData
	if !decode(id, in, &p) || !sameUser(id, ident, p.UserID, in.Event) {
		return
	}
	if err := ctl.Orch.Voice.Leave(domain.RoomID(p.RoomID), ident.UserID, id); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("voice leave ignored")
	}
}

func (ctl *SignalWSController) handleOffer(id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.VoiceOfferData
	if !decode(id, in, &p) {
		return
	}
	ctl.Orch.Mesh.RelayOffer(domain.RoomID(p.RoomID), ident.UserID, id, domain.UserID(p.TargetUserID), p.Offer)
}

func (ctl *SignalWSController) handleAnswer(id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.VoiceAnswerData
	if !decode(id, in, &p) {
		return
	}
	ctl.Orch.Mesh.RelayAnswer(domain.RoomID(p.RoomID), ident.UserID, id, domain.UserID(p.TargetUserID), p.Answer)
}

func (ctl *SignalWSController) handleCandidate(id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.VoiceCandidateData
	if !decode(id, in, &p) {
		return
	}
	ctl.Orch.Mesh.RelayIceCandidate(domain.RoomID(p.RoomID), ident.UserID, id, domain.UserID(p.TargetUserID), p.Candidate)
}

// The SFU calls below are request/response: every outcome, including failure, is
// answered on the same event with the request id.

func (ctl *SignalWSController) handleCreateTransport(ctx context.Context, id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.CreateTransportData
	if !decode(id, in, &p) {
		return
	}
	if ctl.Orch.SFU == nil {
		ctl.replyError(id, in, errSFUDisabled)
		return
	}
	ctx, cancel := ctl.mediaContext(ctx)
	defer cancel()
	desc, err := ctl.Orch.SFU.CreateTransport(ctx, domain.RoomID(p.RoomID), ident.UserID, id)
	if err != nil {
		ctl.replyError(id, in, err)
		return
	}
	ctl.reply(id, in, in.Event, desc)
}

func (ctl *SignalWSController) handleConnectTransport(ctx context.Context, id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.ConnectTransportData
	if !decode(id, in, &p) {
		return
	}
	if ctl.Orch.SFU == nil {
		ctl.replyError(id, in, errSFUDisabled)
		return
	}
	ctx, cancel := ctl.mediaContext(ctx)
	defer cancel()
	err := ctl.Orch.SFU.ConnectTransport(ctx, domain.RoomID(p.RoomID), ident.UserID, id, p.TransportID, core.ConnectParams{
		DtlsParameters: *p.DtlsParameters,
		IceParameters:  p.IceParameters,
	})
	if err != nil {
		ctl.replyError(id, in, err)
		return
	}
	ctl.reply(id, in, in.Event, proto.ConnectReply{Connected: true})
}

func (ctl *SignalWSController) handleProduce(ctx context.Context, id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.ProduceData
	if !decode(id, in, &p) {
		return
	}
	if ctl.Orch.SFU == nil {
		ctl.replyError(id, in, errSFUDisabled)
		return
	}
	ctx, cancel := ctl.mediaContext(ctx)
	defer cancel()
	pid, err := ctl.Orch.SFU.Produce(ctx, domain.RoomID(p.RoomID), ident.UserID, id, p.TransportID, core.MediaKind(p.Kind), *p.RtpParameters)
	if err != nil {
		ctl.replyError(id, in, err)
		return
	}
	ctl.reply(id, in, in.Event, proto.ProduceReply{ID: pid})
}

func (ctl *SignalWSController) handleConsume(ctx context.Context, id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.ConsumeData
	if !decode(id, in, &p) {
		return
	}
	if ctl.Orch.SFU == nil {
		ctl.replyError(id, in, errSFUDisabled)
		return
	}
	ctx, cancel := ctl.mediaContext(ctx)
	defer cancel()
	desc, err := ctl.Orch.SFU.Consume(ctx, domain.RoomID(p.RoomID), ident.UserID, id, p.TransportID, p.ProducerID, *p.RtpCapabilities)
	if err != nil {
		ctl.replyError(id, in, err)
		return
	}
	ctl.reply(id, in, in.Event, desc)
}

func (ctl *SignalWSController) handleProducerClose(id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.ProducerCloseData
	if !decode(id, in, &p) {
		return
	}
	if ctl.Orch.SFU == nil {
		ctl.replyError(id, in, errSFUDisabled)
		return
	}
	if err := ctl.Orch.SFU.CloseProducer(domain.RoomID(p.RoomID), ident.UserID, id, p.ProducerID); err != nil {
		ctl.replyError(id, in, err)
		return
	}
	ctl.reply(id, in, in.Event, proto.CloseReply{Closed: true})
}

func (ctl *SignalWSController) handleSFULeave(id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.VoiceLeaveData
	if !decode(id, in, &p) || !sameUser(id, ident, p.UserID, in.Event) {
		return
	}
	if ctl.Orch.SFU == nil {
		ctl.replyError(id, in, errSFUDisabled)
		return
	}
	if err := ctl.Orch.SFU.LeaveRoom(domain.RoomID(p.RoomID), ident.UserID, id); err != nil {
		ctl.replyError(id, in, err)
		return
	}
	ctl.reply(id, in, in.Event, proto.CloseReply{Closed: true})
}
