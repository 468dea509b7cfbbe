package signal

import (
	"context"

	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
)

func (ctl *SignalWSController) handleChatJoin(id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.ChatRoomData
	if !decode(id, in, &p) || !sameUser(id, ident, p.UserID, in.Event) {
		return
	}
	ctl.Orch.Chat.Join(domain.RoomID(p.RoomID), ident.UserID, id)
}

func (ctl *SignalWSController) handleChatLeave(id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.ChatRoomData
	if !decode(id, in, &p) || !sameUser(id, ident, p.UserID, in.Event) {
		return
	}
	ctl.Orch.Chat.Leave(domain.RoomID(p.RoomID), ident.UserID, id)
}

func (ctl *SignalWSController) handleChatTyping(id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.ChatTypingData
	if !decode(id, in, &p) || !sameUser(id, ident, p.UserID, in.Event) {
		return
	}
	ctl.Orch.Chat.SetTyping(domain.RoomID(p.RoomID), ident.UserID, id, p.State)
}

func (ctl *SignalWSController) handleChatMessage(ctx context.Context, id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.ChatMessageData
	if !decode(id, in, &p) || !sameUser(id, ident, p.UserID, in.Event) {
		return
	}
	ctl.Orch.RelayChatMessage(ctx, domain.RoomID(p.RoomID), ident.UserID, id, p.Message)
}

func (ctl *SignalWSController) handleChatReceipt(ctx context.Context, id domain.ConnID, ident domain.Identity, in proto.Inbound) {
	var p proto.ChatReceiptData
	if !decode(id, in, &p) || !sameUser(id, ident, p.UserID, in.Event) {
		return
	}
	ctl.Orch.RelayChatReceipt(ctx, domain.RoomID(p.RoomID), ident.UserID, id, p.MessageID, p.Status)
}
