package orch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const persistTimeout = 3 * time.Second

type messageRef struct {
	ID string `json:"id"`
}

// RelayChatMessage relays first and then records the message. A persistence failure is
// logged and never blocks delivery.
func (o *Orchestrator) RelayChatMessage(ctx context.Context, roomID domain.RoomID, user domain.UserID, conn domain.ConnID, message json.RawMessage) bool {
	if !o.Chat.RelayMessage(roomID, user, conn, message) {
		return false
	}
	if o.Store == nil {
		return true
	}
	var ref messageRef
	_ = json.Unmarshal(message, &ref)
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	err := o.Store.CreateMessage(ctx, &store.Message{
		ID:     ref.ID,
		RoomID: string(roomID),
		UserID: string(user),
		Body:   message,
	})
	if err != nil {
		log.Error().Str("module", "orch").Err(err).Str("room", string(roomID)).Str("message", ref.ID).Msg("persist message failed")
	}
	return true
}

func (o *Orchestrator) RelayChatReceipt(ctx context.Context, roomID domain.RoomID, user domain.UserID, conn domain.ConnID, messageID, status string) bool {
	if !o.Chat.RelayReceipt(roomID, user, conn, messageID, status) {
		return false
	}
	if o.Store == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := o.Store.UpdateStatus(ctx, string(roomID), messageID, status); err != nil {
		log.Warn().Str("module", "orch").Err(err).Str("room", string(roomID)).Str("message", messageID).Msg("persist receipt failed")
	}
	return true
}

// History returns the newest messages of a room, oldest first.
func (o *Orchestrator) History(ctx context.Context, roomID domain.RoomID, limit int) ([]*store.Message, error) {
	if o.Store == nil {
		return []*store.Message{}, nil
	}
	return o.Store.ListMessages(ctx, string(roomID), limit)
}
