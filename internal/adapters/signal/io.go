package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, id domain.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.settings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump ping error")
				return
			}
		}
	}
}

// readPump owns the connection's lifetime: its exit is the one disconnect path.
func (ctl *SignalWSController) readPump(ctx context.Context, id domain.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		ctl.Orch.Disconnect(id)
		ctl.limiter.Forget(id)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.settings.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.settings.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.settings.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleSignal(ctx, id, data)
	}
}

// handleSignal demultiplexes one inbound message. Bad input is dropped without a reply.
func (ctl *SignalWSController) handleSignal(ctx context.Context, id domain.ConnID, data []byte) {
	var in proto.Inbound
	if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
		log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("bad envelope")
		return
	}

	switch in.Event {
	case proto.EventPing:
		ctl.handlePing(id, in)
		return
	case proto.EventIdentify:
		ctl.handleIdentify(ctx, id, in)
		return
	}

	ident, ok := ctl.identity(id)
	if !ok {
		log.Debug().Str("module", "signal").Str("conn", string(id)).Str("event", in.Event).Msg("dropped: not identified")
		return
	}

	switch in.Event {
	case proto.EventPresenceJoin:
		ctl.handlePresenceJoin(id, ident, in)
	case proto.EventPositionUpdate:
		ctl.handlePosition(id, in)
	case proto.EventChatJoin:
		ctl.handleChatJoin(id, ident, in)
	case proto.EventChatLeave:
		ctl.handleChatLeave(id, ident, in)
	case proto.EventChatTyping:
		ctl.handleChatTyping(id, ident, in)
	case proto.EventChatMessage:
		ctl.handleChatMessage(ctx, id, ident, in)
	case proto.EventChatReceipt:
		ctl.handleChatReceipt(ctx, id, ident, in)
	case proto.EventVoiceJoin:
		ctl.handleVoiceJoin(ctx, id, ident, in)
	case proto.EventVoiceLeave:
		ctl.handleVoiceLeave(id, ident, in)
	case proto.EventVoiceOffer:
		ctl.handleOffer(id, ident, in)
	case proto.EventVoiceAnswer:
		ctl.handleAnswer(id, ident, in)
	case proto.EventVoiceIceCandidate:
		ctl.handleCandidate(id, ident, in)
	case proto.EventVoiceCreateTransport:
		ctl.handleCreateTransport(ctx, id, ident, in)
	case proto.EventVoiceConnectTransport:
		ctl.handleConnectTransport(ctx, id, ident, in)
	case proto.EventVoiceProduce:
		ctl.handleProduce(ctx, id, ident, in)
	case proto.EventVoiceConsume:
		ctl.handleConsume(ctx, id, ident, in)
	case proto.EventVoiceProducerClose:
		ctl.handleProducerClose(id, ident, in)
	case proto.EventVoiceSFULeave:
		ctl.handleSFULeave(id, ident, in)
	default:
		log.Debug().Str("module", "signal").Str("event", in.Event).Msg("unknown event")
	}
}

// decode validates a payload, logging and reporting false on protocol violations.
func decode(id domain.ConnID, in proto.Inbound, v any) bool {
	if err := proto.Decode(in.Data, v); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Str("event", in.Event).Msg("dropped: bad payload")
		return false
	}
	return true
}

// sameUser enforces that payload user ids match the connection's identity.
func sameUser(id domain.ConnID, ident domain.Identity, claimed, event string) bool {
	if domain.UserID(claimed) == ident.UserID {
		return true
	}
	log.Warn().Str("module", "signal").Str("conn", string(id)).Str("user", string(ident.UserID)).Str("claimed", claimed).Str("event", event).Msg("dropped: identity mismatch")
	return false
}

// reply answers a request on the caller's connection; Ack echoes the request id.
func (ctl *SignalWSController) reply(id domain.ConnID, in proto.Inbound, event string, data any) {
	ctl.Orch.Bus.Publish(core.Event{
		Name: event,
		To:   []domain.ConnID{id},
		Ack:  in.ID,
		Data: data,
	})
}

func (ctl *SignalWSController) replyError(id domain.ConnID, in proto.Inbound, err error) {
	ctl.reply(id, in, in.Event, proto.ErrorReply{Error: core.CodeOf(err)})
}
