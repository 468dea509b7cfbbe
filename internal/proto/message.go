package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
// ID is set on request/response calls and echoed back as Ack.
type Inbound struct {
	Event string          `json:"event"`
	ID    uint64          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Ack   uint64 `json:"ack,omitempty"`
	Data  any    `json:"data,omitempty"`
}

const (
	EventIdentify   = "auth:identify"
	EventIdentified = "auth:identified"
	EventPing       = "ping"
	EventPong       = "pong"

	EventPresenceJoin   = "presence:join"
	EventPresenceState  = "presence:state"
	EventPresenceJoined = "presence:joined"
	EventPresenceLeft   = "presence:left"
	EventPositionUpdate = "space:position:update"

	EventChatJoin       = "chat:join"
	EventChatLeave      = "chat:leave"
	EventChatRoomJoined = "chat:room:joined"
	EventChatTyping     = "chat:typing"
	EventChatMessage    = "chat:message:new"
	EventChatReceipt    = "chat:receipt:update"

	EventVoiceJoin         = "voice:join"
	EventVoiceLeave        = "voice:leave"
	EventVoiceOffer        = "voice:offer"
	EventVoiceAnswer       = "voice:answer"
	EventVoiceIceCandidate = "voice:iceCandidate"
	EventVoiceUserJoined   = "voice:userJoined"
	EventVoiceUserLeft     = "voice:userLeft"
	EventVoiceParticipants = "voice:participants"

	EventVoiceRouterCapabilities = "voice:routerCapabilities"
	EventVoiceSFULeave           = "voice:sfu:leave"
	EventVoiceCreateTransport    = "voice:createTransport"
	EventVoiceConnectTransport   = "voice:connectTransport"
	EventVoiceProduce            = "voice:produce"
	EventVoiceConsume            = "voice:consume"
	EventVoiceProducerClose      = "voice:producerClose"
	EventVoiceNewProducer        = "voice:newProducer"
	EventVoiceProducerClosed     = "voice:producerClosed"
)

const (
	TypingStarted = "started"
	TypingStopped = "stopped"
)

// ErrorReply is the body of a failed request/response call.
type ErrorReply struct {
	Error string `json:"error"`
}
