package proto

import (
	"encoding/json"

	"github.com/dkeye/Campus/internal/core"
)

// ==== inbound ====

type IdentifyData struct {
	Token string `json:"token" validate:"required"`
}

type PresenceJoinData struct {
	UserID      string `json:"userId" validate:"required"`
	DisplayName string `json:"displayName,omitempty" validate:"max=64"`
}

// PositionData keeps each axis raw so one bad axis cannot poison the other.
type PositionData struct {
	X json.RawMessage `json:"x"`
	Y json.RawMessage `json:"y"`
}

type ChatRoomData struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type ChatTypingData struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
	State  string `json:"state" validate:"required,oneof=started stopped"`
}

type ChatMessageData struct {
	RoomID  string          `json:"roomId" validate:"required"`
	UserID  string          `json:"userId" validate:"required"`
	Message json.RawMessage `json:"message" validate:"required"`
}

type ChatReceiptData struct {
	RoomID    string `json:"roomId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

type VoiceJoinData struct {
	RoomID      string `json:"roomId" validate:"required"`
	UserID      string `json:"userId" validate:"required"`
	DisplayName string `json:"displayName,omitempty" validate:"max=64"`
	Backend     string `json:"backend,omitempty" validate:"omitempty,oneof=mesh sfu"`
	// RtpCapabilities is only meaningful for SFU rooms.
	RtpCapabilities *core.RtpCapabilities `json:"rtpCapabilities,omitempty"`
}

type VoiceLeaveData struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type VoiceOfferData struct {
	RoomID       string          `json:"roomId" validate:"required"`
	TargetUserID string          `json:"targetUserId" validate:"required"`
	Offer        json.RawMessage `json:"offer" validate:"required"`
}

type VoiceAnswerData struct {
	RoomID       string          `json:"roomId" validate:"required"`
	TargetUserID string          `json:"targetUserId" validate:"required"`
	Answer       json.RawMessage `json:"answer" validate:"required"`
}

type VoiceCandidateData struct {
	RoomID       string          `json:"roomId" validate:"required"`
	TargetUserID string          `json:"targetUserId" validate:"required"`
	Candidate    json.RawMessage `json:"candidate" validate:"required"`
}

type CreateTransportData struct {
	RoomID string `json:"roomId" validate:"required"`
}

type ConnectTransportData struct {
	RoomID         string               `json:"roomId" validate:"required"`
	TransportID    string               `json:"transportId" validate:"required"`
	DtlsParameters *core.DtlsParameters `json:"dtlsParameters" validate:"required"`
	IceParameters  *core.IceParameters  `json:"iceParameters,omitempty"`
}

type ProduceData struct {
	RoomID        string              `json:"roomId" validate:"required"`
	TransportID   string              `json:"transportId" validate:"required"`
	Kind          string              `json:"kind" validate:"required,oneof=audio video screen"`
	RtpParameters *core.RtpParameters `json:"rtpParameters" validate:"required"`
}

type ConsumeData struct {
	RoomID          string                `json:"roomId" validate:"required"`
	TransportID     string                `json:"transportId" validate:"required"`
	ProducerID      string                `json:"producerId" validate:"required"`
	RtpCapabilities *core.RtpCapabilities `json:"rtpCapabilities" validate:"required"`
}

type ProducerCloseData struct {
	RoomID     string `json:"roomId" validate:"required"`
	ProducerID string `json:"producerId" validate:"required"`
}

// ==== outbound ====

type PlayerState struct {
	UserID      string  `json:"userId"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	DisplayName string  `json:"displayName,omitempty"`
}

type PresenceLeft struct {
	UserID string `json:"userId"`
}

type PositionBroadcast struct {
	UserID string  `json:"userId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type ChatRoomJoined struct {
	RoomID string `json:"roomId"`
}

type ChatTyping struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	State  string `json:"state"`
}

type ChatReceipt struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type VoiceUser struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

type VoiceParticipants struct {
	RoomID       string   `json:"roomId"`
	Participants []string `json:"participants"`
}

type VoiceOffer struct {
	RoomID     string          `json:"roomId"`
	FromUserID string          `json:"fromUserId"`
	Offer      json.RawMessage `json:"offer"`
}

type VoiceAnswer struct {
	RoomID     string          `json:"roomId"`
	FromUserID string          `json:"fromUserId"`
	Answer     json.RawMessage `json:"answer"`
}

type VoiceCandidate struct {
	RoomID     string          `json:"roomId"`
	FromUserID string          `json:"fromUserId"`
	Candidate  json.RawMessage `json:"candidate"`
}

// RouterCapabilities answers an SFU join, with the producers already live in the room.
type RouterCapabilities struct {
	RoomID          string               `json:"roomId"`
	RtpCapabilities core.RtpCapabilities `json:"rtpCapabilities"`
	Producers       []NewProducer        `json:"producers"`
}

type ProduceReply struct {
	ID string `json:"id"`
}

type ConnectReply struct {
	Connected bool `json:"connected"`
}

type NewProducer struct {
	RoomID     string         `json:"roomId"`
	UserID     string         `json:"userId"`
	ProducerID string         `json:"producerId"`
	Kind       core.MediaKind `json:"kind"`
}

type ProducerClosed struct {
	ConsumerID string `json:"consumerId"`
}

type CloseReply struct {
	Closed bool `json:"closed"`
}
