package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Message is a persisted chat message. Body is the opaque client payload.
type Message struct {
	ID        string
	RoomID    string
	UserID    string
	Body      json.RawMessage
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageStatus values written by receipts.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// PersistenceGateway is the durable chat history service.
type PersistenceGateway interface {
	// CreateMessage persists a new message. CreatedAt is set when zero.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by id.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// UpdateMessage replaces the body and status of a message.
	UpdateMessage(ctx context.Context, msg *Message) error

	// UpdateStatus records a delivery receipt on a message of roomID.
	// A message stored under another room is reported as ErrNotFound.
	UpdateStatus(ctx context.Context, roomID, id, status string) error

	// DeleteMessage removes a message by id.
	DeleteMessage(ctx context.Context, id string) error

	// ListMessages returns the newest messages of a room, oldest first.
	ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)

	Close() error
}
