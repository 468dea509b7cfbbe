package core

import "errors"

// Error codes surfaced on request/response calls.
const (
	ErrCodeNotJoined         = "NOT_JOINED"
	ErrCodeAlreadyJoined     = "ALREADY_JOINED"
	ErrCodeRoomNotFound      = "ROOM_NOT_FOUND"
	ErrCodeTransportNotFound = "TRANSPORT_NOT_FOUND"
	ErrCodeProducerNotFound  = "PRODUCER_NOT_FOUND"
	ErrCodeCannotConsume     = "CANNOT_CONSUME"
	ErrCodeAlreadyProducing  = "ALREADY_PRODUCING"
	ErrCodeRoomFull          = "ROOM_FULL"
	ErrCodeMediaError        = "MEDIA_ERROR"
)

var (
	ErrNotJoined         = NewError(ErrCodeNotJoined, "peer has not joined")
	ErrAlreadyJoined     = NewError(ErrCodeAlreadyJoined, "user already joined from another connection")
	ErrRoomNotFound      = NewError(ErrCodeRoomNotFound, "room not found")
	ErrTransportNotFound = NewError(ErrCodeTransportNotFound, "transport not found")
	ErrProducerNotFound  = NewError(ErrCodeProducerNotFound, "producer not found")
	ErrCannotConsume     = NewError(ErrCodeCannotConsume, "capabilities cannot consume producer")
	ErrAlreadyProducing  = NewError(ErrCodeAlreadyProducing, "peer already produces this kind")
	ErrRoomFull          = NewError(ErrCodeRoomFull, "voice room is full")
)

// Error wraps a code and human-readable message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func NewError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// CodeOf extracts the wire code of err. Anything that is not a *Error is a media failure.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeMediaError
}
