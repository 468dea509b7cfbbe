package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"

	"github.com/go-playground/validator/v10"
)

var ErrEmptyPayload = errors.New("empty payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode unmarshals raw into v and checks required fields and primitive types.
// Any failure means the message is dropped.
func Decode(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return err
	}
	return validate.Struct(v)
}

// Axis parses one coordinate. Anything that is not a finite JSON number yields NaN,
// which the presence directory treats as "keep the last value".
func Axis(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return math.NaN()
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return math.NaN()
	}
	if math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}
