package proto

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid", raw: `{"roomId":"r1","userId":"alice"}`},
		{name: "missing field", raw: `{"roomId":"r1"}`, wantErr: true},
		{name: "wrong type", raw: `{"roomId":5,"userId":"alice"}`, wantErr: true},
		{name: "not an object", raw: `"r1"`, wantErr: true},
		{name: "malformed", raw: `{"roomId":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p ChatRoomData
			err := Decode(json.RawMessage(tt.raw), &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode(%s) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	for _, raw := range []string{"", "  ", "null"} {
		var p ChatRoomData
		if err := Decode(json.RawMessage(raw), &p); !errors.Is(err, ErrEmptyPayload) {
			t.Fatalf("Decode(%q) = %v, want ErrEmptyPayload", raw, err)
		}
	}
}

func TestDecodeDisplayNameLimit(t *testing.T) {
	var p PresenceJoinData
	raw := `{"userId":"alice","displayName":"` + strings.Repeat("a", 65) + `"}`
	if err := Decode(json.RawMessage(raw), &p); err == nil {
		t.Fatalf("display names over 64 characters are rejected")
	}
}

func TestAxis(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		nan  bool
	}{
		{raw: `5`, want: 5},
		{raw: `-12.5`, want: -12.5},
		{raw: `0`, want: 0},
		{raw: `"abc"`, nan: true},
		{raw: `"5"`, nan: true},
		{raw: `null`, nan: true},
		{raw: ``, nan: true},
		{raw: `1e400`, nan: true},
		{raw: `true`, nan: true},
	}
	for _, tt := range tests {
		got := Axis(json.RawMessage(tt.raw))
		if tt.nan {
			if !math.IsNaN(got) {
				t.Fatalf("Axis(%q) = %v, want NaN", tt.raw, got)
			}
			continue
		}
		if got != tt.want {
			t.Fatalf("Axis(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestPositionAxesParsedIndependently(t *testing.T) {
	var p PositionData
	if err := Decode(json.RawMessage(`{"x":"abc","y":5}`), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !math.IsNaN(Axis(p.X)) {
		t.Fatalf("bad x should be NaN")
	}
	if Axis(p.Y) != 5 {
		t.Fatalf("y = %v, want 5", Axis(p.Y))
	}
}
