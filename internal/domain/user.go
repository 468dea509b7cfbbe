// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen      = 64
	MaxDisplayNameLen = 64
)

var (
	ErrUserIDEmpty        = errors.New("user id empty")
	ErrUserIDTooLong      = errors.New("user id too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type UserID string

// Identity is what the auth gateway vouches for. The core never issues one itself.
type Identity struct {
	UserID      UserID `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(userID, displayName string) (Identity, error) {
	userID = strings.TrimSpace(userID)
	if len(userID) == 0 {
		return Identity{}, ErrUserIDEmpty
	}
	if len(userID) > MaxUserIDLen {
		return Identity{}, ErrUserIDTooLong
	}
	if len(displayName) > MaxDisplayNameLen {
		return Identity{}, ErrDisplayNameTooLong
	}
	return Identity{UserID: UserID(userID), DisplayName: displayName}, nil
}
