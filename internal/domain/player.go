package domain

// Player is a presence record. Owner is the only connection allowed to move or remove it.
type Player struct {
	UserID      UserID  `json:"userId"`
	DisplayName string  `json:"displayName,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Owner       ConnID  `json:"-"`
}
