package app

import "github.com/dkeye/Campus/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(conn domain.ConnID, event string) BackpressureAction
}

// SimplePolicy drops the frame, or kicks the connection when KickSlow is set.
type SimplePolicy struct {
	KickSlow bool
}

func (p SimplePolicy) OnBackPressure(domain.ConnID, string) BackpressureAction {
	if p.KickSlow {
		return KickMember
	}
	return DropFrame
}
