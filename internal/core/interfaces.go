package core

import (
	"context"

	"github.com/dkeye/Campus/internal/domain"
)

// Liveness answers whether a connection is still registered.
// Components check it under their key lock so a dead connection can never be re-added.
type Liveness interface {
	Alive(conn domain.ConnID) bool
}

// AuthGateway turns an opaque token into a verified identity.
type AuthGateway interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}
