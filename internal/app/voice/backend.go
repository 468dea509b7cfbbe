// Package voice puts the mesh and SFU paths behind one interface and pins each room to
// exactly one of them.
package voice

import (
	"context"

	"github.com/dkeye/Campus/internal/app/mesh"
	"github.com/dkeye/Campus/internal/app/sfu"
	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/proto"
)

type Kind string

const (
	KindMesh Kind = "mesh"
	KindSFU  Kind = "sfu"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindMesh, KindSFU:
		return Kind(s), true
	}
	return "", false
}

type JoinRequest struct {
	RoomID      domain.RoomID
	User        domain.UserID
	Conn        domain.ConnID
	DisplayName string
	Caps        *core.RtpCapabilities
	// Ack is the request id the join reply answers.
	Ack uint64
}

// Backend is one way of carrying a room's voice.
// Join returns the reply owed to the joiner, or nil when the backend already published it.
type Backend interface {
	Kind() Kind
	Join(ctx context.Context, req JoinRequest) (any, error)
	Leave(roomID domain.RoomID, user domain.UserID, conn domain.ConnID) error
	RemoveConnection(conn domain.ConnID)
	RoomExists(roomID domain.RoomID) bool
}

type meshBackend struct{ c *mesh.Coordinator }

func MeshBackend(c *mesh.Coordinator) Backend { return meshBackend{c: c} }

func (b meshBackend) Kind() Kind { return KindMesh }

func (b meshBackend) Join(_ context.Context, req JoinRequest) (any, error) {
	if _, ok := b.c.JoinAck(req.RoomID, req.User, req.Conn, req.DisplayName, req.Ack); !ok {
		return nil, core.ErrRoomFull
	}
	return nil, nil
}

func (b meshBackend) Leave(roomID domain.RoomID, user domain.UserID, conn domain.ConnID) error {
	b.c.Leave(roomID, user, conn)
	return nil
}

func (b meshBackend) RemoveConnection(conn domain.ConnID) { b.c.RemoveConnection(conn) }

func (b meshBackend) RoomExists(roomID domain.RoomID) bool { return b.c.RoomExists(roomID) }

type sfuBackend struct{ c *sfu.Coordinator }

func SFUBackend(c *sfu.Coordinator) Backend { return sfuBackend{c: c} }

func (b sfuBackend) Kind() Kind { return KindSFU }

func (b sfuBackend) Join(ctx context.Context, req JoinRequest) (any, error) {
	res, err := b.c.JoinRoom(ctx, req.RoomID, req.User, req.Conn, req.DisplayName, req.Caps)
	if err != nil {
		return nil, err
	}
	return proto.RouterCapabilities{
		RoomID:          string(req.RoomID),
		RtpCapabilities: res.RtpCapabilities,
		Producers:       res.Producers,
	}, nil
}

func (b sfuBackend) Leave(roomID domain.RoomID, user domain.UserID, conn domain.ConnID) error {
	return b.c.LeaveRoom(roomID, user, conn)
}

func (b sfuBackend) RemoveConnection(conn domain.ConnID) { b.c.RemovePeerIfPresent(conn) }

func (b sfuBackend) RoomExists(roomID domain.RoomID) bool { return b.c.RoomExists(roomID) }
