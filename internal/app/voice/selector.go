package voice

import (
	"context"
	"sync"

	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/rs/zerolog/log"
)

type pin struct {
	kind    Kind
	pending int
}

// Service routes voice joins and leaves to the backend a room is pinned to. The first
// join picks the backend; the pin lasts for as long as the room exists there.
type Service struct {
	mu       sync.Mutex
	pins     map[domain.RoomID]*pin
	backends map[Kind]Backend
	order    []Backend
	def      Kind
}

// NewService takes the backends in disconnect-cleanup order.
func NewService(def Kind, backends ...Backend) *Service {
	s := &Service{
		pins:     make(map[domain.RoomID]*pin),
		backends: make(map[Kind]Backend),
		order:    backends,
		def:      def,
	}
	for _, b := range backends {
		s.backends[b.Kind()] = b
	}
	if _, ok := s.backends[def]; !ok && len(backends) > 0 {
		s.def = backends[0].Kind()
	}
	return s
}

// acquire resolves the room's backend and holds the pin until release.
func (s *Service) acquire(roomID domain.RoomID, hint Kind) Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pins[roomID]
	if s.unpinIfGoneLocked(roomID) {
		kind := s.def
		if _, known := s.backends[hint]; known {
			kind = hint
		}
		p = &pin{kind: kind}
		s.pins[roomID] = p
		log.Debug().Str("module", "voice").Str("room", string(roomID)).Str("backend", string(kind)).Msg("room pinned")
	}
	p.pending++
	return s.backends[p.kind]
}

func (s *Service) release(roomID domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[roomID]
	if !ok {
		return
	}
	p.pending--
	s.unpinIfGoneLocked(roomID)
}

// unpinIfGoneLocked drops the pin once no join is in flight and the backend has no room.
func (s *Service) unpinIfGoneLocked(roomID domain.RoomID) bool {
	p, ok := s.pins[roomID]
	if !ok {
		return true
	}
	if p.pending == 0 && !s.backends[p.kind].RoomExists(roomID) {
		delete(s.pins, roomID)
		return true
	}
	return false
}

// Join sends req to the room's backend. The hint only matters for the first joiner.
func (s *Service) Join(ctx context.Context, req JoinRequest, hint Kind) (Kind, any, error) {
	b := s.acquire(req.RoomID, hint)
	defer s.release(req.RoomID)
	reply, err := b.Join(ctx, req)
	return b.Kind(), reply, err
}

func (s *Service) Leave(roomID domain.RoomID, user domain.UserID, conn domain.ConnID) error {
	s.mu.Lock()
	p, ok := s.pins[roomID]
	s.mu.Unlock()
	if !ok {
		return core.ErrRoomNotFound
	}
	err := s.backends[p.kind].Leave(roomID, user, conn)
	s.mu.Lock()
	s.unpinIfGoneLocked(roomID)
	s.mu.Unlock()
	return err
}

// RemoveConnection clears conn from every backend, in construction order.
func (s *Service) RemoveConnection(conn domain.ConnID) {
	for _, b := range s.order {
		b.RemoveConnection(conn)
	}
	s.prune()
}

// Pinned reports the backend a room currently uses.
func (s *Service) Pinned(roomID domain.RoomID) (Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unpinIfGoneLocked(roomID) {
		return "", false
	}
	return s.pins[roomID].kind, true
}

func (s *Service) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.pins {
		s.unpinIfGoneLocked(id)
	}
}

// RoomCount is the number of voice rooms pinned to a backend.
func (s *Service) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pins)
}
