package chat

import (
	"time"

	"github.com/dkeye/Campus/internal/domain"
)

// typingEntry is logically expired at expires even while the GC timer has not fired;
// readers compare against the clock instead of trusting the timer.
type typingEntry struct {
	expires time.Time
	timer   *time.Timer
}

func (t *typingEntry) stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (ix *Index) startTypingLocked(r *room, user domain.UserID) {
	expires := ix.now().Add(ix.ttl)
	if t, ok := r.typing[user]; ok {
		t.expires = expires
		t.timer.Reset(ix.ttl)
		return
	}
	roomID := r.id
	r.typing[user] = &typingEntry{
		expires: expires,
		timer:   time.AfterFunc(ix.ttl, func() { ix.collectTyping(roomID, user) }),
	}
}

// collectTyping garbage-collects an expired typing entry. It never broadcasts.
func (ix *Index) collectTyping(roomID domain.RoomID, user domain.UserID) {
	ix.rooms.UpdateExisting(roomID, func(r *room) bool {
		if t, ok := r.typing[user]; ok && !ix.now().Before(t.expires) {
			delete(r.typing, user)
		}
		return !r.empty()
	})
}
