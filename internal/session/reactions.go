package session

import (
	"time"

	"github.com/mossy-p/peerconnect/internal/models"
)

// reactionBoard holds the visible reactions. Each entry owns a timer that
// removes it once. The board is only touched from the event loop.
type reactionBoard struct {
	items  []models.ReactionEvent
	timers map[string]*time.Timer
}

func newReactionBoard() *reactionBoard {
	return &reactionBoard{timers: make(map[string]*time.Timer)}
}

// add inserts r and arms expire after ttl. Duplicate ids are ignored.
func (b *reactionBoard) add(r models.ReactionEvent, ttl time.Duration, expire func()) bool {
	if _, ok := b.timers[r.ID]; ok {
		return false
	}
	b.items = append(b.items, r)
	b.timers[r.ID] = time.AfterFunc(ttl, expire)
	return true
}

// remove drops the reaction with id. It reports whether one was present.
func (b *reactionBoard) remove(id string) bool {
	if _, ok := b.timers[id]; !ok {
		return false
	}
	delete(b.timers, id)
	for i, r := range b.items {
		if r.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			break
		}
	}
	return true
}

// reset stops every pending timer and empties the board.
func (b *reactionBoard) reset() {
	for _, t := range b.timers {
		t.Stop()
	}
	b.timers = make(map[string]*time.Timer)
	b.items = nil
}

func (b *reactionBoard) snapshot() []models.ReactionEvent {
	if len(b.items) == 0 {
		return nil
	}
	return append([]models.ReactionEvent(nil), b.items...)
}
