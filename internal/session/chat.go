package session

import (
	"sort"

	"github.com/mossy-p/peerconnect/internal/models"
)

// mergeMessage inserts msg into log, which is sorted ascending by timestamp.
// A message whose id is already present is dropped. Messages with equal
// timestamps keep arrival order.
func mergeMessage(log []models.ChatMessage, msg models.ChatMessage) ([]models.ChatMessage, bool) {
	for _, m := range log {
		if m.ID == msg.ID {
			return log, false
		}
	}

	i := sort.Search(len(log), func(i int) bool { return log[i].Timestamp > msg.Timestamp })
	log = append(log, models.ChatMessage{})
	copy(log[i+1:], log[i:])
	log[i] = msg
	return log, true
}
