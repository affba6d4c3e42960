// ABOUTME: Per-conversation mutual exclusion for the dedup check-then-insert
// ABOUTME: Serializes the scan and user-message persist within one conversation

package chat

import "sync"

// conversationLocks hands out one mutex per conversation ID. The duplicate
// scan and the user-message insert must not interleave across requests for
// the same conversation, or two identical concurrent sends could both pass
// the scan and both reach the backend.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{
		locks: make(map[int64]*sync.Mutex),
	}
}

// get returns the mutex for the given conversation, creating it on first
// use. Mutexes are never reclaimed; the conversation space is small and
// bounded by actual usage.
func (c *conversationLocks) get(conversationID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[conversationID] = lock
	}
	return lock
}
