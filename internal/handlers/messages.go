package handlers

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MessageTracker remembers the bot messages sent to each chat so older ones
// can be deleted when a new view is shown. It is bounded and lost on restart.
type MessageTracker struct {
	mu    sync.Mutex
	chats *lru.Cache[int64, []int]
}

func NewMessageTracker(size int) (*MessageTracker, error) {
	cache, err := lru.New[int64, []int](size)
	if err != nil {
		return nil, err
	}
	return &MessageTracker{chats: cache}, nil
}

func (t *MessageTracker) Track(chatID int64, messageIDs ...int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids, _ := t.chats.Get(chatID)
	t.chats.Add(chatID, append(ids, messageIDs...))
}

// Stale returns every tracked message of the chat except keep, and forgets
// them.
func (t *MessageTracker) Stale(chatID int64, keep ...int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids, ok := t.chats.Get(chatID)
	if !ok {
		return nil
	}

	var stale, kept []int
	for _, id := range ids {
		if contains(keep, id) {
			kept = append(kept, id)
		} else {
			stale = append(stale, id)
		}
	}
	if len(kept) == 0 {
		t.chats.Remove(chatID)
	} else {
		t.chats.Add(chatID, kept)
	}
	return stale
}

func (t *MessageTracker) Len() int {
	return t.chats.Len()
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
