package core

import (
	"sort"
	"sync"
	"time"
)

// TypingTracker records which identities are composing a message.
//
// The state is owned by the connection that started typing. When a timeout is
// configured every start arms a timer; on expiry onExpire is called with the
// generation that armed it, and the owner is expected to call Expire.
type TypingTracker struct {
	mu       sync.Mutex
	timeout  time.Duration
	onExpire func(userID string, generation uint64)
	entries  map[string]*typingEntry
	nextGen  uint64
}

type typingEntry struct {
	connID     string
	generation uint64
	timer      *time.Timer
}

// NewTypingTracker creates a tracker. A zero timeout disables expiry.
func NewTypingTracker(timeout time.Duration, onExpire func(userID string, generation uint64)) *TypingTracker {
	return &TypingTracker{
		timeout:  timeout,
		onExpire: onExpire,
		entries:  make(map[string]*typingEntry),
	}
}

// Start marks userID as typing from connID.
// It returns true when the identity transitioned from idle to typing.
// Starting again while typing only refreshes the owner and the deadline.
func (t *TypingTracker) Start(userID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextGen++
	entry, exists := t.entries[userID]
	if exists {
		entry.stopTimer()
		entry.connID = connID
	} else {
		entry = &typingEntry{connID: connID}
		t.entries[userID] = entry
	}
	entry.generation = t.nextGen
	t.arm(userID, entry)
	return !exists
}

// Stop clears the typing state of userID. It returns true if it was set.
func (t *TypingTracker) Stop(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[userID]
	if !ok {
		return false
	}
	entry.stopTimer()
	delete(t.entries, userID)
	return true
}

// StopOwnedBy clears every typing state started from connID and returns the
// affected identities.
func (t *TypingTracker) StopOwnedBy(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stopped []string
	for userID, entry := range t.entries {
		if entry.connID != connID {
			continue
		}
		entry.stopTimer()
		delete(t.entries, userID)
		stopped = append(stopped, userID)
	}
	sort.Strings(stopped)
	return stopped
}

// Expire clears userID if its state is still the one armed with generation.
func (t *TypingTracker) Expire(userID string, generation uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[userID]
	if !ok || entry.generation != generation {
		return false
	}
	delete(t.entries, userID)
	return true
}

// IsTyping reports whether userID is currently typing.
func (t *TypingTracker) IsTyping(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.entries[userID]
	return ok
}

// Typing lists the identities currently typing.
func (t *TypingTracker) Typing() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := make([]string, 0, len(t.entries))
	for userID := range t.entries {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

func (t *TypingTracker) arm(userID string, entry *typingEntry) {
	if t.timeout <= 0 || t.onExpire == nil {
		return
	}
	generation := entry.generation
	entry.timer = time.AfterFunc(t.timeout, func() {
		t.onExpire(userID, generation)
	})
}

func (e *typingEntry) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
