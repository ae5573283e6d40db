package core

import (
	"sync"
	"time"
)

// TypingTimeout is how long a typing indicator stays live without a refresh.
const TypingTimeout = 5 * time.Second

type typingKey struct {
	senderID    string
	recipientID string
}

type typingState struct {
	timer     *time.Timer
	expiresAt time.Time
}

// TypingNotifyFunc receives exactly one call per state transition: typing=true
// when a pair enters the typing state, typing=false when it leaves it.
type TypingNotifyFunc func(senderID, recipientID string, typing bool)

// TypingTracker is a two-state machine per (sender, recipient) pair.
// Repeated typing events within the window rearm the expiry timer instead of
// stacking notifications; an explicit stop and a timer expiry race safely and
// only one of them notifies.
type TypingTracker struct {
	mu      sync.Mutex
	pairs   map[typingKey]*typingState
	notify  TypingNotifyFunc
	timeout time.Duration
	now     func() time.Time
}

func NewTypingTracker(notify TypingNotifyFunc) *TypingTracker {
	return &TypingTracker{
		pairs:   make(map[typingKey]*typingState),
		notify:  notify,
		timeout: TypingTimeout,
		now:     time.Now,
	}
}

// StartTyping (re)arms the expiry for the pair. Only the Idle -> Typing
// transition notifies the recipient.
func (t *TypingTracker) StartTyping(senderID, recipientID string) {
	key := typingKey{senderID: senderID, recipientID: recipientID}

	t.mu.Lock()
	state, ok := t.pairs[key]
	if ok {
		state.timer.Stop()
		state.timer.Reset(t.timeout)
		state.expiresAt = t.now().Add(t.timeout)
		t.mu.Unlock()
		return
	}

	state = &typingState{expiresAt: t.now().Add(t.timeout)}
	state.timer = time.AfterFunc(t.timeout, func() {
		t.expire(key)
	})
	t.pairs[key] = state
	t.mu.Unlock()

	t.notify(senderID, recipientID, true)
}

// StopTyping transitions the pair to Idle. A pair that is already idle is a
// no-op, so duplicate stop notifications cannot occur.
func (t *TypingTracker) StopTyping(senderID, recipientID string) {
	key := typingKey{senderID: senderID, recipientID: recipientID}

	t.mu.Lock()
	state, ok := t.pairs[key]
	if ok {
		state.timer.Stop()
		delete(t.pairs, key)
	}
	t.mu.Unlock()

	if ok {
		t.notify(senderID, recipientID, false)
	}
}

// DropSender cancels every live indicator a sender holds, notifying each
// recipient once. Used by disconnect cleanup.
func (t *TypingTracker) DropSender(senderID string) {
	t.mu.Lock()
	var recipients []string
	for key, state := range t.pairs {
		if key.senderID == senderID {
			state.timer.Stop()
			delete(t.pairs, key)
			recipients = append(recipients, key.recipientID)
		}
	}
	t.mu.Unlock()

	for _, recipientID := range recipients {
		t.notify(senderID, recipientID, false)
	}
}

// Typing reports whether the pair is currently in the typing state.
func (t *TypingTracker) Typing(senderID, recipientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pairs[typingKey{senderID: senderID, recipientID: recipientID}]
	return ok
}

func (t *TypingTracker) expire(key typingKey) {
	t.mu.Lock()
	state, ok := t.pairs[key]
	// a refresh may have rearmed the timer after this expiry fired
	if ok && t.now().Before(state.expiresAt) {
		t.mu.Unlock()
		return
	}
	if ok {
		delete(t.pairs, key)
	}
	t.mu.Unlock()

	if ok {
		t.notify(key.senderID, key.recipientID, false)
	}
}
