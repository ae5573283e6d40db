package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typingCapture struct {
	mu    sync.Mutex
	calls []bool
}

func (c *typingCapture) notify(senderID, recipientID string, typing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, typing)
}

func (c *typingCapture) snapshot() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.calls...)
}

func TestTypingDebounce(t *testing.T) {
	capture := &typingCapture{}
	tracker := NewTypingTracker(capture.notify)

	// rapid refreshes within the window collapse into one notification
	tracker.StartTyping("alice", "bob")
	tracker.StartTyping("alice", "bob")
	tracker.StartTyping("alice", "bob")

	assert.Equal(t, []bool{true}, capture.snapshot())
	assert.True(t, tracker.Typing("alice", "bob"))
}

func TestTypingStop(t *testing.T) {
	capture := &typingCapture{}
	tracker := NewTypingTracker(capture.notify)

	tracker.StartTyping("alice", "bob")
	tracker.StopTyping("alice", "bob")
	// already idle, must not notify again
	tracker.StopTyping("alice", "bob")

	assert.Equal(t, []bool{true, false}, capture.snapshot())
	assert.False(t, tracker.Typing("alice", "bob"))
}

func TestTypingExpiry(t *testing.T) {
	capture := &typingCapture{}
	tracker := NewTypingTracker(capture.notify)
	tracker.timeout = 20 * time.Millisecond

	tracker.StartTyping("alice", "bob")
	require.True(t, tracker.Typing("alice", "bob"))

	require.Eventually(t, func() bool {
		return !tracker.Typing("alice", "bob")
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []bool{true, false}, capture.snapshot())
}

func TestTypingRefreshExtendsWindow(t *testing.T) {
	capture := &typingCapture{}
	tracker := NewTypingTracker(capture.notify)
	tracker.timeout = 50 * time.Millisecond

	tracker.StartTyping("alice", "bob")
	time.Sleep(30 * time.Millisecond)
	tracker.StartTyping("alice", "bob")
	time.Sleep(30 * time.Millisecond)

	// the refresh pushed expiry past the original deadline
	assert.True(t, tracker.Typing("alice", "bob"))
}

func TestTypingPairsAreIndependent(t *testing.T) {
	capture := &typingCapture{}
	tracker := NewTypingTracker(capture.notify)

	tracker.StartTyping("alice", "bob")
	tracker.StartTyping("alice", "carol")
	tracker.StopTyping("alice", "bob")

	assert.False(t, tracker.Typing("alice", "bob"))
	assert.True(t, tracker.Typing("alice", "carol"))
}

func TestTypingDropSender(t *testing.T) {
	capture := &typingCapture{}
	tracker := NewTypingTracker(capture.notify)

	tracker.StartTyping("alice", "bob")
	tracker.StartTyping("alice", "carol")
	tracker.DropSender("alice")

	assert.False(t, tracker.Typing("alice", "bob"))
	assert.False(t, tracker.Typing("alice", "carol"))
	assert.Equal(t, []bool{true, true, false, false}, capture.snapshot())
}
