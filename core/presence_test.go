package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = Identity{UserID: "alice", DisplayName: "Alice", Role: RoleLawyer}
var bob = Identity{UserID: "bob", DisplayName: "Bob", Role: RoleApplicant}

func TestPresenceLifecycle(t *testing.T) {
	p := NewPresenceTracker()

	entry := p.MarkOnline(alice)
	assert.True(t, entry.Online())
	assert.Nil(t, entry.LastSeen)

	entry, ok := p.MarkOffline("alice")
	require.True(t, ok)
	assert.False(t, entry.Online())
	require.NotNil(t, entry.LastSeen)

	// the entry survives the disconnect so last seen stays renderable
	list := p.ListOnline()
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].UserID)
	assert.NotNil(t, list[0].LastSeen)
}

func TestMarkOfflineUnknownUser(t *testing.T) {
	p := NewPresenceTracker()
	_, ok := p.MarkOffline("ghost")
	assert.False(t, ok)
	assert.Empty(t, p.ListOnline())
}

func TestReconnectClearsLastSeen(t *testing.T) {
	p := NewPresenceTracker()
	p.MarkOnline(alice)
	p.MarkOffline("alice")

	entry := p.MarkOnline(alice)
	assert.Nil(t, entry.LastSeen)
}

func TestResourceViewers(t *testing.T) {
	p := NewPresenceTracker()

	p.ViewResource(alice, "app-1")
	p.ViewResource(bob, "app-1")

	viewers := p.Viewers("app-1", "alice")
	require.Len(t, viewers, 1)
	assert.Equal(t, "bob", viewers[0].UserID)

	assert.True(t, p.LeaveResource("bob", "app-1"))
	assert.False(t, p.LeaveResource("bob", "app-1"))
	assert.Empty(t, p.Viewers("app-1", "alice"))
}

func TestDropUser(t *testing.T) {
	p := NewPresenceTracker()
	p.MarkOnline(alice)
	p.ViewResource(alice, "app-1")
	p.ViewResource(alice, "app-2")
	p.ViewResource(bob, "app-1")

	entry, resources, ok := p.DropUser("alice")
	require.True(t, ok)
	assert.NotNil(t, entry.LastSeen)
	assert.ElementsMatch(t, []string{"app-1", "app-2"}, resources)

	// bob stays registered on the shared resource
	viewers := p.Viewers("app-1", "")
	require.Len(t, viewers, 1)
	assert.Equal(t, "bob", viewers[0].UserID)

	// dropping again is safe
	_, resources, ok = p.DropUser("alice")
	assert.Empty(t, resources)
	require.True(t, ok)
}

func TestDropUserStampsTime(t *testing.T) {
	p := NewPresenceTracker()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	p.MarkOnline(alice)
	entry, _, ok := p.DropUser("alice")
	require.True(t, ok)
	require.NotNil(t, entry.LastSeen)
	assert.Equal(t, fixed, *entry.LastSeen)
}
