package core

import (
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MessagingFixture struct {
	*BaseFixture
	store MessageStore
	relay *MessageRelay
}

func NewMessagingFixture(t *testing.T) *MessagingFixture {
	base := NewBaseFixture(t)
	store := NewSQLiteMessageStore(base.db)
	return &MessagingFixture{
		BaseFixture: base,
		store:       store,
		relay:       NewMessageRelay(store),
	}
}

func TestSendMessage(t *testing.T) {
	t.Run("assigns id and timestamp", func(t *testing.T) {
		f := NewMessagingFixture(t)
		defer f.tearDown()

		msg, err := f.relay.Send(f.ctx, "alice", "bob", "hello")
		require.Nil(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, "alice", msg.SenderID)
		assert.Equal(t, "bob", msg.RecipientID)
		assert.False(t, msg.SentAt.IsZero())
		assert.False(t, msg.IsRead)

		stored, err := f.store.Get(f.ctx, msg.ID)
		require.Nil(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, msg.Content, stored.Content)
	})

	t.Run("history preserves send order across both directions", func(t *testing.T) {
		f := NewMessagingFixture(t)
		defer f.tearDown()

		clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		f.relay.now = func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}

		first, err := f.relay.Send(f.ctx, "alice", "bob", "one")
		require.Nil(t, err)
		second, err := f.relay.Send(f.ctx, "bob", "alice", "two")
		require.Nil(t, err)
		third, err := f.relay.Send(f.ctx, "alice", "bob", "three")
		require.Nil(t, err)

		// unrelated pair must not leak in
		_, err = f.relay.Send(f.ctx, "alice", "carol", "other thread")
		require.Nil(t, err)

		history, err := f.relay.History(f.ctx, "alice", "bob")
		require.Nil(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, first.ID, history[0].ID)
		assert.Equal(t, second.ID, history[1].ID)
		assert.Equal(t, third.ID, history[2].ID)
	})
}

func TestEditMessage(t *testing.T) {
	t.Run("sender edits content", func(t *testing.T) {
		f := NewMessagingFixture(t)
		defer f.tearDown()

		msg, err := f.relay.Send(f.ctx, "alice", "bob", "helo")
		require.Nil(t, err)

		edited, err := f.relay.Edit(f.ctx, "alice", msg.ID, "hello")
		require.Nil(t, err)
		assert.Equal(t, "hello", edited.Content)
		require.NotNil(t, edited.EditedAt)

		stored, err := f.store.Get(f.ctx, msg.ID)
		require.Nil(t, err)
		assert.Equal(t, "hello", stored.Content)
	})

	t.Run("non-sender is rejected", func(t *testing.T) {
		f := NewMessagingFixture(t)
		defer f.tearDown()

		msg, err := f.relay.Send(f.ctx, "alice", "bob", "hello")
		require.Nil(t, err)

		_, err = f.relay.Edit(f.ctx, "bob", msg.ID, "tampered")
		require.NotNil(t, err)
		assert.True(t, IsCode(err, CodePermissionDenied))

		stored, err := f.store.Get(f.ctx, msg.ID)
		require.Nil(t, err)
		assert.Equal(t, "hello", stored.Content)
	})

	t.Run("unknown message", func(t *testing.T) {
		f := NewMessagingFixture(t)
		defer f.tearDown()

		_, err := f.relay.Edit(f.ctx, "alice", "missing", "x")
		assert.Equal(t, ErrMessageNotFound, err)
	})
}

func TestDeleteMessage(t *testing.T) {
	t.Run("sender deletes", func(t *testing.T) {
		f := NewMessagingFixture(t)
		defer f.tearDown()

		msg, err := f.relay.Send(f.ctx, "alice", "bob", "hello")
		require.Nil(t, err)

		deleted, err := f.relay.Delete(f.ctx, "alice", msg.ID)
		require.Nil(t, err)
		assert.Equal(t, msg.ID, deleted.ID)

		stored, err := f.store.Get(f.ctx, msg.ID)
		require.Nil(t, err)
		assert.Nil(t, stored)
	})

	t.Run("non-sender is rejected", func(t *testing.T) {
		f := NewMessagingFixture(t)
		defer f.tearDown()

		msg, err := f.relay.Send(f.ctx, "alice", "bob", "hello")
		require.Nil(t, err)

		_, err = f.relay.Delete(f.ctx, "bob", msg.ID)
		require.NotNil(t, err)
		assert.True(t, IsCode(err, CodePermissionDenied))
	})
}

func TestMarkRead(t *testing.T) {
	f := NewMessagingFixture(t)
	defer f.tearDown()

	msg, err := f.relay.Send(f.ctx, "alice", "bob", "hello")
	require.Nil(t, err)

	read, notified, err := f.relay.MarkRead(f.ctx, msg.ID)
	require.Nil(t, err)
	assert.True(t, notified)
	assert.True(t, read.IsRead)
	assert.Equal(t, "alice", read.SenderID)

	// second mark is a no-op, not an error
	_, notified, err = f.relay.MarkRead(f.ctx, msg.ID)
	require.Nil(t, err)
	assert.False(t, notified)
}

func TestClearConversation(t *testing.T) {
	f := NewMessagingFixture(t)
	defer f.tearDown()

	_, err := f.relay.Send(f.ctx, "alice", "bob", "one")
	require.Nil(t, err)
	_, err = f.relay.Send(f.ctx, "bob", "alice", "two")
	require.Nil(t, err)
	kept, err := f.relay.Send(f.ctx, "alice", "carol", "kept")
	require.Nil(t, err)

	require.Nil(t, f.relay.ClearConversation(f.ctx, "alice", "bob"))

	history, err := f.relay.History(f.ctx, "alice", "bob")
	require.Nil(t, err)
	assert.Empty(t, history)

	other, err := f.relay.History(f.ctx, "alice", "carol")
	require.Nil(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, kept.ID, other[0].ID)
}
