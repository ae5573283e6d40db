package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageRelay accepts directed messages between two identities and applies
// the sender-ownership rules for mutation. It does not deliver anything by
// itself: callers fan the returned state out to the relevant connections, on
// the single dispatcher goroutine, which keeps per-pair ordering intact.
type MessageRelay struct {
	store MessageStore
	now   func() time.Time
}

func NewMessageRelay(store MessageStore) *MessageRelay {
	return &MessageRelay{store: store, now: time.Now}
}

// Send assigns an id and timestamp and persists the message. The sender is
// acknowledged with the persisted message whether or not the recipient is
// connected.
func (r *MessageRelay) Send(ctx context.Context, senderID, recipientID, content string) (Message, error) {
	msg := Message{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		SentAt:      r.now(),
		IsRead:      false,
	}
	if err := r.store.Insert(ctx, msg); err != nil {
		return Message{}, fmt.Errorf("Insert: %w", err)
	}
	return msg, nil
}

// Edit mutates a message's content in place. Only the original sender may
// edit.
func (r *MessageRelay) Edit(ctx context.Context, callerID, messageID, content string) (Message, error) {
	msg, err := r.store.Get(ctx, messageID)
	if err != nil {
		return Message{}, fmt.Errorf("Get: %w", err)
	}
	if msg == nil {
		return Message{}, ErrMessageNotFound
	}
	if msg.SenderID != callerID {
		return Message{}, ErrPermissionDenied
	}

	editedAt := r.now()
	if err := r.store.UpdateContent(ctx, messageID, content, editedAt); err != nil {
		return Message{}, fmt.Errorf("UpdateContent: %w", err)
	}
	msg.Content = content
	msg.EditedAt = &editedAt
	return *msg, nil
}

// Delete removes a message. Only the original sender may delete.
func (r *MessageRelay) Delete(ctx context.Context, callerID, messageID string) (Message, error) {
	msg, err := r.store.Get(ctx, messageID)
	if err != nil {
		return Message{}, fmt.Errorf("Get: %w", err)
	}
	if msg == nil {
		return Message{}, ErrMessageNotFound
	}
	if msg.SenderID != callerID {
		return Message{}, ErrPermissionDenied
	}

	if err := r.store.Delete(ctx, messageID); err != nil {
		return Message{}, fmt.Errorf("Delete: %w", err)
	}
	return *msg, nil
}

// MarkRead flags a message read and returns it so the sender can be
// notified. Marking an already-read message is a no-op, not an error.
func (r *MessageRelay) MarkRead(ctx context.Context, messageID string) (Message, bool, error) {
	msg, err := r.store.Get(ctx, messageID)
	if err != nil {
		return Message{}, false, fmt.Errorf("Get: %w", err)
	}
	if msg == nil {
		return Message{}, false, ErrMessageNotFound
	}
	if msg.IsRead {
		return *msg, false, nil
	}

	if err := r.store.MarkRead(ctx, messageID); err != nil {
		return Message{}, false, fmt.Errorf("MarkRead: %w", err)
	}
	msg.IsRead = true
	return *msg, true, nil
}

// History returns the conversation between two users in send order.
func (r *MessageRelay) History(ctx context.Context, userA, userB string) ([]Message, error) {
	msgs, err := r.store.Conversation(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("Conversation: %w", err)
	}
	return msgs, nil
}

// ClearConversation wipes both directions of a thread.
func (r *MessageRelay) ClearConversation(ctx context.Context, userA, userB string) error {
	if err := r.store.DeleteConversation(ctx, userA, userB); err != nil {
		return fmt.Errorf("DeleteConversation: %w", err)
	}
	return nil
}
