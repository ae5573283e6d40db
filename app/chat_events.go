package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/caseflow/relay/core"
)

// Client -> server events on the messaging namespace.
const (
	UserOnlineEvent          = "user_online"
	SendMessageEvent         = "send_message"
	MarkMessageReadEvent     = "mark_message_read"
	EditMessageEvent         = "message:edit"
	DeleteMessageEvent       = "message:delete"
	ClearConversationEvent   = "conversation:clear"
	HistoryEvent             = "conversation:history"
	UserTypingEvent          = "user_typing"
	UserStopTypingEvent      = "user_stop_typing"
	JoinApplicationEvent     = "join_application"
	LeaveApplicationEvent    = "leave_application"
	UpdateApplicationEvent   = "update_application"
)

// Server -> client events.
const (
	ConnectSuccessEvent      = "connect:success"
	OnlineUsersEvent         = "online_users"
	UserStatusChangedEvent   = "user_status_changed"
	NewMessageEvent          = "new_message"
	MessageSentEvent         = "message_sent"
	MessageReadEvent         = "message_read"
	MessageUpdatedEvent      = "message:updated"
	MessageDeletedEvent      = "message:deleted"
	ConversationClearedEvent = "conversation:cleared"
	MessageErrorEvent        = "message_error"
	PresenceUpdateEvent      = "presence_update"
	ApplicationRefetchEvent  = "application_refetch"
)

type UserOnlinePayload struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  core.Role `json:"role"`
}

type SendMessagePayload struct {
	RecipientID string `json:"recipientId" validate:"required"`
	Content     string `json:"content" validate:"required"`
}

type MarkMessageReadPayload struct {
	MessageID string `json:"messageId" validate:"required"`
}

type EditMessagePayload struct {
	ID      string `json:"id" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type DeleteMessagePayload struct {
	ID string `json:"id" validate:"required"`
}

type ConversationPayload struct {
	RecipientID string `json:"recipientId" validate:"required"`
}

type TypingPayload struct {
	RecipientID string `json:"recipientId" validate:"required"`
}

type TypingNotification struct {
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

type ApplicationPayload struct {
	ApplicationID string `json:"applicationId" validate:"required"`
}

type UserStatusChangedPayload struct {
	UserID   string     `json:"userId"`
	UserName string     `json:"userName"`
	Role     core.Role  `json:"role"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type PresenceUpdatePayload struct {
	UserID        string    `json:"userId"`
	UserName      string    `json:"userName"`
	Role          core.Role `json:"role"`
	ApplicationID string    `json:"applicationId"`
	Action        string    `json:"action"` // viewing | left
}

type MessageErrorPayload struct {
	Code    core.ErrorCode `json:"code"`
	Message string         `json:"message"`
}

type ConversationClearedPayload struct {
	UserID string `json:"userId"`
}

// decodePayload unmarshals and validates an event payload at the connection
// boundary. Malformed events never travel deeper into the system.
func decodePayload(e *core.Event, v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return core.NewError(core.CodeInvalidPayload, fmt.Sprintf("unmarshal %s: %v", e.Type, err))
	}
	if err := validate.Struct(v); err != nil {
		return core.NewError(core.CodeInvalidPayload, fmt.Sprintf("validate %s: %v", e.Type, err))
	}
	return nil
}

func (app *App) UserOnlineHandler(ctx context.Context, e *core.Event) error {
	var payload UserOnlinePayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	identity, ok := app.chatManager.IdentityOf(e.Dispatcher)
	if !ok {
		// connection already gone, nothing to announce
		return nil
	}

	entry := app.presence.MarkOnline(identity)
	app.broadcastStatus(entry, "online")

	// fresh snapshot to the announcer
	return app.chatRouter.EmitTo(OnlineUsersEvent, app.presence.ListOnline(), e.Dispatcher)
}

func (app *App) SendMessageHandler(ctx context.Context, e *core.Event) error {
	var payload SendMessagePayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	msg, err := app.relay.Send(ctx, e.Dispatcher, payload.RecipientID, payload.Content)
	if err != nil {
		app.chatRouter.EmitTo(MessageErrorEvent,
			MessageErrorPayload{Code: core.CodeOf(err), Message: "failed to send message"}, e.Dispatcher)
		return fmt.Errorf("Send: %w", err)
	}

	// best-effort delivery; the sender is acked either way
	app.chatRouter.EmitTo(NewMessageEvent, msg, payload.RecipientID)
	return app.chatRouter.EmitTo(MessageSentEvent, msg, e.Dispatcher)
}

func (app *App) MarkMessageReadHandler(ctx context.Context, e *core.Event) error {
	var payload MarkMessageReadPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	msg, changed, err := app.relay.MarkRead(ctx, payload.MessageID)
	if err != nil {
		return fmt.Errorf("MarkRead: %w", err)
	}
	if !changed {
		return nil
	}
	// receipt goes back to the original sender
	return app.chatRouter.EmitTo(MessageReadEvent,
		MarkMessageReadPayload{MessageID: msg.ID}, msg.SenderID)
}

func (app *App) EditMessageHandler(ctx context.Context, e *core.Event) error {
	var payload EditMessagePayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	msg, err := app.relay.Edit(ctx, e.Dispatcher, payload.ID, payload.Content)
	if err != nil {
		app.chatRouter.EmitTo(MessageErrorEvent,
			MessageErrorPayload{Code: core.CodeOf(err), Message: "failed to edit message"}, e.Dispatcher)
		return fmt.Errorf("Edit: %w", err)
	}

	return app.chatRouter.EmitTo(MessageUpdatedEvent, msg, msg.RecipientID, msg.SenderID)
}

func (app *App) DeleteMessageHandler(ctx context.Context, e *core.Event) error {
	var payload DeleteMessagePayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	msg, err := app.relay.Delete(ctx, e.Dispatcher, payload.ID)
	if err != nil {
		app.chatRouter.EmitTo(MessageErrorEvent,
			MessageErrorPayload{Code: core.CodeOf(err), Message: "failed to delete message"}, e.Dispatcher)
		return fmt.Errorf("Delete: %w", err)
	}

	return app.chatRouter.EmitTo(MessageDeletedEvent,
		DeleteMessagePayload{ID: msg.ID}, msg.RecipientID, msg.SenderID)
}

func (app *App) ClearConversationHandler(ctx context.Context, e *core.Event) error {
	var payload ConversationPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	if err := app.relay.ClearConversation(ctx, e.Dispatcher, payload.RecipientID); err != nil {
		return fmt.Errorf("ClearConversation: %w", err)
	}

	app.chatRouter.EmitTo(ConversationClearedEvent,
		ConversationClearedPayload{UserID: e.Dispatcher}, payload.RecipientID)
	return app.chatRouter.EmitTo(ConversationClearedEvent,
		ConversationClearedPayload{UserID: payload.RecipientID}, e.Dispatcher)
}

func (app *App) HistoryHandler(ctx context.Context, e *core.Event) error {
	var payload ConversationPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	msgs, err := app.relay.History(ctx, e.Dispatcher, payload.RecipientID)
	if err != nil {
		return fmt.Errorf("History: %w", err)
	}
	return app.chatRouter.EmitTo(HistoryEvent, msgs, e.Dispatcher)
}

func (app *App) UserTypingHandler(ctx context.Context, e *core.Event) error {
	var payload TypingPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}
	app.typing.StartTyping(e.Dispatcher, payload.RecipientID)
	return nil
}

func (app *App) UserStopTypingHandler(ctx context.Context, e *core.Event) error {
	var payload TypingPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}
	app.typing.StopTyping(e.Dispatcher, payload.RecipientID)
	return nil
}

func (app *App) JoinApplicationHandler(ctx context.Context, e *core.Event) error {
	var payload ApplicationPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	identity, ok := app.chatManager.IdentityOf(e.Dispatcher)
	if !ok {
		return nil
	}

	entry := app.presence.ViewResource(identity, payload.ApplicationID)
	others := app.presence.Viewers(payload.ApplicationID, e.Dispatcher)

	// tell existing viewers about the newcomer
	for _, viewer := range others {
		app.chatRouter.EmitTo(PresenceUpdateEvent, PresenceUpdatePayload{
			UserID:        entry.UserID,
			UserName:      entry.DisplayName,
			Role:          entry.Role,
			ApplicationID: payload.ApplicationID,
			Action:        "viewing",
		}, viewer.UserID)
	}
	// and the newcomer about existing viewers
	for _, viewer := range others {
		app.chatRouter.EmitTo(PresenceUpdateEvent, PresenceUpdatePayload{
			UserID:        viewer.UserID,
			UserName:      viewer.DisplayName,
			Role:          viewer.Role,
			ApplicationID: payload.ApplicationID,
			Action:        "viewing",
		}, e.Dispatcher)
	}
	return nil
}

func (app *App) LeaveApplicationHandler(ctx context.Context, e *core.Event) error {
	var payload ApplicationPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	if !app.presence.LeaveResource(e.Dispatcher, payload.ApplicationID) {
		return nil
	}
	app.notifyViewersLeft(e.Dispatcher, payload.ApplicationID)
	return nil
}

func (app *App) UpdateApplicationHandler(ctx context.Context, e *core.Event) error {
	var payload ApplicationPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	for _, viewer := range app.presence.Viewers(payload.ApplicationID, e.Dispatcher) {
		app.chatRouter.EmitTo(ApplicationRefetchEvent, payload, viewer.UserID)
	}
	return nil
}

func (app *App) broadcastStatus(entry core.PresenceEntry, status string) {
	payload := UserStatusChangedPayload{
		UserID:   entry.UserID,
		UserName: entry.DisplayName,
		Role:     entry.Role,
		Status:   status,
		LastSeen: entry.LastSeen,
	}
	for _, userID := range app.chatManager.ConnectedUsers() {
		if userID == entry.UserID {
			continue
		}
		app.chatRouter.EmitTo(UserStatusChangedEvent, payload, userID)
	}
}

func (app *App) notifyViewersLeft(userID, applicationID string) {
	identity, _ := app.chatManager.IdentityOf(userID)
	for _, viewer := range app.presence.Viewers(applicationID, userID) {
		app.chatRouter.EmitTo(PresenceUpdateEvent, PresenceUpdatePayload{
			UserID:        userID,
			UserName:      identity.DisplayName,
			Role:          identity.Role,
			ApplicationID: applicationID,
			Action:        "left",
		}, viewer.UserID)
	}
}
