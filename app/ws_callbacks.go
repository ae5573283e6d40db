package relay

import (
	"github.com/caseflow/relay/core"
)

// onChatUserConnect fires on a user's first open messaging connection.
func (app *App) onChatUserConnect(identity core.Identity) {
	entry := app.presence.MarkOnline(identity)
	app.broadcastStatus(entry, "online")
}

// onChatConnectionOpen fires for every opened connection, including extra
// tabs of an already-online user. Each one gets its own snapshot.
func (app *App) onChatConnectionOpen(identity core.Identity, connID string) {
	app.chatRouter.EmitTo(ConnectSuccessEvent,
		map[string]string{"userId": identity.UserID}, identity.UserID)
	app.chatRouter.EmitTo(OnlineUsersEvent, app.presence.ListOnline(), identity.UserID)
}

// onChatUserDisconnect fires once the user's last messaging connection is
// gone. Presence flips to offline with a last-seen stamp and every tracked
// viewing registration is withdrawn.
func (app *App) onChatUserDisconnect(identity core.Identity) {
	app.typing.DropSender(identity.UserID)

	entry, resources, ok := app.presence.DropUser(identity.UserID)
	if !ok {
		return
	}

	for _, resourceID := range resources {
		for _, viewer := range app.presence.Viewers(resourceID, identity.UserID) {
			app.chatRouter.EmitTo(PresenceUpdateEvent, PresenceUpdatePayload{
				UserID:        identity.UserID,
				UserName:      identity.DisplayName,
				Role:          identity.Role,
				ApplicationID: resourceID,
				Action:        "left",
			}, viewer.UserID)
		}
	}

	app.broadcastStatus(entry, "offline")
}

// onVideoUserDisconnect evicts the user from every call room they occupied
// and tells the abandoned peers to tear their sessions down.
func (app *App) onVideoUserDisconnect(identity core.Identity) {
	for _, peerID := range app.rooms.DropUser(identity.UserID) {
		app.videoRouter.EmitTo(core.EventUserLeft,
			core.UserLeftPayload{UserID: identity.UserID}, peerID)
	}
}
