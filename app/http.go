package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/caseflow/relay/core"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityFromRequest returns the authenticated identity attached by the
// auth middleware. The zero value means the request skipped the middleware.
func IdentityFromRequest(r *http.Request) core.Identity {
	identity, _ := r.Context().Value(identityKey).(core.Identity)
	return identity
}

func (app *App) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		identity, err := core.VerifyToken(strings.TrimPrefix(auth, "Bearer "), []byte(app.config.Auth.Secret))
		if err != nil {
			app.logger.Info(fmt.Sprintf("rejected api request: %v", err))
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (app *App) apiRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(app.authMiddleware)

	r.Post("/rooms", app.createRoomHandler)
	r.Get("/rooms/{roomID}", app.getRoomHandler)
	r.Post("/rooms/{roomID}/end", app.endCallHandler)
	r.Get("/ice-servers", app.iceServersHandler)

	return r
}

type roomResponse struct {
	RoomID       string   `json:"roomId"`
	Participants []string `json:"participants"`
	CreatedAt    string   `json:"createdAt"`
	ExpiresAt    string   `json:"expiresAt"`
}

// createRoomHandler mints a room up front so a dashboard can embed the join
// link in an invitation before either party opens signaling.
func (app *App) createRoomHandler(w http.ResponseWriter, r *http.Request) {
	room, err := app.rooms.CreateRoom()
	if err != nil {
		app.logger.Error(fmt.Sprintf("CreateRoom: %v", err))
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	writeJSON(w, http.StatusCreated, roomResponse{
		RoomID:    room.ID,
		CreatedAt: room.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		ExpiresAt: room.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (app *App) getRoomHandler(w http.ResponseWriter, r *http.Request) {
	room, ok := app.rooms.Get(chi.URLParam(r, "roomID"))
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{
		RoomID:       room.ID,
		Participants: room.Participants,
		CreatedAt:    room.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		ExpiresAt:    room.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// endCallHandler destroys the room and kicks out anyone still in it.
// Only a room participant or an admin may end the call.
func (app *App) endCallHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	identity := IdentityFromRequest(r)

	room, ok := app.rooms.Get(roomID)
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if identity.Role != core.RoleAdmin && !contains(room.Participants, identity.UserID) {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	for _, userID := range app.rooms.Destroy(roomID) {
		app.videoRouter.EmitTo(core.EventCallFailed, core.SignalErrorPayload{
			RoomID: roomID,
			Code:   core.CodeNotFound,
			Reason: "call ended",
		}, userID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"roomId": roomID, "status": "ended"})
}

type iceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// iceServersHandler hands out the ICE server list call clients should use.
// TURN is included only when configured.
func (app *App) iceServersHandler(w http.ResponseWriter, r *http.Request) {
	servers := []iceServer{{URLs: app.config.Call.STUNURLs}}
	if app.config.Call.TURNURL != "" {
		servers = append(servers, iceServer{
			URLs:       []string{app.config.Call.TURNURL},
			Username:   app.config.Call.TURNUsername,
			Credential: app.config.Call.TURNCredential,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]iceServer{"iceServers": servers})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
