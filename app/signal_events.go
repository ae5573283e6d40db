package relay

import (
	"context"
	"fmt"

	"github.com/caseflow/relay/core"
)

func (app *App) JoinRoomHandler(ctx context.Context, e *core.Event) error {
	var payload core.JoinRoomPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	result, err := app.rooms.Join(payload.RoomID, e.Dispatcher)
	if err != nil {
		app.signalError(e.Dispatcher, payload.RoomID, err, "join rejected")
		return fmt.Errorf("Join: %w", err)
	}

	if result.PeerID == "" {
		// alone in the room, nothing to announce yet
		return nil
	}

	// both sides learn who initiates; only the initiator produces an offer
	app.videoRouter.EmitTo(core.EventUserJoined, core.UserJoinedPayload{
		UserID:    e.Dispatcher,
		Initiator: result.Initiator,
	}, result.PeerID)
	return app.videoRouter.EmitTo(core.EventUserJoined, core.UserJoinedPayload{
		UserID:    result.PeerID,
		Initiator: result.Initiator,
	}, e.Dispatcher)
}

func (app *App) LeaveRoomHandler(ctx context.Context, e *core.Event) error {
	var payload core.JoinRoomPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	remaining, left := app.rooms.Leave(payload.RoomID, e.Dispatcher)
	if !left || remaining == "" {
		return nil
	}
	return app.videoRouter.EmitTo(core.EventUserLeft,
		core.UserLeftPayload{UserID: e.Dispatcher}, remaining)
}

func (app *App) OfferHandler(ctx context.Context, e *core.Event) error {
	return app.relaySDP(e, core.SignalOffer)
}

func (app *App) AnswerHandler(ctx context.Context, e *core.Event) error {
	return app.relaySDP(e, core.SignalAnswer)
}

// relaySDP forwards an SDP envelope to the other participant. The body is
// never decoded here, only membership and staleness are checked.
func (app *App) relaySDP(e *core.Event, kind core.SignalKind) error {
	var payload core.SDPPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	target, err := app.rooms.Relay(payload.RoomID, e.Dispatcher, kind)
	if err != nil {
		app.signalError(e.Dispatcher, payload.RoomID, err, fmt.Sprintf("%s rejected", kind))
		return fmt.Errorf("Relay %s: %w", kind, err)
	}

	payload.SenderID = e.Dispatcher
	payload.TargetID = target
	return app.videoRouter.EmitTo(e.Type, payload, target)
}

func (app *App) ICECandidateHandler(ctx context.Context, e *core.Event) error {
	var payload core.CandidatePayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	target, err := app.rooms.Relay(payload.RoomID, e.Dispatcher, core.SignalCandidate)
	if err != nil {
		app.signalError(e.Dispatcher, payload.RoomID, err, "candidate rejected")
		return fmt.Errorf("Relay candidate: %w", err)
	}

	payload.SenderID = e.Dispatcher
	return app.videoRouter.EmitTo(core.EventICECandidate, payload, target)
}

// CallFailedHandler propagates a failed peer session to the other
// participant and tears the room down. Messaging connections are untouched.
func (app *App) CallFailedHandler(ctx context.Context, e *core.Event) error {
	var payload core.SignalErrorPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	room, ok := app.rooms.Get(payload.RoomID)
	if !ok {
		return nil
	}
	other, hasOther := room.Other(e.Dispatcher)

	app.rooms.Destroy(payload.RoomID)
	if hasOther {
		return app.videoRouter.EmitTo(core.EventCallFailed, payload, other)
	}
	return nil
}

func (app *App) signalError(userID, roomID string, err error, reason string) {
	app.videoRouter.EmitTo(core.EventSignalError, core.SignalErrorPayload{
		RoomID: roomID,
		Code:   core.CodeOf(err),
		Reason: reason,
	}, userID)
}
