package core

import "encoding/json"

// Event names on the call-signaling namespace. Shared between the server
// handlers and the client-side session driver.
const (
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventUserJoined   = "user-joined"
	EventUserLeft     = "user-left"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"
	EventCallFailed   = "call-failed"
	EventSignalError  = "signal-error"
)

// Signaling wire payloads. SDP and candidate bodies stay raw: the
// coordinator relays them without interpretation, only the peer session on
// each end decodes them.

type JoinRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId"`
}

type UserJoinedPayload struct {
	UserID string `json:"userId"`
	// Initiator names the SDP offer initiator once both parties are present.
	Initiator string `json:"initiator,omitempty"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
}

type SDPPayload struct {
	RoomID   string          `json:"roomId" validate:"required"`
	SDP      json.RawMessage `json:"sdp" validate:"required"`
	SenderID string          `json:"senderId,omitempty"`
	TargetID string          `json:"targetId,omitempty"`
}

type CandidatePayload struct {
	RoomID    string          `json:"roomId" validate:"required"`
	Candidate json.RawMessage `json:"candidate" validate:"required"`
	SenderID  string          `json:"senderId,omitempty"`
}

type SignalErrorPayload struct {
	RoomID string    `json:"roomId"`
	Code   ErrorCode `json:"code"`
	Reason string    `json:"reason"`
}
