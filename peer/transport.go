// Package peer holds the client-side call machinery: the per-call session
// state machine, the abstract media transport it drives, and the bounded
// reconnect policy for the signaling connection.
package peer

import (
	"github.com/pion/webrtc/v4"
)

// Transport is the contract the session state machine needs from the
// underlying media layer: create and apply SDP descriptions, accept remote
// ICE candidates, surface local ones, and report connectivity. Anything
// implementing it is substitutable for the real WebRTC stack.
type Transport interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	Close() error
}

// Signaler carries locally produced negotiation artifacts to the other
// party, via the room coordinator.
type Signaler interface {
	SendOffer(webrtc.SessionDescription) error
	SendAnswer(webrtc.SessionDescription) error
	SendCandidate(webrtc.ICECandidateInit) error
}
