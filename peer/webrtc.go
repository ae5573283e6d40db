package peer

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/caseflow/relay/core"
)

// MediaSource acquires the local media tracks offered on a call. The camera
// or microphone being unavailable is surfaced as a media access failure,
// which is terminal for the call.
type MediaSource interface {
	Tracks() ([]webrtc.TrackLocal, error)
}

// WebRTCTransport implements Transport on a pion PeerConnection.
type WebRTCTransport struct {
	pc *webrtc.PeerConnection
}

func NewWebRTCTransport(iceServers []webrtc.ICEServer, media MediaSource) (*WebRTCTransport, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers,
	})
	if err != nil {
		return nil, fmt.Errorf("NewPeerConnection: %w", err)
	}

	if media != nil {
		tracks, err := media.Tracks()
		if err != nil {
			pc.Close()
			return nil, core.NewError(core.CodeMediaAccess, fmt.Sprintf("acquire local media: %v", err))
		}
		for _, track := range tracks {
			if _, err := pc.AddTrack(track); err != nil {
				pc.Close()
				return nil, fmt.Errorf("AddTrack: %w", err)
			}
		}
	} else {
		// receive-only call: still negotiate both media sections
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
			pc.Close()
			return nil, fmt.Errorf("AddTransceiverFromKind(audio): %w", err)
		}
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo); err != nil {
			pc.Close()
			return nil, fmt.Errorf("AddTransceiverFromKind(video): %w", err)
		}
	}

	return &WebRTCTransport{pc: pc}, nil
}

func (t *WebRTCTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *WebRTCTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *WebRTCTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(desc)
}

func (t *WebRTCTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *WebRTCTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

func (t *WebRTCTransport) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if candidate == nil {
			return
		}
		f(candidate.ToJSON())
	})
}

func (t *WebRTCTransport) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(f)
}

func (t *WebRTCTransport) Close() error {
	return t.pc.Close()
}
