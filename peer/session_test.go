package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow/relay/core"
)

type fakeTransport struct {
	mu             sync.Mutex
	added          []webrtc.ICECandidateInit
	local          []webrtc.SessionDescription
	remote         []webrtc.SessionDescription
	closed         bool
	onCandidate    func(webrtc.ICECandidateInit)
	onStateChange  func(webrtc.PeerConnectionState)
	createOfferErr error
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	if f.createOfferErr != nil {
		return webrtc.SessionDescription{}, f.createOfferErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakeTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.local = append(f.local, desc)
	return nil
}

func (f *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = append(f.remote, desc)
	return nil
}

func (f *fakeTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, candidate)
	return nil
}

func (f *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	f.onCandidate = fn
}

func (f *fakeTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.onStateChange = fn
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) addedCandidates() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), f.added...)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSignaler struct {
	mu         sync.Mutex
	offers     []webrtc.SessionDescription
	answers    []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
}

func (f *fakeSignaler) SendOffer(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, desc)
	return nil
}

func (f *fakeSignaler) SendAnswer(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, desc)
	return nil
}

func (f *fakeSignaler) SendCandidate(candidate webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func TestInitiatorFlow(t *testing.T) {
	transport := &fakeTransport{}
	sig := &fakeSignaler{}
	session := NewSession("room-1", transport, sig)

	require.Nil(t, session.HandlePeerJoined())
	assert.Equal(t, StateHaveOffer, session.State())
	require.Len(t, sig.offers, 1)
	require.Len(t, transport.local, 1)

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote-answer"}
	require.Nil(t, session.HandleAnswer(answer))
	assert.Equal(t, StateHaveAnswer, session.State())
	require.Len(t, transport.remote, 1)

	// connectivity is confirmed by the transport, not the answer
	transport.onStateChange(webrtc.PeerConnectionStateConnected)
	assert.Equal(t, StateConnected, session.State())
}

func TestResponderFlow(t *testing.T) {
	transport := &fakeTransport{}
	sig := &fakeSignaler{}
	session := NewSession("room-1", transport, sig)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}
	require.Nil(t, session.HandleOffer(offer))
	assert.Equal(t, StateHaveAnswer, session.State())
	require.Len(t, sig.answers, 1)
	require.Len(t, transport.remote, 1)
	require.Len(t, transport.local, 1)
}

func TestCandidateBuffering(t *testing.T) {
	transport := &fakeTransport{}
	sig := &fakeSignaler{}
	session := NewSession("room-1", transport, sig)

	// candidates race ahead of the offer and must be held back
	require.Nil(t, session.HandleCandidate(candidate("a")))
	require.Nil(t, session.HandleCandidate(candidate("b")))
	assert.Empty(t, transport.addedCandidates())

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote-offer"}
	require.Nil(t, session.HandleOffer(offer))

	added := transport.addedCandidates()
	require.Len(t, added, 2)
	assert.Equal(t, "a", added[0].Candidate)
	assert.Equal(t, "b", added[1].Candidate)

	// later candidates apply immediately and nothing replays
	require.Nil(t, session.HandleCandidate(candidate("c")))
	added = transport.addedCandidates()
	require.Len(t, added, 3)
	assert.Equal(t, "c", added[2].Candidate)
}

func TestAnswerBeforeOfferRejected(t *testing.T) {
	transport := &fakeTransport{}
	session := NewSession("room-1", transport, &fakeSignaler{})

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote-answer"}
	err := session.HandleAnswer(answer)
	require.NotNil(t, err)
	assert.Equal(t, StateNew, session.State())
}

func TestNegotiationTimeout(t *testing.T) {
	transport := &fakeTransport{}
	sig := &fakeSignaler{}

	var mu sync.Mutex
	var failure error
	session := NewSession("room-1", transport, sig,
		WithNegotiationWindow(20*time.Millisecond))
	session.OnFailed(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		failure = err
	})

	require.Nil(t, session.HandlePeerJoined())

	require.Eventually(t, func() bool {
		return session.State() == StateFailed
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, failure)
	assert.True(t, core.IsCode(failure, core.CodeSignalingTimeout))
	assert.True(t, transport.isClosed())
}

func TestConnectedStopsTimeoutClock(t *testing.T) {
	transport := &fakeTransport{}
	session := NewSession("room-1", transport, &fakeSignaler{},
		WithNegotiationWindow(30*time.Millisecond))

	require.Nil(t, session.HandlePeerJoined())
	transport.onStateChange(webrtc.PeerConnectionStateConnected)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateConnected, session.State())
}

func TestTransportFailureIsTerminal(t *testing.T) {
	transport := &fakeTransport{}
	session := NewSession("room-1", transport, &fakeSignaler{})

	require.Nil(t, session.HandlePeerJoined())
	transport.onStateChange(webrtc.PeerConnectionStateFailed)

	assert.Equal(t, StateFailed, session.State())
	assert.True(t, core.IsCode(session.Err(), core.CodeTransportFailure))

	// no renegotiation from a failed session
	err := session.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"})
	require.NotNil(t, err)
	assert.Equal(t, StateFailed, session.State())

	// and a late recovery signal cannot resurrect it
	transport.onStateChange(webrtc.PeerConnectionStateConnected)
	assert.Equal(t, StateFailed, session.State())
}

func TestPeerLeftClosesSession(t *testing.T) {
	transport := &fakeTransport{}
	session := NewSession("room-1", transport, &fakeSignaler{})

	var closed int
	session.OnClosed(func() { closed++ })

	session.HandlePeerLeft()
	assert.Equal(t, StateClosed, session.State())
	assert.True(t, transport.isClosed())
	assert.Equal(t, 1, closed)

	// idempotent
	session.Close()
	assert.Equal(t, 1, closed)
}

func TestLocalCandidatesStopAfterClose(t *testing.T) {
	transport := &fakeTransport{}
	sig := &fakeSignaler{}
	session := NewSession("room-1", transport, sig)

	transport.onCandidate(candidate("live"))
	session.Close()
	transport.onCandidate(candidate("late"))

	require.Len(t, sig.candidates, 1)
	assert.Equal(t, "live", sig.candidates[0].Candidate)
}
