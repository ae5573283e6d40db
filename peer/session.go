package peer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/caseflow/relay/core"
)

// State is the session's negotiation phase.
type State int

const (
	StateNew State = iota
	StateHaveOffer
	StateHaveAnswer
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveOffer:
		return "have-offer"
	case StateHaveAnswer:
		return "have-answer"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// DefaultNegotiationWindow bounds how long a session waits between starting
// negotiation and the transport reporting connectivity.
const DefaultNegotiationWindow = 30 * time.Second

// Session runs once per call participant. It owns the local and remote SDP
// state and the remote candidate buffer, consumes room coordinator events and
// drives the media transport.
//
// Candidates arriving before the remote description are buffered, never
// dropped, and applied exactly once in arrival order as soon as the remote
// description is set. A Failed transition is terminal: the caller must
// re-join the room to negotiate again with a fresh session.
type Session struct {
	roomID    string
	initiator bool
	transport Transport
	sig       Signaler
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	local    *webrtc.SessionDescription
	remote   *webrtc.SessionDescription
	pending  []webrtc.ICECandidateInit
	failure  error
	negTimer *time.Timer
	window   time.Duration

	onFailed func(error)
	onClosed func()
}

type SessionOption func(*Session)

func WithNegotiationWindow(d time.Duration) SessionOption {
	return func(s *Session) {
		s.window = d
	}
}

func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// OnFailed registers the callback invoked once when the session transitions
// to Failed, so the owner can tell the coordinator to tear the room down.
func (s *Session) OnFailed(f func(error)) {
	s.onFailed = f
}

func (s *Session) OnClosed(f func()) {
	s.onClosed = f
}

func NewSession(roomID string, transport Transport, sig Signaler, opts ...SessionOption) *Session {
	s := &Session{
		roomID:    roomID,
		transport: transport,
		sig:       sig,
		state:     StateNew,
		window:    DefaultNegotiationWindow,
		logger:    slog.Default(),
		onFailed:  func(error) {},
		onClosed:  func() {},
	}

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("room", roomID))

	transport.OnICECandidate(s.localCandidate)
	transport.OnConnectionStateChange(s.transportStateChanged)

	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal failure, if the session failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// HandlePeerJoined starts negotiation on the initiator side: generate the
// offer, set it locally and hand it to the coordinator for relay.
func (s *Session) HandlePeerJoined() error {
	s.mu.Lock()
	if s.state != StateNew {
		s.mu.Unlock()
		return fmt.Errorf("peer joined in state %s", s.state)
	}
	s.initiator = true

	offer, err := s.transport.CreateOffer()
	if err != nil {
		s.mu.Unlock()
		s.fail(fmt.Errorf("CreateOffer: %w", err))
		return err
	}
	if err := s.transport.SetLocalDescription(offer); err != nil {
		s.mu.Unlock()
		s.fail(fmt.Errorf("SetLocalDescription: %w", err))
		return err
	}
	s.local = &offer
	s.state = StateHaveOffer
	s.armNegotiationTimerLocked()
	s.mu.Unlock()

	s.logger.Debug("offer created, relaying")
	if err := s.sig.SendOffer(offer); err != nil {
		s.fail(fmt.Errorf("SendOffer: %w", err))
		return err
	}
	return nil
}

// HandleOffer runs on the non-initiator: apply the remote offer, drain any
// buffered candidates, answer and relay it back.
func (s *Session) HandleOffer(offer webrtc.SessionDescription) error {
	s.mu.Lock()
	if s.state != StateNew {
		s.mu.Unlock()
		return fmt.Errorf("offer in state %s", s.state)
	}

	if err := s.transport.SetRemoteDescription(offer); err != nil {
		s.mu.Unlock()
		s.fail(fmt.Errorf("SetRemoteDescription: %w", err))
		return err
	}
	s.remote = &offer
	if err := s.drainPendingLocked(); err != nil {
		s.mu.Unlock()
		s.fail(err)
		return err
	}

	answer, err := s.transport.CreateAnswer()
	if err != nil {
		s.mu.Unlock()
		s.fail(fmt.Errorf("CreateAnswer: %w", err))
		return err
	}
	if err := s.transport.SetLocalDescription(answer); err != nil {
		s.mu.Unlock()
		s.fail(fmt.Errorf("SetLocalDescription: %w", err))
		return err
	}
	s.local = &answer
	s.state = StateHaveAnswer
	s.armNegotiationTimerLocked()
	s.mu.Unlock()

	s.logger.Debug("answer created, relaying")
	if err := s.sig.SendAnswer(answer); err != nil {
		s.fail(fmt.Errorf("SendAnswer: %w", err))
		return err
	}
	return nil
}

// HandleAnswer runs on the initiator: apply the remote answer and drain
// buffered candidates. The session is connected pending the transport's
// confirmation.
func (s *Session) HandleAnswer(answer webrtc.SessionDescription) error {
	s.mu.Lock()
	if s.state != StateHaveOffer {
		s.mu.Unlock()
		return fmt.Errorf("answer in state %s", s.state)
	}

	if err := s.transport.SetRemoteDescription(answer); err != nil {
		s.mu.Unlock()
		s.fail(fmt.Errorf("SetRemoteDescription: %w", err))
		return err
	}
	s.remote = &answer
	if err := s.drainPendingLocked(); err != nil {
		s.mu.Unlock()
		s.fail(err)
		return err
	}
	s.state = StateHaveAnswer
	s.mu.Unlock()
	return nil
}

// HandleCandidate applies a remote candidate immediately when the remote
// description is set, otherwise buffers it in arrival order.
func (s *Session) HandleCandidate(candidate webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFailed || s.state == StateClosed {
		return nil
	}

	if s.remote == nil {
		s.pending = append(s.pending, candidate)
		return nil
	}
	if err := s.transport.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("AddICECandidate: %w", err)
	}
	return nil
}

// HandlePeerLeft tears the session down when the other party is gone.
func (s *Session) HandlePeerLeft() {
	s.Close()
}

// Close transitions to Closed, releases transport resources and stops every
// timer tied to the call. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.stopNegotiationTimerLocked()
	s.mu.Unlock()

	s.transport.Close()
	s.onClosed()
}

func (s *Session) drainPendingLocked() error {
	for _, candidate := range s.pending {
		if err := s.transport.AddICECandidate(candidate); err != nil {
			return fmt.Errorf("AddICECandidate(buffered): %w", err)
		}
	}
	s.pending = nil
	return nil
}

func (s *Session) localCandidate(candidate webrtc.ICECandidateInit) {
	s.mu.Lock()
	terminal := s.state == StateFailed || s.state == StateClosed
	s.mu.Unlock()
	if terminal {
		return
	}
	if err := s.sig.SendCandidate(candidate); err != nil {
		s.logger.Error(fmt.Sprintf("SendCandidate: %v", err))
	}
}

func (s *Session) transportStateChanged(state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.mu.Lock()
		if s.state == StateFailed || s.state == StateClosed {
			s.mu.Unlock()
			return
		}
		s.state = StateConnected
		s.stopNegotiationTimerLocked()
		s.mu.Unlock()
		s.logger.Info("transport connected")
	case webrtc.PeerConnectionStateFailed:
		s.fail(core.NewError(core.CodeTransportFailure, "transport reported failure"))
	}
}

// fail marks the session terminally failed. No automatic renegotiation.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state == StateFailed || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.failure = err
	s.stopNegotiationTimerLocked()
	s.mu.Unlock()

	s.logger.Error(fmt.Sprintf("session failed: %v", err))
	s.transport.Close()
	s.onFailed(err)
}

func (s *Session) armNegotiationTimerLocked() {
	if s.negTimer != nil {
		s.negTimer.Stop()
	}
	s.negTimer = time.AfterFunc(s.window, func() {
		s.fail(core.NewError(core.CodeSignalingTimeout, "negotiation window elapsed"))
	})
}

func (s *Session) stopNegotiationTimerLocked() {
	if s.negTimer != nil {
		s.negTimer.Stop()
		s.negTimer = nil
	}
}
