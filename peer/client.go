package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/caseflow/relay/core"
)

// DialFunc opens one websocket connection attempt. Swappable in tests.
type DialFunc func(ctx context.Context, rawURL string) (*websocket.Conn, error)

func defaultDial(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	return conn, err
}

// Client is the signaling-side counterpart of the server's room
// coordinator: it holds the call-scoped duplex connection, relays the local
// session's artifacts and feeds remote ones back into it.
type Client struct {
	userID string
	policy RetryPolicy
	dial   DialFunc
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	roomID  string
	session *Session

	done chan struct{}
}

type ClientOption func(*Client)

func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

func WithDialFunc(f DialFunc) ClientOption {
	return func(c *Client) {
		c.dial = f
	}
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// Dial connects to the signaling endpoint with bounded backoff. Once the
// policy's attempts are exhausted the connection is reported permanently
// down instead of being retried forever.
func Dial(ctx context.Context, rawURL, token, userID string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		userID: userID,
		policy: DefaultRetryPolicy,
		dial:   defaultDial,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; ; attempt++ {
		conn, err := c.dial(ctx, u.String())
		if err == nil {
			c.conn = conn
			go c.readLoop()
			return c, nil
		}
		lastErr = err
		c.logger.Info(fmt.Sprintf("signaling dial attempt %d failed: %v", attempt, err))

		if c.policy.Exhausted(attempt) {
			return nil, fmt.Errorf("%w: %v", ErrPermanentlyDown, lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.policy.Delay(attempt)):
		}
	}
}

// JoinRoom binds a session to the client and announces the join. The
// session's signaling output flows through this client from here on, and a
// session failure is reported to the coordinator so the peer learns of it.
func (c *Client) JoinRoom(roomID string, session *Session) error {
	c.mu.Lock()
	c.roomID = roomID
	c.session = session
	c.mu.Unlock()

	prev := session.onFailed
	session.OnFailed(func(err error) {
		if sendErr := c.send(core.EventCallFailed, core.SignalErrorPayload{
			RoomID: roomID,
			Code:   core.CodeOf(err),
			Reason: "peer session failed",
		}); sendErr != nil {
			c.logger.Error(fmt.Sprintf("report call failure: %v", sendErr))
		}
		prev(err)
	})

	return c.send(core.EventJoinRoom, core.JoinRoomPayload{RoomID: roomID, UserID: c.userID})
}

// LeaveRoom announces the leave and detaches the session.
func (c *Client) LeaveRoom() error {
	c.mu.Lock()
	roomID := c.roomID
	session := c.session
	c.roomID = ""
	c.session = nil
	c.mu.Unlock()

	if session != nil {
		session.Close()
	}
	if roomID == "" {
		return nil
	}
	return c.send(core.EventLeaveRoom, core.JoinRoomPayload{RoomID: roomID, UserID: c.userID})
}

// Close hangs up: the bound session is torn down and the connection closed.
func (c *Client) Close() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session != nil {
		session.Close()
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return c.conn.Close()
}

func (c *Client) SendOffer(desc webrtc.SessionDescription) error {
	return c.sendSDP(core.EventOffer, desc)
}

func (c *Client) SendAnswer(desc webrtc.SessionDescription) error {
	return c.sendSDP(core.EventAnswer, desc)
}

func (c *Client) SendCandidate(candidate webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	return c.send(core.EventICECandidate, core.CandidatePayload{RoomID: roomID, Candidate: raw})
}

func (c *Client) sendSDP(eventType string, desc webrtc.SessionDescription) error {
	raw, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("marshal sdp: %w", err)
	}
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	return c.send(eventType, core.SDPPayload{RoomID: roomID, SDP: raw})
}

func (c *Client) send(eventType string, payload interface{}) error {
	event, err := core.NewEvent(eventType, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return fmt.Errorf("NextWriter: %w", err)
	}
	if err := core.EncodeEvent(w, event); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (c *Client) readLoop() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, r, err := c.conn.NextReader()
		if err != nil {
			c.logger.Debug(fmt.Sprintf("signaling read: %v", err))
			return
		}
		var event core.Event
		if err := core.DecodeEvent(r, &event); err != nil {
			c.logger.Error(err.Error())
			continue
		}
		c.dispatch(&event)
	}
}

func (c *Client) dispatch(event *core.Event) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return
	}

	switch event.Type {
	case core.EventUserJoined:
		var payload core.UserJoinedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			c.logger.Error(fmt.Sprintf("unmarshal %s: %v", event.Type, err))
			return
		}
		// the designated initiator produces the offer
		if payload.Initiator == c.userID {
			if err := session.HandlePeerJoined(); err != nil {
				c.logger.Error(fmt.Sprintf("HandlePeerJoined: %v", err))
			}
		}
	case core.EventOffer:
		desc, err := decodeSDP(event.Payload)
		if err != nil {
			c.logger.Error(err.Error())
			return
		}
		if err := session.HandleOffer(desc); err != nil {
			c.logger.Error(fmt.Sprintf("HandleOffer: %v", err))
		}
	case core.EventAnswer:
		desc, err := decodeSDP(event.Payload)
		if err != nil {
			c.logger.Error(err.Error())
			return
		}
		if err := session.HandleAnswer(desc); err != nil {
			c.logger.Error(fmt.Sprintf("HandleAnswer: %v", err))
		}
	case core.EventICECandidate:
		var payload core.CandidatePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			c.logger.Error(fmt.Sprintf("unmarshal %s: %v", event.Type, err))
			return
		}
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(payload.Candidate, &candidate); err != nil {
			c.logger.Error(fmt.Sprintf("unmarshal candidate: %v", err))
			return
		}
		if err := session.HandleCandidate(candidate); err != nil {
			c.logger.Error(fmt.Sprintf("HandleCandidate: %v", err))
		}
	case core.EventUserLeft, core.EventCallFailed:
		session.HandlePeerLeft()
	case core.EventSignalError:
		var payload core.SignalErrorPayload
		if err := json.Unmarshal(event.Payload, &payload); err == nil {
			c.logger.Error(fmt.Sprintf("signaling error %s: %s", payload.Code, payload.Reason))
		}
		session.Close()
	}
}

func decodeSDP(raw json.RawMessage) (webrtc.SessionDescription, error) {
	var payload core.SDPPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("unmarshal sdp payload: %w", err)
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload.SDP, &desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("unmarshal sdp: %w", err)
	}
	return desc, nil
}
