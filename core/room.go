package core

import (
	"sync"
	"time"

	"github.com/teris-io/shortid"
)

// DefaultRoomTTL matches the dashboard's consultation window: an unused or
// abandoned room is swept two hours after creation.
const DefaultRoomTTL = 2 * time.Hour

// Room is one call's signaling pairing. At most two participants; the
// participant present before the second join is the SDP offer initiator, so
// both sides can never produce simultaneous offers.
type Room struct {
	ID            string
	Participants  []string
	InitiatorID   string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	answerRelayed bool
}

func (r *Room) has(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Other returns the participant across from userID, if both are present.
func (r *Room) Other(userID string) (string, bool) {
	return r.other(userID)
}

func (r *Room) other(userID string) (string, bool) {
	for _, p := range r.Participants {
		if p != userID {
			return p, true
		}
	}
	return "", false
}

// JoinResult describes the room state right after a join.
type JoinResult struct {
	RoomID string
	// Initiator is set once both parties are present; it names the SDP
	// offer initiator (the first occupant).
	Initiator string
	// PeerID is the other participant, if any.
	PeerID string
}

// SignalKind tags a relayed signaling envelope.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "ice-candidate"
)

// RoomCoordinator owns the call-room table. It never interprets SDP or
// candidate bodies; it only enforces membership, the two-party cap, the
// single-initiator rule and offer/answer staleness.
type RoomCoordinator struct {
	mu    sync.Mutex
	rooms map[string]*Room
	// inRooms is the reverse index used for disconnect cleanup
	inRooms map[string]map[string]struct{}
	ttl     time.Duration
	now     func() time.Time
}

type RoomOption func(*RoomCoordinator)

// WithRoomTTL overrides how long rooms survive before the sweep may destroy
// them. Non-positive values keep the default.
func WithRoomTTL(ttl time.Duration) RoomOption {
	return func(c *RoomCoordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func NewRoomCoordinator(opts ...RoomOption) *RoomCoordinator {
	c := &RoomCoordinator{
		rooms:   make(map[string]*Room),
		inRooms: make(map[string]map[string]struct{}),
		ttl:     DefaultRoomTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRoom mints a room with a generated short id, so dashboards can hand
// out join links before either party connects to signaling.
func (c *RoomCoordinator) CreateRoom() (*Room, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	room := &Room{
		ID:        id,
		CreatedAt: c.now(),
		ExpiresAt: c.now().Add(c.ttl),
	}
	c.rooms[id] = room
	snapshot := *room
	return &snapshot, nil
}

// Join adds a user to a room, creating it on first join. A third party is
// rejected with ErrRoomFull and the participant set stays unchanged.
// Re-joining a room the user already occupies is a no-op.
func (c *RoomCoordinator) Join(roomID, userID string) (JoinResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms[roomID]
	if !ok {
		room = &Room{
			ID:        roomID,
			CreatedAt: c.now(),
			ExpiresAt: c.now().Add(c.ttl),
		}
		c.rooms[roomID] = room
	}

	result := JoinResult{RoomID: roomID}
	if room.has(userID) {
		result.Initiator = room.InitiatorID
		result.PeerID, _ = room.other(userID)
		return result, nil
	}

	if len(room.Participants) >= 2 {
		return JoinResult{}, ErrRoomFull
	}

	room.Participants = append(room.Participants, userID)
	if len(room.Participants) == 2 {
		// the first occupant initiates; the second join finalizes it
		room.InitiatorID = room.Participants[0]
		result.Initiator = room.InitiatorID
		result.PeerID, _ = room.other(userID)
	}

	if c.inRooms[userID] == nil {
		c.inRooms[userID] = make(map[string]struct{})
	}
	c.inRooms[userID][roomID] = struct{}{}

	return result, nil
}

// Relay resolves the target of a signaling envelope: the other participant.
// Once an answer has passed through, later offers are stale and rejected so
// a re-sent offer can never clobber an accepted negotiation.
func (c *RoomCoordinator) Relay(roomID, fromUserID string, kind SignalKind) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms[roomID]
	if !ok {
		return "", ErrRoomNotFound
	}
	if !room.has(fromUserID) {
		return "", ErrNotInRoom
	}

	if kind == SignalOffer && room.answerRelayed {
		return "", NewError(CodePermissionDenied, "offer after accepted answer")
	}
	if kind == SignalAnswer {
		room.answerRelayed = true
	}

	target, ok := room.other(fromUserID)
	if !ok {
		return "", ErrNotInRoom
	}
	return target, nil
}

// Leave removes a participant. It returns the remaining peer, if one is
// left behind, so it can be told to tear down its session. An empty room is
// destroyed.
func (c *RoomCoordinator) Leave(roomID, userID string) (remaining string, left bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaveLocked(roomID, userID)
}

func (c *RoomCoordinator) leaveLocked(roomID, userID string) (string, bool) {
	room, ok := c.rooms[roomID]
	if !ok || !room.has(userID) {
		return "", false
	}

	participants := room.Participants[:0]
	for _, p := range room.Participants {
		if p != userID {
			participants = append(participants, p)
		}
	}
	room.Participants = participants
	// the pairing is gone, so the next second join restarts negotiation
	room.InitiatorID = ""
	room.answerRelayed = false

	if set, ok := c.inRooms[userID]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(c.inRooms, userID)
		}
	}

	if len(room.Participants) == 0 {
		delete(c.rooms, roomID)
		return "", true
	}
	return room.Participants[0], true
}

// DropUser removes the user from every room they occupy and returns the
// peers that must be notified, keyed by room. Safe to invoke twice.
func (c *RoomCoordinator) DropUser(userID string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	notify := make(map[string]string)
	for roomID := range c.inRooms[userID] {
		if remaining, ok := c.leaveLocked(roomID, userID); ok && remaining != "" {
			notify[roomID] = remaining
		}
	}
	return notify
}

// Get returns a snapshot of a room.
func (c *RoomCoordinator) Get(roomID string) (Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	snapshot := *room
	snapshot.Participants = append([]string(nil), room.Participants...)
	return snapshot, true
}

// Destroy removes a room outright, e.g. when the host ends the call.
// It returns the participants that were still in it.
func (c *RoomCoordinator) Destroy(roomID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms[roomID]
	if !ok {
		return nil
	}
	for _, p := range room.Participants {
		if set, ok := c.inRooms[p]; ok {
			delete(set, roomID)
			if len(set) == 0 {
				delete(c.inRooms, p)
			}
		}
	}
	delete(c.rooms, roomID)
	return append([]string(nil), room.Participants...)
}

// SweepExpired destroys empty rooms past their TTL and returns how many
// were removed. Occupied rooms are left alone.
func (c *RoomCoordinator) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	now := c.now()
	for id, room := range c.rooms {
		if len(room.Participants) == 0 && now.After(room.ExpiresAt) {
			delete(c.rooms, id)
			n++
		}
	}
	return n
}
