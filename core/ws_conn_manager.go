package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnManager is the connection registry for one duplex-connection namespace.
// It authenticates upgrades, tracks every open connection per user and fans
// events out to them. A user may hold several connections at once (multiple
// tabs); user-level callbacks fire on the first open and last close only.
type ConnManager struct {
	conns   map[string][]*Conn
	mu      sync.RWMutex
	connWg  *sync.WaitGroup
	context context.Context
	logger  *slog.Logger
	secret  []byte

	onUserConnected    func(Identity)
	onUserDisconnected func(Identity)

	onConnectionOpened func(Identity, string)
	onConnectionClosed func(Identity, string)

	receivedEvent chan *Event

	upgrader        websocket.Upgrader
	ReadStreamSize  int
	WriteStreamSize int
}

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ManagerOption func(*ConnManager)

func WithCheckOrigin(f func(r *http.Request) bool) ManagerOption {
	return func(m *ConnManager) {
		m.upgrader.CheckOrigin = f
	}
}

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *ConnManager) {
		m.logger = l
	}
}

func NewConnManager(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, secret []byte, opts ...ManagerOption) *ConnManager {
	m := &ConnManager{
		connWg:             wg,
		conns:              make(map[string][]*Conn),
		logger:             logger,
		context:            ctx,
		secret:             secret,
		upgrader:           defaultUpgrader,
		ReadStreamSize:     100,
		WriteStreamSize:    100,
		onUserConnected:    func(Identity) {},
		onUserDisconnected: func(Identity) {},
		onConnectionOpened: func(Identity, string) {},
		onConnectionClosed: func(Identity, string) {},
	}

	for _, opt := range opts {
		opt(m)
	}

	m.receivedEvent = make(chan *Event, m.ReadStreamSize)

	return m
}

func (m *ConnManager) Receive() <-chan *Event {
	return m.receivedEvent
}

func (m *ConnManager) OnUserConnected(f func(Identity)) {
	m.onUserConnected = f
}

func (m *ConnManager) OnUserDisconnected(f func(Identity)) {
	m.onUserDisconnected = f
}

func (m *ConnManager) OnConnectionOpened(f func(Identity, string)) {
	m.onConnectionOpened = f
}

func (m *ConnManager) OnConnectionClosed(f func(Identity, string)) {
	m.onConnectionClosed = f
}

func (m *ConnManager) IsUserConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[userID]
	return ok
}

// IdentityOf returns the authenticated identity behind a connected user.
func (m *ConnManager) IdentityOf(userID string) (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns, ok := m.conns[userID]
	if !ok || len(conns) == 0 {
		return Identity{}, false
	}
	return conns[0].identity, true
}

func (m *ConnManager) ConnectedUsers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	return ids
}

// authenticate validates the bearer token presented at handshake. It runs
// before the upgrade so that a rejected connection never attaches handlers.
func (m *ConnManager) authenticate(r *http.Request) (Identity, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			token = auth[7:]
		}
	}
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	identity, err := VerifyToken(token, m.secret)
	if err != nil {
		return Identity{}, NewError(CodeAuthError, fmt.Sprintf("verify token: %v", err))
	}
	return identity, nil
}

// ServeHTTP upgrades an authenticated request to a websocket connection and
// registers it with the manager.
func (m *ConnManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := m.authenticate(r)
	if err != nil {
		m.logger.Info(fmt.Sprintf("handshake rejected: %v", err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error(fmt.Sprintf("upgrade: %v", err))
		return
	}

	m.register(identity, conn)
}

func (m *ConnManager) register(identity Identity, conn *websocket.Conn) {
	id := uuid.New().String()

	m.mu.Lock()
	conns := m.conns[identity.UserID]
	wsConn := &Conn{
		identity:    identity,
		id:          id,
		conn:        conn,
		context:     m.context,
		writeStream: make(chan *Event, m.WriteStreamSize),
		readStream:  m.receivedEvent,
		ticker:      time.NewTicker(pingPeriod),
		logger:      m.logger.With(slog.String("connection", fmt.Sprintf("%s:%s", identity.UserID, id[:8]))),
	}
	wsConn.notifyDisconnect = func() {
		m.disconnect(identity.UserID, id)
	}
	first := len(conns) == 0
	m.conns[identity.UserID] = append(conns, wsConn)
	m.mu.Unlock()

	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.readLoop()
	}()
	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.writeLoop()
	}()

	if first {
		m.onUserConnected(identity)
	}
	m.onConnectionOpened(identity, id)
}

// disconnect removes connections for a user. With no ids it removes them all.
// Removal happens under the lock before any callback fires, so racing
// triggers for the same connection collapse into a single cleanup.
func (m *ConnManager) disconnect(userID string, ids ...string) {
	m.mu.Lock()
	conns, ok := m.conns[userID]
	if !ok {
		m.mu.Unlock()
		return
	}

	var closed []*Conn
	if len(ids) == 0 {
		closed = conns
		delete(m.conns, userID)
	} else {
		for i := len(conns) - 1; i >= 0; i-- {
			if slices.Contains(ids, conns[i].id) {
				closed = append(closed, conns[i])
				conns = slices.Delete(conns, i, i+1)
			}
		}
		if len(conns) == 0 {
			delete(m.conns, userID)
		} else {
			m.conns[userID] = conns
		}
	}
	_, stillConnected := m.conns[userID]
	m.mu.Unlock()

	if len(closed) == 0 {
		return
	}

	var identity Identity
	for _, c := range closed {
		identity = c.identity
		c.close()
		m.onConnectionClosed(c.identity, c.id)
	}
	if !stillConnected {
		m.onUserDisconnected(identity)
	}
}

// DisconnectUser force-closes every connection a user holds.
func (m *ConnManager) DisconnectUser(userID string) {
	m.disconnect(userID)
}

// Send fans an event out to every connected user.
func (m *ConnManager) Send(event *Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conns := range m.conns {
		for _, c := range conns {
			m.sendOrDrop(c, event)
		}
	}
}

// SendToUsers delivers an event to every connection of the named users.
// Events queued to one connection drain in FIFO order.
func (m *ConnManager) SendToUsers(event *Event, userIDs ...string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range userIDs {
		for _, c := range m.conns[id] {
			m.sendOrDrop(c, event)
		}
	}
}

func (m *ConnManager) sendOrDrop(c *Conn, e *Event) {
	select {
	case c.writeStream <- e:
	default:
		c.logger.Error("write stream full, dropping event")
	}
}
