package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Event is the closed wire envelope exchanged over a duplex connection.
// Payload stays raw until the handler for Type decodes it.
type Event struct {
	Dispatcher string          `json:"-"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Dispatcher: %s, Type: %s, Payload.Size: %d}", e.Dispatcher, e.Type, len(e.Payload))
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

// NewEvent marshals payload into a ready-to-send event.
func NewEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Type: t, Payload: b}, nil
}

type EventTransport interface {
	Send(event *Event)
	SendToUsers(event *Event, userIDs ...string)
	Receive() <-chan *Event
}

type EventHandler func(context.Context, *Event) error

// EventRouter consumes inbound events from a transport and dispatches them to
// the handler registered for their type. Events are handled one at a time on
// the router goroutine: ordering between two events from the same dispatcher
// is preserved all the way to the receiving connection's write stream.
type EventRouter struct {
	listeners map[string]EventHandler
	ctx       context.Context
	transport EventTransport
	logger    *slog.Logger
}

func NewEventRouter(ctx context.Context, logger *slog.Logger, transport EventTransport) *EventRouter {
	return &EventRouter{
		listeners: make(map[string]EventHandler),
		ctx:       ctx,
		transport: transport,
		logger:    logger,
	}
}

func (em *EventRouter) Listen(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-em.ctx.Done():
			return
		case e := <-em.transport.Receive():
			em.logger.Debug(fmt.Sprintf("received: %v", e))
			handler, ok := em.listeners[e.Type]
			if !ok {
				em.logger.Error(fmt.Sprintf("no handler for %q, dropping", e.Type))
				continue
			}
			if err := handler(em.ctx, e); err != nil {
				em.logger.Error(fmt.Sprintf("%s handler: %s", e.Type, err))
			}
		}
	}
}

func (em *EventRouter) On(eventType string, handler EventHandler) {
	if _, ok := em.listeners[eventType]; ok {
		panic(fmt.Sprintf("handler(%s): already exists", eventType))
	}
	em.listeners[eventType] = handler
}

// Emit sends an event to every connected party.
func (em *EventRouter) Emit(t string, payload interface{}) error {
	e, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	em.transport.Send(e)
	return nil
}

// EmitTo sends an event to the connections of the specified users only.
func (em *EventRouter) EmitTo(t string, payload interface{}, userIDs ...string) error {
	e, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	em.transport.SendToUsers(e, userIDs...)
	return nil
}
