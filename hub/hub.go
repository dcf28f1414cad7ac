// Package hub implements the remote-invocable endpoints of the gateway:
// vehicle tracking, dispatcher-driver chat and WebRTC signaling. Each
// hub owns one subscriber registry, so hubs never share state and two
// hub instances in one process stay independent.
package hub

import (
	"errors"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetmq/fleetmq/broadcast"
	"github.com/fleetmq/fleetmq/configuration"
	"github.com/fleetmq/fleetmq/fleet"
	"github.com/fleetmq/fleetmq/subscriber"
)

var (
	// ErrUnknownTarget invocation names no method on this hub
	ErrUnknownTarget = errors.New("hub: unknown invocation target")

	// ErrBadArguments invocation arguments cannot be decoded
	ErrBadArguments = errors.New("hub: invalid invocation arguments")
)

// Session one connected hub client. The subscriber is borrowed from the
// hub's registry; the transport drains its queue onto the wire
type Session struct {
	id  string
	sub *subscriber.Subscriber
}

// ID connection identity, generated at connect
func (s *Session) ID() string {
	return s.id
}

// Events outbound queue to drain
func (s *Session) Events() <-chan fleet.Event {
	return s.sub.Events()
}

// Done closed once the session is disconnected
func (s *Session) Done() <-chan struct{} {
	return s.sub.Done()
}

// Invocation wire envelope of a hub call
type Invocation struct {
	Target    string            `json:"target"`
	Arguments []json.RawMessage `json:"arguments"`
}

// Hub remote-invocable endpoint
type Hub interface {
	Name() string

	// Connect registers a new session and sends it the handshake event
	Connect() (*Session, error)

	// Disconnect tears the session down. Idempotent; concurrent
	// transport-close and explicit leave must not double-remove
	Disconnect(s *Session)

	// Invoke dispatches one client call. Errors are reported to the
	// calling session only, never broadcast
	Invoke(s *Session, inv Invocation) error
}

type base struct {
	name     string
	log      *zap.SugaredLogger
	registry *subscriber.Registry
	engine   *broadcast.Engine
}

func newBase(name string, registry *subscriber.Registry) base {
	return base{
		name:     name,
		log:      configuration.GetLogger().Named("hub").Named(name),
		registry: registry,
		engine:   broadcast.New(name, registry),
	}
}

func (b *base) connect() (*Session, error) {
	id := uuid.NewString()

	sub, err := b.registry.Register(id)
	if err != nil {
		return nil, err
	}

	b.log.Infow("client connected", "connection", id)

	return &Session{id: id, sub: sub}, nil
}

func (b *base) disconnect(s *Session) bool {
	if _, ok := b.registry.Get(s.id); !ok {
		return false
	}

	b.registry.Unregister(s.id)
	b.log.Infow("client disconnected", "connection", s.id)

	return true
}

// send enqueue an event for one session. Delivery is best-effort; a
// session racing its own disconnect just misses the event
func (b *base) send(s *Session, eventType string, payload interface{}) {
	ev, err := fleet.NewEvent(eventType, payload)
	if err != nil {
		b.log.Errorw("couldn't encode event", "event", eventType, "error", err)
		return
	}

	s.sub.Enqueue(ev)
}

// sendError error event to the calling session only
func (b *base) sendError(s *Session, message string) {
	b.send(s, "Error", message)
}

func (b *base) broadcast(eventType string, payload interface{}) {
	ev, err := fleet.NewEvent(eventType, payload)
	if err != nil {
		b.log.Errorw("couldn't encode event", "event", eventType, "error", err)
		return
	}

	b.engine.BroadcastToAll(ev)
}

func (b *base) broadcastGroup(group, eventType string, payload interface{}) {
	ev, err := fleet.NewEvent(eventType, payload)
	if err != nil {
		b.log.Errorw("couldn't encode event", "event", eventType, "error", err)
		return
	}

	b.engine.BroadcastToGroup(group, ev)
}

func (b *base) broadcastOthers(s *Session, eventType string, payload interface{}) {
	ev, err := fleet.NewEvent(eventType, payload)
	if err != nil {
		b.log.Errorw("couldn't encode event", "event", eventType, "error", err)
		return
	}

	b.engine.BroadcastExcept(s.id, ev)
}

func (b *base) sendTo(connectionID, eventType string, payload interface{}) error {
	ev, err := fleet.NewEvent(eventType, payload)
	if err != nil {
		b.log.Errorw("couldn't encode event", "event", eventType, "error", err)
		return err
	}

	return b.engine.SendTo(connectionID, ev)
}

// decodeArgs positional decode of invocation arguments
func decodeArgs(args []json.RawMessage, out ...interface{}) error {
	if len(args) < len(out) {
		return ErrBadArguments
	}

	for i, target := range out {
		if err := json.Unmarshal(args[i], target); err != nil {
			return ErrBadArguments
		}
	}

	return nil
}
