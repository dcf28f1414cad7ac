package broadcast

import (
	"errors"

	"go.uber.org/zap"

	"github.com/fleetmq/fleetmq/configuration"
	"github.com/fleetmq/fleetmq/fleet"
	"github.com/fleetmq/fleetmq/subscriber"
)

// ErrUnknownSubscriber point-to-point target is not registered
var ErrUnknownSubscriber = errors.New("broadcast: unknown subscriber")

// Engine fans events out over a registry. Every delivery attempt is an
// independent non-blocking enqueue, so one stalled subscriber never
// delays the rest. Events reach each subscriber in publish order; no
// order is guaranteed across subscribers
type Engine struct {
	log      *zap.SugaredLogger
	registry *subscriber.Registry
}

// New engine over the given registry
func New(name string, registry *subscriber.Registry) *Engine {
	return &Engine{
		log:      configuration.GetLogger().Named("broadcast").Named(name),
		registry: registry,
	}
}

// Publish deliver event to every registered subscriber
func (e *Engine) Publish(ev fleet.Event) {
	e.deliver(e.registry.Snapshot(), "", ev)
}

// BroadcastToAll alias of Publish kept for call-site readability
func (e *Engine) BroadcastToAll(ev fleet.Event) {
	e.Publish(ev)
}

// BroadcastToGroup deliver only to subscribers that are members of group
func (e *Engine) BroadcastToGroup(group string, ev fleet.Event) {
	e.deliver(e.registry.GroupSnapshot(group), "", ev)
}

// BroadcastExcept deliver to everyone but the named subscriber.
// Used for joined/left notifications where the subject must not
// hear about itself
func (e *Engine) BroadcastExcept(exceptID string, ev fleet.Event) {
	e.deliver(e.registry.Snapshot(), exceptID, ev)
}

// SendTo point-to-point delivery. An unknown target is reported to the
// caller only; a target that vanishes between lookup and enqueue is
// tolerated as best-effort
func (e *Engine) SendTo(id string, ev fleet.Event) error {
	sub, ok := e.registry.Get(id)
	if !ok {
		return ErrUnknownSubscriber
	}

	if !sub.Enqueue(ev) {
		e.log.Debugw("subscriber gone before delivery", "id", id, "event", ev.Type)
	}

	return nil
}

func (e *Engine) deliver(subs []*subscriber.Subscriber, exceptID string, ev fleet.Event) {
	for _, sub := range subs {
		if exceptID != "" && sub.ID() == exceptID {
			continue
		}

		if !sub.Enqueue(ev) {
			// unregistered mid-broadcast, failure domain is this
			// subscriber alone
			e.log.Debugw("subscriber gone before delivery", "id", sub.ID(), "event", ev.Type)
		}
	}
}
