package subscriber

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/fleetmq/fleetmq/configuration"
	"github.com/fleetmq/fleetmq/metrics"
)

// ErrSubscriberExists id collision on register. Callers supply freshly
// generated ids so this signals a caller bug rather than normal flow
var ErrSubscriberExists = errors.New("subscriber: id already registered")

// Config of the registry
type Config struct {
	// Name used to scope log entries, e.g. hub name
	Name string

	// QueueDepth bound of each subscriber queue
	QueueDepth int

	// Metrics optional client lifecycle accounting
	Metrics metrics.Clients
}

// Registry thread-safe mapping of subscriber identity to its outbound
// queue. One instance per fan-out domain (SSE stream, each hub), always
// injected, never process-global
type Registry struct {
	log     *zap.SugaredLogger
	depth   int
	metrics metrics.Clients

	lock sync.RWMutex
	subs map[string]*Subscriber
}

// NewRegistry allocate empty registry
func NewRegistry(config Config) *Registry {
	return &Registry{
		log:     configuration.GetLogger().Named("registry").Named(config.Name),
		depth:   config.QueueDepth,
		metrics: config.Metrics,
		subs:    make(map[string]*Subscriber),
	}
}

// Register create subscriber and its queue. Entry becomes visible to
// broadcasts atomically with this call
func (r *Registry) Register(id string) (*Subscriber, error) {
	r.lock.Lock()

	if _, ok := r.subs[id]; ok {
		r.lock.Unlock()
		return nil, ErrSubscriberExists
	}

	sub := newSubscriber(id, r.depth)
	r.subs[id] = sub
	count := len(r.subs)
	r.lock.Unlock()

	if r.metrics != nil {
		r.metrics.OnConnected()
	}

	r.log.Debugw("subscriber registered", "id", id, "count", count)

	return sub, nil
}

// Unregister remove subscriber and close its queue. Safe to call twice,
// the second call is a no-op. This models disconnect races
func (r *Registry) Unregister(id string) {
	r.lock.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	count := len(r.subs)
	r.lock.Unlock()

	if !ok {
		return
	}

	sub.clearGroups()
	sub.queue.close()

	if r.metrics != nil {
		r.metrics.OnDisconnected()
		if n := sub.Dropped(); n > 0 {
			r.metrics.OnDropped(n)
		}
	}

	r.log.Debugw("subscriber unregistered", "id", id, "count", count, "dropped", sub.Dropped())
}

// Get lookup a live subscriber
func (r *Registry) Get(id string) (*Subscriber, bool) {
	r.lock.RLock()
	sub, ok := r.subs[id]
	r.lock.RUnlock()

	return sub, ok
}

// Snapshot consistent point-in-time view for broadcast. The returned
// slice is a copy and survives concurrent register/unregister
func (r *Registry) Snapshot() []*Subscriber {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		list = append(list, sub)
	}

	return list
}

// GroupSnapshot subscribers that are members of group at call time
func (r *Registry) GroupSnapshot(group string) []*Subscriber {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var list []*Subscriber
	for _, sub := range r.subs {
		if sub.In(group) {
			list = append(list, sub)
		}
	}

	return list
}

// Count current number of subscribers, used for diagnostics
func (r *Registry) Count() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.subs)
}
