package subscriber

import (
	"sync"

	"github.com/fleetmq/fleetmq/fleet"
)

// Subscriber is a connected client registered to receive broadcast
// events. It is owned by the registry; connection handlers hold a
// borrowed reference for draining the queue
type Subscriber struct {
	id    string
	queue *queue

	lock   sync.RWMutex
	groups map[string]struct{}
}

func newSubscriber(id string, depth int) *Subscriber {
	return &Subscriber{
		id:     id,
		queue:  newQueue(depth),
		groups: make(map[string]struct{}),
	}
}

// ID identity the subscriber registered with
func (s *Subscriber) ID() string {
	return s.id
}

// Events outbound queue to drain from the connection writer
func (s *Subscriber) Events() <-chan fleet.Event {
	return s.queue.events
}

// Done closed when the subscriber is unregistered
func (s *Subscriber) Done() <-chan struct{} {
	return s.queue.done
}

// Enqueue non-blocking delivery attempt, used by the broadcast engine.
// False means the subscriber is gone
func (s *Subscriber) Enqueue(ev fleet.Event) bool {
	return s.queue.push(ev)
}

// Dropped number of events shed due to queue overflow
func (s *Subscriber) Dropped() uint64 {
	return s.queue.droppedCount()
}

// Join add the subscriber to a named group
func (s *Subscriber) Join(group string) {
	s.lock.Lock()
	s.groups[group] = struct{}{}
	s.lock.Unlock()
}

// Leave remove the subscriber from a named group. No-op if absent
func (s *Subscriber) Leave(group string) {
	s.lock.Lock()
	delete(s.groups, group)
	s.lock.Unlock()
}

// In reports group membership
func (s *Subscriber) In(group string) bool {
	s.lock.RLock()
	_, ok := s.groups[group]
	s.lock.RUnlock()

	return ok
}

// Groups point-in-time list of memberships
func (s *Subscriber) Groups() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	list := make([]string, 0, len(s.groups))
	for g := range s.groups {
		list = append(list, g)
	}

	return list
}

func (s *Subscriber) clearGroups() {
	s.lock.Lock()
	s.groups = make(map[string]struct{})
	s.lock.Unlock()
}
