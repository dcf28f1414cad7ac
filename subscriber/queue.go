package subscriber

import (
	"sync"
	"sync/atomic"

	"github.com/fleetmq/fleetmq/fleet"
)

// minQueueDepth smallest bound an outbound queue may have
const minQueueDepth = 16

// queue is the bounded outbound FIFO of a subscriber. A full queue
// sheds its oldest entry so recent telemetry always gets through.
// Closing never closes the events channel, so a publisher racing a
// disconnect observes a refused push instead of a panic
type queue struct {
	events  chan fleet.Event
	done    chan struct{}
	once    sync.Once
	dropped uint64
}

func newQueue(depth int) *queue {
	if depth < minQueueDepth {
		depth = minQueueDepth
	}

	return &queue{
		events: make(chan fleet.Event, depth),
		done:   make(chan struct{}),
	}
}

// push enqueue without ever blocking the caller.
// Returns false once the queue is closed
func (q *queue) push(ev fleet.Event) bool {
	for {
		// done wins over a ready send, a select would pick either at random
		select {
		case <-q.done:
			return false
		default:
		}

		select {
		case q.events <- ev:
			return true
		default:
		}

		// queue full. Drop the oldest entry and retry
		select {
		case <-q.events:
			atomic.AddUint64(&q.dropped, 1)
		default:
		}
	}
}

func (q *queue) close() {
	q.once.Do(func() {
		close(q.done)
	})
}

func (q *queue) droppedCount() uint64 {
	return atomic.LoadUint64(&q.dropped)
}
