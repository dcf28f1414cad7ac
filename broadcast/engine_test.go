package broadcast

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetmq/fleetmq/fleet"
	"github.com/fleetmq/fleetmq/subscriber"
)

func newTestEngine() (*Engine, *subscriber.Registry) {
	r := subscriber.NewRegistry(subscriber.Config{
		Name:       "test",
		QueueDepth: 16,
	})

	return New("test", r), r
}

func drain(s *subscriber.Subscriber) []fleet.Event {
	var out []fleet.Event

	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishReachesEverySubscriberOnce(t *testing.T) {
	e, r := newTestEngine()

	var subs []*subscriber.Subscriber
	for i := 0; i < 5; i++ {
		s, err := r.Register("client-" + strconv.Itoa(i))
		require.NoError(t, err)
		subs = append(subs, s)
	}

	e.Publish(fleet.Event{Type: "alert"})

	for _, s := range subs {
		got := drain(s)
		require.Len(t, got, 1)
		require.Equal(t, "alert", got[0].Type)
	}
}

func TestUnregisteredGetsNothing(t *testing.T) {
	e, r := newTestEngine()

	stay, err := r.Register("stay")
	require.NoError(t, err)
	gone, err := r.Register("gone")
	require.NoError(t, err)

	r.Unregister("gone")

	e.Publish(fleet.Event{Type: "alert"})

	require.Len(t, drain(stay), 1)
	require.Empty(t, drain(gone))
}

func TestBroadcastToGroup(t *testing.T) {
	e, r := newTestEngine()

	in, err := r.Register("in")
	require.NoError(t, err)
	out, err := r.Register("out")
	require.NoError(t, err)

	in.Join("vehicle-7")

	e.BroadcastToGroup("vehicle-7", fleet.Event{Type: "LocationUpdated"})

	require.Len(t, drain(in), 1)
	require.Empty(t, drain(out))
}

func TestBroadcastExcept(t *testing.T) {
	e, r := newTestEngine()

	self, err := r.Register("self")
	require.NoError(t, err)
	other, err := r.Register("other")
	require.NoError(t, err)

	e.BroadcastExcept("self", fleet.Event{Type: "UserJoined"})

	require.Empty(t, drain(self))
	require.Len(t, drain(other), 1)
}

func TestSendTo(t *testing.T) {
	e, r := newTestEngine()

	target, err := r.Register("target")
	require.NoError(t, err)

	require.NoError(t, e.SendTo("target", fleet.Event{Type: "PrivateMessageReceived"}))
	require.Len(t, drain(target), 1)

	err = e.SendTo("nobody", fleet.Event{Type: "PrivateMessageReceived"})
	require.EqualError(t, err, ErrUnknownSubscriber.Error())
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	e, r := newTestEngine()

	slow, err := r.Register("slow")
	require.NoError(t, err)
	fast, err := r.Register("fast")
	require.NoError(t, err)

	// overflow the slow subscriber's queue, nobody ever drains it
	for i := 0; i < 100; i++ {
		e.Publish(fleet.Event{Type: strconv.Itoa(i)})
		drain(fast)
	}

	e.Publish(fleet.Event{Type: "final"})

	got := drain(fast)
	require.Len(t, got, 1)
	require.Equal(t, "final", got[0].Type)

	require.NotZero(t, slow.Dropped())
}

func TestPerSubscriberOrderPreserved(t *testing.T) {
	e, r := newTestEngine()

	s, err := r.Register("client")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		e.Publish(fleet.Event{Type: strconv.Itoa(i)})
	}

	got := drain(s)
	require.Len(t, got, 10)
	for i, ev := range got {
		require.Equal(t, strconv.Itoa(i), ev.Type)
	}
}
