package hub

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/fleetmq/fleetmq/fleet"
	"github.com/fleetmq/fleetmq/subscriber"
)

func newTestRegistry(name string) *subscriber.Registry {
	return subscriber.NewRegistry(subscriber.Config{
		Name:       name,
		QueueDepth: 64,
	})
}

func drainEvents(s *Session) []fleet.Event {
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

func eventTypes(events []fleet.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}

	return out
}

func rawArgs(t *testing.T, args ...interface{}) []json.RawMessage {
	t.Helper()

	out := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		data, err := json.Marshal(a)
		require.NoError(t, err)
		out = append(out, data)
	}

	return out
}

func TestTrackingConnectHandshake(t *testing.T) {
	h := NewTracking(newTestRegistry("tracking"), nil)

	s, err := h.Connect()
	require.NoError(t, err)
	require.NotEmpty(t, s.ID())

	events := drainEvents(s)
	require.Equal(t, []string{"Connected"}, eventTypes(events))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	require.Equal(t, s.ID(), payload["connectionId"])
}

func TestTrackingLocationFanOut(t *testing.T) {
	h := NewTracking(newTestRegistry("tracking"), nil)

	watcher, err := h.Connect()
	require.NoError(t, err)
	bystander, err := h.Connect()
	require.NoError(t, err)
	device, err := h.Connect()
	require.NoError(t, err)

	drainEvents(watcher)
	drainEvents(bystander)
	drainEvents(device)

	h.SubscribeToVehicle(watcher, "truck-12")

	h.SendLocationUpdate(device, "truck-12", 59.3293, 18.0686, 43.5)

	// watcher gets the full update plus the coarse broadcast
	got := drainEvents(watcher)
	require.ElementsMatch(t, []string{"LocationUpdated", "VehicleMoved"}, eventTypes(got))

	for _, ev := range got {
		var update fleet.LocationUpdate
		require.NoError(t, json.Unmarshal(ev.Data, &update))
		require.Equal(t, "truck-12", update.VehicleID)
		require.InDelta(t, 59.3293, update.Latitude, 1e-9)
		require.False(t, update.Timestamp.IsZero())
	}

	// bystander only sees the coarse broadcast
	require.Equal(t, []string{"VehicleMoved"}, eventTypes(drainEvents(bystander)))
}

func TestTrackingUnsubscribeStopsUpdates(t *testing.T) {
	h := NewTracking(newTestRegistry("tracking"), nil)

	s, err := h.Connect()
	require.NoError(t, err)
	device, err := h.Connect()
	require.NoError(t, err)

	drainEvents(s)
	drainEvents(device)

	h.SubscribeToVehicle(s, "truck-12")
	h.UnsubscribeFromVehicle(s, "truck-12")

	h.SendLocationUpdate(device, "truck-12", 1, 2, 3)

	require.Equal(t, []string{"VehicleMoved"}, eventTypes(drainEvents(s)))
}

func TestTrackingBroadcastAlert(t *testing.T) {
	h := NewTracking(newTestRegistry("tracking"), nil)

	a, err := h.Connect()
	require.NoError(t, err)
	b, err := h.Connect()
	require.NoError(t, err)

	drainEvents(a)
	drainEvents(b)

	h.BroadcastAlert(a, "truck-12", "Speeding", "overspeed on E4")

	for _, s := range []*Session{a, b} {
		got := drainEvents(s)
		require.Equal(t, []string{"AlertReceived"}, eventTypes(got))

		var alert fleet.AlertNotification
		require.NoError(t, json.Unmarshal(got[0].Data, &alert))
		require.Equal(t, "truck-12", alert.VehicleID)
		require.Equal(t, "Speeding", alert.AlertType)
	}
}

func TestTrackingInvokeDispatch(t *testing.T) {
	h := NewTracking(newTestRegistry("tracking"), nil)

	watcher, err := h.Connect()
	require.NoError(t, err)
	device, err := h.Connect()
	require.NoError(t, err)

	drainEvents(watcher)
	drainEvents(device)

	require.NoError(t, h.Invoke(watcher, Invocation{
		Target:    "SubscribeToVehicle",
		Arguments: rawArgs(t, "truck-12"),
	}))

	require.NoError(t, h.Invoke(device, Invocation{
		Target:    "SendLocationUpdate",
		Arguments: rawArgs(t, "truck-12", 1.0, 2.0, 3.0),
	}))

	require.ElementsMatch(t, []string{"LocationUpdated", "VehicleMoved"}, eventTypes(drainEvents(watcher)))
}

func TestTrackingInvokeErrors(t *testing.T) {
	h := NewTracking(newTestRegistry("tracking"), nil)

	s, err := h.Connect()
	require.NoError(t, err)

	err = h.Invoke(s, Invocation{Target: "NoSuchMethod"})
	require.EqualError(t, err, ErrUnknownTarget.Error())

	err = h.Invoke(s, Invocation{
		Target:    "SubscribeToVehicle",
		Arguments: nil,
	})
	require.EqualError(t, err, ErrBadArguments.Error())

	err = h.Invoke(s, Invocation{
		Target:    "SendLocationUpdate",
		Arguments: rawArgs(t, "truck-12", "not-a-number", 2.0, 3.0),
	})
	require.EqualError(t, err, ErrBadArguments.Error())
}

func TestTrackingDisconnectIdempotent(t *testing.T) {
	registry := newTestRegistry("tracking")
	h := NewTracking(registry, nil)

	s, err := h.Connect()
	require.NoError(t, err)
	require.Equal(t, 1, registry.Count())

	h.Disconnect(s)
	h.Disconnect(s)

	require.Equal(t, 0, registry.Count())
}
