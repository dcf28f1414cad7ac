package hub

import (
	"time"

	"github.com/fleetmq/fleetmq/fleet"
	"github.com/fleetmq/fleetmq/metrics"
	"github.com/fleetmq/fleetmq/subscriber"
)

func vehicleGroup(vehicleID string) string {
	return "vehicle-" + vehicleID
}

func fleetGroup(fleetID string) string {
	return "fleet-" + fleetID
}

// Tracking real-time vehicle tracking hub. Location updates fan out to
// the vehicle's watchers and, in reduced form, to everyone
type Tracking struct {
	base

	subsMetric metrics.Subscriptions
}

// NewTracking allocate tracking hub over an injected registry
func NewTracking(registry *subscriber.Registry, subsMetric metrics.Subscriptions) *Tracking {
	return &Tracking{
		base:       newBase("tracking", registry),
		subsMetric: subsMetric,
	}
}

// Name implements Hub
func (h *Tracking) Name() string {
	return h.name
}

// Connect implements Hub
func (h *Tracking) Connect() (*Session, error) {
	s, err := h.connect()
	if err != nil {
		return nil, err
	}

	h.send(s, "Connected", map[string]string{"connectionId": s.id})

	return s, nil
}

// Disconnect implements Hub
func (h *Tracking) Disconnect(s *Session) {
	h.disconnect(s)
}

// Invoke implements Hub
func (h *Tracking) Invoke(s *Session, inv Invocation) error {
	switch inv.Target {
	case "SubscribeToVehicle":
		var vehicleID string
		if err := decodeArgs(inv.Arguments, &vehicleID); err != nil {
			return err
		}
		h.SubscribeToVehicle(s, vehicleID)
	case "UnsubscribeFromVehicle":
		var vehicleID string
		if err := decodeArgs(inv.Arguments, &vehicleID); err != nil {
			return err
		}
		h.UnsubscribeFromVehicle(s, vehicleID)
	case "SubscribeToFleet":
		var fleetID string
		if err := decodeArgs(inv.Arguments, &fleetID); err != nil {
			return err
		}
		h.SubscribeToFleet(s, fleetID)
	case "SendLocationUpdate":
		var vehicleID string
		var lat, lon, speed float64
		if err := decodeArgs(inv.Arguments, &vehicleID, &lat, &lon, &speed); err != nil {
			return err
		}
		h.SendLocationUpdate(s, vehicleID, lat, lon, speed)
	case "BroadcastAlert":
		var vehicleID, alertType, message string
		if err := decodeArgs(inv.Arguments, &vehicleID, &alertType, &message); err != nil {
			return err
		}
		h.BroadcastAlert(s, vehicleID, alertType, message)
	default:
		return ErrUnknownTarget
	}

	return nil
}

// SubscribeToVehicle join the vehicle's location update group
func (h *Tracking) SubscribeToVehicle(s *Session, vehicleID string) {
	s.sub.Join(vehicleGroup(vehicleID))

	if h.subsMetric != nil {
		h.subsMetric.OnSubscribe()
	}

	h.log.Infow("subscribed to vehicle", "connection", s.id, "vehicle", vehicleID)
}

// UnsubscribeFromVehicle leave the vehicle's group
func (h *Tracking) UnsubscribeFromVehicle(s *Session, vehicleID string) {
	s.sub.Leave(vehicleGroup(vehicleID))

	if h.subsMetric != nil {
		h.subsMetric.OnUnsubscribe()
	}

	h.log.Infow("unsubscribed from vehicle", "connection", s.id, "vehicle", vehicleID)
}

// SubscribeToFleet join a fleet-wide group
func (h *Tracking) SubscribeToFleet(s *Session, fleetID string) {
	s.sub.Join(fleetGroup(fleetID))

	if h.subsMetric != nil {
		h.subsMetric.OnSubscribe()
	}

	h.log.Infow("subscribed to fleet", "connection", s.id, "fleet", fleetID)
}

// SendLocationUpdate called by vehicle devices/simulators.
// LocationUpdated goes to the vehicle's watchers, VehicleMoved to all
func (h *Tracking) SendLocationUpdate(_ *Session, vehicleID string, latitude, longitude, speed float64) {
	update := fleet.LocationUpdate{
		VehicleID: vehicleID,
		Latitude:  latitude,
		Longitude: longitude,
		Speed:     speed,
		Timestamp: time.Now().UTC(),
	}

	h.broadcastGroup(vehicleGroup(vehicleID), "LocationUpdated", update)
	h.broadcast("VehicleMoved", update)

	h.log.Debugw("location update", "vehicle", vehicleID, "lat", latitude, "lon", longitude)
}

// PublishLocation feeds an externally sourced position report, such as a
// device publish arriving over MQTT, through the same fan-out path
func (h *Tracking) PublishLocation(update fleet.LocationUpdate) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}

	h.broadcastGroup(vehicleGroup(update.VehicleID), "LocationUpdated", update)
	h.broadcast("VehicleMoved", update)
}

// BroadcastAlert notify every connected client
func (h *Tracking) BroadcastAlert(_ *Session, vehicleID, alertType, message string) {
	alert := fleet.AlertNotification{
		VehicleID: vehicleID,
		AlertType: alertType,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}

	h.broadcast("AlertReceived", alert)
}
