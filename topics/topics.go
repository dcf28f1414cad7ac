// Package topics classifies inbound fleet telemetry publishes and
// dispatches them to typed handlers. It holds no subscriber state;
// fan-out belongs to the broadcast engine.
package topics

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/fleetmq/fleetmq/configuration"
)

// topic shape is fixed: fleet/{fleetId}/vehicle/{vehicleId}/{messageType}
const (
	topicSegments = 5
	segmentFleet  = "fleet"
	segmentVeh    = "vehicle"
)

// Fleet parsed topic coordinates
type Fleet struct {
	FleetID     string
	VehicleID   string
	MessageType string
}

// Parse match topic against the fixed 5-segment fleet shape.
// Any other shape yields no match
func Parse(topic string) (Fleet, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != topicSegments || parts[0] != segmentFleet || parts[2] != segmentVeh {
		return Fleet{}, false
	}

	if parts[1] == "" || parts[3] == "" || parts[4] == "" {
		return Fleet{}, false
	}

	return Fleet{
		FleetID:     parts[1],
		VehicleID:   parts[3],
		MessageType: parts[4],
	}, true
}

// LocationPayload GPS report carried by location publishes
type LocationPayload struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

// Config handlers for the fixed message type set. Nil handlers mean
// the corresponding publishes are logged and dropped
type Config struct {
	OnTelemetry func(f Fleet, payload []byte)
	OnLocation  func(f Fleet, location LocationPayload)
	OnAlert     func(f Fleet, payload []byte)
	OnStatus    func(f Fleet, payload []byte)
}

// Router dispatches classified publishes. Nothing here is fatal to the
// process; failures are scoped to the single message
type Router struct {
	log    *zap.SugaredLogger
	config Config
}

// NewRouter allocate router with given handlers
func NewRouter(config Config) *Router {
	return &Router{
		log:    configuration.GetLogger().Named("topics"),
		config: config,
	}
}

// Process parse topic and route payload. Returns false when the topic
// does not match the fleet shape
func (r *Router) Process(topic string, payload []byte) bool {
	f, ok := Parse(topic)
	if !ok {
		r.log.Debugw("topic does not match fleet shape", "topic", topic)
		return false
	}

	r.Route(f, payload)

	return true
}

// Route dispatch by message type, matched case-insensitively.
// Unknown types are logged and dropped
func (r *Router) Route(f Fleet, payload []byte) {
	switch strings.ToLower(f.MessageType) {
	case "telemetry":
		if r.config.OnTelemetry != nil {
			r.config.OnTelemetry(f, payload)
		}
		r.log.Infow("telemetry", "fleet", f.FleetID, "vehicle", f.VehicleID, "size", len(payload))
	case "location":
		r.routeLocation(f, payload)
	case "alert":
		if r.config.OnAlert != nil {
			r.config.OnAlert(f, payload)
		}
		r.log.Warnw("alert", "fleet", f.FleetID, "vehicle", f.VehicleID, "payload", string(payload))
	case "status":
		if r.config.OnStatus != nil {
			r.config.OnStatus(f, payload)
		}
		r.log.Infow("status", "fleet", f.FleetID, "vehicle", f.VehicleID, "payload", string(payload))
	default:
		r.log.Warnw("unknown message type", "type", f.MessageType, "fleet", f.FleetID, "vehicle", f.VehicleID)
	}
}

func (r *Router) routeLocation(f Fleet, payload []byte) {
	var location LocationPayload
	if err := json.Unmarshal(payload, &location); err != nil {
		r.log.Warnw("invalid location payload", "fleet", f.FleetID, "vehicle", f.VehicleID, "error", err)
		return
	}

	if r.config.OnLocation != nil {
		r.config.OnLocation(f, location)
	}

	r.log.Infow("location",
		"fleet", f.FleetID,
		"vehicle", f.VehicleID,
		"lat", location.Latitude,
		"lon", location.Longitude,
		"speed", location.Speed,
	)
}
