// Package fleetmq assembles the fleet gateway: MQTT ingestion listeners,
// the topic router, WebSocket hubs and the SSE alert stream.
package fleetmq

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/VolantMQ/vlapi/mqttp"
	json "github.com/goccy/go-json"
	"github.com/troian/healthcheck"
	"go.uber.org/zap"

	"github.com/fleetmq/fleetmq/configuration"
	"github.com/fleetmq/fleetmq/fleet"
	"github.com/fleetmq/fleetmq/hub"
	"github.com/fleetmq/fleetmq/metrics"
	"github.com/fleetmq/fleetmq/stream"
	"github.com/fleetmq/fleetmq/subscriber"
	"github.com/fleetmq/fleetmq/topics"
	"github.com/fleetmq/fleetmq/transport"
)

var (
	// ErrTransportAlreadyExists a listener on this port is already serving
	ErrTransportAlreadyExists = errors.New("transport already exists")

	// ErrInvalidListenerConfig listener config type is not recognized
	ErrInvalidListenerConfig = errors.New("invalid listener config")
)

// Config configuration of the gateway server
type Config struct {
	Broker configuration.BrokerConfig

	// TransportStatus user provided callback to track transport status
	// If not set than defaults to mock function
	TransportStatus func(id string, status string)

	Health healthcheck.Checks

	Metrics metrics.IFace

	// AllowedVersions what protocol version MQTT listeners will handle
	// If not set than defaults to 0x3 and 0x04
	AllowedVersions map[mqttp.ProtocolVersion]bool
}

// Server gateway API
type Server interface {
	// ListenAndServe starts an MQTT listener from the provided transport
	// config. Non blocking; listener status is reported over the
	// TransportStatus callback
	ListenAndServe(interface{}) error

	// Handler routes of the HTTP side: SSE stream, hub endpoints, stats
	Handler() http.Handler

	// Alerts access to the alert store
	Alerts() *fleet.AlertStore

	// Shutdown closes listeners and drains client connections
	Shutdown() error
}

type server struct {
	Config

	log    *zap.SugaredLogger
	mux    *http.ServeMux
	router *topics.Router
	alerts *fleet.AlertStore
	sse    *stream.AlertStreamer

	tracking  *hub.Tracking
	chat      *hub.Chat
	signaling *hub.Signaling

	quit    chan struct{}
	lock    sync.Mutex
	onClose sync.Once

	transports struct {
		list map[string]transport.Provider
		wg   sync.WaitGroup
	}
}

// NewServer allocate server object
func NewServer(config Config) (Server, error) {
	s := &server{
		Config: config,
	}

	s.log = configuration.GetLogger().Named("server")
	s.quit = make(chan struct{})
	s.transports.list = make(map[string]transport.Provider)

	if s.TransportStatus == nil {
		s.TransportStatus = func(id string, status string) {}
	}

	if s.Metrics == nil {
		s.Metrics = metrics.New()
	}

	if s.Broker.QueueDepth <= 0 {
		s.Broker.QueueDepth = 256
	}

	s.alerts = fleet.NewAlertStore()

	// each consumer surface owns its registry, they never share state
	sseRegistry := subscriber.NewRegistry(subscriber.Config{
		Name:       "sse",
		QueueDepth: s.Broker.QueueDepth,
		Metrics:    s.Metrics.Clients(),
	})

	s.sse = stream.NewAlertStreamer(sseRegistry, s.alerts)

	s.tracking = hub.NewTracking(s.newRegistry("tracking"), s.Metrics.Subs())
	s.chat = hub.NewChat(s.newRegistry("chat"))
	s.signaling = hub.NewSignaling(s.newRegistry("signaling"))

	s.router = topics.NewRouter(topics.Config{
		OnLocation: s.onVehicleLocation,
		OnAlert:    s.onVehicleAlert,
	})

	s.mux = http.NewServeMux()
	s.sse.Mount(s.mux)
	s.mux.Handle("/hubs/tracking", hub.NewHandler(s.tracking))
	s.mux.Handle("/hubs/chat", hub.NewHandler(s.chat))
	s.mux.Handle("/hubs/signaling", hub.NewHandler(s.signaling))
	s.mux.HandleFunc("/stats", s.serveStats)

	return s, nil
}

func (s *server) newRegistry(name string) *subscriber.Registry {
	return subscriber.NewRegistry(subscriber.Config{
		Name:       name,
		QueueDepth: s.Broker.QueueDepth,
		Metrics:    s.Metrics.Clients(),
	})
}

func (s *server) Handler() http.Handler {
	return s.mux
}

func (s *server) Alerts() *fleet.AlertStore {
	return s.alerts
}

// ListenAndServe configures transport according to provided config
func (s *server) ListenAndServe(config interface{}) error {
	var l transport.Provider
	var err error

	internalConfig := transport.InternalConfig{
		Router:          s.router,
		Metrics:         s.Metrics,
		ConnectTimeout:  s.Broker.ConnectTimeout,
		KeepAlive:       s.Broker.KeepAlive,
		MaxPacketSize:   int(s.Broker.MaxPacketSize),
		AllowedVersions: s.AllowedVersions,
	}

	switch c := config.(type) {
	case *transport.ConfigTCP:
		l, err = transport.NewTCP(c, &internalConfig)
	case *transport.ConfigWS:
		l, err = transport.NewWS(c, &internalConfig)
	default:
		return ErrInvalidListenerConfig
	}

	if err != nil {
		return err
	}

	defer s.lock.Unlock()
	s.lock.Lock()

	if _, ok := s.transports.list[l.Port()]; ok {
		_ = l.Close()
		return ErrTransportAlreadyExists
	}

	s.transports.list[l.Port()] = l
	s.transports.wg.Add(1)
	go func() {
		defer s.transports.wg.Done()

		s.TransportStatus(":"+l.Port(), "started")

		if s.Health != nil {
			_ = s.Health.AddReadinessCheck("listener:"+l.Port(), healthcheck.TCPDialCheck(":"+l.Port(), 1*time.Second))
		}

		status := "stopped"
		if e := l.Serve(); e != nil {
			status = e.Error()
		}

		s.TransportStatus(":"+l.Port(), status)
	}()

	return nil
}

// Shutdown server
func (s *server) Shutdown() error {
	s.onClose.Do(func() {
		close(s.quit)

		defer s.lock.Unlock()
		s.lock.Lock()

		for _, l := range s.transports.list {
			if err := l.Close(); err != nil {
				s.log.Error(err.Error())
			}
		}

		s.transports.wg.Wait()

		for port := range s.transports.list {
			delete(s.transports.list, port)
		}
	})

	return nil
}

// onVehicleLocation bridges device publishes into the tracking hub groups
func (s *server) onVehicleLocation(f topics.Fleet, location topics.LocationPayload) {
	s.tracking.PublishLocation(fleet.LocationUpdate{
		VehicleID: f.VehicleID,
		Latitude:  location.Latitude,
		Longitude: location.Longitude,
		Speed:     location.Speed,
		Timestamp: location.Timestamp,
	})
}

type alertPayload struct {
	Type    fleet.AlertType  `json:"type"`
	Level   fleet.AlertLevel `json:"level"`
	Message string           `json:"message"`
}

// onVehicleAlert stores the alert and fans it out to SSE clients
func (s *server) onVehicleAlert(f topics.Fleet, payload []byte) {
	var p alertPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.log.Warnw("malformed alert payload dropped",
			"fleet", f.FleetID,
			"vehicle", f.VehicleID,
			"error", err)
		return
	}

	alert := s.alerts.Create(f.VehicleID, p.Type, p.Level, p.Message)

	s.sse.Broadcast(alert)
}

func (s *server) serveStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"metrics":   s.Metrics.Stats(),
		"timestamp": time.Now().UTC(),
	})
}
