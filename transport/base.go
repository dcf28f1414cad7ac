// Package transport provides network listeners feeding telemetry into
// the topic router. MQTT is served over plain TCP and over WebSocket.
package transport

import (
	"sync"

	"github.com/VolantMQ/vlapi/mqttp"
	"go.uber.org/zap"

	"github.com/fleetmq/fleetmq/metrics"
	"github.com/fleetmq/fleetmq/topics"
)

// Config listener endpoint
type Config struct {
	Host string
	Port string
}

// InternalConfig shared between listeners
type InternalConfig struct {
	// Router receives every inbound PUBLISH
	Router *topics.Router

	Metrics metrics.IFace

	// AllowedVersions protocol versions the server accepts
	// If not set defaults to 3.1 and 3.1.1
	AllowedVersions map[mqttp.ProtocolVersion]bool

	// ConnectTimeout seconds to wait for CONNECT before dropping the socket
	// If not set defaults to 2 seconds
	ConnectTimeout int

	// KeepAlive seconds applied when client requests none
	// If not set defaults to 60 seconds
	KeepAlive int

	// MaxPacketSize largest accepted remaining length
	MaxPacketSize int
}

type baseConfig struct {
	InternalConfig

	config Config

	quit chan struct{}
	log  *zap.SugaredLogger

	onConnection sync.WaitGroup
	onceStop     sync.Once
	protocol     string
}

// Provider interface each listener implements
type Provider interface {
	Protocol() string
	Serve() error
	Close() error
	Port() string
}

func (c *baseConfig) Port() string {
	return c.config.Port
}

func (c *baseConfig) Protocol() string {
	return c.protocol
}

func (c *InternalConfig) applyDefaults() {
	if c.AllowedVersions == nil {
		c.AllowedVersions = map[mqttp.ProtocolVersion]bool{
			mqttp.ProtocolV31:  true,
			mqttp.ProtocolV311: true,
		}
	}

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 2
	}

	if c.KeepAlive <= 0 {
		c.KeepAlive = 60
	}

	if c.MaxPacketSize <= 0 {
		c.MaxPacketSize = 268435455
	}
}

// handleConnection runs an MQTT session over the accepted socket
func (c *baseConfig) handleConnection(cn Conn) {
	s := &session{
		baseConfig: c,
		conn:       cn,
	}

	s.run()
}
