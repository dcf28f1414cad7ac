package transport

import (
	"net"
	"time"

	"github.com/fleetmq/fleetmq/configuration"
)

// ConfigTCP configuration of tcp transport
type ConfigTCP struct {
	Scheme    string
	transport *Config
}

type tcp struct {
	baseConfig

	listener net.Listener
}

// NewConfigTCP allocate new transport config for tcp transport
// Use of this function is preferable instead of direct allocation of ConfigTCP
func NewConfigTCP(transport *Config) *ConfigTCP {
	return &ConfigTCP{
		Scheme:    "tcp",
		transport: transport,
	}
}

// NewTCP create new tcp transport
func NewTCP(config *ConfigTCP, internal *InternalConfig) (Provider, error) {
	l := &tcp{}

	l.quit = make(chan struct{})
	l.InternalConfig = *internal
	l.InternalConfig.applyDefaults()
	l.config = *config.transport
	l.protocol = "tcp"

	var err error

	if l.listener, err = net.Listen(config.Scheme, config.transport.Host+":"+config.transport.Port); err != nil {
		return nil, err
	}

	l.log = configuration.GetLogger().Named("listener: " + l.protocol + "://:" + config.transport.Port)

	return l, nil
}

// Close tcp listener
func (l *tcp) Close() error {
	var err error

	l.onceStop.Do(func() {
		close(l.quit)

		err = l.listener.Close()
		l.onConnection.Wait()

		l.listener = nil
	})

	return err
}

// Serve start serving connections
func (l *tcp) Serve() error {
	var tempDelay time.Duration // how long to sleep on accept failure

	for {
		var cn net.Conn
		var err error

		if cn, err = l.listener.Accept(); err != nil {
			// http://zhen.org/blog/graceful-shutdown-of-go-net-dot-listeners/
			select {
			case <-l.quit:
				return nil
			default:
			}

			// Borrowed from go1.3.3/src/pkg/net/http/server.go:1699
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				l.log.Errorw("Couldn't accept connection. Retrying",
					"error", err,
					"retryIn", tempDelay)

				time.Sleep(tempDelay)
				continue
			}
			return err
		}

		l.onConnection.Add(1)
		go func(cn net.Conn) {
			defer l.onConnection.Done()

			l.handleConnection(newConn(cn, l.Metrics.Bytes()))
		}(cn)
	}
}
