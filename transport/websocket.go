package transport

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"time"

	gws "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/fleetmq/fleetmq/configuration"
	"github.com/fleetmq/fleetmq/metrics"
)

var subProtocolRegexp = regexp.MustCompile(`^mqtt(([vV])(3.1|3.1.1|5.0))?$`)

type wsConn struct {
	*conn
	rem []byte
}

// Read drains the previous frame remainder before waiting on the next frame
func (c *wsConn) Read(b []byte) (int, error) {
	if len(c.rem) > 0 {
		n := copy(b, c.rem)

		c.rem = c.rem[n:]
		if len(c.rem) == 0 {
			c.rem = nil
		}

		c.stat.OnRecv(n)

		return n, nil
	}

	data, err := wsutil.ReadClientBinary(c.Conn)
	n := copy(b, data)
	if n < len(data) {
		c.rem = data[n:]
	}

	c.stat.OnRecv(n)

	return n, err
}

// Write ...
func (c *wsConn) Write(b []byte) (int, error) {
	err := wsutil.WriteServerBinary(c.Conn, b)
	n := 0
	if err == nil {
		n = len(b)
		c.stat.OnSent(n)
	}

	return n, err
}

// ConfigWS listener object for websocket server
type ConfigWS struct {
	Path      string
	transport *Config
}

type ws struct {
	baseConfig

	http *http.Server
	up   gws.HTTPUpgrader
}

// NewConfigWS allocate new transport config for websocket transport
// Use of this function is preferable instead of direct allocation of ConfigWS
func NewConfigWS(transport *Config) *ConfigWS {
	return &ConfigWS{
		Path:      "/",
		transport: transport,
	}
}

// NewWS create new websocket transport
func NewWS(config *ConfigWS, internal *InternalConfig) (Provider, error) {
	l := &ws{}

	l.quit = make(chan struct{})
	l.InternalConfig = *internal
	l.InternalConfig.applyDefaults()
	l.config = *config.transport
	l.protocol = "ws"

	l.log = configuration.GetLogger().Named("listener: " + l.protocol + "://:" + config.transport.Port)

	if len(config.Path) == 0 {
		config.Path = "/"
	} else if config.Path[0] != '/' {
		config.Path = "/" + config.Path
	}

	mux := http.NewServeMux()
	mux.Handle(config.Path, l)

	l.http = &http.Server{
		Addr:    config.transport.Host + ":" + config.transport.Port,
		Handler: mux,
	}

	// protocol is prevalidated by ServeHTTP below
	l.up.Protocol = func(string) bool {
		return true
	}

	return l, nil
}

func (l *ws) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	proto := r.Header.Get("Sec-WebSocket-Protocol")
	if proto == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad \"Sec-WebSocket-Protocol\""))
		return
	}

	if !subProtocolRegexp.MatchString(proto) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		_, _ = w.Write([]byte("unsupported \"Sec-WebSocket-Protocol\""))
		return
	}

	cn, _, _, err := l.up.Upgrade(r, w)
	if err != nil {
		l.log.Errorf("upgrade error: %s", err)
		return
	}

	l.onConnection.Add(1)
	go func() {
		defer l.onConnection.Done()
		l.handleConnection(l.newConn(cn, l.Metrics.Bytes()))
	}()
}

func (l *ws) newConn(cn net.Conn, stat metrics.Bytes) Conn {
	return &wsConn{
		conn: newConn(cn, stat),
	}
}

// Serve ...
func (l *ws) Serve() error {
	return l.http.ListenAndServe()
}

// Close websocket listener
func (l *ws) Close() error {
	var err error

	l.onceStop.Do(func() {
		close(l.quit)

		ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ctxCancel()

		err = l.http.Shutdown(ctx)
		l.onConnection.Wait()
	})

	return err
}
