package hub

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fleetmq/fleetmq/configuration"
	"github.com/fleetmq/fleetmq/fleet"
)

const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maximum inbound message size allowed from peer
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// frame outbound event envelope
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// errorFrame reports a failed invocation back to the caller
type errorFrame struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

// Handler serves a hub over a WebSocket endpoint
type Handler struct {
	hub Hub
	log *zap.SugaredLogger
}

// NewHandler wrap hub into an http.Handler
func NewHandler(h Hub) *Handler {
	return &Handler{
		hub: h,
		log: configuration.GetLogger().Named("ws: " + h.Name()),
	}
}

func (t *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Errorw("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s, err := t.hub.Connect()
	if err != nil {
		t.log.Errorw("connect failed", "remote", r.RemoteAddr, "error", err)
		cn.Close() // nolint: errcheck
		return
	}

	go t.writePump(cn, s)
	go t.readPump(cn, s)
}

// readPump decodes invocations off the socket and dispatches them.
// Runs once per connection, tears the session down on exit
func (t *Handler) readPump(cn *websocket.Conn, s *Session) {
	defer func() {
		t.hub.Disconnect(s)
		cn.Close() // nolint: errcheck
	}()

	cn.SetReadLimit(maxMessageSize)
	cn.SetReadDeadline(time.Now().Add(pongWait)) // nolint: errcheck
	cn.SetPongHandler(func(string) error {
		return cn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Debugw("read failed", "session", s.ID(), "error", err)
			}
			return
		}

		var inv Invocation
		if err = json.Unmarshal(data, &inv); err != nil {
			t.log.Debugw("bad invocation frame", "session", s.ID(), "error", err)
			continue
		}

		if err = t.hub.Invoke(s, inv); err != nil {
			t.log.Debugw("invocation failed",
				"session", s.ID(),
				"target", inv.Target,
				"error", err)

			t.reportError(s, inv.Target, err)
		}
	}
}

// writePump drains the session queue onto the socket and keeps the
// connection alive with pings
func (t *Handler) writePump(cn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cn.Close() // nolint: errcheck
	}()

	for {
		select {
		case ev := <-s.Events():
			cn.SetWriteDeadline(time.Now().Add(writeWait)) // nolint: errcheck

			if err := cn.WriteJSON(frame{Type: ev.Type, Data: ev.Data}); err != nil {
				return
			}
		case <-s.Done():
			cn.SetWriteDeadline(time.Now().Add(writeWait))    // nolint: errcheck
			cn.WriteMessage(websocket.CloseMessage, []byte{}) // nolint: errcheck
			return
		case <-ticker.C:
			cn.SetWriteDeadline(time.Now().Add(writeWait)) // nolint: errcheck
			if err := cn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (t *Handler) reportError(s *Session, target string, err error) {
	data, mErr := json.Marshal(errorFrame{
		Target:  target,
		Message: err.Error(),
	})
	if mErr != nil {
		return
	}

	s.sub.Enqueue(fleet.Event{Type: "Error", Data: data})
}
