// Package stream exposes the alert broadcast channel over
// Server-Sent Events.
package stream

import (
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetmq/fleetmq/broadcast"
	"github.com/fleetmq/fleetmq/configuration"
	"github.com/fleetmq/fleetmq/fleet"
	"github.com/fleetmq/fleetmq/subscriber"
)

// AlertStreamer manages SSE alert subscriptions and handles the
// /stream endpoints
type AlertStreamer struct {
	log      *zap.SugaredLogger
	registry *subscriber.Registry
	engine   *broadcast.Engine
	alerts   *fleet.AlertStore
}

// NewAlertStreamer allocate streamer over an injected registry and
// alert store
func NewAlertStreamer(registry *subscriber.Registry, alerts *fleet.AlertStore) *AlertStreamer {
	return &AlertStreamer{
		log:      configuration.GetLogger().Named("sse"),
		registry: registry,
		engine:   broadcast.New("sse", registry),
		alerts:   alerts,
	}
}

// Mount attach the /stream endpoints
func (t *AlertStreamer) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/stream/alerts", t.serveAlerts)
	mux.HandleFunc("/stream/alerts/test", t.serveTestAlert)
	mux.HandleFunc("/stream/stats", t.serveStats)
}

// Broadcast push one alert to every connected SSE client
func (t *AlertStreamer) Broadcast(alert fleet.Alert) {
	ev, err := fleet.NewEvent("alert", alert)
	if err != nil {
		t.log.Errorw("couldn't encode alert", "error", err)
		return
	}

	t.engine.Publish(ev)
	t.log.Debugw("alert broadcast", "clients", t.registry.Count(), "type", alert.Type)
}

// ClientCount number of open SSE streams
func (t *AlertStreamer) ClientCount() int {
	return t.registry.Count()
}

func (t *AlertStreamer) serveAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientID := uuid.NewString()

	sub, err := t.registry.Register(clientID)
	if err != nil {
		http.Error(w, "couldn't subscribe", http.StatusInternalServerError)
		return
	}
	defer t.registry.Unregister(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	t.log.Infow("sse client connected", "client", clientID)

	if err = writeEvent(w, "connected", map[string]string{
		"clientId": clientID,
		"message":  "Connected to alert stream",
	}); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			t.log.Infow("sse client disconnected", "client", clientID)
			return
		case <-sub.Done():
			return
		case ev := <-sub.Events():
			if err = writeRawEvent(w, ev); err != nil {
				t.log.Debugw("sse write failed", "client", clientID, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

type testAlertRequest struct {
	VehicleID string           `json:"vehicleId"`
	Type      fleet.AlertType  `json:"type"`
	Level     fleet.AlertLevel `json:"level"`
	Message   string           `json:"message"`
}

func (t *AlertStreamer) serveTestAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req testAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	alert := t.alerts.Create(req.VehicleID, req.Type, req.Level, req.Message)

	t.Broadcast(alert)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Alert triggered and broadcast",
		"alert":   alert,
	})
}

func (t *AlertStreamer) serveStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connectedClients": t.registry.Count(),
		"timestamp":        time.Now().UTC(),
	})
}

func writeEvent(w http.ResponseWriter, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)

	return err
}

func writeRawEvent(w http.ResponseWriter, ev fleet.Event) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Data)

	return err
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(payload)
}
