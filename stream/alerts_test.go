package stream

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/fleetmq/fleetmq/fleet"
	"github.com/fleetmq/fleetmq/subscriber"
)

func newTestStreamer() (*AlertStreamer, *subscriber.Registry, *fleet.AlertStore) {
	registry := subscriber.NewRegistry(subscriber.Config{
		Name:       "sse-test",
		QueueDepth: 16,
	})
	alerts := fleet.NewAlertStore()

	return NewAlertStreamer(registry, alerts), registry, alerts
}

func newTestServer(t *testing.T) (*httptest.Server, *AlertStreamer, *subscriber.Registry) {
	t.Helper()

	streamer, registry, _ := newTestStreamer()

	mux := http.NewServeMux()
	streamer.Mount(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, streamer, registry
}

// readEvent reads one SSE frame, skipping blank separator lines
func readEvent(t *testing.T, rd *bufio.Reader) (string, []byte) {
	t.Helper()

	var eventType string
	var data []byte

	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = []byte(strings.TrimPrefix(line, "data: "))
		case line == "" && eventType != "":
			return eventType, data
		}
	}
}

func TestStreamConnectedThenAlert(t *testing.T) {
	srv, streamer, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/stream/alerts")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)

	eventType, data := readEvent(t, rd)
	require.Equal(t, "connected", eventType)

	var hello map[string]string
	require.NoError(t, json.Unmarshal(data, &hello))
	require.NotEmpty(t, hello["clientId"])

	streamer.Broadcast(fleet.Alert{
		ID:        "a-1",
		VehicleID: "truck-12",
		Level:     fleet.LevelCritical,
		Message:   "overspeed",
	})

	eventType, data = readEvent(t, rd)
	require.Equal(t, "alert", eventType)

	var alert fleet.Alert
	require.NoError(t, json.Unmarshal(data, &alert))
	require.Equal(t, "truck-12", alert.VehicleID)
	require.Equal(t, "overspeed", alert.Message)
}

func TestStreamTestAlertEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/stream/alerts")
	require.NoError(t, err)
	defer resp.Body.Close()

	rd := bufio.NewReader(resp.Body)
	readEvent(t, rd) // connected handshake

	body := strings.NewReader(`{"vehicleId":"truck-12","type":0,"level":2,"message":"manual test"}`)

	post, err := http.Post(srv.URL+"/stream/alerts/test", "application/json", body)
	require.NoError(t, err)
	defer post.Body.Close()

	require.Equal(t, http.StatusOK, post.StatusCode)

	var reply struct {
		Message string      `json:"message"`
		Alert   fleet.Alert `json:"alert"`
	}
	require.NoError(t, json.NewDecoder(post.Body).Decode(&reply))
	require.NotEmpty(t, reply.Message)
	require.NotEmpty(t, reply.Alert.ID)
	require.Equal(t, "truck-12", reply.Alert.VehicleID)

	eventType, data := readEvent(t, rd)
	require.Equal(t, "alert", eventType)

	var alert fleet.Alert
	require.NoError(t, json.Unmarshal(data, &alert))
	require.Equal(t, reply.Alert.ID, alert.ID)
	require.Equal(t, "manual test", alert.Message)
}

func TestStreamTestAlertBadBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/stream/alerts/test", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamStats(t *testing.T) {
	srv, _, registry := newTestServer(t)

	resp, err := http.Get(srv.URL + "/stream/alerts")
	require.NoError(t, err)
	defer resp.Body.Close()

	rd := bufio.NewReader(resp.Body)
	readEvent(t, rd) // wait until the client is registered

	stats, err := http.Get(srv.URL + "/stream/stats")
	require.NoError(t, err)
	defer stats.Body.Close()

	require.Equal(t, http.StatusOK, stats.StatusCode)

	var payload struct {
		ConnectedClients int       `json:"connectedClients"`
		Timestamp        time.Time `json:"timestamp"`
	}
	require.NoError(t, json.NewDecoder(stats.Body).Decode(&payload))
	require.Equal(t, 1, payload.ConnectedClients)
	require.False(t, payload.Timestamp.IsZero())
	require.Equal(t, 1, registry.Count())
}

func TestStreamClientGoneUnregisters(t *testing.T) {
	srv, _, registry := newTestServer(t)

	resp, err := http.Get(srv.URL + "/stream/alerts")
	require.NoError(t, err)

	rd := bufio.NewReader(resp.Body)
	readEvent(t, rd)

	require.Equal(t, 1, registry.Count())

	resp.Body.Close()

	require.Eventually(t, func() bool {
		return registry.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamMethodGuard(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/stream/alerts", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/stream/alerts/test")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}
