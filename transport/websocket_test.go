package transport

import (
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"

	"github.com/fleetmq/fleetmq/metrics"
)

// reads with a buffer smaller than the frame must deliver every byte in
// order, the remainder first, and never wait on the next frame while
// leftover bytes are pending
func TestWSConnReadAcrossFrames(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close() // nolint: errcheck
	defer client.Close() // nolint: errcheck

	c := &wsConn{conn: newConn(server, metrics.New().Bytes())}

	first := make([]byte, 25)
	second := make([]byte, 10)
	for i := range first {
		first[i] = byte(i)
	}
	for i := range second {
		second[i] = byte(100 + i)
	}

	go func() {
		wsutil.WriteClientBinary(client, first)  // nolint: errcheck
		wsutil.WriteClientBinary(client, second) // nolint: errcheck
	}()

	server.SetReadDeadline(time.Now().Add(time.Second)) // nolint: errcheck

	var got []byte
	buf := make([]byte, 10)

	for _, want := range []int{10, 10, 5, 10} {
		n, err := c.Read(buf)
		require.NoError(t, err)
		require.Equal(t, want, n)
		got = append(got, buf[:n]...)
	}

	require.Equal(t, append(append([]byte{}, first...), second...), got)
}
