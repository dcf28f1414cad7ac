package metrics

import (
	"sync"
	"testing"

	"github.com/VolantMQ/vlapi/mqttp"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Bytes().OnSent(100)
	m.Bytes().OnRecv(40)
	m.Packets().OnSent(mqttp.PUBLISH)
	m.Packets().OnRecv(mqttp.CONNECT)
	m.Packets().OnRejected(2)
	m.Subs().OnSubscribe()
	m.Clients().OnConnected()
	m.Clients().OnDisconnected()
	m.Clients().OnDropped(3)

	s := m.Stats()
	require.Equal(t, uint64(100), s.BytesSent)
	require.Equal(t, uint64(40), s.BytesRecv)
	require.Equal(t, uint64(1), s.PacketsSent)
	require.Equal(t, uint64(1), s.PacketsRecv)
	require.Equal(t, uint64(2), s.PacketsReject)
	require.Equal(t, uint64(1), s.Subscriptions)
	require.Equal(t, uint64(1), s.Connected)
	require.Equal(t, uint64(1), s.Disconnected)
	require.Equal(t, uint64(3), s.Dropped)
}

func TestUnsubscribeClampsAtZero(t *testing.T) {
	m := New()

	m.Subs().OnSubscribe()
	m.Subs().OnUnsubscribe()
	m.Subs().OnUnsubscribe()

	require.Equal(t, uint64(0), m.Stats().Subscriptions)
}

func TestConcurrentUpdates(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Bytes().OnSent(1)
				m.Subs().OnSubscribe()
			}
		}()
	}
	wg.Wait()

	s := m.Stats()
	require.Equal(t, uint64(8000), s.BytesSent)
	require.Equal(t, uint64(8000), s.Subscriptions)
}
