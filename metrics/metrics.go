package metrics

import (
	"sync/atomic"

	"github.com/VolantMQ/vlapi/mqttp"
)

type bytes struct {
	sent uint64
	recv uint64
}

type packets struct {
	sent     uint64
	recv     uint64
	rejected uint64
}

type subs struct {
	active uint64
}

type clients struct {
	connected    uint64
	disconnected uint64
	dropped      uint64
}

type stats struct {
	bytes   bytes
	packets packets
	clients clients
	subs    subs
}

type impl struct {
	stats
}

var _ IFace = (*impl)(nil)

// New allocate all meters zeroed
func New() IFace {
	return &impl{}
}

func (im *impl) Bytes() Bytes {
	return &im.bytes
}

func (im *impl) Packets() Packets {
	return &im.packets
}

func (im *impl) Clients() Clients {
	return &im.clients
}

func (im *impl) Subs() Subscriptions {
	return &im.subs
}

func (im *impl) Stats() Stats {
	return Stats{
		BytesSent:     atomic.LoadUint64(&im.bytes.sent),
		BytesRecv:     atomic.LoadUint64(&im.bytes.recv),
		PacketsSent:   atomic.LoadUint64(&im.packets.sent),
		PacketsRecv:   atomic.LoadUint64(&im.packets.recv),
		PacketsReject: atomic.LoadUint64(&im.packets.rejected),
		Subscriptions: atomic.LoadUint64(&im.subs.active),
		Connected:     atomic.LoadUint64(&im.clients.connected),
		Disconnected:  atomic.LoadUint64(&im.clients.disconnected),
		Dropped:       atomic.LoadUint64(&im.clients.dropped),
	}
}

func (t *bytes) OnSent(n int) {
	atomic.AddUint64(&t.sent, uint64(n))
}

func (t *bytes) OnRecv(n int) {
	atomic.AddUint64(&t.recv, uint64(n))
}

func (t *packets) OnSent(_ mqttp.Type) {
	atomic.AddUint64(&t.sent, 1)
}

func (t *packets) OnRecv(_ mqttp.Type) {
	atomic.AddUint64(&t.recv, 1)
}

func (t *packets) OnRejected(n int) {
	atomic.AddUint64(&t.rejected, uint64(n))
}

func (t *subs) OnSubscribe() {
	atomic.AddUint64(&t.active, 1)
}

func (t *subs) OnUnsubscribe() {
	// count may race to zero on concurrent disconnects, clamp
	for {
		v := atomic.LoadUint64(&t.active)
		if v == 0 {
			return
		}
		if atomic.CompareAndSwapUint64(&t.active, v, v-1) {
			return
		}
	}
}

func (t *clients) OnConnected() {
	atomic.AddUint64(&t.connected, 1)
}

func (t *clients) OnDisconnected() {
	atomic.AddUint64(&t.disconnected, 1)
}

func (t *clients) OnDropped(n uint64) {
	atomic.AddUint64(&t.dropped, n)
}
