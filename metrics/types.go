package metrics

import (
	"github.com/VolantMQ/vlapi/mqttp"
)

// Bytes transport-level traffic accounting
type Bytes interface {
	OnSent(int)
	OnRecv(int)
}

// Packets MQTT packet accounting
type Packets interface {
	OnSent(p mqttp.Type)
	OnRecv(p mqttp.Type)
	OnRejected(n int)
}

// Subscriptions group membership accounting
type Subscriptions interface {
	OnSubscribe()
	OnUnsubscribe()
}

// Clients subscriber lifecycle accounting
type Clients interface {
	OnConnected()
	OnDisconnected()
	OnDropped(n uint64)
}

// Informer access to individual meters
type Informer interface {
	Bytes() Bytes
	Packets() Packets
	Subs() Subscriptions
	Clients() Clients
}

// IFace provider api
type IFace interface {
	Informer
	Stats() Stats
}

// Stats point-in-time snapshot of all counters
type Stats struct {
	BytesSent     uint64 `json:"bytesSent"`
	BytesRecv     uint64 `json:"bytesRecv"`
	PacketsSent   uint64 `json:"packetsSent"`
	PacketsRecv   uint64 `json:"packetsRecv"`
	PacketsReject uint64 `json:"packetsRejected"`
	Subscriptions uint64 `json:"subscriptions"`
	Connected     uint64 `json:"connected"`
	Disconnected  uint64 `json:"disconnected"`
	Dropped       uint64 `json:"dropped"`
}
