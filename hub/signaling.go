package hub

import (
	"sync"
	"time"

	"github.com/fleetmq/fleetmq/fleet"
	"github.com/fleetmq/fleetmq/subscriber"
)

// Signaling WebRTC connection-setup relay. Peers are indexed both by
// connection id (lifecycle) and by peer id (application identity);
// offers, answers and ICE candidates are forwarded point-to-point,
// never broadcast
type Signaling struct {
	base

	lock    sync.RWMutex
	peers   map[string]fleet.PeerInfo // keyed by connection id
	peerIdx map[string]string         // peer id -> connection id
}

// NewSignaling allocate signaling hub over an injected registry
func NewSignaling(registry *subscriber.Registry) *Signaling {
	return &Signaling{
		base:    newBase("signaling", registry),
		peers:   make(map[string]fleet.PeerInfo),
		peerIdx: make(map[string]string),
	}
}

// Name implements Hub
func (h *Signaling) Name() string {
	return h.name
}

// Connect implements Hub
func (h *Signaling) Connect() (*Session, error) {
	s, err := h.connect()
	if err != nil {
		return nil, err
	}

	h.send(s, "Connected", map[string]string{"connectionId": s.id})

	return s, nil
}

// Disconnect implements Hub. Remaining peers learn the departure by
// peer id, the application-visible identity
func (h *Signaling) Disconnect(s *Session) {
	h.lock.Lock()
	peer, registered := h.peers[s.id]
	if registered {
		delete(h.peers, s.id)
		delete(h.peerIdx, peer.PeerID)
	}
	h.lock.Unlock()

	if !h.disconnect(s) {
		return
	}

	if registered {
		h.broadcast("PeerLeft", peer.PeerID)
	}
}

// Invoke implements Hub
func (h *Signaling) Invoke(s *Session, inv Invocation) error {
	switch inv.Target {
	case "Register":
		var peerID, displayName string
		if err := decodeArgs(inv.Arguments, &peerID, &displayName); err != nil {
			return err
		}
		h.Register(s, peerID, displayName)
	case "SendOffer":
		var targetPeerID, sdpOffer string
		if err := decodeArgs(inv.Arguments, &targetPeerID, &sdpOffer); err != nil {
			return err
		}
		h.SendOffer(s, targetPeerID, sdpOffer)
	case "SendAnswer":
		var targetPeerID, sdpAnswer string
		if err := decodeArgs(inv.Arguments, &targetPeerID, &sdpAnswer); err != nil {
			return err
		}
		h.SendAnswer(s, targetPeerID, sdpAnswer)
	case "SendIceCandidate":
		var targetPeerID, candidate, sdpMid string
		var sdpMLineIndex int
		if err := decodeArgs(inv.Arguments, &targetPeerID, &candidate, &sdpMid, &sdpMLineIndex); err != nil {
			return err
		}
		h.SendIceCandidate(s, targetPeerID, candidate, sdpMid, sdpMLineIndex)
	case "GetPeers":
		h.GetPeers(s)
	default:
		return ErrUnknownTarget
	}

	return nil
}

// Register enter the signaling network. The caller receives the set of
// peers present at registration; everyone else hears PeerJoined exactly
// once. Directory mutation and the others-snapshot happen under one
// lock so a concurrently joining peer is never half-seen
func (h *Signaling) Register(s *Session, peerID, displayName string) {
	peer := fleet.PeerInfo{
		ConnectionID: s.id,
		PeerID:       peerID,
		DisplayName:  displayName,
		JoinedAt:     time.Now().UTC(),
	}

	h.lock.Lock()
	if conn, ok := h.peerIdx[peerID]; ok && conn != s.id {
		h.lock.Unlock()
		h.sendError(s, "peer id "+peerID+" already registered")
		return
	}

	others := make([]fleet.PeerInfo, 0, len(h.peers))
	for _, p := range h.peers {
		if p.ConnectionID != s.id {
			others = append(others, p)
		}
	}

	h.peers[s.id] = peer
	h.peerIdx[peerID] = s.id
	h.lock.Unlock()

	h.broadcastOthers(s, "PeerJoined", peer)
	h.send(s, "PeersList", others)

	h.log.Infow("peer registered", "peer", peerID, "displayName", displayName)
}

type relayedOffer struct {
	FromPeerID      string `json:"fromPeerId"`
	FromDisplayName string `json:"fromDisplayName"`
	SdpOffer        string `json:"sdpOffer"`
}

// SendOffer forward an SDP offer to one peer
func (h *Signaling) SendOffer(s *Session, targetPeerID, sdpOffer string) {
	sender, target, ok := h.lookupRelay(s, targetPeerID, true)
	if !ok {
		return
	}

	_ = h.sendTo(target.ConnectionID, "OfferReceived", relayedOffer{
		FromPeerID:      sender.PeerID,
		FromDisplayName: sender.DisplayName,
		SdpOffer:        sdpOffer,
	})

	h.log.Debugw("offer relayed", "from", sender.PeerID, "to", targetPeerID)
}

type relayedAnswer struct {
	FromPeerID string `json:"fromPeerId"`
	SdpAnswer  string `json:"sdpAnswer"`
}

// SendAnswer forward an SDP answer back to a peer
func (h *Signaling) SendAnswer(s *Session, targetPeerID, sdpAnswer string) {
	sender, target, ok := h.lookupRelay(s, targetPeerID, true)
	if !ok {
		return
	}

	_ = h.sendTo(target.ConnectionID, "AnswerReceived", relayedAnswer{
		FromPeerID: sender.PeerID,
		SdpAnswer:  sdpAnswer,
	})

	h.log.Debugw("answer relayed", "from", sender.PeerID, "to", targetPeerID)
}

type relayedCandidate struct {
	FromPeerID    string `json:"fromPeerId"`
	Candidate     string `json:"candidate"`
	SdpMid        string `json:"sdpMid"`
	SdpMLineIndex int    `json:"sdpMLineIndex"`
}

// SendIceCandidate forward an ICE candidate. Candidates for vanished
// peers are dropped silently; the exchange is best-effort by nature
func (h *Signaling) SendIceCandidate(s *Session, targetPeerID, candidate, sdpMid string, sdpMLineIndex int) {
	sender, target, ok := h.lookupRelay(s, targetPeerID, false)
	if !ok {
		return
	}

	_ = h.sendTo(target.ConnectionID, "IceCandidateReceived", relayedCandidate{
		FromPeerID:    sender.PeerID,
		Candidate:     candidate,
		SdpMid:        sdpMid,
		SdpMLineIndex: sdpMLineIndex,
	})
}

// GetPeers reply to the caller with every other registered peer
func (h *Signaling) GetPeers(s *Session) {
	h.lock.RLock()
	others := make([]fleet.PeerInfo, 0, len(h.peers))
	for _, p := range h.peers {
		if p.ConnectionID != s.id {
			others = append(others, p)
		}
	}
	h.lock.RUnlock()

	h.send(s, "PeersList", others)
}

// lookupRelay resolve sender and target for a relay. An unregistered
// sender is ignored; a missing target is reported to the sender only
// when notify is set
func (h *Signaling) lookupRelay(s *Session, targetPeerID string, notify bool) (fleet.PeerInfo, fleet.PeerInfo, bool) {
	h.lock.RLock()
	sender, senderOK := h.peers[s.id]
	var target fleet.PeerInfo
	targetOK := false
	if conn, ok := h.peerIdx[targetPeerID]; ok {
		target, targetOK = h.peers[conn]
	}
	h.lock.RUnlock()

	if !senderOK {
		return fleet.PeerInfo{}, fleet.PeerInfo{}, false
	}

	if !targetOK {
		if notify {
			h.sendError(s, "peer "+targetPeerID+" not found")
		}
		return fleet.PeerInfo{}, fleet.PeerInfo{}, false
	}

	return sender, target, true
}
