package fleet

import (
	"time"
)

// AlertType classifies what a vehicle alert is about
type AlertType int

// nolint: golint
const (
	AlertSpeeding AlertType = iota
	AlertLowFuel
	AlertEngineWarning
	AlertMaintenanceDue
	AlertGeofence
	AlertIdling
	AlertHarshBraking
	AlertRapidAcceleration
)

// AlertLevel severity of an alert
type AlertLevel int

// nolint: golint
const (
	LevelInfo AlertLevel = iota
	LevelWarning
	LevelCritical
)

// Alert immutable once published. Subscribers each receive an
// independent logical copy
type Alert struct {
	ID             string     `json:"id"`
	VehicleID      string     `json:"vehicleId"`
	Type           AlertType  `json:"type"`
	Level          AlertLevel `json:"level"`
	Message        string     `json:"message"`
	CreatedAt      time.Time  `json:"createdAt"`
	IsAcknowledged bool       `json:"isAcknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}

// LocationUpdate position report broadcast by the tracking hub
type LocationUpdate struct {
	VehicleID string    `json:"vehicleId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertNotification lightweight alert shape broadcast by the tracking hub
type AlertNotification struct {
	VehicleID string    `json:"vehicleId"`
	AlertType string    `json:"alertType"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// UserInfo chat hub participant
type UserInfo struct {
	ConnectionID string    `json:"connectionId"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// ChatMessage dispatcher-driver chat payload
type ChatMessage struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	SenderRole string    `json:"senderRole"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsPrivate  bool      `json:"isPrivate,omitempty"`
	TargetRole string    `json:"targetRole,omitempty"`
}

// PeerInfo signaling participant. PeerID is the application-visible
// identity, ConnectionID the transport one
type PeerInfo struct {
	ConnectionID string    `json:"connectionId"`
	PeerID       string    `json:"peerId"`
	DisplayName  string    `json:"displayName"`
	JoinedAt     time.Time `json:"joinedAt"`
}
