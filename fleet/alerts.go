package fleet

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlertNotFound requested alert id is not in the store
var ErrAlertNotFound = errors.New("fleet: alert not found")

// AlertStore in-memory bookkeeping of raised alerts.
// The store does not persist anything across restarts
type AlertStore struct {
	lock   sync.RWMutex
	alerts map[string]*Alert
	order  []string
}

// NewAlertStore allocate empty store
func NewAlertStore() *AlertStore {
	return &AlertStore{
		alerts: make(map[string]*Alert),
	}
}

// Create register a new alert. ID and CreatedAt are assigned here
func (s *AlertStore) Create(vehicleID string, t AlertType, level AlertLevel, message string) Alert {
	alert := Alert{
		ID:        uuid.NewString(),
		VehicleID: vehicleID,
		Type:      t,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	s.lock.Lock()
	s.alerts[alert.ID] = &alert
	s.order = append(s.order, alert.ID)
	s.lock.Unlock()

	return alert
}

// Get lookup alert by id
func (s *AlertStore) Get(id string) (Alert, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return Alert{}, ErrAlertNotFound
	}

	return *alert, nil
}

// List alerts in creation order
func (s *AlertStore) List() []Alert {
	s.lock.RLock()
	defer s.lock.RUnlock()

	list := make([]Alert, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, *s.alerts[id])
	}

	return list
}

// Acknowledge mark alert as seen. Idempotent
func (s *AlertStore) Acknowledge(id string) (Alert, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return Alert{}, ErrAlertNotFound
	}

	if !alert.IsAcknowledged {
		now := time.Now().UTC()
		alert.IsAcknowledged = true
		alert.AcknowledgedAt = &now
	}

	return *alert, nil
}
