package session

import (
	"context"
	"sync"

	"aromabridge/internal/cloud"
	"aromabridge/internal/logger"
	"aromabridge/internal/models"
)

// CloudAPI is the slice of the vendor HTTP client the session layer uses.
type CloudAPI interface {
	Activate(ctx context.Context, deviceID string) error
	RequestSchedule(ctx context.Context, deviceID string, day models.Weekday) error
	WriteSchedule(ctx context.Context, deviceID string, entries []cloud.WorkTimeEntry, week []models.Weekday) error
}

// Manager is the registry owning deviceID -> Session. It is the only
// place holding that mapping; everything else reaches sessions through it.
type Manager struct {
	api   CloudAPI
	wsURL string
	bus   *Bus
	log   *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(api CloudAPI, wsURL string, bus *Bus, log *logger.Logger) *Manager {
	return &Manager{
		api:      api,
		wsURL:    wsURL,
		bus:      bus,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Bus exposes the broadcast bus observers subscribe on.
func (m *Manager) Bus() *Bus { return m.bus }

// Start spawns the supervising loop for a device. Idempotent: a second
// Start for the same device leaves the existing session untouched.
func (m *Manager) Start(device models.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[device.ID]; ok {
		return
	}

	s := newSession(device, m.wsURL, m.api, m.bus, m.log)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)

	m.sessions[device.ID] = s
	m.log.Infow("session_started", "device_id", device.ID, "device_name", device.Name)
}

// Stop cancels a device's session, waits for all of its goroutines and
// discards its state. Unknown devices are a no-op.
func (m *Manager) Stop(deviceID string) {
	m.mu.Lock()
	s, ok := m.sessions[deviceID]
	if ok {
		delete(m.sessions, deviceID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.cancel()
	s.dropConn()
	s.wg.Wait()
	m.log.Infow("session_stopped", "device_id", deviceID)
}

// StopAll stops every session.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
}

// IsAvailable reports whether the device's socket is currently connected.
func (m *Manager) IsAvailable(deviceID string) bool {
	s, ok := m.session(deviceID)
	return ok && s.Connected()
}

// State returns the duty-cycle snapshot for a device, if a session exists.
func (m *Manager) State(deviceID string) (models.DutyCycleSnapshot, bool) {
	s, ok := m.session(deviceID)
	if !ok {
		return models.DutyCycleSnapshot{}, false
	}
	return s.State(), true
}

func (m *Manager) session(deviceID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[deviceID]
	return s, ok
}

// count is used by tests to assert Start idempotence.
func (m *Manager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
