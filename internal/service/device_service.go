package service

import (
	"context"
	"errors"
	"sync"

	"aromabridge/internal/logger"
	"aromabridge/internal/models"
)

// ErrNoDevices is the "not ready" condition: discovery came up empty even
// after refreshing the token and re-logging in. The host should retry
// setup later.
var ErrNoDevices = errors.New("no devices found")

// deviceCloud is the slice of the cloud client discovery needs.
type deviceCloud interface {
	Login(ctx context.Context) error
	Refresh(ctx context.Context) error
	Devices(ctx context.Context) ([]models.Device, error)
}

// availability is the slice of the session manager this service reads.
type availability interface {
	IsAvailable(deviceID string) bool
	State(deviceID string) (models.DutyCycleSnapshot, bool)
}

// DeviceService discovers and caches the account's devices.
type DeviceService struct {
	cloud    deviceCloud
	sessions availability
	log      *logger.Logger

	mu      sync.Mutex
	devices []models.Device
}

func NewDeviceService(cloud deviceCloud, sessions availability, log *logger.Logger) *DeviceService {
	return &DeviceService{cloud: cloud, sessions: sessions, log: log}
}

// Discover lists the account's devices, climbing the credential ladder on
// an empty result: current token, then a token refresh, then a full
// re-login. Empty after all three escalates to ErrNoDevices.
func (s *DeviceService) Discover(ctx context.Context) ([]models.Device, error) {
	devices, err := s.cloud.Devices(ctx)
	if err != nil || len(devices) == 0 {
		s.log.Infow("discovery_empty_refreshing_token", "err", err)
		if rerr := s.cloud.Refresh(ctx); rerr == nil {
			devices, err = s.cloud.Devices(ctx)
		}
	}
	if err != nil || len(devices) == 0 {
		s.log.Infow("discovery_empty_relogging_in", "err", err)
		if lerr := s.cloud.Login(ctx); lerr != nil {
			return nil, ErrNoDevices
		}
		devices, err = s.cloud.Devices(ctx)
	}
	if err != nil || len(devices) == 0 {
		return nil, ErrNoDevices
	}

	s.mu.Lock()
	s.devices = devices
	s.mu.Unlock()
	return devices, nil
}

// List returns the cached discovery result.
func (s *DeviceService) List() []models.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// Get looks up a cached device by id.
func (s *DeviceService) Get(deviceID string) (models.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.ID == deviceID {
			return d, true
		}
	}
	return models.Device{}, false
}

// Available reports whether the device's session is connected.
func (s *DeviceService) Available(deviceID string) bool {
	return s.sessions.IsAvailable(deviceID)
}

// State returns the device's duty-cycle snapshot.
func (s *DeviceService) State(deviceID string) (models.DutyCycleSnapshot, bool) {
	return s.sessions.State(deviceID)
}
