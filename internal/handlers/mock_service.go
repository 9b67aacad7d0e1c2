package handlers

import (
	"context"
	"net/http"

	"aromabridge/internal/models"
	"aromabridge/internal/service"
	"aromabridge/internal/session"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	genTokenToken string
	genTokenErr   error
	parseUsername string
	parseErr      error

	lastGenUsername string
	lastGenPassword string
	lastParseToken  string
}

func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (string, error) {
	m.lastParseToken = token
	return m.parseUsername, m.parseErr
}

type mockDevices struct {
	devices   []models.Device
	available map[string]bool
	states    map[string]models.DutyCycleSnapshot
}

func (m *mockDevices) Discover(ctx context.Context) ([]models.Device, error) {
	return m.devices, nil
}
func (m *mockDevices) List() []models.Device { return m.devices }
func (m *mockDevices) Get(deviceID string) (models.Device, bool) {
	for _, d := range m.devices {
		if d.ID == deviceID {
			return d, true
		}
	}
	return models.Device{}, false
}
func (m *mockDevices) Available(deviceID string) bool { return m.available[deviceID] }
func (m *mockDevices) State(deviceID string) (models.DutyCycleSnapshot, bool) {
	s, ok := m.states[deviceID]
	return s, ok
}

type mockControl struct {
	powerErr error
	fanErr   error

	lastPowerDevice string
	lastPowerOn     bool
	lastFanDevice   string
	lastFanOn       bool
	powerCalls      int
	fanCalls        int
}

func (m *mockControl) SetPower(ctx context.Context, deviceID string, on bool) error {
	m.powerCalls++
	m.lastPowerDevice = deviceID
	m.lastPowerOn = on
	return m.powerErr
}
func (m *mockControl) SetFan(ctx context.Context, deviceID string, on bool) error {
	m.fanCalls++
	m.lastFanDevice = deviceID
	m.lastFanOn = on
	return m.fanErr
}

type mockSchedule struct {
	blocks []models.ScheduleBlock
	getErr error
	setErr error

	lastDay      models.Weekday
	lastBlocks   []models.ScheduleBlock
	lastBlockNum int
	lastBlock    models.ScheduleBlock
	clearedNum   int
}

func (m *mockSchedule) Get(ctx context.Context, deviceID string, day models.Weekday) ([]models.ScheduleBlock, error) {
	m.lastDay = day
	return m.blocks, m.getErr
}
func (m *mockSchedule) Set(ctx context.Context, deviceID string, blocks []models.ScheduleBlock) error {
	m.lastBlocks = blocks
	return m.setErr
}
func (m *mockSchedule) SetBlock(ctx context.Context, deviceID string, blockNumber int, block models.ScheduleBlock) error {
	m.lastBlockNum = blockNumber
	m.lastBlock = block
	return m.setErr
}
func (m *mockSchedule) ClearBlock(ctx context.Context, deviceID string, blockNumber int) error {
	m.clearedNum = blockNumber
	return m.setErr
}
func (m *mockSchedule) Sync(ctx context.Context, deviceID string) ([]models.ScheduleBlock, error) {
	return m.blocks, m.getErr
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, session.NewBus(), nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
