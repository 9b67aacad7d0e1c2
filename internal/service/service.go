package service

import (
	"context"

	"aromabridge/internal/cloud"
	"aromabridge/internal/logger"
	"aromabridge/internal/models"
	"aromabridge/internal/session"
)

// Authorization guards the local bridge API.
type Authorization interface {
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (string, error)
}

// Devices exposes discovery and per-device availability/state.
type Devices interface {
	Discover(ctx context.Context) ([]models.Device, error)
	List() []models.Device
	Get(deviceID string) (models.Device, bool)
	Available(deviceID string) bool
	State(deviceID string) (models.DutyCycleSnapshot, bool)
}

// Control mutates remote device state over HTTP, fire-and-forget.
type Control interface {
	SetPower(ctx context.Context, deviceID string, on bool) error
	SetFan(ctx context.Context, deviceID string, on bool) error
}

// Schedule exposes whole-schedule and per-block operations.
type Schedule interface {
	Get(ctx context.Context, deviceID string, day models.Weekday) ([]models.ScheduleBlock, error)
	Set(ctx context.Context, deviceID string, blocks []models.ScheduleBlock) error
	SetBlock(ctx context.Context, deviceID string, blockNumber int, block models.ScheduleBlock) error
	ClearBlock(ctx context.Context, deviceID string, blockNumber int) error
	Sync(ctx context.Context, deviceID string) ([]models.ScheduleBlock, error)
}

// Service aggregates all bridge-facing services.
type Service struct {
	Authorization
	Devices
	Control
	Schedule
}

// Deps carries everything the services are wired from.
type Deps struct {
	Cloud    *cloud.Client
	Sessions *session.Manager
	Auth     AuthConfig
	Log      *logger.Logger
}

func NewService(deps Deps) *Service {
	return &Service{
		Authorization: NewAuthService(deps.Auth),
		Devices:       NewDeviceService(deps.Cloud, deps.Sessions, deps.Log),
		Control:       NewControlService(deps.Cloud, deps.Log),
		Schedule:      NewScheduleService(deps.Sessions, deps.Log),
	}
}
