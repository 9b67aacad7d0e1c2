package service

import (
	"context"

	"aromabridge/internal/logger"
)

// controlCloud is the slice of the cloud client used for write commands.
type controlCloud interface {
	SetPower(ctx context.Context, deviceID string, on bool) error
	SetFan(ctx context.Context, deviceID string, on bool) error
}

// ControlService forwards power and fan toggles to the vendor API. No
// retry: a rejected write surfaces as an error and the next state
// confirmation shows the truth.
type ControlService struct {
	cloud controlCloud
	log   *logger.Logger
}

func NewControlService(cloud controlCloud, log *logger.Logger) *ControlService {
	return &ControlService{cloud: cloud, log: log}
}

func (s *ControlService) SetPower(ctx context.Context, deviceID string, on bool) error {
	if err := s.cloud.SetPower(ctx, deviceID, on); err != nil {
		s.log.Errorw("set_power_failed", "device_id", deviceID, "on", on, "err", err)
		return err
	}
	s.log.Infow("set_power", "device_id", deviceID, "on", on)
	return nil
}

func (s *ControlService) SetFan(ctx context.Context, deviceID string, on bool) error {
	if err := s.cloud.SetFan(ctx, deviceID, on); err != nil {
		s.log.Errorw("set_fan_failed", "device_id", deviceID, "on", on, "err", err)
		return err
	}
	s.log.Infow("set_fan", "device_id", deviceID, "on", on)
	return nil
}
