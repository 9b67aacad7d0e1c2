package service

import (
	"context"
	"fmt"
	"time"

	"aromabridge/internal/logger"
	"aromabridge/internal/models"
)

// scheduleOrchestrator is the slice of the session manager that bridges
// the HTTP trigger to the asynchronous socket reply.
type scheduleOrchestrator interface {
	GetSchedule(ctx context.Context, deviceID string, day models.Weekday) ([]models.ScheduleBlock, error)
	SetSchedule(ctx context.Context, deviceID string, blocks []models.ScheduleBlock) error
}

// ScheduleService exposes whole-schedule reads/writes plus the
// block-number edit operations the host platform's services use.
type ScheduleService struct {
	sessions scheduleOrchestrator
	log      *logger.Logger
}

func NewScheduleService(sessions scheduleOrchestrator, log *logger.Logger) *ScheduleService {
	return &ScheduleService{sessions: sessions, log: log}
}

// Get fetches the five blocks for a weekday.
func (s *ScheduleService) Get(ctx context.Context, deviceID string, day models.Weekday) ([]models.ScheduleBlock, error) {
	return s.sessions.GetSchedule(ctx, deviceID, day)
}

// Set writes up to five blocks as a full schedule.
func (s *ScheduleService) Set(ctx context.Context, deviceID string, blocks []models.ScheduleBlock) error {
	return s.sessions.SetSchedule(ctx, deviceID, blocks)
}

// SetBlock replaces a single block by number (1-5): fetch the current
// five, swap in the new block, write the whole schedule back.
func (s *ScheduleService) SetBlock(ctx context.Context, deviceID string, blockNumber int, block models.ScheduleBlock) error {
	if err := validateBlockNumber(blockNumber); err != nil {
		return err
	}
	if err := models.ValidateBlock(block); err != nil {
		return err
	}

	blocks, err := s.currentBlocks(ctx, deviceID)
	if err != nil {
		return err
	}
	blocks[blockNumber-1] = block

	if err := s.sessions.SetSchedule(ctx, deviceID, blocks); err != nil {
		return err
	}
	s.log.Infow("schedule_block_set", "device_id", deviceID, "block", blockNumber)
	return nil
}

// ClearBlock disables a single block by number (1-5), keeping the rest.
func (s *ScheduleService) ClearBlock(ctx context.Context, deviceID string, blockNumber int) error {
	if err := validateBlockNumber(blockNumber); err != nil {
		return err
	}

	blocks, err := s.currentBlocks(ctx, deviceID)
	if err != nil {
		return err
	}
	blocks[blockNumber-1].Enabled = false

	if err := s.sessions.SetSchedule(ctx, deviceID, blocks); err != nil {
		return err
	}
	s.log.Infow("schedule_block_cleared", "device_id", deviceID, "block", blockNumber)
	return nil
}

// Sync re-fetches today's schedule and returns it.
func (s *ScheduleService) Sync(ctx context.Context, deviceID string) ([]models.ScheduleBlock, error) {
	return s.currentBlocks(ctx, deviceID)
}

func (s *ScheduleService) currentBlocks(ctx context.Context, deviceID string) ([]models.ScheduleBlock, error) {
	today := models.Weekday(time.Now().Weekday())
	blocks, err := s.sessions.GetSchedule(ctx, deviceID, today)
	if err != nil {
		s.log.Errorw("schedule_fetch_failed", "device_id", deviceID, "err", err)
		return nil, err
	}
	return blocks, nil
}

func validateBlockNumber(n int) error {
	if n < 1 || n > models.ScheduleSlots {
		return fmt.Errorf("block number must be 1-%d, got %d", models.ScheduleSlots, n)
	}
	return nil
}
