package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"aromabridge/internal/cloud"
	"aromabridge/internal/models"
)

// Schedule fetch tuning: the HTTP trigger only acknowledges; the data
// lands asynchronously on the socket, so the orchestrator polls the local
// state until the reply arrives or the window closes.
const (
	scheduleFetchTimeout = 5 * time.Second
	scheduleFetchPoll    = 100 * time.Millisecond
)

var (
	// ErrScheduleTimeout means no schedule reply arrived within the window.
	ErrScheduleTimeout = errors.New("session: timed out waiting for schedule reply")
	// ErrNoSession means the device has no running session.
	ErrNoSession = errors.New("session: no session for device")
)

// GetSchedule fetches the device's schedule for a weekday by bridging the
// HTTP trigger to the asynchronous WORK_TIME_FREQUENCY reply. The result
// is always exactly five blocks, padded with disabled filler slots, each
// enabled block tagged with the requested day when the reply carried none.
func (m *Manager) GetSchedule(ctx context.Context, deviceID string, day models.Weekday) ([]models.ScheduleBlock, error) {
	if !day.Valid() {
		return nil, fmt.Errorf("invalid weekday %d", day)
	}
	s, ok := m.session(deviceID)
	if !ok {
		return nil, ErrNoSession
	}

	s.state.beginScheduleFetch()
	if err := m.api.RequestSchedule(ctx, deviceID, day); err != nil {
		return nil, err
	}

	deadline := time.NewTimer(scheduleFetchTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(scheduleFetchPoll)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			m.log.Errorw("schedule_fetch_timeout", "device_id", deviceID, "week", day)
			return nil, ErrScheduleTimeout
		case <-poll.C:
		}

		blocks, fetched := s.state.fetchedSchedule()
		if !fetched {
			continue
		}
		return padSchedule(blocks, day), nil
	}
}

// padSchedule trims/pads to exactly five slots and tags missing day sets.
func padSchedule(blocks []models.ScheduleBlock, day models.Weekday) []models.ScheduleBlock {
	out := make([]models.ScheduleBlock, 0, models.ScheduleSlots)
	out = append(out, blocks...)
	for len(out) < models.ScheduleSlots {
		out = append(out, models.FillerBlock())
	}
	out = out[:models.ScheduleSlots]

	for i := range out {
		if out[i].Days != nil {
			continue
		}
		if out[i].Enabled {
			out[i].Days = []models.Weekday{day}
		} else {
			out[i].Days = []models.Weekday{}
		}
	}
	return out
}

// SetSchedule writes up to five block descriptors as a full 5-slot vendor
// payload. Slots not provided, or provided but disabled, revert to filler
// defaults. The transmitted weekday set is the union of Days across the
// enabled slots, defaulting to every day when nothing is enabled. Writes
// are fire-and-forget: the HTTP verdict is the only confirmation.
func (m *Manager) SetSchedule(ctx context.Context, deviceID string, blocks []models.ScheduleBlock) error {
	if len(blocks) == 0 {
		return errors.New("no schedule blocks provided")
	}
	if len(blocks) > models.ScheduleSlots {
		return fmt.Errorf("at most %d schedule blocks, got %d", models.ScheduleSlots, len(blocks))
	}
	for i, b := range blocks {
		if err := models.ValidateBlock(b); err != nil {
			return fmt.Errorf("block %d: %w", i+1, err)
		}
	}

	entries, week := buildSchedulePayload(blocks)
	if err := m.api.WriteSchedule(ctx, deviceID, entries, week); err != nil {
		m.log.Errorw("schedule_write_failed", "device_id", deviceID, "err", err)
		return err
	}
	m.log.Infow("schedule_written", "device_id", deviceID, "week", week)
	return nil
}

// buildSchedulePayload expands partial blocks into the exact wire shape:
// five entries with string durations, and the enabled-day union.
func buildSchedulePayload(blocks []models.ScheduleBlock) ([]cloud.WorkTimeEntry, []models.Weekday) {
	entries := make([]cloud.WorkTimeEntry, 0, models.ScheduleSlots)
	daySet := make(map[models.Weekday]struct{})

	for i := 0; i < models.ScheduleSlots; i++ {
		if i >= len(blocks) || !blocks[i].Enabled {
			entries = append(entries, fillerEntry())
			continue
		}
		b := blocks[i]
		entries = append(entries, cloud.WorkTimeEntry{
			StartTime:        orDefault(b.StartTime, models.FillerTime),
			EndTime:          orDefault(b.EndTime, models.FillerTime),
			WorkDuration:     strconv.Itoa(orZeroDefault(b.WorkDuration, models.FillerWorkDuration)),
			PauseDuration:    strconv.Itoa(orZeroDefault(b.PauseDuration, models.FillerPauseDuration)),
			Enabled:          1,
			ConsistenceLevel: orZeroDefault(b.ConsistencyLevel, 1),
		})
		days := b.Days
		if len(days) == 0 {
			days = models.AllWeekdays()
		}
		for _, d := range days {
			daySet[d] = struct{}{}
		}
	}

	if len(daySet) == 0 {
		return entries, models.AllWeekdays()
	}
	week := make([]models.Weekday, 0, len(daySet))
	for d := range daySet {
		week = append(week, d)
	}
	sort.Slice(week, func(i, j int) bool { return week[i] < week[j] })
	return entries, week
}

func fillerEntry() cloud.WorkTimeEntry {
	return cloud.WorkTimeEntry{
		StartTime:        models.FillerTime,
		EndTime:          models.FillerTime,
		WorkDuration:     strconv.Itoa(models.FillerWorkDuration),
		PauseDuration:    strconv.Itoa(models.FillerPauseDuration),
		Enabled:          0,
		ConsistenceLevel: 1,
	}
}

func orZeroDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
