package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"aromabridge/internal/models"
)

// heartbeat sends a keepalive frame every heartbeatInterval. A failed send
// ends the monitor silently; the receive loop notices the dead transport
// and drives the reconnect.
func (s *Session) heartbeat(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		frame := outboundFrame{
			Type:     models.MsgHeartbeat,
			Data:     json.RawMessage(`"{}"`),
			DeviceID: s.device.ID,
		}
		if err := s.writeFrame(frame); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// repollTracker decides when the session should re-poll around phase
// boundaries. Each boundary is edge-triggered: a one-shot flag arms the
// send and is only re-armed once the countdown re-enters the open interval
// (1, duration-1).
type repollTracker struct {
	sentBeforePauseEnds  bool
	sentAfterPauseStarts bool
	sentBeforeWorkEnds   bool
}

// evaluate inspects the current display countdowns and reports whether a
// re-poll should be sent now. It mutates the one-shot flags.
func (t *repollTracker) evaluate(phase models.Phase, workRemain, pauseRemain, workDuration, pauseDuration int) bool {
	send := false
	switch phase {
	case models.PhasePause:
		if pauseRemain == 1 && !t.sentBeforePauseEnds {
			t.sentBeforePauseEnds = true
			send = true
		}
		if pauseRemain == pauseDuration-1 && !t.sentAfterPauseStarts {
			t.sentAfterPauseStarts = true
			send = true
		}
		if pauseRemain > 1 && pauseRemain < pauseDuration-1 {
			t.sentBeforePauseEnds = false
			t.sentAfterPauseStarts = false
		}
	case models.PhaseWork:
		if workRemain == 1 && !t.sentBeforeWorkEnds {
			t.sentBeforeWorkEnds = true
			send = true
		}
		if workRemain > 1 && workRemain < workDuration-1 {
			t.sentBeforeWorkEnds = false
		}
	}
	return send
}

// repollMonitor re-polls the device at precise phase-boundary moments so
// the authoritative state is refreshed right around transitions. Nothing
// is sent while a previous re-poll is still awaiting its confirmation.
func (s *Session) repollMonitor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	var tracker repollTracker
	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.state.waiting() {
			continue
		}
		phase, workRemain, pauseRemain := s.state.countdown(time.Now())
		workDuration, pauseDuration := s.state.durations()
		if tracker.evaluate(phase, workRemain, pauseRemain, workDuration, pauseDuration) {
			s.sendRepoll(ctx)
		}
	}
}

// countdownMonitor ticks the display countdown every second so observers
// animate smoothly between authoritative server updates. It never touches
// the authoritative remaining values; it derives from them. When the
// active countdown first reaches zero it schedules a single re-poll after
// a grace delay for the remote phase flip.
func (s *Session) countdownMonitor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	lastActive := -1
	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		phase, work, pause := s.state.countdown(time.Now())
		if phase == models.PhaseUnknown {
			continue
		}

		active := pause
		workStatus := 0
		if phase == models.PhaseWork {
			active = work
			workStatus = 1
		}

		if active == 0 && lastActive != 0 {
			s.log.Debugw("countdown_zero", "phase", phase)
			go s.delayedRepoll(ctx, transitionGrace)
		}
		lastActive = active

		s.bus.Publish(models.Message{
			Type:     models.MsgCountdown,
			DeviceID: s.device.ID,
			Data: map[string]any{
				"deviceId":        s.device.ID,
				"workStatus":      workStatus,
				"workRemainTime":  work,
				"pauseRemainTime": pause,
			},
		})
	}
}

func (s *Session) delayedRepoll(ctx context.Context, delay time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(delay):
		s.sendRepoll(ctx)
	}
}
