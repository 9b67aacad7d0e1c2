package session

import (
	"sync"
	"time"

	"aromabridge/internal/models"
)

// maxNetworkDelayMS is the ceiling above which a confirmation's transit
// time is treated as clock desync and no correction is applied.
const maxNetworkDelayMS = 5000

// stateConfirmation is the decoded payload of an inbound SUPERCOMMAND
// frame: the device's full configured durations, the raw remaining values
// as measured remotely at UpdateTime, and the dispatch timestamp from the
// frame envelope.
type stateConfirmation struct {
	DeviceID     string
	WorkTime     int
	PauseTime    int
	WorkRemain   float64
	PauseRemain  float64
	WorkStatus   int
	SendTimeMS   int64
	UpdateTimeMS int64
}

// correctionElapsed computes how many seconds stale the confirmation's
// remaining values are: the state's age on the server plus the network
// transit time. Negative or excessive transit means the clocks disagree,
// and a missing timestamp means there is nothing to correct with; both
// yield zero correction so the raw values are used unmodified.
func correctionElapsed(sendTimeMS, updateTimeMS, receiveTimeMS int64) float64 {
	if sendTimeMS == 0 || updateTimeMS == 0 {
		return 0
	}
	networkDelay := receiveTimeMS - sendTimeMS
	if networkDelay < 0 || networkDelay > maxNetworkDelayMS {
		return 0
	}
	stateAge := sendTimeMS - updateTimeMS
	return float64(stateAge+networkDelay) / 1000.0
}

// dutyCycleState is the per-session duty-cycle record. One mutex guards
// everything; writers keep to their own fields (the message handler owns
// the authoritative values, the re-poll path owns waitingForResponse, the
// countdown monitor only reads).
type dutyCycleState struct {
	mu sync.Mutex

	phase         models.Phase
	workRemain    float64
	pauseRemain   float64
	workDuration  int
	pauseDuration int

	waitingForResponse bool
	lastUpdate         time.Time

	schedule        []models.ScheduleBlock
	scheduleFetched bool
}

func newDutyCycleState() *dutyCycleState {
	st := &dutyCycleState{
		phase:      models.PhaseUnknown,
		lastUpdate: time.Now(),
	}
	st.schedule = fillerSchedule()
	return st
}

func fillerSchedule() []models.ScheduleBlock {
	blocks := make([]models.ScheduleBlock, models.ScheduleSlots)
	for i := range blocks {
		blocks[i] = models.FillerBlock()
	}
	return blocks
}

// applyConfirmation folds a trusted server confirmation into the state,
// correcting both remaining values for the elapsed time between the remote
// measurement and local arrival.
func (st *dutyCycleState) applyConfirmation(rep stateConfirmation, receivedAt time.Time) {
	elapsed := correctionElapsed(rep.SendTimeMS, rep.UpdateTimeMS, receivedAt.UnixMilli())

	st.mu.Lock()
	defer st.mu.Unlock()

	st.workDuration = rep.WorkTime
	st.pauseDuration = rep.PauseTime
	st.workRemain = clampSeconds(rep.WorkRemain - elapsed)
	st.pauseRemain = clampSeconds(rep.PauseRemain - elapsed)
	if rep.WorkStatus == 1 {
		st.phase = models.PhaseWork
	} else {
		st.phase = models.PhasePause
	}
	st.lastUpdate = receivedAt
	st.waitingForResponse = false
}

func clampSeconds(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// markRepollSent records that a re-poll command is in flight; re-polls are
// suppressed until the next confirmation clears the flag.
func (st *dutyCycleState) markRepollSent() {
	st.mu.Lock()
	st.waitingForResponse = true
	st.mu.Unlock()
}

func (st *dutyCycleState) waiting() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.waitingForResponse
}

// replaceSchedule swaps in a freshly fetched block list wholesale and
// marks the round-trip complete.
func (st *dutyCycleState) replaceSchedule(blocks []models.ScheduleBlock) {
	st.mu.Lock()
	st.schedule = blocks
	st.scheduleFetched = true
	st.mu.Unlock()
}

// beginScheduleFetch clears the fetched marker so a later arrival can be
// distinguished from stale data.
func (st *dutyCycleState) beginScheduleFetch() {
	st.mu.Lock()
	st.scheduleFetched = false
	st.schedule = nil
	st.mu.Unlock()
}

// fetchedSchedule returns a copy of the blocks and whether a reply has
// landed since the last beginScheduleFetch.
func (st *dutyCycleState) fetchedSchedule() ([]models.ScheduleBlock, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.scheduleFetched {
		return nil, false
	}
	out := make([]models.ScheduleBlock, len(st.schedule))
	copy(out, st.schedule)
	return out, true
}

// countdown derives the integer display countdowns at now. Only the active
// phase ticks; the inactive phase is pinned to its full configured duration
// until the phase flips.
func (st *dutyCycleState) countdown(now time.Time) (phase models.Phase, work, pause int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.countdownLocked(now)
}

func (st *dutyCycleState) countdownLocked(now time.Time) (models.Phase, int, int) {
	elapsed := now.Sub(st.lastUpdate).Seconds()
	switch st.phase {
	case models.PhaseWork:
		return models.PhaseWork, int(clampSeconds(st.workRemain - elapsed)), st.pauseDuration
	case models.PhasePause:
		return models.PhasePause, st.workDuration, int(clampSeconds(st.pauseRemain - elapsed))
	default:
		return models.PhaseUnknown, 0, 0
	}
}

// durations returns the configured full phase durations.
func (st *dutyCycleState) durations() (work, pause int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.workDuration, st.pauseDuration
}

// snapshot copies the state for external readers.
func (st *dutyCycleState) snapshot(now time.Time) models.DutyCycleSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	phase, work, pause := st.countdownLocked(now)
	return models.DutyCycleSnapshot{
		Phase:              phase,
		WorkRemain:         st.workRemain,
		PauseRemain:        st.pauseRemain,
		WorkDuration:       st.workDuration,
		PauseDuration:      st.pauseDuration,
		WorkCountdown:      work,
		PauseCountdown:     pause,
		WaitingForResponse: st.waitingForResponse,
	}
}
