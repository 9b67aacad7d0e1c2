package models

// Phase of the diffuser duty cycle.
type Phase string

const (
	PhaseWork    Phase = "work"
	PhasePause   Phase = "pause"
	PhaseUnknown Phase = "unknown"
)

// DutyCycleSnapshot is a read-only copy of a session's duty-cycle state.
// WorkRemain/PauseRemain are the clock-corrected authoritative values
// from the last trusted server confirmation; WorkCountdown/PauseCountdown
// are the derived display values that tick locally between confirmations.
type DutyCycleSnapshot struct {
	Phase              Phase   `json:"phase"`
	WorkRemain         float64 `json:"work_remain_seconds"`
	PauseRemain        float64 `json:"pause_remain_seconds"`
	WorkDuration       int     `json:"work_duration_seconds"`
	PauseDuration      int     `json:"pause_duration_seconds"`
	WorkCountdown      int     `json:"work_countdown"`
	PauseCountdown     int     `json:"pause_countdown"`
	WaitingForResponse bool    `json:"waiting_for_response"`
	Connected          bool    `json:"connected"`
}
