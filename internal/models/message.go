package models

// WebSocket message types. COUNTDOWN is synthesized locally and never
// crosses the wire.
const (
	MsgHeartbeat         = "HEARTBEAT"
	MsgSupercommand      = "SUPERCOMMAND"
	MsgWorkTimeFrequency = "WORK_TIME_FREQUENCY"
	MsgCountdown         = "COUNTDOWN"
)

// Message is a decoded inbound frame or a locally synthesized update,
// as delivered to observers. Data holds the already double-decoded
// payload: a map for SUPERCOMMAND/COUNTDOWN, a slice for
// WORK_TIME_FREQUENCY.
type Message struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId,omitempty"`
	Data     any    `json:"data,omitempty"`
}
