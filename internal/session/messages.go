package session

import (
	"encoding/json"
	"time"

	"aromabridge/internal/models"
)

// wireFrame is the outer envelope of inbound frames. sendTime is the
// server's dispatch timestamp in Unix ms.
type wireFrame struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	SendTime int64           `json:"sendTime"`
}

// wireStateReply is the data payload of an inbound SUPERCOMMAND: the state
// confirmation. Remaining values are as measured remotely at updateTime.
type wireStateReply struct {
	DeviceID        json.Number `json:"deviceId"`
	WorkTime        int         `json:"workTime"`
	PauseTime       int         `json:"pauseTime"`
	WorkRemainTime  float64     `json:"workRemainTime"`
	PauseRemainTime float64     `json:"pauseRemainTime"`
	WorkStatus      int         `json:"workStatus"`
	UpdateTime      int64       `json:"updateTime"`
}

// wireScheduleBlock is one slot of an inbound WORK_TIME_FREQUENCY reply.
// Duration and weekday fields are pointers so absent values fall back to
// the vendor defaults rather than zero (a zero weekday means Sunday).
type wireScheduleBlock struct {
	StartHour        string `json:"startHour"`
	EndHour          string `json:"endHour"`
	WorkSec          *int   `json:"workSec"`
	PauseSec         *int   `json:"pauseSec"`
	Enabled          int    `json:"enabled"`
	ConsistenceLevel *int   `json:"consistenceLevel"`
	WeekDay          *int   `json:"weekDay"`
}

// handleFrame decodes one inbound frame and dispatches it. Malformed
// frames are logged and dropped; the session keeps running. Every decoded
// frame is re-broadcast to observers after processing.
func (s *Session) handleFrame(raw []byte, receivedAt time.Time) {
	if string(raw) == successBanner {
		s.log.Debugw("ws_banner_received")
		return
	}

	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.log.Errorw("ws_frame_decode_failed", "err", err)
		return
	}

	// The data field is sometimes a JSON-encoded string needing a second
	// decode pass.
	payload := frame.Data
	var nested string
	if len(payload) > 0 && json.Unmarshal(payload, &nested) == nil {
		payload = json.RawMessage(nested)
	}

	var generic any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &generic); err != nil {
			s.log.Errorw("ws_data_decode_failed", "err", err)
			return
		}
	}

	switch frame.Type {
	case models.MsgWorkTimeFrequency:
		s.handleScheduleReply(payload)
	case models.MsgSupercommand:
		s.handleStateReply(payload, frame.SendTime, receivedAt)
	}

	s.bus.Publish(models.Message{
		Type:     frame.Type,
		DeviceID: s.device.ID,
		Data:     generic,
	})
}

// handleScheduleReply replaces the cached schedule blocks wholesale and
// marks the fetch round-trip complete.
func (s *Session) handleScheduleReply(payload json.RawMessage) {
	var wire []wireScheduleBlock
	if err := json.Unmarshal(payload, &wire); err != nil {
		s.log.Errorw("schedule_reply_decode_failed", "err", err)
		return
	}

	blocks := make([]models.ScheduleBlock, 0, len(wire))
	for _, w := range wire {
		// Days stays nil when the reply omits the weekday; the orchestrator
		// then tags the block with the day it requested.
		var days []models.Weekday
		if w.WeekDay != nil && models.Weekday(*w.WeekDay).Valid() {
			days = []models.Weekday{models.Weekday(*w.WeekDay)}
		}
		blocks = append(blocks, models.ScheduleBlock{
			StartTime:        orDefault(w.StartHour, models.FillerTime),
			EndTime:          orDefault(w.EndHour, models.FillerTime),
			WorkDuration:     orDefaultInt(w.WorkSec, models.FillerWorkDuration),
			PauseDuration:    orDefaultInt(w.PauseSec, models.FillerPauseDuration),
			Enabled:          w.Enabled == 1,
			ConsistencyLevel: orDefaultInt(w.ConsistenceLevel, 1),
			Days:             days,
		})
	}
	s.state.replaceSchedule(blocks)
	s.log.Debugw("schedule_reply_stored", "blocks", len(blocks))
}

// handleStateReply applies a state confirmation if it names this session's
// device.
func (s *Session) handleStateReply(payload json.RawMessage, sendTimeMS int64, receivedAt time.Time) {
	var wire wireStateReply
	if err := json.Unmarshal(payload, &wire); err != nil {
		s.log.Errorw("state_reply_decode_failed", "err", err)
		return
	}
	if wire.DeviceID.String() != s.device.ID {
		s.log.Debugw("state_reply_other_device", "reply_device_id", wire.DeviceID.String())
		return
	}

	s.state.applyConfirmation(stateConfirmation{
		DeviceID:     wire.DeviceID.String(),
		WorkTime:     wire.WorkTime,
		PauseTime:    wire.PauseTime,
		WorkRemain:   wire.WorkRemainTime,
		PauseRemain:  wire.PauseRemainTime,
		WorkStatus:   wire.WorkStatus,
		SendTimeMS:   sendTimeMS,
		UpdateTimeMS: wire.UpdateTime,
	}, receivedAt)

	snap := s.state.snapshot(receivedAt)
	s.log.Debugw("state_confirmed",
		"phase", snap.Phase,
		"work_remain", snap.WorkRemain,
		"pause_remain", snap.PauseRemain,
	)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
