package models

import (
	"fmt"
	"regexp"
)

// Weekday follows the 0=Sunday..6=Saturday convention everywhere in this
// module; the vendor wire format uses the same integers.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// AllWeekdays returns every weekday in order.
func AllWeekdays() []Weekday {
	return []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}
}

func (w Weekday) Valid() bool {
	return w >= Sunday && w <= Saturday
}

// ScheduleSlots is the fixed number of schedule blocks a device carries.
const ScheduleSlots = 5

// Filler values carried by disabled schedule slots.
const (
	FillerTime          = "00:00"
	FillerWorkDuration  = 10
	FillerPauseDuration = 120
)

// ScheduleBlock is one of the five duty-cycle schedule slots.
// Times are "HH:MM" clock strings; durations are seconds.
type ScheduleBlock struct {
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	WorkDuration     int       `json:"work_duration"`
	PauseDuration    int       `json:"pause_duration"`
	Enabled          bool      `json:"enabled"`
	ConsistencyLevel int       `json:"consistency_level"`
	Days             []Weekday `json:"days"`
}

// FillerBlock returns the disabled default slot the vendor expects in
// unused schedule positions.
func FillerBlock() ScheduleBlock {
	return ScheduleBlock{
		StartTime:        FillerTime,
		EndTime:          FillerTime,
		WorkDuration:     FillerWorkDuration,
		PauseDuration:    FillerPauseDuration,
		Enabled:          false,
		ConsistencyLevel: 1,
		Days:             []Weekday{},
	}
}

var clockTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ValidateBlock checks the clock strings, durations and weekdays of an
// enabled block. Disabled blocks are always acceptable because they are
// replaced with filler values before transmission.
func ValidateBlock(b ScheduleBlock) error {
	if !b.Enabled {
		return nil
	}
	if !clockTimeRe.MatchString(b.StartTime) {
		return fmt.Errorf("invalid start_time %q", b.StartTime)
	}
	if !clockTimeRe.MatchString(b.EndTime) {
		return fmt.Errorf("invalid end_time %q", b.EndTime)
	}
	if b.WorkDuration <= 0 {
		return fmt.Errorf("work_duration must be positive, got %d", b.WorkDuration)
	}
	if b.PauseDuration <= 0 {
		return fmt.Errorf("pause_duration must be positive, got %d", b.PauseDuration)
	}
	for _, d := range b.Days {
		if !d.Valid() {
			return fmt.Errorf("invalid weekday %d", d)
		}
	}
	return nil
}
