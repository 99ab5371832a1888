package smart

import (
	"github.com/smarttherm/fglair-smart/internal/schedule"
)

// Reserved schedule names. Exactly one schedule is selected at any time;
// the away detector switches to ScheduleAway and back.
const (
	ScheduleNormal   = "normal"
	ScheduleVacation = "vacation"
	ScheduleAway     = "away"
)

// State is the engine's durable state, loaded at startup and persisted after
// every mutation.
type State struct {
	Version  int            `json:"version"`
	Schedule ScheduleState  `json:"schedule"`
	AutoAway AutoAwayConfig `json:"autoaway"`
	Eco      EcoConfig      `json:"eco"`
	AirClean AirCleanConfig `json:"airclean"`
}

type ScheduleState struct {
	Selected  string                      `json:"selected"`
	Schedules map[string][]schedule.Entry `json:"schedules"`
}

// AutoAwayConfig controls away detection. From/To bound the daily window
// (minutes of day) during which sustained quiet may switch to the away
// schedule; Wait is the required quiet duration in minutes.
type AutoAwayConfig struct {
	Enable bool `json:"enable"`
	From   int  `json:"from"`
	To     int  `json:"to"`
	Wait   int  `json:"wait"`
}

// EcoConfig controls the daily energy-saving window. During the Guard
// minutes before From, the comfort band is widened by GuardDelta; within
// [From, To] it is widened by EcoDelta instead.
type EcoConfig struct {
	Enable     bool    `json:"enable"`
	Days       [7]bool `json:"days"`
	From       int     `json:"from"`
	To         int     `json:"to"`
	Guard      int     `json:"guard"`
	GuardDelta float64 `json:"gDelta"`
	EcoDelta   float64 `json:"eDelta"`
}

// AirCleanConfig, when enabled, runs the fan at the given speed instead of
// leaving the appliance idle while the temperature is in band.
type AirCleanConfig struct {
	Enable bool `json:"enable"`
	Speed  int  `json:"speed"`
}

func defaultState() State {
	return State{
		Version: 1,
		Schedule: ScheduleState{
			Selected: ScheduleNormal,
			Schedules: map[string][]schedule.Entry{
				ScheduleNormal:   {},
				ScheduleVacation: {},
				ScheduleAway:     {},
			},
		},
		AutoAway: AutoAwayConfig{From: 6 * 60, To: 21 * 60, Wait: 60},
		Eco:      EcoConfig{From: 9 * 60, To: 17 * 60, Guard: 60, GuardDelta: 0.5, EcoDelta: 1.5},
		AirClean: AirCleanConfig{Speed: 30},
	}
}

// AutoAwayPatch is a partial update; nil fields leave the current value.
type AutoAwayPatch struct {
	Enable *bool `json:"enable"`
	From   *int  `json:"from"`
	To     *int  `json:"to"`
	Wait   *int  `json:"wait"`
}

func (c *AutoAwayConfig) apply(p AutoAwayPatch) {
	if p.Enable != nil {
		c.Enable = *p.Enable
	}
	if p.From != nil {
		c.From = *p.From
	}
	if p.To != nil {
		c.To = *p.To
	}
	if p.Wait != nil {
		c.Wait = *p.Wait
	}
}

// EcoPatch is a partial update; nil fields leave the current value.
type EcoPatch struct {
	Enable     *bool    `json:"enable"`
	Days       *[7]bool `json:"days"`
	From       *int     `json:"from"`
	To         *int     `json:"to"`
	Guard      *int     `json:"guard"`
	GuardDelta *float64 `json:"gDelta"`
	EcoDelta   *float64 `json:"eDelta"`
}

func (c *EcoConfig) apply(p EcoPatch) {
	if p.Enable != nil {
		c.Enable = *p.Enable
	}
	if p.Days != nil {
		c.Days = *p.Days
	}
	if p.From != nil {
		c.From = *p.From
	}
	if p.To != nil {
		c.To = *p.To
	}
	if p.Guard != nil {
		c.Guard = *p.Guard
	}
	if p.GuardDelta != nil {
		c.GuardDelta = *p.GuardDelta
	}
	if p.EcoDelta != nil {
		c.EcoDelta = *p.EcoDelta
	}
}

// AirCleanPatch is a partial update; nil fields leave the current value.
type AirCleanPatch struct {
	Enable *bool `json:"enable"`
	Speed  *int  `json:"speed"`
}

func (c *AirCleanConfig) apply(p AirCleanPatch) {
	if p.Enable != nil {
		c.Enable = *p.Enable
	}
	if p.Speed != nil {
		c.Speed = *p.Speed
	}
}
