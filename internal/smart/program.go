package smart

import (
	"encoding/json"
	"fmt"

	"github.com/smarttherm/fglair-smart/internal/schedule"
	"github.com/smarttherm/fglair-smart/internal/sensors"
)

// Mode is the commanded heating/cooling state of the appliance.
type Mode int

const (
	ModeOff Mode = iota
	ModeHeat
	ModeCool
	ModeAuto
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeHeat:
		return "heat"
	case ModeCool:
		return "cool"
	case ModeAuto:
		return "auto"
	}
	return "unknown"
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	for _, mode := range []Mode{ModeOff, ModeHeat, ModeCool, ModeAuto} {
		if mode.String() == label {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("invalid mode %q", label)
}

// Program is the engine's output: the climate command derived from the
// active schedule entry and the current sensor snapshot. It is recomputed on
// every tick and never persisted.
type Program struct {
	TargetMode           Mode               `json:"targetMode"`
	TargetTemperature    *float64           `json:"targetTemperatureC"`
	CurrentTemperature   *float64           `json:"currentTemperatureC"`
	ReferenceTemperature *float64           `json:"currentReferenceTemperatureC"`
	ProgramLow           *float64           `json:"programLowTempC"`
	ProgramHigh          *float64           `json:"programHighTempC"`
	AdjustedLow          *float64           `json:"adjustedLowTempC"`
	AdjustedHigh         *float64           `json:"adjustedHighTempC"`
	FanSpeed             schedule.FanSpeed  `json:"fanSpeed"`
	Entry                *schedule.Entry    `json:"activeEntry,omitempty"`
	Schedule             string             `json:"schedule"`
	Held                 bool               `json:"held"`
	EcoActive            bool               `json:"ecoActive"`
	Away                 bool               `json:"away"`
}

// RemoteState is the appliance's own reported command state, fed into the
// engine once per device poll.
type RemoteState struct {
	Mode    Mode
	Target  float64
	Current float64
	Fan     schedule.FanSpeed
}

// Update is published to subscribers after every tick and every mutation.
type Update struct {
	Program Program         `json:"program"`
	Devices sensors.Devices `json:"devices"`
}
