package fglair

import "math"

// Appliance property names. Each is read from the properties endpoint and
// written as a datapoint.
const (
	PropAdjustTemperature  = "adjust_temperature"
	PropOperationMode      = "operation_mode"
	PropFanSpeed           = "fan_speed"
	PropDisplayTemperature = "display_temperature"
)

// OperationMode is the appliance's operating mode as reported and written
// through the API.
type OperationMode int

const (
	OpOff  OperationMode = 0
	OpAuto OperationMode = 2
	OpCool OperationMode = 3
	OpDry  OperationMode = 4
	OpFan  OperationMode = 5
	OpHeat OperationMode = 6
)

func (m OperationMode) String() string {
	switch m {
	case OpOff:
		return "off"
	case OpAuto:
		return "auto"
	case OpCool:
		return "cool"
	case OpDry:
		return "dry"
	case OpFan:
		return "fan"
	case OpHeat:
		return "heat"
	}
	return "unknown"
}

// FanSetting is the appliance's fan speed step.
type FanSetting int

const (
	FanQuiet  FanSetting = 0
	FanLow    FanSetting = 1
	FanMedium FanSetting = 2
	FanHigh   FanSetting = 3
	FanAuto   FanSetting = 4
)

func (f FanSetting) String() string {
	switch f {
	case FanQuiet:
		return "quiet"
	case FanLow:
		return "low"
	case FanMedium:
		return "medium"
	case FanHigh:
		return "high"
	case FanAuto:
		return "auto"
	}
	return "unknown"
}

// FanFromPercent maps a 0-100 rotation speed onto the appliance's steps.
func FanFromPercent(percent int) FanSetting {
	switch {
	case percent <= 10:
		return FanQuiet
	case percent <= 30:
		return FanLow
	case percent <= 60:
		return FanMedium
	default:
		return FanHigh
	}
}

// Percent returns the step's nominal rotation speed.
func (f FanSetting) Percent() int {
	switch f {
	case FanQuiet:
		return 10
	case FanLow:
		return 30
	case FanMedium:
		return 60
	default:
		return 100
	}
}

// EncodeTemperature converts degrees Celsius to the setpoint wire format:
// tenths of a degree, in half-degree steps.
func EncodeTemperature(celsius float64) int {
	return int(math.Round(celsius*2)) * 5
}

// DecodeTemperature converts a setpoint wire value back to degrees Celsius.
func DecodeTemperature(raw int) float64 {
	return float64(raw) / 10
}

// DecodeDisplayTemperature converts the appliance's measured temperature,
// reported in hundredths of a degree with a 50 degree offset.
func DecodeDisplayTemperature(raw int) float64 {
	return float64(raw)/100 - 50
}

// Properties is the decoded subset of the appliance's property list the
// engine acts on.
type Properties struct {
	AdjustTemperature  int
	OperationMode      OperationMode
	FanSpeed           FanSetting
	DisplayTemperature int
}

// TargetTemperature returns the setpoint in degrees Celsius.
func (p Properties) TargetTemperature() float64 {
	return DecodeTemperature(p.AdjustTemperature)
}

// CurrentTemperature returns the measured temperature in degrees Celsius.
func (p Properties) CurrentTemperature() float64 {
	return DecodeDisplayTemperature(p.DisplayTemperature)
}
