// Package sensors defines the per-room sensor snapshot consumed by the
// program engine, and the sources that produce it.
package sensors

import (
	"context"
	"encoding/json"
	"math"
)

// Reading is a single sensor reading. The concrete types are Environ, Motion
// and Magnet; consumers switch on the type for exhaustive handling.
type Reading interface {
	IsOnline() bool
	reading()
}

// Environ is a temperature/humidity sensor reading.
type Environ struct {
	Online      bool    `json:"online"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// Motion is a motion sensor reading. Active means motion was observed
// recently (within the source's activity window), not necessarily right now.
type Motion struct {
	Online bool `json:"online"`
	Active bool `json:"active"`
}

// Magnet is a door/window contact sensor reading. Open and Closed indicate a
// recent open/close event within the source's activity window.
type Magnet struct {
	Online bool `json:"online"`
	Open   bool `json:"open"`
	Closed bool `json:"close"`
}

func (e Environ) IsOnline() bool { return e.Online }
func (m Motion) IsOnline() bool  { return m.Online }
func (m Magnet) IsOnline() bool  { return m.Online }

func (Environ) reading() {}
func (Motion) reading()  {}
func (Magnet) reading()  {}

// Devices maps a room name to the sensor readings reported for that room.
type Devices map[string][]Reading

// Environ returns the room's environment reading, if it has one.
func (d Devices) Environ(room string) (Environ, bool) {
	for _, r := range d[room] {
		if e, ok := r.(Environ); ok {
			return e, true
		}
	}
	return Environ{}, false
}

// Motion returns the room's motion reading, if it has one.
func (d Devices) Motion(room string) (Motion, bool) {
	for _, r := range d[room] {
		if m, ok := r.(Motion); ok {
			return m, true
		}
	}
	return Motion{}, false
}

// Magnet returns the room's contact reading, if it has one.
func (d Devices) Magnet(room string) (Magnet, bool) {
	for _, r := range d[room] {
		if m, ok := r.(Magnet); ok {
			return m, true
		}
	}
	return Magnet{}, false
}

// Active reports whether the room shows recent motion or contact activity
// from an online sensor.
func (d Devices) Active(room string) bool {
	for _, r := range d[room] {
		switch v := r.(type) {
		case Motion:
			if v.Online && v.Active {
				return true
			}
		case Magnet:
			if v.Online && (v.Open || v.Closed) {
				return true
			}
		case Environ:
		}
	}
	return false
}

// AnyActive reports whether any room shows recent activity.
func (d Devices) AnyActive() bool {
	for room := range d {
		if d.Active(room) {
			return true
		}
	}
	return false
}

// AnyOnline reports whether any motion or contact sensor in any room is
// online. The away detector treats "nothing online" as insufficient data.
func (d Devices) AnyOnline() bool {
	for _, readings := range d {
		for _, r := range readings {
			switch r.(type) {
			case Motion, Magnet:
				if r.IsOnline() {
					return true
				}
			case Environ:
			}
		}
	}
	return false
}

// MarshalJSON renders each room as an object keyed by sensor kind, e.g.
// {"living":{"environ":{...},"motion":{...}}}.
func (d Devices) MarshalJSON() ([]byte, error) {
	rooms := make(map[string]map[string]Reading, len(d))
	for room, readings := range d {
		kinds := make(map[string]Reading, len(readings))
		for _, r := range readings {
			switch r.(type) {
			case Environ:
				kinds["environ"] = r
			case Motion:
				kinds["motion"] = r
			case Magnet:
				kinds["magnet"] = r
			}
		}
		rooms[room] = kinds
	}
	return json.Marshal(rooms)
}

// Updater produces the latest snapshot of all known rooms. Implementations
// must honour the context deadline; a failed update leaves the caller's
// previous snapshot in effect.
type Updater interface {
	Update(ctx context.Context) (Devices, error)
}

// Humidex converts a temperature to its "feels like" equivalent given the
// relative humidity (Environment Canada formula).
func Humidex(temperature, humidity float64) float64 {
	vapourPressure := humidity / 100 * 6.112 * math.Exp(17.67*temperature/(temperature+243.5))
	return temperature + 0.5555*(vapourPressure-10)
}
