// Package schedule implements week-relative comfort schedules: time-indexed
// temperature bands with optional occupancy triggers, and their resolution
// against a point in time.
package schedule

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/clambin/go-common/set"
)

const (
	MinutesPerDay  = 24 * 60
	MinutesPerWeek = 7 * MinutesPerDay
)

// WeekMinute returns t as minutes since Sunday 00:00 local time (0..10079).
func WeekMinute(t time.Time) int {
	return int(t.Weekday())*MinutesPerDay + t.Hour()*60 + t.Minute()
}

// Entry is one schedule point: from its weekMinute onward the comfort band
// [Low, High] applies, until a later entry supersedes it. Entries with a
// Trigger only become eligible after recent activity in one of the named
// rooms, and stay eligible for 24 hours from that event.
type Entry struct {
	WeekMinute int                   `json:"weektime"`
	Low        float64               `json:"low"`
	High       float64               `json:"high"`
	Fan        FanSpeed              `json:"fan"`
	Rooms      map[string]RoomWeight `json:"rooms,omitempty"`
	Trigger    []string              `json:"trigger,omitempty"`

	// Triggered is runtime bookkeeping: when the trigger last fired. It is
	// persisted when set but never participates in entry comparisons.
	Triggered *time.Time `json:"_triggered,omitempty"`
}

// RoomWeight is the fusion weight of a room's temperature. Occupied applies
// when the room shows recent motion; Empty, when set, replaces it while the
// room's motion sensor reports no recent activity.
type RoomWeight struct {
	Occupied float64  `json:"occupied"`
	Empty    *float64 `json:"empty,omitempty"`
}

func (w RoomWeight) equal(other RoomWeight) bool {
	if w.Occupied != other.Occupied {
		return false
	}
	if (w.Empty == nil) != (other.Empty == nil) {
		return false
	}
	return w.Empty == nil || *w.Empty == *other.Empty
}

// Equal compares two entries structurally, ignoring trigger timestamps.
func (e Entry) Equal(other Entry) bool {
	if e.WeekMinute != other.WeekMinute || e.Low != other.Low || e.High != other.High || e.Fan != other.Fan {
		return false
	}
	if len(e.Rooms) != len(other.Rooms) || len(e.Trigger) != len(other.Trigger) {
		return false
	}
	for name, weight := range e.Rooms {
		w, ok := other.Rooms[name]
		if !ok || !weight.equal(w) {
			return false
		}
	}
	for i, room := range e.Trigger {
		if other.Trigger[i] != room {
			return false
		}
	}
	return true
}

// sortKey orders entries by weekMinute, trigger entries after plain ones at
// the same instant so that a plain entry wins the tie.
func (e Entry) sortKey() int {
	key := 2 * e.WeekMinute
	if len(e.Trigger) > 0 {
		key++
	}
	return key
}

// Sort orders entries in place by weekMinute, trigger entries secondary.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].sortKey() < entries[j].sortKey()
	})
}

// Equal compares two entry lists structurally, ignoring trigger timestamps.
func Equal(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Normalize validates, cleans and sorts a list of entries. Malformed entries
// are dropped with a warning; valid ones survive.
func Normalize(entries []Entry, logger *slog.Logger) []Entry {
	cleaned := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if err := e.validate(); err != nil {
			logger.Warn("dropping invalid schedule entry", slog.Int("weekMinute", e.WeekMinute), slog.Any("err", err))
			continue
		}
		if e.Low > e.High {
			e.Low, e.High = e.High, e.Low
		}
		if len(e.Trigger) > 0 {
			e.Trigger = set.New(e.Trigger...).ListOrdered()
		}
		cleaned = append(cleaned, e)
	}
	Sort(cleaned)
	return cleaned
}

func (e Entry) validate() error {
	if e.WeekMinute < 0 || e.WeekMinute >= MinutesPerWeek {
		return fmt.Errorf("weekMinute %d out of range", e.WeekMinute)
	}
	for name, weight := range e.Rooms {
		if weight.Occupied < 0 || (weight.Empty != nil && *weight.Empty < 0) {
			return fmt.Errorf("negative weight for room %q", name)
		}
	}
	return nil
}

// CopyDay duplicates all entries of one weekday onto another, replacing any
// entries previously on the destination day. Trigger timestamps do not
// travel with the copies.
func CopyDay(entries []Entry, from, to time.Weekday) []Entry {
	if from == to {
		return entries
	}
	result := make([]Entry, 0, len(entries))
	var copies []Entry
	for _, e := range entries {
		switch time.Weekday(e.WeekMinute / MinutesPerDay) {
		case to:
			continue
		case from:
			dup := e
			dup.WeekMinute += (int(to) - int(from)) * MinutesPerDay
			dup.Triggered = nil
			copies = append(copies, dup)
		}
		result = append(result, e)
	}
	result = append(result, copies...)
	Sort(result)
	return result
}

// FanSpeed is either automatic or a fixed rotation speed (0-100).
type FanSpeed struct {
	Auto  bool
	Level int
}

var AutoFan = FanSpeed{Auto: true}

func (f FanSpeed) String() string {
	if f.Auto {
		return "auto"
	}
	return fmt.Sprintf("%d", f.Level)
}

// MarshalJSON renders "auto" or a bare number, matching the on-disk format.
func (f FanSpeed) MarshalJSON() ([]byte, error) {
	if f.Auto {
		return json.Marshal("auto")
	}
	return json.Marshal(f.Level)
}

func (f *FanSpeed) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		if label != "auto" {
			return fmt.Errorf("invalid fan speed %q", label)
		}
		*f = AutoFan
		return nil
	}
	var level int
	if err := json.Unmarshal(data, &level); err != nil {
		return fmt.Errorf("invalid fan speed: %w", err)
	}
	*f = FanSpeed{Level: level}
	return nil
}

func (f *FanSpeed) UnmarshalYAML(unmarshal func(any) error) error {
	var label string
	if err := unmarshal(&label); err == nil && label == "auto" {
		*f = AutoFan
		return nil
	}
	var level int
	if err := unmarshal(&level); err != nil {
		return fmt.Errorf("invalid fan speed: %w", err)
	}
	*f = FanSpeed{Level: level}
	return nil
}
