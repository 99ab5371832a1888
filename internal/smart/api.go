package smart

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/smarttherm/fglair-smart/internal/schedule"
	"github.com/smarttherm/fglair-smart/internal/sensors"
)

// GetProgram returns the last computed program.
func (s *Smart) GetProgram() Program {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.program
}

// GetDevices returns the last sensor snapshot.
func (s *Smart) GetDevices() sensors.Devices {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.devices
}

// GetState returns a copy of the durable state.
func (s *Smart) GetState() State {
	s.lock.RLock()
	defer s.lock.RUnlock()
	state := s.state
	schedules := make(map[string][]schedule.Entry, len(state.Schedule.Schedules))
	for name, entries := range state.Schedule.Schedules {
		schedules[name] = append([]schedule.Entry{}, entries...)
	}
	state.Schedule.Schedules = schedules
	return state
}

// GetSchedule returns a copy of the named schedule's entries.
func (s *Smart) GetSchedule(name string) ([]schedule.Entry, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	entries, ok := s.state.Schedule.Schedules[name]
	if !ok {
		return nil, fmt.Errorf("unknown schedule %q", name)
	}
	return append([]schedule.Entry{}, entries...), nil
}

// SetSchedule replaces the named schedule's entries, creating the schedule
// when it does not exist yet. Entries are normalized on the way in.
func (s *Smart) SetSchedule(name string, entries []schedule.Entry) {
	s.lock.Lock()
	s.state.Schedule.Schedules[name] = schedule.Normalize(entries, s.logger)
	s.commit(slog.String("schedule", name))
}

// SetScheduleTo selects the active schedule. Selecting a schedule also
// releases any hold.
func (s *Smart) SetScheduleTo(name string) error {
	s.lock.Lock()
	if _, ok := s.state.Schedule.Schedules[name]; !ok {
		s.lock.Unlock()
		return fmt.Errorf("unknown schedule %q", name)
	}
	s.state.Schedule.Selected = name
	s.restoreSchedule = ""
	s.held = false
	s.issued = nil
	s.commit(slog.String("selected", name))
	return nil
}

// CopyScheduleDay duplicates one weekday's entries onto another within the
// named schedule.
func (s *Smart) CopyScheduleDay(name string, from, to time.Weekday) error {
	s.lock.Lock()
	entries, ok := s.state.Schedule.Schedules[name]
	if !ok {
		s.lock.Unlock()
		return fmt.Errorf("unknown schedule %q", name)
	}
	s.state.Schedule.Schedules[name] = schedule.CopyDay(entries, from, to)
	s.commit(slog.String("schedule", name), slog.String("from", from.String()), slog.String("to", to.String()))
	return nil
}

// SetAutoAway applies a partial update to the away detection settings.
func (s *Smart) SetAutoAway(patch AutoAwayPatch) {
	s.lock.Lock()
	s.state.AutoAway.apply(patch)
	s.commit(slog.Any("autoaway", s.state.AutoAway))
}

// SetEco applies a partial update to the eco window settings.
func (s *Smart) SetEco(patch EcoPatch) {
	s.lock.Lock()
	s.state.Eco.apply(patch)
	s.commit(slog.Any("eco", s.state.Eco))
}

// SetAirClean applies a partial update to the air clean settings.
func (s *Smart) SetAirClean(patch AirCleanPatch) {
	s.lock.Lock()
	s.state.AirClean.apply(patch)
	s.commit(slog.Any("airclean", s.state.AirClean))
}

// commit recomputes the program after a mutation, persists the state and
// publishes the result. It expects the lock held and releases it.
func (s *Smart) commit(attrs ...any) {
	s.program = s.compute()
	state := s.state
	update := Update{Program: s.program, Devices: s.devices}
	s.lock.Unlock()

	s.logger.Debug("state updated", attrs...)
	s.store.Save(state)
	s.Publish(update)
}
