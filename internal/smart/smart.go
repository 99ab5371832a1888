// Package smart implements the schedule-driven climate program engine: it
// resolves the active schedule entry, fuses room temperatures into a single
// measurement and derives the mode, setpoint and fan speed to command.
package smart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smarttherm/fglair-smart/internal/schedule"
	"github.com/smarttherm/fglair-smart/internal/sensors"
	"github.com/smarttherm/fglair-smart/pkg/pubsub"
)

const tickInterval = time.Minute

// Configuration holds the engine's static settings. The reference room is
// the one whose sensor sits closest to the appliance's own thermostat; the
// difference between it and the fused temperature offsets the setpoints.
type Configuration struct {
	ReferenceRoom string
	FeelsLike     bool
}

// Smart runs the program engine. It ticks once per minute: refresh the
// sensor snapshot, run away detection, recompute the program and publish the
// result to subscribers.
type Smart struct {
	*pubsub.Publisher[Update]
	updater  sensors.Updater
	store    *Store
	resolver *schedule.Resolver
	cfg      Configuration
	logger   *slog.Logger
	now      func() time.Time

	lock     sync.RWMutex
	state    State
	devices  sensors.Devices
	program  Program
	held     bool
	issued   *RemoteState
	issuedAt time.Time
	// quietSince marks the first quiet observation inside the away window;
	// restoreSchedule remembers what to switch back to when the away
	// schedule ends.
	quietSince      *time.Time
	restoreSchedule string
}

func New(updater sensors.Updater, store *Store, cfg Configuration, logger *slog.Logger) *Smart {
	s := Smart{
		Publisher: pubsub.New[Update](logger),
		updater:   updater,
		store:     store,
		resolver:  schedule.NewResolver(logger.With("component", "resolver")),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		state:     store.Load(),
		devices:   sensors.Devices{},
	}
	return &s
}

// Run ticks the engine once immediately and then at every minute boundary,
// until the context is canceled.
func (s *Smart) Run(ctx context.Context) error {
	s.logger.Debug("started")
	defer s.logger.Debug("stopped")

	for {
		s.tick(ctx)
		next := time.Until(s.now().Truncate(tickInterval).Add(tickInterval))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(next):
		}
	}
}

func (s *Smart) tick(ctx context.Context) {
	devices, err := s.updater.Update(ctx)
	if err != nil {
		s.logger.Warn("sensor update failed, keeping previous snapshot", slog.Any("err", err))
	}

	s.lock.Lock()
	if err == nil {
		s.devices = devices
	}
	s.checkAway()
	s.program = s.compute()
	update := Update{Program: s.program, Devices: s.devices}
	state := s.state
	s.lock.Unlock()

	// resolving may have fired or expired triggers
	s.store.Save(state)
	s.Publish(update)
}

// compute derives the program from the current state and sensor snapshot.
// Callers must hold the lock.
func (s *Smart) compute() Program {
	now := s.now()
	selected := s.state.Schedule.Selected
	program := Program{
		TargetMode: ModeOff,
		FanSpeed:   schedule.AutoFan,
		Schedule:   selected,
		Held:       s.held,
		Away:       selected == ScheduleAway,
	}

	if env, ok := s.devices.Environ(s.cfg.ReferenceRoom); ok && env.Online {
		ref := s.roomTemperature(env)
		program.ReferenceTemperature = &ref
	}

	entry := s.resolver.Resolve(s.state.Schedule.Schedules[selected], now, s.devices)
	if entry == nil {
		s.logger.Debug("no schedule entry in effect", slog.String("schedule", selected))
		return program
	}
	active := *entry
	program.Entry = &active
	program.ProgramLow = ptr(entry.Low)
	program.ProgramHigh = ptr(entry.High)
	program.FanSpeed = entry.Fan

	low, high := entry.Low, entry.High
	if delta := s.ecoDelta(now); delta > 0 {
		program.EcoActive = true
		low -= delta
		high += delta
	}

	fused := s.fuse(entry, program.ReferenceTemperature)
	program.CurrentTemperature = fused
	if fused == nil {
		s.logger.Warn("no usable temperature reading, leaving appliance off")
		return program
	}

	// the appliance regulates on its own sensor: shift the setpoints by the
	// gap between the fused measurement and the reference room. Band
	// membership is decided on the shifted bounds as well.
	var diff float64
	if program.ReferenceTemperature != nil {
		diff = *fused - *program.ReferenceTemperature
	}
	adjustedLow, adjustedHigh := low-diff, high-diff
	program.AdjustedLow = &adjustedLow
	program.AdjustedHigh = &adjustedHigh

	switch {
	case entry.Low == entry.High:
		program.TargetMode = ModeAuto
		program.TargetTemperature = &adjustedLow
	case *fused < adjustedLow:
		program.TargetMode = ModeHeat
		program.TargetTemperature = &adjustedLow
	case *fused > adjustedHigh:
		program.TargetMode = ModeCool
		program.TargetTemperature = &adjustedHigh
	default:
		// in band: keep the running mode so the appliance does not cycle
		switch s.program.TargetMode {
		case ModeHeat:
			program.TargetMode = ModeHeat
			program.TargetTemperature = &adjustedLow
		case ModeCool:
			program.TargetMode = ModeCool
			program.TargetTemperature = &adjustedHigh
		case ModeAuto:
			program.TargetMode = ModeAuto
			program.TargetTemperature = &adjustedLow
		default:
			program.TargetMode = ModeOff
		}
		if s.state.AirClean.Enable && program.TargetMode == ModeOff {
			program.FanSpeed = schedule.FanSpeed{Level: s.state.AirClean.Speed}
		}
	}

	s.logger.Debug("program computed",
		slog.String("mode", program.TargetMode.String()),
		slog.Any("target", program.TargetTemperature),
		slog.Any("current", fused),
	)
	return program
}

// fuse returns the weighted mean of the entry's room temperatures. A room
// with no recent activity uses its empty weight when one is set. Without
// room weights, or when no weighted room has an online sensor, the reference
// temperature stands in.
func (s *Smart) fuse(entry *schedule.Entry, reference *float64) *float64 {
	var sum, totalWeight float64
	for room, weight := range entry.Rooms {
		env, ok := s.devices.Environ(room)
		if !ok || !env.Online {
			continue
		}
		w := weight.Occupied
		if weight.Empty != nil && !s.devices.Active(room) {
			w = *weight.Empty
		}
		sum += w * s.roomTemperature(env)
		totalWeight += w
	}
	if totalWeight == 0 {
		return reference
	}
	return ptr(sum / totalWeight)
}

func (s *Smart) roomTemperature(env sensors.Environ) float64 {
	if s.cfg.FeelsLike {
		return sensors.Humidex(env.Temperature, env.Humidity)
	}
	return env.Temperature
}

// ecoDelta returns how far to widen the comfort band at now: the guard delta
// shortly before the daily eco window, the eco delta inside it, zero
// otherwise.
func (s *Smart) ecoDelta(now time.Time) float64 {
	eco := s.state.Eco
	if !eco.Enable || !eco.Days[now.Weekday()] {
		return 0
	}
	minute := now.Hour()*60 + now.Minute()
	switch {
	case minute >= eco.From && minute <= eco.To:
		return eco.EcoDelta
	case minute >= eco.From-eco.Guard && minute < eco.From:
		return eco.GuardDelta
	}
	return 0
}

// checkAway switches to the away schedule after a sustained quiet period,
// and back on the first sign of life. The quiet clock only starts inside the
// configured daily window, so an overnight quiet stretch does not count
// until the window opens. Callers must hold the lock.
func (s *Smart) checkAway() {
	now := s.now()
	away := s.state.Schedule.Selected == ScheduleAway && s.restoreSchedule != ""

	if !s.devices.AnyOnline() {
		// no sensor data is not evidence of absence
		s.quietSince = nil
		return
	}
	if s.devices.AnyActive() {
		s.quietSince = nil
		if away {
			s.logger.Info("activity detected, restoring schedule", slog.String("schedule", s.restoreSchedule))
			s.state.Schedule.Selected = s.restoreSchedule
			s.restoreSchedule = ""
		}
		return
	}

	cfg := s.state.AutoAway
	if !cfg.Enable || away {
		return
	}
	if s.quietSince == nil {
		minute := now.Hour()*60 + now.Minute()
		if minute >= cfg.From && minute <= cfg.To {
			s.quietSince = ptr(now)
		}
		return
	}
	if now.Sub(*s.quietSince) >= time.Duration(cfg.Wait)*time.Minute {
		s.logger.Info("no activity, switching to away schedule", slog.Duration("quiet", now.Sub(*s.quietSince)))
		s.restoreSchedule = s.state.Schedule.Selected
		s.state.Schedule.Selected = ScheduleAway
	}
}

func ptr[T any](v T) *T { return &v }
