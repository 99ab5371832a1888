// Package notifier reports program changes: mode and setpoint transitions,
// holds and schedule switches, to one or more destinations.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smarttherm/fglair-smart/internal/smart"
)

type Notifier interface {
	Notify(title, text string)
}

type Notifiers []Notifier

func (n Notifiers) Notify(title, text string) {
	for _, notifier := range n {
		notifier.Notify(title, text)
	}
}

// Publisher is the engine's update feed.
type Publisher interface {
	Subscribe() chan smart.Update
	Unsubscribe(ch chan smart.Update)
}

// Monitor subscribes to engine updates and notifies on every material
// program change.
type Monitor struct {
	Publisher Publisher
	Notifiers Notifiers
	Logger    *slog.Logger

	previous *smart.Program
}

// Run consumes updates until the context is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Logger.Debug("started")
	defer m.Logger.Debug("stopped")

	ch := m.Publisher.Subscribe()
	defer m.Publisher.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			m.process(update.Program)
		}
	}
}

func (m *Monitor) process(program smart.Program) {
	if m.previous != nil && !changed(*m.previous, program) {
		m.previous = &program
		return
	}
	title, text := describe(m.previous, program)
	m.previous = &program
	if title == "" {
		return
	}
	m.Notifiers.Notify(title, text)
}

func changed(previous, current smart.Program) bool {
	return previous.TargetMode != current.TargetMode ||
		!equalTemperature(previous.TargetTemperature, current.TargetTemperature) ||
		previous.Held != current.Held ||
		previous.Schedule != current.Schedule ||
		previous.EcoActive != current.EcoActive
}

func equalTemperature(a, b *float64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func describe(previous *smart.Program, current smart.Program) (string, string) {
	if previous != nil && previous.Held != current.Held {
		if current.Held {
			return "program held", "the appliance was adjusted manually"
		}
		return "program resumed", modeText(current)
	}
	if previous != nil && previous.Schedule != current.Schedule {
		return fmt.Sprintf("switching to %s schedule", current.Schedule), modeText(current)
	}

	var text string
	if current.EcoActive {
		text = "eco window active"
	}
	return modeText(current), text
}

func modeText(program smart.Program) string {
	switch program.TargetMode {
	case smart.ModeHeat:
		return fmt.Sprintf("heating to %s", temperatureText(program.TargetTemperature))
	case smart.ModeCool:
		return fmt.Sprintf("cooling to %s", temperatureText(program.TargetTemperature))
	case smart.ModeAuto:
		return fmt.Sprintf("holding %s", temperatureText(program.TargetTemperature))
	}
	if !program.FanSpeed.Auto && program.FanSpeed.Level > 0 {
		return fmt.Sprintf("circulating air at %d%%", program.FanSpeed.Level)
	}
	return "off"
}

func temperatureText(temperature *float64) string {
	if temperature == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.1f°C", *temperature)
}
