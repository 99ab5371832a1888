// Package controller keeps the appliance in sync with the program engine: it
// polls the appliance's reported state, feeds it back for override
// detection, and pushes the program's commands unless the program is held.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/smarttherm/fglair-smart/internal/fglair"
	"github.com/smarttherm/fglair-smart/internal/schedule"
	"github.com/smarttherm/fglair-smart/internal/smart"
)

// Appliance is the device API surface the controller needs.
type Appliance interface {
	GetDevices(ctx context.Context) ([]fglair.Device, error)
	GetProperties(ctx context.Context, dsn string) (fglair.Properties, error)
	SetTemperature(ctx context.Context, dsn string, celsius float64) error
	SetOperationMode(ctx context.Context, dsn string, mode fglair.OperationMode) error
	SetFanSpeed(ctx context.Context, dsn string, fan fglair.FanSetting) error
}

// Engine is the program engine surface the controller needs.
type Engine interface {
	GetProgram() smart.Program
	Held() bool
	SetRemoteState(smart.RemoteState)
	MarkIssued(smart.RemoteState)
}

// Controller drives one appliance. When no serial number is configured it
// adopts the first device registered to the account.
type Controller struct {
	appliance Appliance
	engine    Engine
	interval  time.Duration
	dsn       string
	logger    *slog.Logger
}

func New(appliance Appliance, engine Engine, interval time.Duration, dsn string, logger *slog.Logger) *Controller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Controller{
		appliance: appliance,
		engine:    engine,
		interval:  interval,
		dsn:       dsn,
		logger:    logger,
	}
}

// Run polls and reconciles the appliance until the context is canceled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Debug("started")
	defer c.logger.Debug("stopped")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.reconcile(ctx); err != nil {
			c.logger.Error("failed to sync appliance", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Controller) reconcile(ctx context.Context) error {
	if c.dsn == "" {
		if err := c.discover(ctx); err != nil {
			return err
		}
	}

	properties, err := c.appliance.GetProperties(ctx, c.dsn)
	if err != nil {
		return err
	}
	reported := reportedState(properties)
	c.engine.SetRemoteState(reported)

	if c.engine.Held() {
		return nil
	}

	program := c.engine.GetProgram()
	if program.Entry == nil {
		// no schedule entry in effect: leave the appliance alone
		return nil
	}
	return c.push(ctx, reported, desiredState(program))
}

func (c *Controller) discover(ctx context.Context) error {
	devices, err := c.appliance.GetDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return errors.New("no devices registered")
	}
	c.dsn = devices[0].DSN
	c.logger.Info("appliance found", slog.String("dsn", c.dsn), slog.String("name", devices[0].Name))
	return nil
}

// push writes the properties that differ from the appliance's reported
// state, then records the full command with the engine.
func (c *Controller) push(ctx context.Context, reported, desired smart.RemoteState) error {
	mode := operationMode(desired)
	fan := fanSetting(desired.Fan)

	if mode != operationMode(reported) {
		if err := c.appliance.SetOperationMode(ctx, c.dsn, mode); err != nil {
			return err
		}
	}
	if mode != fglair.OpOff && mode != fglair.OpFan && math.Abs(desired.Target-reported.Target) >= 0.25 {
		if err := c.appliance.SetTemperature(ctx, c.dsn, desired.Target); err != nil {
			return err
		}
	}
	if mode != fglair.OpOff && fan != fanSetting(reported.Fan) {
		if err := c.appliance.SetFanSpeed(ctx, c.dsn, fan); err != nil {
			return err
		}
	}

	c.engine.MarkIssued(desired)
	return nil
}

// reportedState converts appliance properties to the engine's terms. Dry and
// fan modes count as off: the program did not ask for heating or cooling.
func reportedState(properties fglair.Properties) smart.RemoteState {
	state := smart.RemoteState{
		Target:  properties.TargetTemperature(),
		Current: properties.CurrentTemperature(),
	}
	switch properties.OperationMode {
	case fglair.OpHeat:
		state.Mode = smart.ModeHeat
	case fglair.OpCool:
		state.Mode = smart.ModeCool
	case fglair.OpAuto:
		state.Mode = smart.ModeAuto
	default:
		state.Mode = smart.ModeOff
	}
	if properties.FanSpeed == fglair.FanAuto {
		state.Fan = schedule.AutoFan
	} else {
		state.Fan = schedule.FanSpeed{Level: properties.FanSpeed.Percent()}
	}
	return state
}

// desiredState converts the program to the command to issue.
func desiredState(program smart.Program) smart.RemoteState {
	state := smart.RemoteState{Mode: program.TargetMode, Fan: program.FanSpeed}
	if program.TargetTemperature != nil {
		state.Target = *program.TargetTemperature
	}
	return state
}

func operationMode(state smart.RemoteState) fglair.OperationMode {
	switch state.Mode {
	case smart.ModeHeat:
		return fglair.OpHeat
	case smart.ModeCool:
		return fglair.OpCool
	case smart.ModeAuto:
		return fglair.OpAuto
	}
	// off with a fixed fan speed means circulate only
	if !state.Fan.Auto && state.Fan.Level > 0 {
		return fglair.OpFan
	}
	return fglair.OpOff
}

func fanSetting(fan schedule.FanSpeed) fglair.FanSetting {
	if fan.Auto {
		return fglair.FanAuto
	}
	return fglair.FanFromPercent(fan.Level)
}
