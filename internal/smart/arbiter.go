package smart

import (
	"log/slog"
	"math"
	"time"
)

// issueGrace is how long after pushing a command the appliance's reported
// state is allowed to lag before a mismatch counts as a manual override.
const issueGrace = 90 * time.Second

// MarkIssued records the command last pushed to the appliance. Reported
// states matching it do not count as manual overrides.
func (s *Smart) MarkIssued(issued RemoteState) {
	s.lock.Lock()
	defer s.lock.Unlock()
	cmd := issued
	s.issued = &cmd
	s.issuedAt = s.now()
}

// SetRemoteState feeds the appliance's reported state into the engine. A
// report that deviates from the last issued command, after the grace period,
// means someone adjusted the appliance directly: the program is held until
// resumed.
func (s *Smart) SetRemoteState(remote RemoteState) {
	s.lock.Lock()
	if s.held || s.issued == nil || s.now().Sub(s.issuedAt) < issueGrace || matches(remote, *s.issued) {
		s.lock.Unlock()
		return
	}
	s.logger.Info("appliance state changed externally, holding program",
		slog.String("mode", remote.Mode.String()),
		slog.Float64("target", remote.Target),
	)
	s.held = true
	s.program.Held = true
	update := Update{Program: s.program, Devices: s.devices}
	s.lock.Unlock()
	s.Publish(update)
}

// matches compares a reported state to an issued command, tolerating the
// appliance's half-degree setpoint granularity.
func matches(remote, issued RemoteState) bool {
	if remote.Mode != issued.Mode {
		return false
	}
	if remote.Mode == ModeOff {
		return true
	}
	return math.Abs(remote.Target-issued.Target) < 0.5
}

// PauseProgram holds the program: the engine keeps computing but nothing is
// pushed to the appliance.
func (s *Smart) PauseProgram() {
	s.lock.Lock()
	s.held = true
	s.program.Held = true
	update := Update{Program: s.program, Devices: s.devices}
	s.lock.Unlock()
	s.Publish(update)
}

// ResumeProgram releases a hold, whether manual or detected, and lets the
// next controller pass reassert the program.
func (s *Smart) ResumeProgram() {
	s.lock.Lock()
	s.held = false
	s.issued = nil
	s.program = s.compute()
	update := Update{Program: s.program, Devices: s.devices}
	s.lock.Unlock()
	s.Publish(update)
}

// Held reports whether the program is currently held.
func (s *Smart) Held() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.held
}
