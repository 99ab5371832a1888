package smart

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smarttherm/fglair-smart/internal/schedule"
	"github.com/smarttherm/fglair-smart/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpdater struct {
	devices sensors.Devices
	err     error
}

func (f *fakeUpdater) Update(_ context.Context) (sensors.Devices, error) {
	return f.devices, f.err
}

// monday returns the given time on Monday 2024-03-04 local time.
func monday(hour, minute int) time.Time {
	return time.Date(2024, time.March, 4, hour, minute, 0, 0, time.Local)
}

func environ(temperature float64) sensors.Environ {
	return sensors.Environ{Online: true, Temperature: temperature, Humidity: 50}
}

func testSmart(t *testing.T, entries []schedule.Entry) (*Smart, *fakeUpdater) {
	t.Helper()
	updater := fakeUpdater{devices: sensors.Devices{"living": {environ(18)}}}
	store := NewStore(filepath.Join(t.TempDir(), "state.json"), discardLogger())
	s := New(&updater, store, Configuration{ReferenceRoom: "living"}, discardLogger())
	s.state.Schedule.Schedules[ScheduleNormal] = schedule.Normalize(entries, discardLogger())
	at := monday(8, 5)
	s.now = func() time.Time { return at }
	return s, &updater
}

func (s *Smart) tickAt(at time.Time) {
	s.now = func() time.Time { return at }
	s.tick(context.Background())
}

func TestSmart_Heat(t *testing.T) {
	s, _ := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})

	s.tick(context.Background())

	program := s.GetProgram()
	assert.Equal(t, ModeHeat, program.TargetMode)
	require.NotNil(t, program.TargetTemperature)
	assert.Equal(t, 20.0, *program.TargetTemperature)
	require.NotNil(t, program.CurrentTemperature)
	assert.Equal(t, 18.0, *program.CurrentTemperature)
	assert.Equal(t, ScheduleNormal, program.Schedule)
	assert.False(t, program.Held)
}

func TestSmart_Hysteresis(t *testing.T) {
	s, updater := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})

	s.tick(context.Background())
	assert.Equal(t, ModeHeat, s.GetProgram().TargetMode)

	// back in band: keep heating rather than cycle off
	updater.devices = sensors.Devices{"living": {environ(21)}}
	s.tickAt(monday(8, 10))
	program := s.GetProgram()
	assert.Equal(t, ModeHeat, program.TargetMode)
	assert.Equal(t, 20.0, *program.TargetTemperature)

	// above the band: switch to cooling
	updater.devices = sensors.Devices{"living": {environ(25)}}
	s.tickAt(monday(8, 15))
	program = s.GetProgram()
	assert.Equal(t, ModeCool, program.TargetMode)
	assert.Equal(t, 24.0, *program.TargetTemperature)

	// back in band again: keep cooling
	updater.devices = sensors.Devices{"living": {environ(22)}}
	s.tickAt(monday(8, 20))
	assert.Equal(t, ModeCool, s.GetProgram().TargetMode)
}

func TestSmart_AutoOnPinnedBand(t *testing.T) {
	s, _ := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 22, High: 22, Fan: schedule.AutoFan},
	})

	s.tick(context.Background())
	program := s.GetProgram()
	assert.Equal(t, ModeAuto, program.TargetMode)
	assert.Equal(t, 22.0, *program.TargetTemperature)
}

func TestSmart_FusionShiftsSetpoint(t *testing.T) {
	s, updater := testSmart(t, []schedule.Entry{
		{
			WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan,
			Rooms: map[string]schedule.RoomWeight{
				"living":  {Occupied: 1},
				"bedroom": {Occupied: 1},
			},
		},
	})
	updater.devices = sensors.Devices{
		"living":  {environ(18)},
		"bedroom": {environ(16)},
	}

	s.tick(context.Background())

	// fused 17, reference 18: setpoint raised by the gap
	program := s.GetProgram()
	assert.Equal(t, ModeHeat, program.TargetMode)
	assert.Equal(t, 17.0, *program.CurrentTemperature)
	assert.Equal(t, 21.0, *program.TargetTemperature)
	assert.Equal(t, 20.0, *program.ProgramLow)
	assert.Equal(t, 21.0, *program.AdjustedLow)
}

func TestSmart_ModeUsesAdjustedBand(t *testing.T) {
	s, updater := testSmart(t, []schedule.Entry{
		{
			WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan,
			Rooms: map[string]schedule.RoomWeight{
				"living":  {Occupied: 1},
				"bedroom": {Occupied: 1},
			},
		},
	})
	updater.devices = sensors.Devices{
		"living":  {environ(16)},
		"bedroom": {environ(22)},
	}

	s.tick(context.Background())

	// fused 19, reference 16: the band shifts to [17, 21] and 19 is inside it
	program := s.GetProgram()
	assert.Equal(t, 19.0, *program.CurrentTemperature)
	assert.Equal(t, 17.0, *program.AdjustedLow)
	assert.Equal(t, 21.0, *program.AdjustedHigh)
	assert.Equal(t, ModeOff, program.TargetMode)

	// fused 14, shifted low 22: below the band, so heat to the shifted setpoint
	updater.devices = sensors.Devices{
		"living":  {environ(16)},
		"bedroom": {environ(12)},
	}
	s.tickAt(monday(8, 10))
	program = s.GetProgram()
	assert.Equal(t, ModeHeat, program.TargetMode)
	assert.Equal(t, 22.0, *program.TargetTemperature)
}

func TestSmart_EmptyRoomWeight(t *testing.T) {
	s, updater := testSmart(t, []schedule.Entry{
		{
			WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan,
			Rooms: map[string]schedule.RoomWeight{
				"living":  {Occupied: 1},
				"bedroom": {Occupied: 3, Empty: ptr(0.0)},
			},
		},
	})
	updater.devices = sensors.Devices{
		"living":  {environ(18)},
		"bedroom": {environ(30), sensors.Motion{Online: true, Active: false}},
	}

	s.tick(context.Background())

	// bedroom idle: its weight drops to zero and living alone decides
	program := s.GetProgram()
	assert.Equal(t, 18.0, *program.CurrentTemperature)
	assert.Equal(t, ModeHeat, program.TargetMode)
	assert.Equal(t, 20.0, *program.TargetTemperature)
}

func TestSmart_Eco(t *testing.T) {
	s, updater := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})
	s.state.Eco.Enable = true
	s.state.Eco.Days = [7]bool{true, true, true, true, true, true, true}
	updater.devices = sensors.Devices{"living": {environ(19)}}

	// inside the eco window the band widens to [18.5, 25.5]: no heating
	s.tickAt(monday(10, 0))
	program := s.GetProgram()
	assert.True(t, program.EcoActive)
	assert.Equal(t, ModeOff, program.TargetMode)
	assert.Equal(t, 18.5, *program.AdjustedLow)

	// in the guard period before the window the band is [19.5, 24.5]
	s.tickAt(monday(8, 30))
	program = s.GetProgram()
	assert.True(t, program.EcoActive)
	assert.Equal(t, ModeHeat, program.TargetMode)
	assert.Equal(t, 19.5, *program.TargetTemperature)

	// outside window and guard the full band applies
	s.tickAt(monday(7, 0))
	program = s.GetProgram()
	assert.False(t, program.EcoActive)
	assert.Equal(t, ModeHeat, program.TargetMode)
	assert.Equal(t, 20.0, *program.TargetTemperature)
}

func TestSmart_AirClean(t *testing.T) {
	s, updater := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})
	s.state.AirClean = AirCleanConfig{Enable: true, Speed: 40}
	updater.devices = sensors.Devices{"living": {environ(22)}}

	s.tick(context.Background())

	program := s.GetProgram()
	assert.Equal(t, ModeOff, program.TargetMode)
	assert.Equal(t, schedule.FanSpeed{Level: 40}, program.FanSpeed)
}

func TestSmart_NoReadings(t *testing.T) {
	s, updater := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})
	updater.devices = sensors.Devices{"living": {sensors.Environ{Online: false}}}

	s.tick(context.Background())

	program := s.GetProgram()
	assert.Equal(t, ModeOff, program.TargetMode)
	assert.Nil(t, program.CurrentTemperature)
}

func TestSmart_UpdateFailureKeepsSnapshot(t *testing.T) {
	s, updater := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})

	s.tick(context.Background())
	assert.Equal(t, ModeHeat, s.GetProgram().TargetMode)

	updater.err = assert.AnError
	updater.devices = nil
	s.tickAt(monday(8, 10))
	assert.Equal(t, ModeHeat, s.GetProgram().TargetMode)
	assert.Equal(t, 18.0, *s.GetProgram().CurrentTemperature)
}

func TestSmart_Away(t *testing.T) {
	s, updater := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})
	s.state.AutoAway = AutoAwayConfig{Enable: true, From: 6 * 60, To: 21 * 60, Wait: 60}
	s.state.Schedule.Schedules[ScheduleAway] = []schedule.Entry{
		{WeekMinute: 0, Low: 15, High: 28, Fan: schedule.AutoFan},
	}
	updater.devices = sensors.Devices{
		"living": {environ(18), sensors.Motion{Online: true, Active: false}},
	}
	// quiet for less than the wait: stay on the normal schedule
	s.tickAt(monday(9, 0))
	s.tickAt(monday(9, 30))
	assert.Equal(t, ScheduleNormal, s.GetProgram().Schedule)

	// an hour of quiet inside the window: switch to away
	s.tickAt(monday(10, 5))
	program := s.GetProgram()
	assert.Equal(t, ScheduleAway, program.Schedule)
	assert.True(t, program.Away)
	assert.Equal(t, 15.0, *program.ProgramLow)

	// motion restores the previous schedule
	updater.devices = sensors.Devices{
		"living": {environ(18), sensors.Motion{Online: true, Active: true}},
	}
	s.tickAt(monday(10, 10))
	program = s.GetProgram()
	assert.Equal(t, ScheduleNormal, program.Schedule)
	assert.False(t, program.Away)
}

func TestSmart_AwayNeedsOnlineSensor(t *testing.T) {
	s, updater := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})
	s.state.AutoAway = AutoAwayConfig{Enable: true, From: 6 * 60, To: 21 * 60, Wait: 60}
	updater.devices = sensors.Devices{"living": {environ(18)}}

	// only a temperature sensor online: no evidence of absence
	s.tickAt(monday(9, 0))
	s.tickAt(monday(10, 5))
	assert.Equal(t, ScheduleNormal, s.GetProgram().Schedule)
}

func TestSmart_AwayWindow(t *testing.T) {
	s, updater := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})
	s.state.AutoAway = AutoAwayConfig{Enable: true, From: 6 * 60, To: 21 * 60, Wait: 60}
	updater.devices = sensors.Devices{
		"living": {environ(18), sensors.Motion{Online: true, Active: false}},
	}

	// overnight quiet does not count: the quiet clock starts at window open
	s.tickAt(monday(2, 0))
	s.tickAt(monday(6, 0))
	s.tickAt(monday(6, 30))
	assert.Equal(t, ScheduleNormal, s.GetProgram().Schedule)

	// a full hour after window open, away kicks in
	s.tickAt(monday(7, 0))
	assert.Equal(t, ScheduleAway, s.GetProgram().Schedule)
}

func TestSmart_Arbiter(t *testing.T) {
	s, _ := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})
	s.tick(context.Background())

	issued := RemoteState{Mode: ModeHeat, Target: 20, Fan: schedule.AutoFan}
	s.MarkIssued(issued)

	// within the grace period a mismatch is the appliance catching up
	s.SetRemoteState(RemoteState{Mode: ModeCool, Target: 25})
	assert.False(t, s.Held())

	s.now = func() time.Time { return monday(8, 7) }

	// a matching report, or one within setpoint granularity, is not a hold
	s.SetRemoteState(issued)
	assert.False(t, s.Held())
	s.SetRemoteState(RemoteState{Mode: ModeHeat, Target: 20.4})
	assert.False(t, s.Held())

	// a real deviation holds the program
	s.SetRemoteState(RemoteState{Mode: ModeCool, Target: 25})
	assert.True(t, s.Held())
	assert.True(t, s.GetProgram().Held)

	s.ResumeProgram()
	assert.False(t, s.Held())
	assert.False(t, s.GetProgram().Held)
}

func TestSmart_PauseResume(t *testing.T) {
	s, _ := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})
	s.tick(context.Background())

	s.PauseProgram()
	assert.True(t, s.Held())
	assert.True(t, s.GetProgram().Held)

	s.ResumeProgram()
	assert.False(t, s.Held())
}

func TestSmart_SelectSchedule(t *testing.T) {
	s, _ := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})
	s.tick(context.Background())
	s.PauseProgram()

	require.Error(t, s.SetScheduleTo("no such schedule"))

	// selecting a schedule releases the hold
	require.NoError(t, s.SetScheduleTo(ScheduleVacation))
	program := s.GetProgram()
	assert.Equal(t, ScheduleVacation, program.Schedule)
	assert.False(t, program.Held)
}

func TestSmart_SetSchedule(t *testing.T) {
	s, _ := testSmart(t, nil)

	s.SetSchedule(ScheduleNormal, []schedule.Entry{
		{WeekMinute: 600, Low: 24, High: 20, Fan: schedule.AutoFan}, // inverted band
		{WeekMinute: -1, Low: 10, High: 12},                        // invalid, dropped
	})

	entries, err := s.GetSchedule(ScheduleNormal)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 20.0, entries[0].Low)
	assert.Equal(t, 24.0, entries[0].High)

	_, err = s.GetSchedule("no such schedule")
	assert.Error(t, err)
}

func TestSmart_CopyScheduleDay(t *testing.T) {
	s, _ := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})

	require.NoError(t, s.CopyScheduleDay(ScheduleNormal, time.Monday, time.Tuesday))
	require.Error(t, s.CopyScheduleDay("no such schedule", time.Monday, time.Tuesday))

	entries, err := s.GetSchedule(ScheduleNormal)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 2*schedule.MinutesPerDay+480, entries[1].WeekMinute)
}

func TestSmart_Patches(t *testing.T) {
	s, _ := testSmart(t, nil)

	s.SetAutoAway(AutoAwayPatch{Enable: ptr(true), Wait: ptr(30)})
	s.SetEco(EcoPatch{Enable: ptr(true), EcoDelta: ptr(2.0)})
	s.SetAirClean(AirCleanPatch{Enable: ptr(true)})

	state := s.GetState()
	assert.True(t, state.AutoAway.Enable)
	assert.Equal(t, 30, state.AutoAway.Wait)
	assert.Equal(t, 6*60, state.AutoAway.From)
	assert.True(t, state.Eco.Enable)
	assert.Equal(t, 2.0, state.Eco.EcoDelta)
	assert.True(t, state.AirClean.Enable)
	assert.Equal(t, 30, state.AirClean.Speed)
}

func TestSmart_Publishes(t *testing.T) {
	s, _ := testSmart(t, []schedule.Entry{
		{WeekMinute: schedule.MinutesPerDay + 480, Low: 20, High: 24, Fan: schedule.AutoFan},
	})
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	s.tick(context.Background())

	update := <-ch
	assert.Equal(t, ModeHeat, update.Program.TargetMode)
	assert.Contains(t, update.Devices, "living")
}
