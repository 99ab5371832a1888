package datalog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/smarttherm/fglair-smart/internal/schedule"
	"github.com/smarttherm/fglair-smart/internal/sensors"
	"github.com/smarttherm/fglair-smart/internal/smart"
	"github.com/smarttherm/fglair-smart/pkg/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataLog(t *testing.T) *DataLog {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := Open(filepath.Join(t.TempDir(), "history.db"), 7*24*time.Hour, pubsub.New[smart.Update](logger), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func testUpdate(target float64) smart.Update {
	current := target - 1
	return smart.Update{
		Program: smart.Program{
			TargetMode:         smart.ModeHeat,
			TargetTemperature:  &target,
			CurrentTemperature: &current,
			FanSpeed:           schedule.AutoFan,
			Schedule:           "normal",
		},
		Devices: sensors.Devices{
			"living": {
				sensors.Environ{Online: true, Temperature: current, Humidity: 55},
				sensors.Motion{Online: true, Active: true},
			},
			"cellar": {
				sensors.Environ{Online: false},
			},
		},
	}
}

func TestDataLog_RecordAndQuery(t *testing.T) {
	d := testDataLog(t)
	ctx := context.Background()

	base := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	for i := range 3 {
		at := base.Add(time.Duration(i) * time.Minute)
		d.now = func() time.Time { return at }
		require.NoError(t, d.record(ctx, testUpdate(20+float64(i))))
	}

	samples, err := d.ProgramHistory(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, "heat", samples[0].Mode)
	require.NotNil(t, samples[2].Target)
	assert.Equal(t, 22.0, *samples[2].Target)
	assert.True(t, samples[0].Timestamp.Before(samples[2].Timestamp))

	rooms, err := d.RoomHistory(ctx, "living", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, 55.0, rooms[0].Humidity)
	assert.True(t, rooms[0].Active)

	// offline sensor is not recorded
	rooms, err = d.RoomHistory(ctx, "cellar", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestDataLog_Prune(t *testing.T) {
	d := testDataLog(t)
	ctx := context.Background()

	base := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }
	require.NoError(t, d.record(ctx, testUpdate(20)))

	d.now = func() time.Time { return base.Add(8 * 24 * time.Hour) }
	require.NoError(t, d.record(ctx, testUpdate(21)))
	require.NoError(t, d.prune(ctx))

	samples, err := d.ProgramHistory(ctx, base.Add(-time.Hour), base.Add(9*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 21.0, *samples[0].Target)
}

func TestDataLog_Run(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := pubsub.New[smart.Update](logger)
	d, err := Open(filepath.Join(t.TempDir(), "history.db"), 0, publisher, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Run(ctx) }()

	assert.Eventually(t, func() bool { return publisher.Subscribers() > 0 }, time.Second, 10*time.Millisecond)
	publisher.Publish(testUpdate(20))

	assert.Eventually(t, func() bool {
		samples, err := d.ProgramHistory(context.Background(), time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		return err == nil && len(samples) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
