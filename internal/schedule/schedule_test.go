package schedule

import (
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestWeekMinute(t *testing.T) {
	// Monday 08:00
	monday := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.Local)
	assert.Equal(t, 1440+480, WeekMinute(monday))
	// Sunday 00:00
	sunday := time.Date(2024, time.March, 3, 0, 0, 0, 0, time.Local)
	assert.Equal(t, 0, WeekMinute(sunday))
}

func TestSort_TriggerTieBreak(t *testing.T) {
	entries := []Entry{
		{WeekMinute: 480, Trigger: []string{"kitchen"}},
		{WeekMinute: 480},
		{WeekMinute: 60},
	}
	Sort(entries)

	assert.Equal(t, 60, entries[0].WeekMinute)
	assert.Empty(t, entries[1].Trigger)
	assert.Equal(t, []string{"kitchen"}, entries[2].Trigger)
}

func TestNormalize(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	negative := -1.0
	entries := Normalize([]Entry{
		{WeekMinute: 480, Low: 24, High: 20},
		{WeekMinute: MinutesPerWeek, Low: 18, High: 21},
		{WeekMinute: 120, Low: 18, High: 21, Rooms: map[string]RoomWeight{"den": {Occupied: 100, Empty: &negative}}},
		{WeekMinute: 60, Low: 18, High: 21},
	}, logger)

	require.Len(t, entries, 2)
	assert.Equal(t, 60, entries[0].WeekMinute)
	assert.Equal(t, 480, entries[1].WeekMinute)
	// inverted band was swapped
	assert.Equal(t, 20.0, entries[1].Low)
	assert.Equal(t, 24.0, entries[1].High)
}

func TestEqual_IgnoresTriggered(t *testing.T) {
	now := time.Now()
	a := []Entry{{WeekMinute: 480, Low: 20, High: 24, Trigger: []string{"hall"}}}
	b := []Entry{{WeekMinute: 480, Low: 20, High: 24, Trigger: []string{"hall"}, Triggered: &now}}
	assert.True(t, Equal(a, b))

	b[0].High = 25
	assert.False(t, Equal(a, b))
}

func TestCopyDay(t *testing.T) {
	entries := []Entry{
		{WeekMinute: 1*MinutesPerDay + 480, Low: 20, High: 24}, // Mon 08:00
		{WeekMinute: 1*MinutesPerDay + 1260, Low: 16, High: 20, Trigger: []string{"bedroom"}}, // Mon 21:00
		{WeekMinute: 2*MinutesPerDay + 600, Low: 10, High: 30}, // Tue 10:00, to be replaced
		{WeekMinute: 3 * MinutesPerDay},                        // Wed 00:00, untouched
	}

	result := CopyDay(entries, time.Monday, time.Tuesday)

	require.Len(t, result, 5)
	assert.Equal(t, 1*MinutesPerDay+480, result[0].WeekMinute)
	assert.Equal(t, 1*MinutesPerDay+1260, result[1].WeekMinute)
	assert.Equal(t, 2*MinutesPerDay+480, result[2].WeekMinute)
	assert.Equal(t, 2*MinutesPerDay+1260, result[3].WeekMinute)
	assert.Equal(t, 3*MinutesPerDay, result[4].WeekMinute)

	// Tuesday mirrors Monday, shifted one day
	assert.Equal(t, result[0].Low, result[2].Low)
	assert.Equal(t, result[1].Trigger, result[3].Trigger)
}

func TestFanSpeed_JSON(t *testing.T) {
	body, err := json.Marshal(AutoFan)
	require.NoError(t, err)
	assert.Equal(t, `"auto"`, string(body))

	var f FanSpeed
	require.NoError(t, json.Unmarshal([]byte(`30`), &f))
	assert.Equal(t, FanSpeed{Level: 30}, f)

	require.NoError(t, json.Unmarshal([]byte(`"auto"`), &f))
	assert.True(t, f.Auto)

	assert.Error(t, json.Unmarshal([]byte(`"high"`), &f))
}
