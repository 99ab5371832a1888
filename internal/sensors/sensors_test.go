package sensors

import (
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestDevices_Active(t *testing.T) {
	tests := []struct {
		name     string
		readings []Reading
		want     bool
	}{
		{"no sensors", nil, false},
		{"environ only", []Reading{Environ{Online: true, Temperature: 20}}, false},
		{"recent motion", []Reading{Motion{Online: true, Active: true}}, true},
		{"idle motion", []Reading{Motion{Online: true, Active: false}}, false},
		{"offline motion", []Reading{Motion{Online: false, Active: true}}, false},
		{"door opened", []Reading{Magnet{Online: true, Open: true}}, true},
		{"door closed", []Reading{Magnet{Online: true, Closed: true}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Devices{"room": tt.readings}
			assert.Equal(t, tt.want, d.Active("room"))
		})
	}
}

func TestDevices_AnyOnline(t *testing.T) {
	d := Devices{
		"living":  {Environ{Online: true, Temperature: 21}},
		"hallway": {Motion{Online: false}},
	}
	assert.False(t, d.AnyOnline())

	d["hallway"] = []Reading{Motion{Online: true}}
	assert.True(t, d.AnyOnline())
}

func TestDevices_MarshalJSON(t *testing.T) {
	d := Devices{
		"living": {
			Environ{Online: true, Temperature: 21.5, Humidity: 45},
			Motion{Online: true, Active: true},
		},
	}
	body, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"living": {
			"environ": {"online": true, "temperature": 21.5, "humidity": 45},
			"motion": {"online": true, "active": true}
		}
	}`, string(body))
}

func TestHumidex(t *testing.T) {
	// 30°C at 70% humidity famously feels like ~41°C
	assert.InDelta(t, 41.0, Humidex(30, 70), 0.7)
	// dry air: humidex falls below the dry-bulb temperature
	assert.Less(t, Humidex(20, 10), 20.0)
	// more humidity never feels colder
	assert.GreaterOrEqual(t, Humidex(25, 80), Humidex(25, 40))
}
