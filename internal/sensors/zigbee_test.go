package sensors

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (f fakeMessage) Duplicate() bool   { return false }
func (f fakeMessage) Qos() byte         { return 0 }
func (f fakeMessage) Retained() bool    { return false }
func (f fakeMessage) Topic() string     { return f.topic }
func (f fakeMessage) MessageID() uint16 { return 0 }
func (f fakeMessage) Payload() []byte   { return f.payload }
func (f fakeMessage) Ack()              {}

var _ paho.Message = fakeMessage{}

func TestZigbeeSource_Update(t *testing.T) {
	current := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.Local)
	var lock sync.Mutex
	s := &ZigbeeSource{
		prefix:  "zigbee2mqtt",
		logger:  slog.Default(),
		devices: make(map[string]*deviceState),
		now: func() time.Time {
			lock.Lock()
			defer lock.Unlock()
			return current
		},
	}

	s.receive(nil, fakeMessage{topic: "zigbee2mqtt/Living Temp", payload: []byte(`{"temperature":21.5,"humidity":45}`)})
	s.receive(nil, fakeMessage{topic: "zigbee2mqtt/Living Motion", payload: []byte(`{"occupancy":true}`)})
	s.receive(nil, fakeMessage{topic: "zigbee2mqtt/Porch Door", payload: []byte(`{"contact":false}`)})
	s.receive(nil, fakeMessage{topic: "zigbee2mqtt/Porch Door", payload: []byte(`{"not json`)})

	devices, err := s.Update(context.Background())
	require.NoError(t, err)

	environ, ok := devices.Environ("Living")
	require.True(t, ok)
	assert.True(t, environ.Online)
	assert.Equal(t, 21.5, environ.Temperature)
	assert.Equal(t, 45.0, environ.Humidity)

	assert.True(t, devices.Active("Living"))
	magnet, ok := devices.Magnet("Porch")
	require.True(t, ok)
	assert.True(t, magnet.Open)
	assert.False(t, magnet.Closed)

	// motion ages out of the activity window, then the sensor goes stale
	lock.Lock()
	current = current.Add(45 * time.Minute)
	lock.Unlock()
	devices, err = s.Update(context.Background())
	require.NoError(t, err)
	motion, ok := devices.Motion("Living")
	require.True(t, ok)
	assert.True(t, motion.Online)
	assert.False(t, motion.Active)

	lock.Lock()
	current = current.Add(3 * time.Hour)
	lock.Unlock()
	devices, err = s.Update(context.Background())
	require.NoError(t, err)
	motion, _ = devices.Motion("Living")
	assert.False(t, motion.Online)
}

func TestRoomName(t *testing.T) {
	assert.Equal(t, "Living", roomName("Living Temp"))
	assert.Equal(t, "Porch", roomName("Porch Door"))
	assert.Equal(t, "Bedroom", roomName("Bedroom"))
}
