package sensors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	// activityWindow is how long a motion/contact event counts as "recent".
	activityWindow = 30 * time.Minute
	// staleAfter marks a sensor offline when it stops reporting.
	staleAfter = 2 * time.Hour
)

// ZigbeeSource builds room snapshots from zigbee2mqtt messages. Sensors are
// assigned to rooms by their friendly name: "<Room> Temp", "<Room> Motion",
// "<Room> Door" etc. all land in room "<Room>".
type ZigbeeSource struct {
	client paho.Client
	prefix string
	logger *slog.Logger
	now    func() time.Time

	lock    sync.RWMutex
	devices map[string]*deviceState
}

type deviceState struct {
	room        string
	kind        string
	lastSeen    time.Time
	temperature float64
	humidity    float64
	lastMotion  time.Time
	lastOpen    time.Time
	lastClose   time.Time
}

// zigbeeMessage is the subset of the zigbee2mqtt payload we care about.
type zigbeeMessage struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Occupancy   *bool    `json:"occupancy"`
	Contact     *bool    `json:"contact"`
}

// NewZigbeeSource connects to the broker and subscribes to all devices under
// the given topic prefix (typically "zigbee2mqtt").
func NewZigbeeSource(broker, prefix string, logger *slog.Logger) (*ZigbeeSource, error) {
	s := &ZigbeeSource{
		prefix:  prefix,
		logger:  logger,
		now:     time.Now,
		devices: make(map[string]*deviceState),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("fglair-smart").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c paho.Client) {
			token := c.Subscribe(prefix+"/+", 0, s.receive)
			if token.Wait() && token.Error() != nil {
				logger.Error("subscribe failed", slog.Any("err", token.Error()))
			}
		})

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("broker connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return s, nil
}

// Close disconnects from the broker.
func (s *ZigbeeSource) Close() error {
	s.client.Disconnect(1000)
	return nil
}

func (s *ZigbeeSource) receive(_ paho.Client, msg paho.Message) {
	name := strings.TrimPrefix(msg.Topic(), s.prefix+"/")
	var payload zigbeeMessage
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		s.logger.Debug("ignoring unparsable message", slog.String("topic", msg.Topic()), slog.Any("err", err))
		return
	}

	now := s.now()
	s.lock.Lock()
	defer s.lock.Unlock()

	d, ok := s.devices[name]
	if !ok {
		d = &deviceState{room: roomName(name)}
		s.devices[name] = d
	}
	d.lastSeen = now
	if payload.Temperature != nil {
		d.kind = "environ"
		d.temperature = *payload.Temperature
		if payload.Humidity != nil {
			d.humidity = *payload.Humidity
		}
	}
	if payload.Occupancy != nil {
		d.kind = "motion"
		if *payload.Occupancy {
			d.lastMotion = now
		}
	}
	if payload.Contact != nil {
		d.kind = "magnet"
		if *payload.Contact {
			d.lastClose = now
		} else {
			d.lastOpen = now
		}
	}
}

// Update returns a snapshot built from the retained device states. It fails
// only when the broker connection is down and nothing has been received yet.
func (s *ZigbeeSource) Update(_ context.Context) (Devices, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if len(s.devices) == 0 {
		if !s.client.IsConnected() {
			return nil, errors.New("not connected to broker")
		}
		return Devices{}, nil
	}

	now := s.now()
	devices := make(Devices)
	for _, d := range s.devices {
		online := now.Sub(d.lastSeen) < staleAfter
		var reading Reading
		switch d.kind {
		case "environ":
			reading = Environ{Online: online, Temperature: d.temperature, Humidity: d.humidity}
		case "motion":
			reading = Motion{Online: online, Active: now.Sub(d.lastMotion) < activityWindow}
		case "magnet":
			reading = Magnet{
				Online: online,
				Open:   now.Sub(d.lastOpen) < activityWindow,
				Closed: now.Sub(d.lastClose) < activityWindow,
			}
		default:
			continue
		}
		devices[d.room] = append(devices[d.room], reading)
	}
	return devices, nil
}

// roomName strips the sensor-kind suffix from a friendly name.
func roomName(name string) string {
	for _, suffix := range []string{" Temp", " Move", " Motion", " Door", " Window", " Contact"} {
		if idx := strings.Index(name, suffix); idx != -1 {
			return name[:idx]
		}
	}
	return name
}
