// Package collector exposes the program engine's state as Prometheus
// metrics.
package collector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smarttherm/fglair-smart/internal/sensors"
	"github.com/smarttherm/fglair-smart/internal/smart"
)

var (
	programTargetTempCelsius = prometheus.NewDesc(
		prometheus.BuildFQName("fglair", "program", "target_temp_celsius"),
		"Target temperature commanded by the program in degrees celsius",
		nil,
		nil,
	)
	programCurrentTempCelsius = prometheus.NewDesc(
		prometheus.BuildFQName("fglair", "program", "temperature_celsius"),
		"Fused current temperature in degrees celsius",
		nil,
		nil,
	)
	programMode = prometheus.NewDesc(
		prometheus.BuildFQName("fglair", "program", "mode"),
		"Commanded mode. Always 1. See label 'mode'",
		[]string{"mode"},
		nil,
	)
	programBandCelsius = prometheus.NewDesc(
		prometheus.BuildFQName("fglair", "program", "band_celsius"),
		"Comfort band edges after adjustments, in degrees celsius",
		[]string{"edge"},
		nil,
	)
	programHeld = prometheus.NewDesc(
		prometheus.BuildFQName("fglair", "program", "held"),
		"1 while the program is held",
		nil,
		nil,
	)
	programEcoActive = prometheus.NewDesc(
		prometheus.BuildFQName("fglair", "program", "eco_active"),
		"1 while the eco window widens the comfort band",
		nil,
		nil,
	)
	programAway = prometheus.NewDesc(
		prometheus.BuildFQName("fglair", "program", "away"),
		"1 while the away schedule is in effect",
		nil,
		nil,
	)
	roomTemperatureCelsius = prometheus.NewDesc(
		prometheus.BuildFQName("fglair", "room", "temperature_celsius"),
		"Current temperature of this room in degrees celsius",
		[]string{"room"},
		nil,
	)
	roomHumidityPercentage = prometheus.NewDesc(
		prometheus.BuildFQName("fglair", "room", "humidity_percentage"),
		"Current humidity percentage in this room",
		[]string{"room"},
		nil,
	)
	roomActive = prometheus.NewDesc(
		prometheus.BuildFQName("fglair", "room", "active"),
		"1 if the room shows recent activity",
		[]string{"room"},
		nil,
	)
	roomSensorOnline = prometheus.NewDesc(
		prometheus.BuildFQName("fglair", "room", "sensor_online"),
		"1 if the room's sensor of this type is online",
		[]string{"room", "type"},
		nil,
	)
)

// Publisher is the engine's update feed.
type Publisher interface {
	Subscribe() chan smart.Update
	Unsubscribe(ch chan smart.Update)
}

type Collector struct {
	Publisher  Publisher
	Logger     *slog.Logger
	lock       sync.RWMutex
	lastUpdate *smart.Update
}

func (c *Collector) Run(ctx context.Context) error {
	c.Logger.Debug("started")
	defer c.Logger.Debug("stopped")

	ch := c.Publisher.Subscribe()
	defer c.Publisher.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			c.lock.Lock()
			c.lastUpdate = &update
			c.lock.Unlock()
		}
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- programTargetTempCelsius
	ch <- programCurrentTempCelsius
	ch <- programMode
	ch <- programBandCelsius
	ch <- programHeld
	ch <- programEcoActive
	ch <- programAway
	ch <- roomTemperatureCelsius
	ch <- roomHumidityPercentage
	ch <- roomActive
	ch <- roomSensorOnline
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.lastUpdate != nil {
		c.collectProgram(ch)
		c.collectRooms(ch)
	}
}

func (c *Collector) collectProgram(ch chan<- prometheus.Metric) {
	program := c.lastUpdate.Program

	if program.TargetTemperature != nil {
		ch <- prometheus.MustNewConstMetric(programTargetTempCelsius, prometheus.GaugeValue, *program.TargetTemperature)
	}
	if program.CurrentTemperature != nil {
		ch <- prometheus.MustNewConstMetric(programCurrentTempCelsius, prometheus.GaugeValue, *program.CurrentTemperature)
	}
	if program.AdjustedLow != nil {
		ch <- prometheus.MustNewConstMetric(programBandCelsius, prometheus.GaugeValue, *program.AdjustedLow, "low")
	}
	if program.AdjustedHigh != nil {
		ch <- prometheus.MustNewConstMetric(programBandCelsius, prometheus.GaugeValue, *program.AdjustedHigh, "high")
	}
	ch <- prometheus.MustNewConstMetric(programMode, prometheus.GaugeValue, 1, program.TargetMode.String())
	ch <- prometheus.MustNewConstMetric(programHeld, prometheus.GaugeValue, boolValue(program.Held))
	ch <- prometheus.MustNewConstMetric(programEcoActive, prometheus.GaugeValue, boolValue(program.EcoActive))
	ch <- prometheus.MustNewConstMetric(programAway, prometheus.GaugeValue, boolValue(program.Away))
}

func (c *Collector) collectRooms(ch chan<- prometheus.Metric) {
	devices := c.lastUpdate.Devices
	for room, readings := range devices {
		for _, reading := range readings {
			switch v := reading.(type) {
			case sensors.Environ:
				ch <- prometheus.MustNewConstMetric(roomSensorOnline, prometheus.GaugeValue, boolValue(v.Online), room, "environ")
				if v.Online {
					ch <- prometheus.MustNewConstMetric(roomTemperatureCelsius, prometheus.GaugeValue, v.Temperature, room)
					ch <- prometheus.MustNewConstMetric(roomHumidityPercentage, prometheus.GaugeValue, v.Humidity, room)
				}
			case sensors.Motion:
				ch <- prometheus.MustNewConstMetric(roomSensorOnline, prometheus.GaugeValue, boolValue(v.Online), room, "motion")
			case sensors.Magnet:
				ch <- prometheus.MustNewConstMetric(roomSensorOnline, prometheus.GaugeValue, boolValue(v.Online), room, "magnet")
			}
		}
		ch <- prometheus.MustNewConstMetric(roomActive, prometheus.GaugeValue, boolValue(devices.Active(room)), room)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
