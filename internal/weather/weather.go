// Package weather polls OpenWeatherMap for outside conditions, for display
// alongside the room readings.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/smarttherm/fglair-smart/pkg/pubsub"
)

// Observation is one weather report.
type Observation struct {
	Name        string    `json:"name"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Updated     time.Time `json:"updated"`
}

// Configuration selects the location. City takes precedence over
// coordinates.
type Configuration struct {
	APIKey   string
	City     string
	Lat, Lon float64
	Interval time.Duration
	BaseURL  string
}

// Poller fetches the current weather on an interval and publishes each new
// observation.
type Poller struct {
	*pubsub.Publisher[Observation]
	httpClient *http.Client
	cfg        Configuration
	logger     *slog.Logger

	lock sync.RWMutex
	last *Observation
}

func New(cfg Configuration, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openweathermap.org"
	}
	return &Poller{
		Publisher:  pubsub.New[Observation](logger),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cfg:        cfg,
		logger:     logger,
	}
}

// Run polls until the context is canceled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Debug("started")
	defer p.logger.Debug("stopped")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.poll(ctx); err != nil {
			p.logger.Error("failed to fetch weather", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Get returns the last observation, if one has been fetched.
func (p *Poller) Get() (Observation, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.last == nil {
		return Observation{}, false
	}
	return *p.last, true
}

func (p *Poller) poll(ctx context.Context) error {
	values := url.Values{}
	values.Set("appid", p.cfg.APIKey)
	values.Set("units", "metric")
	if p.cfg.City != "" {
		values.Set("q", p.cfg.City)
	} else {
		values.Set("lat", strconv.FormatFloat(p.cfg.Lat, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(p.cfg.Lon, 'f', -1, 64))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/data/2.5/weather?"+values.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather: %s", resp.Status)
	}

	var response struct {
		Name string `json:"name"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("weather: %w", err)
	}

	observation := Observation{
		Name:        response.Name,
		Temperature: response.Main.Temp,
		Humidity:    response.Main.Humidity,
		Updated:     time.Now(),
	}
	if len(response.Weather) > 0 {
		observation.Description = response.Weather[0].Description
		observation.Icon = fmt.Sprintf("https://openweathermap.org/img/wn/%s@4x.png", response.Weather[0].Icon)
	}

	p.lock.Lock()
	p.last = &observation
	p.lock.Unlock()
	p.Publish(observation)

	p.logger.Debug("weather updated",
		slog.String("name", observation.Name),
		slog.Float64("temperature", observation.Temperature),
	)
	return nil
}
