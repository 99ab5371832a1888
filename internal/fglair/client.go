// Package fglair is a client for the Ayla Networks API behind the FGLair
// mobile app, covering sign-in, device discovery and the property reads and
// datapoint writes the program engine needs.
package fglair

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Region selects the Ayla service the account lives on.
type Region string

const (
	RegionUS Region = "us"
	RegionEU Region = "eu"
	RegionCN Region = "cn"
)

type endpoints struct {
	authURL   string
	apiURL    string
	appID     string
	appSecret string
}

var regions = map[Region]endpoints{
	RegionUS: {
		authURL:   "https://user-field.aylanetworks.com",
		apiURL:    "https://ads-field.aylanetworks.com",
		appID:     "CJIOSP-id",
		appSecret: "CJIOSP-Vb8MQL_lFiYQ7DKjN0eCFXznKZE",
	},
	RegionEU: {
		authURL:   "https://user-field-eu.aylanetworks.com",
		apiURL:    "https://ads-field-eu.aylanetworks.com",
		appID:     "FGLair-eu-id",
		appSecret: "FGLair-eu-gpFbVBRoiJ8E3QWJ-QRULLL3j3U",
	},
	RegionCN: {
		authURL:   "https://user-field.ayla.com.cn",
		apiURL:    "https://ads-field.ayla.com.cn",
		appID:     "FGLairField-cn-id",
		appSecret: "FGLairField-cn-zezg7Y60YpAvy3HPwxvWLnd4Oh4",
	},
}

// Configuration holds the account credentials and region. AuthURL and APIURL
// override the region's endpoints when set.
type Configuration struct {
	Username string
	Password string
	Region   Region
	AuthURL  string
	APIURL   string
}

// Client calls the Ayla API on behalf of one account. It signs in lazily,
// re-authenticates once on an expired token and rate-limits all calls.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	cfg        Configuration
	endpoints  endpoints

	lock  sync.Mutex
	token string
}

func NewClient(cfg Configuration, logger *slog.Logger) (*Client, error) {
	ep, ok := regions[cfg.Region]
	if !ok {
		return nil, fmt.Errorf("invalid region %q", cfg.Region)
	}
	if cfg.AuthURL != "" {
		ep.authURL = cfg.AuthURL
	}
	if cfg.APIURL != "" {
		ep.apiURL = cfg.APIURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 5),
		logger:     logger,
		cfg:        cfg,
		endpoints:  ep,
	}, nil
}

type signInRequest struct {
	User struct {
		Email       string `json:"email"`
		Application struct {
			AppID     string `json:"app_id"`
			AppSecret string `json:"app_secret"`
		} `json:"application"`
		Password string `json:"password"`
	} `json:"user"`
}

func (c *Client) authenticate(ctx context.Context) error {
	var signIn signInRequest
	signIn.User.Email = c.cfg.Username
	signIn.User.Password = c.cfg.Password
	signIn.User.Application.AppID = c.endpoints.appID
	signIn.User.Application.AppSecret = c.endpoints.appSecret

	body, _ := json.Marshal(signIn)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.authURL+"/users/sign_in.json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sign in: %s", resp.Status)
	}

	var response struct {
		AccessToken string `json:"access_token"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	c.token = response.AccessToken
	c.logger.Debug("signed in", slog.String("region", string(c.cfg.Region)))
	return nil
}

// call performs one authenticated API request, signing in first when needed
// and retrying once after an authorization failure.
func (c *Client) call(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	retried := false
	for {
		if c.token == "" {
			if err := c.authenticate(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.endpoints.apiURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "auth_token "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			return payload, err
		case resp.StatusCode == http.StatusUnauthorized && !retried:
			c.logger.Debug("token expired, signing in again")
			c.token = ""
			retried = true
		default:
			return nil, fmt.Errorf("%s %s: %s", method, path, resp.Status)
		}
	}
}

// Device is one registered appliance.
type Device struct {
	DSN  string `json:"dsn"`
	Name string `json:"product_name"`
}

// GetDevices lists the appliances registered to the account.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	body, err := c.call(ctx, http.MethodGet, "/apiv1/devices.json", nil)
	if err != nil {
		return nil, err
	}
	var response []struct {
		Device Device `json:"device"`
	}
	if err = json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("devices: %w", err)
	}
	devices := make([]Device, len(response))
	for i, d := range response {
		devices[i] = d.Device
	}
	return devices, nil
}

// GetProperties reads the appliance's current property values.
func (c *Client) GetProperties(ctx context.Context, dsn string) (Properties, error) {
	body, err := c.call(ctx, http.MethodGet, "/apiv1/dsns/"+dsn+"/properties.json", nil)
	if err != nil {
		return Properties{}, err
	}
	var response []struct {
		Property struct {
			Name  string          `json:"name"`
			Value json.RawMessage `json:"value"`
		} `json:"property"`
	}
	if err = json.Unmarshal(body, &response); err != nil {
		return Properties{}, fmt.Errorf("properties: %w", err)
	}

	var properties Properties
	for _, p := range response {
		var value int
		if err = json.Unmarshal(p.Property.Value, &value); err != nil {
			continue
		}
		switch p.Property.Name {
		case PropAdjustTemperature:
			properties.AdjustTemperature = value
		case PropOperationMode:
			properties.OperationMode = OperationMode(value)
		case PropFanSpeed:
			properties.FanSpeed = FanSetting(value)
		case PropDisplayTemperature:
			properties.DisplayTemperature = value
		}
	}
	return properties, nil
}

// SetProperty writes one property value as a new datapoint.
func (c *Client) SetProperty(ctx context.Context, dsn, name string, value int) error {
	body, _ := json.Marshal(struct {
		Datapoint struct {
			Value int `json:"value"`
		} `json:"datapoint"`
	}{Datapoint: struct {
		Value int `json:"value"`
	}{Value: value}})

	_, err := c.call(ctx, http.MethodPost, "/apiv1/dsns/"+dsn+"/properties/"+name+"/datapoints.json", body)
	if err != nil {
		return err
	}
	c.logger.Debug("property set", slog.String("dsn", dsn), slog.String("name", name), slog.Int("value", value))
	return nil
}

// SetTemperature writes the setpoint in degrees Celsius.
func (c *Client) SetTemperature(ctx context.Context, dsn string, celsius float64) error {
	return c.SetProperty(ctx, dsn, PropAdjustTemperature, EncodeTemperature(celsius))
}

// SetOperationMode writes the operating mode.
func (c *Client) SetOperationMode(ctx context.Context, dsn string, mode OperationMode) error {
	return c.SetProperty(ctx, dsn, PropOperationMode, int(mode))
}

// SetFanSpeed writes the fan speed step.
func (c *Client) SetFanSpeed(ctx context.Context, dsn string, fan FanSetting) error {
	return c.SetProperty(ctx, dsn, PropFanSpeed, int(fan))
}
