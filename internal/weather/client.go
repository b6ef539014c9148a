// Package weather fetches current conditions from an Open-Meteo compatible API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

const (
	observedLayout   = "2006-01-02T15:04"
	breakerThreshold = 5
	breakerCooldown  = time.Minute
)

type Observation struct {
	TemperatureC float64
	WindSpeedKmh float64
	WeatherCode  int
	ObservedAt   time.Time
}

type forecastResponse struct {
	CurrentWeather *struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
}

// Client stops calling the upstream for breakerCooldown after breakerThreshold consecutive
// failures; calls made while open fail with gobreaker.ErrOpenState.
type Client struct {
	http    *http.Client
	baseURL string
	breaker *gobreaker.CircuitBreaker
}

func NewClient(baseURL string) *Client {
	return &Client{
		http:    &http.Client{},
		baseURL: baseURL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "weather",
			Timeout: breakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerThreshold
			},
		}),
	}
}

func (c *Client) Current(ctx context.Context, latitude, longitude float64) (*Observation, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, latitude, longitude)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Observation), nil
}

func (c *Client) fetch(ctx context.Context, latitude, longitude float64) (*Observation, error) {
	u, err := url.Parse(c.baseURL + "/v1/forecast")
	if err != nil {
		return nil, fmt.Errorf("parse weather url: %w", err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))
	q.Set("current_weather", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("weather api responded %d", resp.StatusCode)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}
	if body.CurrentWeather == nil {
		return nil, fmt.Errorf("weather response has no current_weather")
	}

	cw := body.CurrentWeather
	obs := &Observation{
		TemperatureC: cw.Temperature,
		WindSpeedKmh: cw.WindSpeed,
		WeatherCode:  cw.WeatherCode,
	}
	if t, err := time.Parse(observedLayout, cw.Time); err == nil {
		obs.ObservedAt = t
	} else if t, err := time.Parse(time.RFC3339, cw.Time); err == nil {
		obs.ObservedAt = t
	}
	return obs, nil
}
