package openweather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/caiwatch/caiwatch/agent/internal/config"
)

// API paths, relative to the configured base URL.
const (
	pathOneCall     = "/data/2.5/onecall"
	pathAirForecast = "/data/2.5/air_pollution/forecast"
	pathAirHistory  = "/data/2.5/air_pollution/history"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

var (
	// ErrUnauthorized is returned when OpenWeather rejects the API key.
	ErrUnauthorized = errors.New("openweather: unauthorized (check the api key)")

	// ErrMissingKey is returned when no API key is available for a request.
	ErrMissingKey = errors.New("openweather: api key not set")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openweather: unexpected status %d: %s", e.Code, e.Body)
}

// Client performs raw GETs against the OpenWeather API.
type Client struct {
	cfg     config.OpenWeatherConfig
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// New builds a Client for cfg. The HTTP client and breaker are reused across
// calls.
func New(cfg config.OpenWeatherConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("openweather: parse base url: %w", err)
	}
	return &Client{
		cfg:     cfg,
		baseURL: base,
		http: &http.Client{
			Transport: &keyRoundTripper{base: http.DefaultTransport, cfg: cfg},
			Timeout:   cfg.Timeout,
		},
		breaker: newBreaker(),
	}, nil
}

func newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// A rejected key is a config problem, not an unhealthy upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrMissingKey)
		},
	})
}

// keyRoundTripper injects the appid query parameter. Air pollution endpoints
// use the air key, everything else the onecall key.
type keyRoundTripper struct {
	base http.RoundTripper
	cfg  config.OpenWeatherConfig
}

func (t *keyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	key := t.cfg.APIKey()
	if strings.Contains(req.URL.Path, "/air_pollution") {
		key = t.cfg.AirKey()
	}
	if key == "" {
		return nil, ErrMissingKey
	}

	req = req.Clone(req.Context())
	q := req.URL.Query()
	q.Set("appid", key)
	req.URL.RawQuery = q.Encode()
	return t.base.RoundTrip(req)
}

// OneCall fetches current and hourly weather for lat/lon.
func (c *Client) OneCall(ctx context.Context, lat, lon float64) ([]byte, error) {
	q := coords(lat, lon)
	q.Set("units", c.cfg.Units)
	q.Set("lang", c.cfg.Lang)
	return c.get(ctx, pathOneCall, q)
}

// AirForecast fetches the hourly air pollution forecast for lat/lon.
func (c *Client) AirForecast(ctx context.Context, lat, lon float64) ([]byte, error) {
	return c.get(ctx, pathAirForecast, coords(lat, lon))
}

// AirHistory fetches hourly air pollution measurements in [start, end].
func (c *Client) AirHistory(ctx context.Context, lat, lon float64, start, end time.Time) ([]byte, error) {
	q := coords(lat, lon)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	return c.get(ctx, pathAirHistory, q)
}

func coords(lat, lon float64) url.Values {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	return q
}

// get performs a GET through the circuit breaker and returns the body.
func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, u.String())
	})
	if err != nil {
		return nil, fmt.Errorf("openweather %s: %w", path, err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, ErrMissingKey) {
			return nil, ErrMissingKey
		}
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
