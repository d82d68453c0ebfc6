package openweather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caiwatch/caiwatch/agent/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	t.Setenv("TEST_OWM_KEY", "onecall-key")
	t.Setenv("TEST_OWM_AIR_KEY", "air-key")

	c, err := New(config.OpenWeatherConfig{
		BaseURL:   srv.URL,
		APIKeyEnv: "TEST_OWM_KEY",
		AirKeyEnv: "TEST_OWM_AIR_KEY",
		Units:     "metric",
		Lang:      "kr",
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	return c, srv
}

func TestClient_OneCall_Query(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathOneCall, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "onecall-key", q.Get("appid"))
		assert.Equal(t, "36.101477", q.Get("lat"))
		assert.Equal(t, "129.390511", q.Get("lon"))
		assert.Equal(t, "metric", q.Get("units"))
		assert.Equal(t, "kr", q.Get("lang"))
		_, _ = w.Write([]byte(`{"timezone_offset":32400}`))
	})

	body, err := c.OneCall(context.Background(), 36.101477, 129.390511)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timezone_offset":32400}`, string(body))
}

func TestClient_AirEndpointsUseAirKey(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(25 * time.Hour)

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "air-key", q.Get("appid"))
		if r.URL.Path == pathAirHistory {
			assert.Equal(t, "1772323200", q.Get("start"))
			assert.Equal(t, "1772413200", q.Get("end"))
		}
		_, _ = w.Write([]byte(`{"list":[]}`))
	})

	_, err := c.AirForecast(context.Background(), 1, 2)
	require.NoError(t, err)
	_, err = c.AirHistory(context.Background(), 1, 2, start, end)
	require.NoError(t, err)
}

func TestClient_Unauthorized(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"cod":401,"message":"Invalid API key"}`))
	})

	_, err := c.OneCall(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_StatusError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := c.AirForecast(context.Background(), 1, 2)
	var se *StatusError
	require.True(t, errors.As(err, &se), "err = %v", err)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, "upstream down", se.Body)
}

func TestClient_MissingKey(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c, err := New(config.OpenWeatherConfig{
		BaseURL:   srv.URL,
		APIKeyEnv: "CAIWATCH_TEST_UNSET_KEY",
		Timeout:   time.Second,
	})
	require.NoError(t, err)

	_, err = c.OneCall(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Zero(t, hits.Load(), "request must not be sent without a key")
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 3; i++ {
		_, err := c.AirForecast(context.Background(), 1, 2)
		require.Error(t, err)
	}

	_, err := c.AirForecast(context.Background(), 1, 2)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_UnauthorizedDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	for i := 0; i < 5; i++ {
		_, err := c.OneCall(context.Background(), 1, 2)
		require.ErrorIs(t, err, ErrUnauthorized)
	}
	assert.Equal(t, int32(5), hits.Load())
}
