package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dispatch "github.com/glimte/mmate-dispatch"
)

type fixedSource struct {
	status dispatch.ConnectionStatus
}

func (s *fixedSource) Status() dispatch.ConnectionStatus {
	return s.status
}

func TestConnectionChecker(t *testing.T) {
	tests := []struct {
		status dispatch.ConnectionStatus
		want   Status
	}{
		{dispatch.StatusConnected, StatusHealthy},
		{dispatch.StatusConnecting, StatusDegraded},
		{dispatch.StatusDisconnecting, StatusUnhealthy},
		{dispatch.StatusDisconnected, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			checker := NewConnectionChecker(&fixedSource{status: tt.status})
			result := checker.Check(context.Background())

			assert.Equal(t, "amqp", result.Name)
			assert.Equal(t, tt.want, result.Status)
			assert.Equal(t, tt.status.String(), result.Details["status"])
		})
	}

	t.Run("counts disconnects", func(t *testing.T) {
		checker := NewConnectionChecker(&fixedSource{status: dispatch.StatusConnected})
		var listener dispatch.StatusListener = checker

		listener.OnStatusChange(dispatch.StatusDisconnected)
		listener.OnStatusChange(dispatch.StatusConnecting)
		listener.OnStatusChange(dispatch.StatusConnected)

		result := checker.Check(context.Background())
		assert.Equal(t, 1, result.Details["disconnects"])
		assert.Contains(t, result.Details, "since")
	})
}

func TestRegistry(t *testing.T) {
	t.Run("worst status wins", func(t *testing.T) {
		r := NewRegistry("orders")
		r.Register(NewConnectionChecker(&fixedSource{status: dispatch.StatusConnected}))
		r.Register(NewComponentChecker("cache", func(ctx context.Context) (Status, string, error) {
			return StatusDegraded, "slow", nil
		}))

		report := r.Check(context.Background())
		assert.Equal(t, StatusDegraded, report.Status)
		assert.Equal(t, "orders", report.Service)
		assert.Len(t, report.Checks, 2)
		assert.Equal(t, []string{"amqp", "cache"}, r.Names())
	})

	t.Run("component error without status is unhealthy", func(t *testing.T) {
		r := NewRegistry("orders")
		r.Register(NewComponentChecker("db", func(ctx context.Context) (Status, string, error) {
			return "", "", errors.New("down")
		}))

		report := r.Check(context.Background())
		assert.Equal(t, StatusUnhealthy, report.Status)
		assert.Equal(t, "down", report.Checks["db"].Error)
	})

	t.Run("slow check times out", func(t *testing.T) {
		r := NewRegistry("orders")
		r.Register(NewComponentChecker("slow", func(ctx context.Context) (Status, string, error) {
			time.Sleep(time.Second)
			return StatusHealthy, "", nil
		}))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		report := r.Check(ctx)
		assert.Equal(t, StatusUnhealthy, report.Status)
		assert.Equal(t, "check timed out", report.Checks["slow"].Message)
	})

	t.Run("empty registry is healthy", func(t *testing.T) {
		assert.Equal(t, StatusHealthy, NewRegistry("x").Check(context.Background()).Status)
	})
}

func TestHandler(t *testing.T) {
	source := &fixedSource{status: dispatch.StatusConnected}
	r := NewRegistry("orders")
	r.Register(NewConnectionChecker(source))
	mux := NewServeMux(r, time.Second)

	t.Run("healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var report Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, StatusHealthy, report.Status)
	})

	t.Run("unhealthy", func(t *testing.T) {
		source.status = dispatch.StatusDisconnected
		defer func() { source.status = dispatch.StatusConnected }()

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("liveness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alive", rec.Body.String())
	})
}

func TestConnectionCheckerWithoutSource(t *testing.T) {
	checker := NewConnectionChecker(nil)
	assert.Equal(t, StatusUnhealthy, checker.Check(context.Background()).Status)

	checker.OnStatusChange(dispatch.StatusConnected)
	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)

	checker.SetSource(&fixedSource{status: dispatch.StatusConnecting})
	assert.Equal(t, StatusDegraded, checker.Check(context.Background()).Status)
}
