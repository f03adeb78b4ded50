package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restakeRates/internal/ratesync"
)

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

func get(t *testing.T, handler http.Handler, path string) (*httptest.ResponseRecorder, statusResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body statusResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	rec, _ := get(t, NewRouter(nil, &RunStatus{}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	rec, body := get(t, NewRouter(fakePinger{}, &RunStatus{}), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body.Status)

	rec, body = get(t, NewRouter(fakePinger{err: errors.New("connection refused")}, &RunStatus{}), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body.Error, "connection refused")
}

func TestStatusReportsFailedTokens(t *testing.T) {
	status := &RunStatus{}
	status.Record(ratesync.RunSummary{
		StartedAt: time.Unix(1_700_000_000, 0),
		Duration:  3 * time.Second,
		Results: []ratesync.TokenResult{
			{Symbol: "reETH"},
			{Symbol: "rsETH", Err: errors.New("tvl: timeout")},
		},
	}, nil)

	rec, body := get(t, NewRouter(nil, status), "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, 2, body.Tokens)
	assert.Equal(t, []string{"rsETH"}, body.FailedTokens)
	assert.Equal(t, "2023-11-14T22:13:20Z", body.LastRun)
}

func TestMetricsEndpoint(t *testing.T) {
	rec, _ := get(t, NewRouter(nil, &RunStatus{}), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	c := NewScheduler(nil)
	var running, runs int32
	var overlapped atomic.Bool

	_, err := c.AddFunc("* * * * * *", func() {
		if atomic.AddInt32(&running, 1) > 1 {
			overlapped.Store(true)
		}
		atomic.AddInt32(&runs, 1)
		time.Sleep(1500 * time.Millisecond)
		atomic.AddInt32(&running, -1)
	})
	require.NoError(t, err)

	c.Start()
	time.Sleep(3500 * time.Millisecond)
	<-c.Stop().Done()

	assert.False(t, overlapped.Load())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(1))
}
