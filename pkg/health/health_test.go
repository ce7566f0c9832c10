package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func call(handler http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func runN(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

func TestLive(t *testing.T) {
	tests := []struct {
		name     string
		checks   []Check
		runs     int
		wantCode int
		wantBody string
	}{
		{
			name:     "no checks",
			wantCode: http.StatusOK,
			wantBody: `{"status":"ok"}`,
		},
		{
			name:     "passing checks",
			checks:   []Check{{Name: "a", Func: passing}, {Name: "b", Func: passing}},
			runs:     3,
			wantCode: http.StatusOK,
			wantBody: `{"status":"ok"}`,
		},
		{
			name:     "failures below threshold",
			checks:   []Check{{Name: "flaky", Func: failing("temporary")}},
			runs:     2,
			wantCode: http.StatusOK,
			wantBody: `{"status":"ok"}`,
		},
		{
			name:     "failures at threshold",
			checks:   []Check{{Name: "db", Func: failing("connection refused")}, {Name: "ok", Func: passing}},
			runs:     3,
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"status":"unhealthy","checks":{"db":"connection refused"}}`,
		},
		{
			name:     "custom threshold",
			checks:   []Check{{Name: "strict", Func: failing("down"), FailureThreshold: 1}},
			runs:     1,
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"status":"unhealthy","checks":{"strict":"down"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			for _, c := range tt.checks {
				h.AddLiveness(c)
			}
			for _, p := range h.liveness {
				runN(p, tt.runs)
			}

			w := call(h.Live)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestReady(t *testing.T) {
	h := New()
	h.AddReadiness(Check{Name: "postgres", Func: passing})

	w := call(h.Ready)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, w.Body.String())
	assert.False(t, h.IsReady())

	h.SetReady(true)
	w = call(h.Ready)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, call(h.Ready).Code)
}

func TestReadyReportsFailingCheck(t *testing.T) {
	h := New()
	h.AddReadiness(Check{Name: "postgres", Func: failing("timeout")})
	h.AddReadiness(Check{Name: "cache", Func: passing})
	h.SetReady(true)
	for _, p := range h.readiness {
		runN(p, 3)
	}

	w := call(h.Ready)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"postgres":"timeout"}}`, w.Body.String())
	assert.False(t, h.IsReady())
}

func TestProbeRecovers(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	h := New()
	h.AddLiveness(Check{Name: "db", Func: func(context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	}})

	p := h.liveness[0]
	runN(p, 3)
	assert.Equal(t, "down", p.failure())

	fail.Store(false)
	runN(p, 1)
	assert.Empty(t, p.failure())
}

func TestProbeTimeout(t *testing.T) {
	h := New()
	h.AddLiveness(Check{
		Name:             "slow",
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	runN(h.liveness[0], 1)
	assert.Equal(t, context.DeadlineExceeded.Error(), h.liveness[0].failure())
}

func TestStartAndStop(t *testing.T) {
	var calls atomic.Int32
	h := New()
	h.AddReadiness(Check{Name: "counter", Func: func(context.Context) error {
		calls.Add(1)
		return nil
	}})

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()
	time.Sleep(20 * time.Millisecond)
	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}

func TestConcurrentReads(t *testing.T) {
	h := New()
	h.AddLiveness(Check{Name: "a", Func: failing("x")})
	h.AddReadiness(Check{Name: "b", Func: passing})
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				call(h.Live)
				call(h.Ready)
				h.IsReady()
			}
		}()
	}
	wg.Wait()
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, PingCheck(fakePinger{})(ctx))
	err := PingCheck(fakePinger{err: errors.New("refused")})(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")

	require.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	require.Error(t, GoroutineCountCheck(0)(ctx))

	require.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))
}
