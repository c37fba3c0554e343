package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveCommand("ssu", "slash", "ok", 120*time.Millisecond)
	m.ObserveCommand("ssu", "slash", "ok", 80*time.Millisecond)
	m.ObserveCommand("nope", "slash", "not_found", 0)
	m.ObserveERLC("/server", 200)
	m.ObserveERLC("/server", 0)
	m.Refreshers().Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("ssu", "slash", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("nope", "slash", "not_found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.erlc.WithLabelValues("/server", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshers))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveCommand("ping", "slash", "ok", time.Millisecond)
	var ready atomic.Bool
	srv := httptest.NewServer(m.Handler(ready.Load))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	code, _ := get("/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	ready.Store(true)
	code, body := get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `warden_commands_total{command="ping",kind="slash",outcome="ok"} 1`)
}
