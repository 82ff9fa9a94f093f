package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	c := NewPrometheusCollector()

	c.SessionConnected()
	c.SessionConnected()
	c.SessionDisconnected()
	c.FrameThrottled()
	c.Checkout(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sessionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesThrottled))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checkouts))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kiosksim_active_sessions 1")
}
