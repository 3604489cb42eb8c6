package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus("i-local")
	p.Increment(ProbeSuccess)
	p.Increment(ProbeSuccess)
	p.Duration(MigrationDuration, 1500*time.Millisecond)
	p.Gauge(State, 1)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `monyt_probe_success_total{node="i-local"} 2`)
	assert.Contains(t, string(body), `monyt_migration_duration_seconds_count{node="i-local"} 1`)
	assert.Contains(t, string(body), `monyt_state{node="i-local"} 1`)
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "migration_table_error", metricName(MigrationTableError))
}
