package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Disabled(t *testing.T) {
	var nilMetrics *Metrics
	assert.False(t, nilMetrics.IsEnabled())
	nilMetrics.RecordParse("excel", time.Second, false)
	nilMetrics.RecordLoad(1, 1, time.Second)
	nilMetrics.RecordSkip("unchanged")

	m := New(Config{})
	assert.False(t, m.IsEnabled())
	m.RecordIssue("timeout")
	m.WorkerStarted()
}

func TestMetrics_Record(t *testing.T) {
	m := New(Config{Enabled: true})

	m.RecordParse("excel", 20*time.Millisecond, false)
	m.RecordParse("pdf", time.Second, true)
	m.RecordSkip("unchanged")
	m.RecordLoad(3, 2, 5*time.Millisecond)
	m.RecordIssue("timeout")
	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerDone()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesProcessed.WithLabelValues("excel", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesProcessed.WithLabelValues("pdf", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesSkipped.WithLabelValues("unchanged")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsLoaded))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionIssues.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveWorkers))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(Config{Enabled: true})
	m.RecordLoad(7, 0, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "budgetdb_budget_lines_loaded_total 7"))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, ":9464", cfg.Address)
}
