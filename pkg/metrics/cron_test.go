package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveRun("stale-checkout", 250*time.Millisecond, nil)
	m.ObserveRun("stale-checkout", 100*time.Millisecond, errors.New("db down"))
	m.ObserveRun("", time.Millisecond, nil)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "storefront_cron_job_runs_total", "job", "stale-checkout", "outcome", "success")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "storefront_cron_job_runs_total", "job", "stale-checkout", "outcome", "failure")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	_, err = fetchCounterValue(mfs, "storefront_cron_job_runs_total", "job", "unknown", "outcome", "success")
	require.NoError(t, err)

	hist, err := findMetric(mfs, "storefront_cron_job_duration_seconds", "job", "stale-checkout")
	require.NoError(t, err)
	assert.EqualValues(t, 2, hist.GetHistogram().GetSampleCount())

	last, err := findMetric(mfs, "storefront_cron_job_last_success_timestamp_seconds", "job", "stale-checkout")
	require.NoError(t, err)
	assert.Greater(t, last.GetGauge().GetValue(), 0.0)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("x", time.Second, nil)
	assert.Nil(t, NewCronJobMetrics(nil))
}
