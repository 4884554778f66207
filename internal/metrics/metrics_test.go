package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CZERTAINLY/Cracker/internal/crack"
	"github.com/CZERTAINLY/Cracker/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Parallel()
	m := metrics.New()

	m.JobStarted("parallel")
	m.JobStarted("parallel")
	require.Equal(t, 2.0, testutil.ToFloat64(m.ActiveJobs.WithLabelValues("parallel")))

	m.JobFinished("parallel", crack.OutcomeFound, 10, 20*time.Millisecond)
	m.JobFinished("parallel", crack.OutcomeNotFound, 32, time.Second)

	require.Equal(t, 0.0, testutil.ToFloat64(m.ActiveJobs.WithLabelValues("parallel")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.JobsStarted.WithLabelValues("parallel")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.JobsFinished.WithLabelValues("parallel", "found")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.JobsFinished.WithLabelValues("parallel", "not_found")))
	require.Equal(t, 42.0, testutil.ToFloat64(m.CandidatesTested))
	require.Equal(t, 2, testutil.CollectAndCount(m.JobDuration))
}

func TestMetrics_Coordinator(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	c := crack.New(crack.NewSequential()).WithMetrics(m)
	t.Cleanup(c.Close)

	words := crack.Words(func(yield func(string, error) bool) {
		for _, w := range []string{"a", "b", "c"} {
			if !yield(w, nil) {
				return
			}
		}
	})
	f, err := c.Crack(t.Context(), "job", words, crack.TesterFunc(func(_ context.Context, candidate string) (bool, error) {
		return candidate == "b", nil
	}))
	require.NoError(t, err)
	o, err := f.Wait(t.Context())
	require.NoError(t, err)
	require.Equal(t, crack.Found("b"), o)

	require.Equal(t, 1.0, testutil.ToFloat64(m.JobsFinished.WithLabelValues("sequential", "found")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.ActiveJobs.WithLabelValues("sequential")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.CandidatesTested))
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	m.JobStarted("sequential")

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `cracker_jobs_started_total{strategy="sequential"} 1`)
	require.Contains(t, string(body), "go_goroutines")

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "cracker_active_jobs")
}
