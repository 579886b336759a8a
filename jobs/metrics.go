package jobs

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	poolLabel    = "pool"
	errTypeLabel = "error_type"
)

var (
	jobsQueued = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "globe_jobs_queued",
		Help: "The number of jobs waiting for a worker.",
	}, []string{
		poolLabel,
	})

	jobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_jobs_rejected",
		Help: "The number of jobs rejected because the queue was full.",
	}, []string{
		poolLabel,
	})

	jobErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_job_errors",
		Help: "The errors returned by jobs.",
	}, []string{
		poolLabel,
		errTypeLabel,
	})

	jobLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "globe_job_latency",
		Help: "The time to run a job.",
	}, []string{
		poolLabel,
	})
)

func instrumentJobQueued(pool string) {
	jobsQueued.With(prometheus.Labels{
		poolLabel: pool,
	}).Inc()
}

func instrumentJobDequeued(pool string) {
	jobsQueued.With(prometheus.Labels{
		poolLabel: pool,
	}).Dec()
}

func instrumentJobRejected(pool string) {
	jobsRejected.With(prometheus.Labels{
		poolLabel: pool,
	}).Inc()
}

func instrumentJob(pool string, start time.Time, err error) {
	jobLatency.With(prometheus.Labels{
		poolLabel: pool,
	}).Observe(time.Since(start).Seconds())

	if err != nil {
		jobErrors.
			With(prometheus.Labels{
				poolLabel:    pool,
				errTypeLabel: errors.Type(err),
			}).
			Inc()
	}
}
