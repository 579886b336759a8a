package quadtree

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	jobLabel     = "job"
	errTypeLabel = "error_type"
	laneLabel    = "lane"
)

var (
	frameLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "globe_frame_update_latency",
		Help: "The time to select and schedule the tiles of a frame.",
	})

	renderedTiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "globe_rendered_tiles",
		Help: "The number of tiles selected for rendering in the last frame.",
	})

	residentTiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "globe_resident_tiles",
		Help: "The number of tiles in the replacement queue.",
	})

	imageryRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "globe_imagery_records",
		Help: "The number of live imagery records.",
	})

	queuedTiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "globe_load_queue_length",
		Help: "The number of tiles queued for loading in the last frame.",
	}, []string{
		laneLabel,
	})

	evictedTiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "globe_evicted_tiles",
		Help: "The number of tiles whose resources were freed.",
	})

	failedTiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "globe_failed_root_tiles",
		Help: "The number of root tiles whose terrain failed to load.",
	})

	tileJobs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "globe_tile_job_latency",
		Help: "The time between spawning a tile job and ingesting its result.",
	}, []string{
		jobLabel,
	})

	tileJobErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_tile_job_errors",
		Help: "The errors returned by tile jobs.",
	}, []string{
		jobLabel,
		errTypeLabel,
	})

	throttledJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_tile_jobs_throttled",
		Help: "The number of tile jobs postponed by the request budget or a full pool.",
	}, []string{
		jobLabel,
	})

	discardedJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_tile_jobs_discarded",
		Help: "The number of tile job results dropped because their target was evicted.",
	}, []string{
		jobLabel,
	})
)

func instrumentFrame(start time.Time, s Stats) {
	frameLatency.Observe(time.Since(start).Seconds())
	renderedTiles.Set(float64(s.Rendered))
	residentTiles.Set(float64(s.Resident))
	imageryRecords.Set(float64(s.ImageryRecords))

	for p, n := range s.Queued {
		queuedTiles.With(prometheus.Labels{
			laneLabel: loadPriority(p).String(),
		}).Set(float64(n))
	}
}

func instrumentTileEvicted() {
	evictedTiles.Inc()
}

func instrumentTileFailed() {
	failedTiles.Inc()
}

func instrumentJob(kind jobKind, start time.Time, err error) {
	tileJobs.With(prometheus.Labels{
		jobLabel: kind.String(),
	}).Observe(time.Since(start).Seconds())

	if err != nil {
		tileJobErrors.
			With(prometheus.Labels{
				jobLabel:     kind.String(),
				errTypeLabel: errors.Type(err),
			}).
			Inc()
	}
}

func instrumentJobThrottled(kind jobKind) {
	throttledJobs.With(prometheus.Labels{
		jobLabel: kind.String(),
	}).Inc()
}

func instrumentJobDiscarded(kind jobKind) {
	discardedJobs.With(prometheus.Labels{
		jobLabel: kind.String(),
	}).Inc()
}
