package render

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/globe/quadtree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	consumerLabel = "consumer"
	errTypeLabel  = "error_type"
	msgTypeLabel  = "msg_type"
)

var (
	consumedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_consumed_frames",
		Help: "The number of frames handed to a consumer.",
	}, []string{
		consumerLabel,
	})

	consumedTiles = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "globe_consumed_frame_tiles",
		Help:    "The number of tiles of the frames handed to a consumer.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{
		consumerLabel,
	})

	consumeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "globe_consume_latency",
		Help: "The time a consumer takes to handle a frame.",
	}, []string{
		consumerLabel,
	})

	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "globe_stream_clients",
		Help: "The number of clients connected to the frame stream.",
	})

	streamSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_stream_sent_msgs",
		Help: "The number of messages sent to frame stream clients.",
	}, []string{
		msgTypeLabel,
	})

	streamSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_stream_sent_bytes",
		Help: "The number of bytes sent to frame stream clients.",
	}, []string{
		msgTypeLabel,
	})

	streamReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_stream_received_msgs",
		Help: "The number of messages received from frame stream clients.",
	}, []string{
		msgTypeLabel,
	})

	streamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_stream_errors",
		Help: "The errors that occured on frame stream connections.",
	}, []string{
		errTypeLabel,
	})

	streamDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "globe_stream_dropped_frames",
		Help: "The number of frames not sent to a client that was still busy with a previous one.",
	})
)

// ConsumerWithMetrics measures the frames handed to a consumer.
func ConsumerWithMetrics(c Consumer, name string) Consumer {
	return &consumerWithMetrics{
		Consumer: c,
		name:     name,
	}
}

type consumerWithMetrics struct {
	Consumer

	name string
}

func (c *consumerWithMetrics) HandleFrame(f quadtree.Frame) {
	start := time.Now()
	c.Consumer.HandleFrame(f)

	labels := prometheus.Labels{consumerLabel: c.name}
	consumeLatency.With(labels).Observe(time.Since(start).Seconds())
	consumedFrames.With(labels).Inc()
	consumedTiles.With(labels).Observe(float64(len(f.Tiles)))
}

func instrumentSent(msgType string, n int) {
	labels := prometheus.Labels{msgTypeLabel: msgType}
	streamSentMsgs.With(labels).Inc()
	streamSentBytes.With(labels).Add(float64(n))
}

func instrumentReceived(msgType string) {
	streamReceivedMsgs.With(prometheus.Labels{msgTypeLabel: msgType}).Inc()
}

func instrumentStreamError(err error) {
	streamErrors.With(prometheus.Labels{errTypeLabel: errors.Type(err)}).Inc()
}
