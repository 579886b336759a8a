package render

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/globe/quadtree"
)

// ConsumerWithLogs logs each frame at debug level and a summary of the
// frames received at every summary interval.
func ConsumerWithLogs(c Consumer, name string, summaryInterval time.Duration) Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	consumer := &consumerWithLogs{
		Consumer:           c,
		name:               name,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
	}

	go consumer.startSummaryWorker(ctx)
	return consumer
}

type consumerWithLogs struct {
	Consumer

	name string

	summaryInterval    time.Duration
	closeSummaryWorker func()
	summaryMutex       sync.Mutex
	summary            frameSummary
}

type frameSummary struct {
	frames        int
	renderedTiles int
	requests      int
	evicted       int
	maxDepth      uint32
	last          quadtree.Stats
}

func (c *consumerWithLogs) HandleFrame(f quadtree.Frame) {
	c.Consumer.HandleFrame(f)

	logs.WithTag("consumer", c.name).
		WithTag("frame", f.Number).
		WithTag("rendered", f.Stats.Rendered).
		WithTag("queued", f.Stats.Queued).
		Debug("frame handled")

	c.addToSummary(f.Stats)
}

func (c *consumerWithLogs) Close() {
	c.Consumer.Close()
	c.closeSummaryWorker()
	c.logSummary()
}

func (c *consumerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(c.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			c.logSummary()
		}
	}
}

func (c *consumerWithLogs) addToSummary(s quadtree.Stats) {
	c.summaryMutex.Lock()
	defer c.summaryMutex.Unlock()

	c.summary.frames++
	c.summary.renderedTiles += s.Rendered
	c.summary.requests += s.Requests
	c.summary.evicted += s.Evicted
	if s.MaxDepth > c.summary.maxDepth {
		c.summary.maxDepth = s.MaxDepth
	}
	c.summary.last = s
}

func (c *consumerWithLogs) logSummary() {
	c.summaryMutex.Lock()
	defer c.summaryMutex.Unlock()

	s := c.summary
	if s.frames == 0 {
		return
	}
	c.summary = frameSummary{}

	logs.WithTag("consumer", c.name).
		WithTag("time_interval", c.summaryInterval).
		WithTag("frames", s.frames).
		WithTag("rendered_tiles_avg", float64(s.renderedTiles)/float64(s.frames)).
		WithTag("requests", s.requests).
		WithTag("evicted", s.evicted).
		WithTag("max_depth", s.maxDepth).
		WithTag("resident", s.last.Resident).
		WithTag("in_flight", s.last.InFlight).
		WithTag("camera_height", s.last.CameraHeight).
		Info("frame summary")
}
