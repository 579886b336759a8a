package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
)

type task struct {
	job    Job
	result chan Result
}

// Pool runs jobs on a fixed number of worker goroutines fed by a bounded
// queue. Spawn never blocks: it reports false when the queue is full.
type Pool struct {
	name    string
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex  sync.RWMutex
	queue  chan task
	closed bool
}

// NewPool starts a pool of workers. Jobs run with a context derived from
// ctx that is canceled on Close.
func NewPool(ctx context.Context, name string, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		name:    name,
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan task, queueSize),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work(i)
	}
	return p
}

func (p *Pool) Spawn(j Job) (<-chan Result, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.closed {
		return nil, false
	}

	t := task{
		job:    j,
		result: make(chan Result, 1),
	}

	select {
	case p.queue <- t:
		instrumentJobQueued(p.name)
		return t.result, true

	default:
		instrumentJobRejected(p.name)
		return nil, false
	}
}

// Pending returns the number of queued jobs not yet picked up by a worker.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Close cancels running jobs and waits for the workers to exit. Queued jobs
// complete with a canceled error.
func (p *Pool) Close() {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return
	}
	p.closed = true
	p.cancel()
	close(p.queue)
	p.mutex.Unlock()

	p.wg.Wait()
}

func (p *Pool) work(id int) {
	defer p.wg.Done()

	logs.WithTag("pool", p.name).
		WithTag("worker", id).
		Debug("worker started")

	for t := range p.queue {
		instrumentJobDequeued(p.name)

		start := time.Now()
		res := run(p.ctx, t.job)
		instrumentJob(p.name, start, res.Err)

		t.result <- res
	}

	logs.WithTag("pool", p.name).
		WithTag("worker", id).
		Debug("worker finished")
}
