// Package jobs runs tile fetches and CPU heavy tile processing off the
// update goroutine. Results are delivered on channels the caller polls.
package jobs

import (
	"context"
	"fmt"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypePanic    = "job_panicked"
	ErrTypeCanceled = "job_canceled"
)

// Job is a unit of work.
type Job interface {
	Run(ctx context.Context) (any, error)
}

// JobFunc adapts a function to a Job.
type JobFunc func(ctx context.Context) (any, error)

func (f JobFunc) Run(ctx context.Context) (any, error) {
	return f(ctx)
}

// Result is the outcome of a job.
type Result struct {
	Value any
	Err   error
}

// Spawner starts jobs. Spawn returns false when the job cannot be accepted
// right now; the caller retries on a later frame. The returned channel
// receives exactly one result.
type Spawner interface {
	Spawn(j Job) (<-chan Result, bool)
}

// Inline runs jobs synchronously on the calling goroutine.
type Inline struct {
	Context context.Context
}

func (i Inline) Spawn(j Job) (<-chan Result, bool) {
	ctx := i.Context
	if ctx == nil {
		ctx = context.Background()
	}

	res := make(chan Result, 1)
	res <- run(ctx, j)
	return res, true
}

func run(ctx context.Context, j Job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Err: errors.New("job panicked").
					WithType(ErrTypePanic).
					WithTag("job", fmt.Sprintf("%T", j)).
					WithTag("panic", fmt.Sprint(r)),
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Result{
			Err: errors.New("job canceled").
				WithType(ErrTypeCanceled).
				Wrap(err),
		}
	}

	v, err := j.Run(ctx)
	return Result{Value: v, Err: err}
}
