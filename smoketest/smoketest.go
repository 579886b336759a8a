// Package smoketest checks that a globe can be rendered end to end: terrain
// is fetched, meshed and selected for a camera above a given position.
package smoketest

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/globe/geom"
	"github.com/aukilabs/globe/quadtree"
	"github.com/segmentio/encoding/json"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	defaultTimeout = 10 * time.Second
	defaultHeight  = 1e7
)

type Options struct {
	// Builds the engine a smoke test runs. Each smoke test gets its own
	// engine.
	NewEngine func() (*quadtree.Engine, error)

	// The time between two frames.
	FrameDuration time.Duration

	// Receives the result of each smoke test.
	SendResult func(context.Context, Result) error
}

// Request describes the camera of a smoke test.
type Request struct {
	// The position under the camera, in degrees.
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`

	// The camera height in meters. Zero is 10000 km.
	Height float64 `json:"height"`

	// The tiles to render before succeeding. Zero is one.
	MinimumTiles int `json:"minimum_tiles"`

	Timeout time.Duration `json:"timeout"`
}

type Result struct {
	Status          string  `json:"status"`
	Frames          uint64  `json:"frames"`
	Rendered        int     `json:"rendered"`
	Resident        int     `json:"resident"`
	MaxDepth        uint32  `json:"max_depth"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Error           string  `json:"error,omitempty"`
}

type testCtxKey string

var testCtxKeyValue testCtxKey = "test-context"

type testContext struct {
	context.Context
	Cancel func()
}

// HandleSmokeTest starts a smoke test for each request and sends its
// result with opts.SendResult.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Warn(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if err := json.Unmarshal(b, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go func() {
			defer func() {
				// Signals tests that the smoke test finished.
				if tctx := ctx.Value(testCtxKeyValue); tctx != nil {
					testCtx := tctx.(testContext)
					if testCtx.Cancel != nil {
						testCtx.Cancel()
					}
				}
			}()

			var res Result
			e, err := opts.NewEngine()
			if err == nil {
				res, err = Run(ctx, e, req, opts.FrameDuration)
			}
			if err != nil {
				res.Status = StatusFailed
				res.Error = err.Error()
				logs.Warn(err)
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("longitude", req.Longitude).
					WithTag("latitude", req.Latitude).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusAccepted)
	}
}

// Run updates the engine with a camera looking down at the requested
// position until it renders the requested tiles with every root tile
// renderable.
func Run(ctx context.Context, e *quadtree.Engine, req Request, frameDuration time.Duration) (Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	minimumTiles := req.MinimumTiles
	if minimumTiles <= 0 {
		minimumTiles = 1
	}

	camera := lookDown(req)
	start := time.Now()

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	var res Result
	for {
		select {
		case <-ctx.Done():
			res.Status = StatusFailed
			return res, errors.New("smoke test timed out").
				WithTag("timeout", timeout).
				WithTag("frames", res.Frames).
				WithTag("rendered", res.Rendered).
				Wrap(ctx.Err())

		case <-ticker.C:
			f := e.Update(camera)
			res.Frames = f.Number
			res.Rendered = f.Stats.Rendered
			res.Resident = f.Stats.Resident
			res.MaxDepth = f.Stats.MaxDepth

			if e.Ready() && len(f.Tiles) >= minimumTiles {
				res.Status = StatusSuccess
				res.LatencyMilliSec = float64(time.Since(start)) / float64(time.Millisecond)
				return res, nil
			}
		}
	}
}

func lookDown(req Request) geom.Camera {
	height := req.Height
	if height <= 0 {
		height = defaultHeight
	}

	e := geom.WGS84
	position := e.CartographicToCartesian(geom.NewCartographicFromDegrees(req.Longitude, req.Latitude, height))
	target := e.CartographicToCartesian(geom.NewCartographicFromDegrees(req.Longitude, req.Latitude, 0))

	up := geom.NewVector3(0, 0, 1)
	if math.Abs(req.Latitude) > 89 {
		up = geom.NewVector3(1, 0, 0)
	}
	return geom.LookAt(position, target, up, math.Pi/3, 1, 1080)
}
