package quadtree

import (
	"context"
	"math"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/globe/geom"
	"github.com/aukilabs/globe/jobs"
	"github.com/aukilabs/globe/providers"
	"github.com/aukilabs/globe/tiling"
)

type jobKind uint8

const (
	jobTerrainRequest jobKind = iota
	jobUpsample
	jobMesh
	jobImageryRequest
	jobReproject
)

func (k jobKind) String() string {
	switch k {
	case jobTerrainRequest:
		return "terrain_request"
	case jobUpsample:
		return "upsample"
	case jobMesh:
		return "mesh"
	case jobImageryRequest:
		return "imagery_request"
	case jobReproject:
		return "reproject"
	default:
		return "unknown"
	}
}

// isFetch reports whether the job hits the network and counts against the
// request budget.
func (k jobKind) isFetch() bool {
	return k == jobTerrainRequest || k == jobImageryRequest
}

type terrainRequestJob struct {
	Provider providers.TerrainProvider
	Key      tiling.Key
}

func (j terrainRequestJob) Run(ctx context.Context) (any, error) {
	return j.Provider.RequestTileGeometry(ctx, j.Key)
}

type upsampleJob struct {
	Source    *providers.HeightField
	SourceKey tiling.Key
	Key       tiling.Key
}

func (j upsampleJob) Run(ctx context.Context) (any, error) {
	return j.Source.Upsample(j.SourceKey, j.Key)
}

type meshJob struct {
	Rectangle   tiling.Rectangle
	Ellipsoid   geom.Ellipsoid
	HeightField *providers.HeightField
}

func (j meshJob) Run(ctx context.Context) (any, error) {
	return NewMesh(j.Rectangle, j.Ellipsoid, j.HeightField), nil
}

type imageryRequestJob struct {
	Provider providers.ImageryProvider
	Key      tiling.Key
}

func (j imageryRequestJob) Run(ctx context.Context) (any, error) {
	return j.Provider.RequestImage(ctx, j.Key)
}

type reprojectJob struct {
	Source    *Texture
	Rectangle tiling.Rectangle
}

func (j reprojectJob) Run(ctx context.Context) (any, error) {
	return reprojectToGeographic(j.Source, j.Rectangle), nil
}

// reprojectToGeographic resamples the rows of a web mercator texture so
// they are evenly spaced in latitude. Each output row takes the nearest
// source row.
func reprojectToGeographic(src *Texture, rect tiling.Rectangle) *Texture {
	rowSize := 4 * src.Width
	pixels := make([]byte, len(src.Pixels))

	northMercator := tiling.LatitudeToMercatorAngle(rect.North)
	southMercator := tiling.LatitudeToMercatorAngle(rect.South)
	mercatorHeight := northMercator - southMercator

	for j := 0; j < src.Height; j++ {
		lat := rect.North - (float64(j)+0.5)/float64(src.Height)*rect.Height()
		fraction := (northMercator - tiling.LatitudeToMercatorAngle(lat)) / mercatorHeight

		row := int(math.Floor(fraction * float64(src.Height)))
		if row < 0 {
			row = 0
		} else if row >= src.Height {
			row = src.Height - 1
		}
		copy(pixels[j*rowSize:(j+1)*rowSize], src.Pixels[row*rowSize:(row+1)*rowSize])
	}

	return &Texture{
		Width:      src.Width,
		Height:     src.Height,
		Pixels:     pixels,
		Rectangle:  rect,
		Projection: tiling.ProjectionGeographic,
	}
}

// inflightJob is a spawned job whose result was not ingested yet. The
// generation identifies the tile or imagery record payload the job was
// spawned for.
type inflightJob struct {
	kind       jobKind
	tile       TileIndex
	imagery    ImageryIndex
	generation uint32
	result     <-chan jobs.Result
	started    time.Time
}

// spawn starts a job unless the request budget is exhausted or the spawner
// is saturated. It returns false when the job was not started; the caller
// leaves its state machine untouched so the job is retried later.
func (e *Engine) spawn(kind jobKind, j jobs.Job, tile TileIndex, imagery ImageryIndex, generation uint32) bool {
	if kind.isFetch() && !e.hasRequestBudget() {
		instrumentJobThrottled(kind)
		return false
	}

	res, ok := e.spawner.Spawn(j)
	if !ok {
		instrumentJobThrottled(kind)
		return false
	}

	if kind.isFetch() {
		e.requestsThisFrame++
		e.fetchesInFlight++
	}

	e.inflight = append(e.inflight, inflightJob{
		kind:       kind,
		tile:       tile,
		imagery:    imagery,
		generation: generation,
		result:     res,
		started:    time.Now(),
	})
	return true
}

func (e *Engine) hasRequestBudget() bool {
	if max := e.opts.MaximumRequestsPerFrame; max > 0 && e.requestsThisFrame >= max {
		return false
	}
	if max := e.opts.MaximumConcurrentRequests; max > 0 && e.fetchesInFlight >= max {
		return false
	}
	return true
}

// ingest applies the results of finished jobs without blocking. Applying
// a result never spawns a job.
func (e *Engine) ingest() {
	pending := e.inflight[:0]
	for _, j := range e.inflight {
		select {
		case res := <-j.result:
			if j.kind.isFetch() {
				e.fetchesInFlight--
			}
			instrumentJob(j.kind, j.started, res.Err)
			e.complete(j, res)

		default:
			pending = append(pending, j)
		}
	}

	for i := len(pending); i < len(e.inflight); i++ {
		e.inflight[i] = inflightJob{}
	}
	e.inflight = pending
}

func (e *Engine) complete(j inflightJob, res jobs.Result) {
	if j.tile != NoTile {
		e.completeTile(j, res)
		return
	}
	e.completeImagery(j, res)
}

func (e *Engine) completeTile(j inflightJob, res jobs.Result) {
	t := e.store.Tile(j.tile)
	if t.generation != j.generation {
		instrumentJobDiscarded(j.kind)
		return
	}

	if res.Err != nil {
		if errors.IsType(res.Err, jobs.ErrTypeCanceled) {
			switch j.kind {
			case jobTerrainRequest:
				t.Terrain = TerrainUnloaded
			case jobUpsample:
				t.Terrain = TerrainFailed
			case jobMesh:
				t.Terrain = TerrainReceived
			}
			return
		}

		logger := logs.WithTag("tile", t.Key.String()).
			WithTag("job", j.kind.String())
		if errors.IsType(res.Err, providers.ErrTypeDecode) {
			logger.Warn(res.Err)
		} else {
			logger.Debug(res.Err)
		}
		t.Terrain = TerrainFailed
		return
	}

	switch j.kind {
	case jobTerrainRequest, jobUpsample:
		hf, _ := res.Value.(*providers.HeightField)
		if hf == nil {
			t.Terrain = TerrainFailed
			return
		}
		if err := hf.Validate(); err != nil {
			logs.WithTag("tile", t.Key.String()).Warn(err)
			t.Terrain = TerrainFailed
			return
		}
		t.HeightField = hf
		t.Terrain = TerrainReceived

	case jobMesh:
		t.pendingMesh = res.Value.(*Mesh)
		t.Terrain = TerrainTransformed
	}
}

func (e *Engine) completeImagery(j inflightJob, res jobs.Result) {
	if !e.imagery.isCurrent(j.imagery, j.generation) {
		instrumentJobDiscarded(j.kind)
		return
	}
	r := e.imagery.Get(j.imagery)

	if res.Err != nil {
		switch {
		case errors.IsType(res.Err, jobs.ErrTypeCanceled):
			if j.kind == jobImageryRequest {
				r.State = ImageryUnloaded
			} else {
				r.State = ImageryTextureLoaded
			}
		case errors.IsType(res.Err, providers.ErrTypeInvalid):
			r.State = ImageryInvalid
		default:
			e.imageryFailed(r, res.Err)
		}
		return
	}

	switch j.kind {
	case jobImageryRequest:
		img, _ := res.Value.(*providers.ImagePayload)
		if img == nil || img.Width == 0 || img.Height == 0 {
			r.State = ImageryInvalid
			return
		}
		r.image = img
		r.State = ImageryReceived

	case jobReproject:
		r.Texture = res.Value.(*Texture)
		r.State = ImageryReady
	}
}
