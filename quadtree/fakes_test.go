package quadtree

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/globe/geom"
	"github.com/aukilabs/globe/jobs"
	"github.com/aukilabs/globe/providers"
	"github.com/aukilabs/globe/tiling"
)

// fakeTerrainProvider serves flat tiles on a geographic scheme. Every tile
// is available.
type fakeTerrainProvider struct {
	scheme tiling.Scheme
	height float32

	mutex       sync.Mutex
	levelErrors func(level uint32) float64
	fail        func(k tiling.Key) error
	requests    map[tiling.Key]int
}

func newFakeTerrainProvider() *fakeTerrainProvider {
	return &fakeTerrainProvider{
		scheme:      tiling.NewGeographicScheme(),
		levelErrors: func(uint32) float64 { return 1 },
		requests:    make(map[tiling.Key]int),
	}
}

func (p *fakeTerrainProvider) setLevelErrors(f func(level uint32) float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.levelErrors = f
}

func (p *fakeTerrainProvider) TilingScheme() tiling.Scheme {
	return p.scheme
}

func (p *fakeTerrainProvider) LevelMaximumGeometricError(level uint32) float64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.levelErrors(level)
}

func (p *fakeTerrainProvider) TileDataAvailable(k tiling.Key) (bool, bool) {
	return true, true
}

func (p *fakeTerrainProvider) RequestTileGeometry(ctx context.Context, k tiling.Key) (*providers.HeightField, error) {
	p.mutex.Lock()
	p.requests[k]++
	fail := p.fail
	p.mutex.Unlock()

	if fail != nil {
		if err := fail(k); err != nil {
			return nil, err
		}
	}
	return providers.NewFlatHeightField(5, 5, p.height, providers.AllChildren), nil
}

func (p *fakeTerrainProvider) requestCount(k tiling.Key) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.requests[k]
}

// fakeImageryProvider serves 4x4 images.
type fakeImageryProvider struct {
	scheme   tiling.Scheme
	maxLevel uint32

	mutex    sync.Mutex
	fail     func(k tiling.Key) error
	requests int
}

func newFakeImageryProvider(s tiling.Scheme, maxLevel uint32) *fakeImageryProvider {
	return &fakeImageryProvider{
		scheme:   s,
		maxLevel: maxLevel,
	}
}

func (p *fakeImageryProvider) TilingScheme() tiling.Scheme {
	return p.scheme
}

func (p *fakeImageryProvider) TileWidth() int {
	return 256
}

func (p *fakeImageryProvider) TileHeight() int {
	return 256
}

func (p *fakeImageryProvider) MinimumLevel() uint32 {
	return 0
}

func (p *fakeImageryProvider) MaximumLevel() uint32 {
	return p.maxLevel
}

func (p *fakeImageryProvider) RequestImage(ctx context.Context, k tiling.Key) (*providers.ImagePayload, error) {
	p.mutex.Lock()
	p.requests++
	fail := p.fail
	p.mutex.Unlock()

	if fail != nil {
		if err := fail(k); err != nil {
			return nil, err
		}
	}

	pixels := make([]byte, 4*4*4)
	for i := range pixels {
		pixels[i] = byte(k.Level)
	}
	return &providers.ImagePayload{Width: 4, Height: 4, Pixels: pixels}, nil
}

func (p *fakeImageryProvider) requestCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.requests
}

// lateImageryProvider is not ready until marked so.
type lateImageryProvider struct {
	*fakeImageryProvider

	mutex sync.Mutex
	ready bool
}

func (p *lateImageryProvider) Ready() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.ready
}

func (p *lateImageryProvider) setReady() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.ready = true
}

type heldJob struct {
	job    jobs.Job
	result chan jobs.Result
}

// manualSpawner runs jobs inline, except the ones matched by hold that
// wait for release.
type manualSpawner struct {
	hold   func(j jobs.Job) bool
	held   []heldJob
	reject bool
}

func (s *manualSpawner) Spawn(j jobs.Job) (<-chan jobs.Result, bool) {
	if s.reject {
		return nil, false
	}

	res := make(chan jobs.Result, 1)
	if s.hold != nil && s.hold(j) {
		s.held = append(s.held, heldJob{job: j, result: res})
		return res, true
	}

	v, err := j.Run(context.Background())
	res <- jobs.Result{Value: v, Err: err}
	return res, true
}

func (s *manualSpawner) release() {
	for _, h := range s.held {
		v, err := h.job.Run(context.Background())
		h.result <- jobs.Result{Value: v, Err: err}
	}
	s.held = nil
}

func holdTerrainRequest(k tiling.Key) func(j jobs.Job) bool {
	return func(j jobs.Job) bool {
		r, ok := j.(terrainRequestJob)
		return ok && r.Key == k
	}
}

func holdImageryRequests(j jobs.Job) bool {
	_, ok := j.(imageryRequestJob)
	return ok
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.MaximumRequestsPerFrame = 0
	opts.MaximumConcurrentRequests = 0
	opts.MaximumLevel = 4
	return opts
}

func newTestEngine(t *testing.T, terrain providers.TerrainProvider, spawner jobs.Spawner, opts Options) *Engine {
	t.Helper()
	if spawner == nil {
		spawner = &manualSpawner{}
	}
	return NewEngine(terrain, spawner, opts)
}

// farCamera looks at the globe from the +X axis, far enough to see all of
// it.
func farCamera() geom.Camera {
	return geom.LookAt(
		geom.NewVector3(1e8, 0, 0),
		geom.Vector3{},
		geom.NewVector3(0, 0, 1),
		math.Pi/3,
		1,
		1000,
	)
}

// surfaceCamera looks down at the globe from the given height above a
// position in degrees.
func surfaceCamera(lon, lat, height float64) geom.Camera {
	e := geom.WGS84
	position := e.CartographicToCartesian(geom.NewCartographicFromDegrees(lon, lat, height))
	target := e.CartographicToCartesian(geom.NewCartographicFromDegrees(lon, lat, 0))
	return geom.LookAt(position, target, geom.NewVector3(0, 0, 1), math.Pi/3, 1, 1000)
}

func runFrames(e *Engine, camera geom.Camera, n int) Frame {
	var f Frame
	for i := 0; i < n; i++ {
		f = e.Update(camera)
	}
	return f
}

func tileByKey(t *testing.T, e *Engine, k tiling.Key) *Tile {
	t.Helper()
	i, ok := e.store.Lookup(k)
	if !ok {
		t.Fatalf("tile %s not created", k)
	}
	return e.store.Tile(i)
}

func currentResult(e *Engine, t *Tile) SelectionResult {
	return t.resultInFrame(e.frame)
}

var errFakeFetch = errors.New("fake fetch failure").WithType(providers.ErrTypeFetch)

var errFakeDecode = errors.New("fake corrupt tile").WithType(providers.ErrTypeDecode)

var errInvalidTile = errors.New("fake missing tile").WithType(providers.ErrTypeInvalid)

// logRecorder keeps the log entries of a test.
type logRecorder struct {
	mutex   sync.Mutex
	entries []logs.Entry
}

func recordLogs(t *testing.T) *logRecorder {
	t.Cleanup(func() {
		logs.SetLogger(func(e logs.Entry) { fmt.Println(e) })
	})

	r := &logRecorder{}
	logs.SetLogger(func(e logs.Entry) {
		r.mutex.Lock()
		defer r.mutex.Unlock()
		r.entries = append(r.entries, e)
	})
	return r
}

// count returns the number of entries logged at the given level with the
// given tag.
func (r *logRecorder) count(level logs.Level, tag string, value any) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.Level() == level && e.Tags()[tag] == value {
			n++
		}
	}
	return n
}

// lanes returns the load lanes a tile was queued in during the last frame.
func lanes(e *Engine, i TileIndex) []loadPriority {
	var res []loadPriority
	for p, queue := range e.loadQueues {
		for _, q := range queue {
			if q == i {
				res = append(res, loadPriority(p))
			}
		}
	}
	return res
}
