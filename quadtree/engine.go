// Package quadtree selects, each frame, the set of terrain tiles to render
// for a camera and schedules the loading of their terrain and imagery.
//
// The Engine is driven by a single goroutine calling Update. Fetches and
// CPU heavy tile processing run on a jobs.Spawner and their results are
// applied at the start of the next Update.
package quadtree

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/globe/geom"
	"github.com/aukilabs/globe/jobs"
	"github.com/aukilabs/globe/providers"
	"github.com/aukilabs/globe/tiling"
)

// Options configures an Engine.
type Options struct {
	// The screen space error, in pixels, above which a tile is refined.
	MaximumScreenSpaceError float64

	// The number of tiles kept loaded beyond the ones needed by the
	// current frame.
	TileCacheSize int

	// The deepest level selected.
	MaximumLevel uint32

	// When more descendants than this are not renderable yet, the
	// ancestor rendered meanwhile is loaded first.
	LoadingDescendantLimit int

	// Loads the ancestors of rendered tiles with a low priority.
	PreloadAncestors bool

	// Loads the culled siblings of visited tiles with a low priority.
	PreloadSiblings bool

	// The fetches started per frame. Zero means no limit.
	MaximumRequestsPerFrame int

	// The fetches in flight at any time. Zero means no limit.
	MaximumConcurrentRequests int

	// The frames to wait before the first retry of a failed fetch. The
	// delay doubles on each failure.
	RetryDelayFrames int

	// The retries of a failed root terrain tile or imagery tile.
	MaximumRetries int
}

func DefaultOptions() Options {
	return Options{
		MaximumScreenSpaceError:   2,
		TileCacheSize:             100,
		MaximumLevel:              24,
		LoadingDescendantLimit:    20,
		PreloadAncestors:          true,
		MaximumRequestsPerFrame:   16,
		MaximumConcurrentRequests: 50,
		RetryDelayFrames:          30,
		MaximumRetries:            5,
	}
}

// Frame is the result of an Update.
type Frame struct {
	Number uint64         `json:"number"`
	Tiles  []RenderedTile `json:"tiles"`
	Stats  Stats          `json:"stats"`
}

// RenderedTile is a renderable tile of a frame, in near to far order.
type RenderedTile struct {
	Key       tiling.Key          `json:"key"`
	Rectangle tiling.Rectangle    `json:"rectangle"`
	Distance  float64             `json:"distance"`
	Mesh      *Mesh               `json:"-"`
	Imagery   []ImageryAttachment `json:"imagery,omitempty"`
}

// ImageryAttachment is a ready texture draped over a rendered tile.
type ImageryAttachment struct {
	Layer                      LayerID    `json:"layer"`
	Imagery                    tiling.Key `json:"imagery"`
	Texture                    *Texture   `json:"-"`
	TextureCoordinateRectangle [4]float64 `json:"texture_coordinate_rectangle"`
	TranslationAndScale        [4]float64 `json:"translation_and_scale"`
	UseWebMercatorT            bool       `json:"use_web_mercator_t"`
}

// Stats describes the work done during a frame.
type Stats struct {
	Visited            int     `json:"visited"`
	Culled             int     `json:"culled"`
	Rendered           int     `json:"rendered"`
	WaitingForChildren int     `json:"waiting_for_children"`
	Queued             [3]int  `json:"queued"`
	Requests           int     `json:"requests"`
	InFlight           int     `json:"in_flight"`
	Resident           int     `json:"resident"`
	ImageryRecords     int     `json:"imagery_records"`
	Evicted            int     `json:"evicted"`
	MaxDepth           uint32  `json:"max_depth"`
	CameraHeight       float64 `json:"camera_height"`
}

// Engine selects and loads the tiles of a globe. Update and the layer
// methods must be called from the same goroutine.
type Engine struct {
	opts      Options
	terrain   providers.TerrainProvider
	spawner   jobs.Spawner
	ellipsoid geom.Ellipsoid

	store       *Store
	imagery     *ImageryStore
	layers      LayerCollection
	replacement *ReplacementQueue

	frame              uint64
	lastSelectionFrame uint64

	camera             geom.Camera
	cullingVolume      geom.CullingVolume
	cameraCartographic geom.Cartographic
	groundHeight       float64

	sortedRoots   []TileIndex
	rootDetails   []TraversalDetails
	quadDetails   []quadDetails
	renderList    []TileIndex
	heightUpdates []TileIndex
	loadQueues    [3][]TileIndex
	readyImagery  []bool
	descendants   []TileIndex

	inflight          []inflightJob
	requestsThisFrame int
	fetchesInFlight   int

	stats Stats
	ready atomic.Bool

	frameMutex      sync.RWMutex
	frameHandlerIDs handlerIDs
	frameHandlers   map[uint32]func(Frame)
}

// NewEngine returns an engine rendering the given terrain. Jobs are started
// with spawner.
func NewEngine(terrain providers.TerrainProvider, spawner jobs.Spawner, opts Options) *Engine {
	if opts.MaximumLevel >= tiling.MaxLevel {
		opts.MaximumLevel = tiling.MaxLevel - 1
	}

	scheme := terrain.TilingScheme()
	store := NewStore(scheme)
	imagery := NewImageryStore()

	return &Engine{
		opts:          opts,
		terrain:       terrain,
		spawner:       spawner,
		ellipsoid:     scheme.Ellipsoid(),
		store:         store,
		imagery:       imagery,
		replacement:   NewReplacementQueue(store, imagery),
		rootDetails:   make([]TraversalDetails, len(store.Roots())),
		quadDetails:   make([]quadDetails, opts.MaximumLevel+2),
		frameHandlers: make(map[uint32]func(Frame)),
	}
}

func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) Store() *Store {
	return e.store
}

func (e *Engine) Imagery() *ImageryStore {
	return e.imagery
}

func (e *Engine) Layers() []*Layer {
	return e.layers.All()
}

// Ready reports whether every root tile is renderable.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

// Update runs one frame for the given camera.
func (e *Engine) Update(camera geom.Camera) Frame {
	start := time.Now()
	e.frame++

	e.ingest()
	e.beginFrame(camera)

	if providers.IsReady(e.terrain) {
		e.selectTiles()
	}

	e.processLoadQueues()
	e.updateHeights()

	frame := e.buildFrame()
	instrumentFrame(start, frame.Stats)
	return frame
}

func (e *Engine) beginFrame(camera geom.Camera) {
	e.camera = camera
	e.cullingVolume = camera.CullingVolume()
	e.cameraCartographic = camera.PositionCartographic(e.ellipsoid)

	for p := range e.loadQueues {
		e.loadQueues[p] = e.loadQueues[p][:0]
	}
	e.renderList = e.renderList[:0]
	e.heightUpdates = e.heightUpdates[:0]
	e.requestsThisFrame = 0
	e.stats = Stats{}

	e.replacement.MarkStartOfRenderFrame(e.frame)
}

func (e *Engine) buildFrame() Frame {
	frame := Frame{
		Number: e.frame,
		Tiles:  make([]RenderedTile, 0, len(e.renderList)),
	}

	for _, i := range e.renderList {
		t := e.store.Tile(i)
		if !t.Renderable || t.Mesh == nil {
			continue
		}

		rt := RenderedTile{
			Key:       t.Key,
			Rectangle: e.store.Rectangle(i),
			Distance:  t.Distance,
			Mesh:      t.Mesh,
		}

		for j := range t.Imagery {
			ti := &t.Imagery[j]
			if ti.Ready == NoImagery {
				continue
			}

			r := e.imagery.Get(ti.Ready)
			tex := r.Texture
			if ti.UseWebMercatorT && r.TextureWebMercator != nil {
				tex = r.TextureWebMercator
			}
			if tex == nil {
				continue
			}

			rt.Imagery = append(rt.Imagery, ImageryAttachment{
				Layer:                      r.Key.Layer,
				Imagery:                    r.Key.Tile,
				Texture:                    tex,
				TextureCoordinateRectangle: ti.TextureCoordinateRectangle,
				TranslationAndScale:        ti.TranslationAndScale,
				UseWebMercatorT:            ti.UseWebMercatorT,
			})
		}

		frame.Tiles = append(frame.Tiles, rt)
	}

	ready := true
	for _, r := range e.store.Roots() {
		ready = ready && e.store.Tile(r).Renderable
	}
	e.ready.Store(ready)

	e.stats.Rendered = len(frame.Tiles)
	e.stats.Requests = e.requestsThisFrame
	e.stats.InFlight = len(e.inflight)
	e.stats.Resident = e.replacement.Len()
	e.stats.ImageryRecords = e.imagery.Len()
	frame.Stats = e.stats
	return frame
}

// AddLayer appends an imagery layer on top of the others. Loaded tiles get
// the layer attached and go back to loading.
func (e *Engine) AddLayer(l *Layer) {
	e.layers.Add(l)

	if !l.Hidden {
		e.store.ForEach(func(i TileIndex, t *Tile) {
			if t.State == LoadStart {
				return
			}

			terrainError := e.terrain.LevelMaximumGeometricError(t.Key.Level)
			if !l.createTileImagerySkeletons(t, e.store.Rectangle(i), terrainError, e.imagery, -1) {
				return
			}

			if t.State == LoadDone {
				t.State = LoadLoading
			}

			// Tiles not on screen wait for the new imagery before
			// rendering. Roots stay renderable so there is always
			// something to draw.
			if t.Key.Level != 0 && t.resultInFrame(e.lastSelectionFrame) != SelectionRendered {
				t.Renderable = false
			}
		})
	}

	logs.WithTag("layer", l.Name).
		WithTag("layer_id", l.ID.String()).
		WithTag("layers", e.layers.Len()).
		Info("imagery layer added")
}

// RemoveLayer removes an imagery layer and frees its imagery. It returns
// false when the layer is unknown.
func (e *Engine) RemoveLayer(id LayerID) bool {
	l, ok := e.layers.Remove(id)
	if !ok {
		return false
	}

	e.store.ForEach(func(i TileIndex, t *Tile) {
		kept := t.Imagery[:0]
		for j := range t.Imagery {
			ti := t.Imagery[j]
			if ti.layer(e.imagery) == l {
				ti.free(e.imagery)
				continue
			}
			kept = append(kept, ti)
		}

		for j := len(kept); j < len(t.Imagery); j++ {
			t.Imagery[j] = TileImagery{}
		}
		t.Imagery = kept
	})

	logs.WithTag("layer", l.Name).
		WithTag("layer_id", l.ID.String()).
		WithTag("layers", e.layers.Len()).
		Info("imagery layer removed")
	return true
}

// SampleHeight returns the terrain height at a position, interpolated in
// the deepest loaded tile containing it. It returns false when no tile
// under the position has heights.
func (e *Engine) SampleHeight(c geom.Cartographic) (float64, bool) {
	best := NoTile

	for _, root := range e.store.Roots() {
		if !e.store.Rectangle(root).Contains(c) {
			continue
		}

		for i := root; i != NoTile; {
			t := e.store.Tile(i)
			if t.HeightField != nil {
				best = i
			}
			if !t.subdivided {
				break
			}

			next := NoTile
			for _, child := range t.Children {
				if e.store.Rectangle(child).Contains(c) {
					next = child
					break
				}
			}
			i = next
		}
		break
	}

	if best == NoTile {
		return 0, false
	}

	rect := e.store.Rectangle(best)
	hf := e.store.Tile(best).HeightField
	u := (c.Longitude - rect.West) / rect.Width()
	v := (rect.North - c.Latitude) / rect.Height()
	return hf.Sample(u, v), true
}

// HandleFrame registers a function called with every frame produced by
// Run. The returned function unregisters it.
func (e *Engine) HandleFrame(h func(Frame)) (cancel func()) {
	e.frameMutex.Lock()
	defer e.frameMutex.Unlock()

	id := e.frameHandlerIDs.New()
	e.frameHandlers[id] = h

	return func() {
		e.frameMutex.Lock()
		defer e.frameMutex.Unlock()

		if _, ok := e.frameHandlers[id]; !ok {
			return
		}
		delete(e.frameHandlers, id)
		e.frameHandlerIDs.Release(id)
	}
}

func (e *Engine) dispatchFrame(f Frame) {
	e.frameMutex.RLock()
	defer e.frameMutex.RUnlock()

	for _, h := range e.frameHandlers {
		h(f)
	}
}

// Run updates the engine at every tick with the camera returned by camera
// and dispatches the frames to the registered handlers. It returns when
// the context is done.
func (e *Engine) Run(ctx context.Context, frameDuration time.Duration, camera func() geom.Camera) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	logs.WithTag("frame_duration", frameDuration.String()).
		WithTag("terrain", e.store.Scheme().Projection().String()).
		Info("engine started")

	for {
		select {
		case <-ctx.Done():
			logs.WithTag("frames", e.frame).Info("engine stopped")
			return

		case <-ticker.C:
			e.dispatchFrame(e.Update(camera()))
		}
	}
}
