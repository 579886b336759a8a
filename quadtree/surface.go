package quadtree

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/globe/geom"
)

// loadTile advances the loading of a tile by one step. Tiles whose bounds
// borrow ancestor heights, or that are only needed because the camera is
// above them, load their terrain first so their visibility can be decided
// before imagery is requested.
func (e *Engine) loadTile(i TileIndex) {
	t := e.store.Tile(i)

	if t.State == LoadFailed {
		logs.WithTag("tile", t.Key.String()).
			WithTag("failures", t.retry.failures).
			Debug("retrying tile")
		t.State = LoadLoading
		if t.Terrain == TerrainFailed && t.HeightField == nil {
			t.Terrain = TerrainUnloaded
		}
	}

	terrainOnly := true
	if t.State != LoadStart {
		terrainOnly = e.boundingSource(i) != i ||
			t.selectionResult == SelectionCulledButNeeded
	}

	terrainBefore := t.Terrain
	e.processStateMachine(i, terrainOnly)

	if terrainOnly && terrainBefore != t.Terrain {
		if e.computeVisibility(i) != geom.VisibilityNone && e.boundingSource(i) == i {
			e.processStateMachine(i, false)
		}
	}
}

func (e *Engine) processStateMachine(i TileIndex, terrainOnly bool) {
	t := e.store.Tile(i)

	if t.State == LoadStart {
		e.prepareNewTile(i, t)
		t.State = LoadLoading
	}

	if t.State == LoadLoading {
		e.processTerrain(i, t)
	}

	if terrainOnly {
		return
	}

	wasAlreadyRenderable := t.Renderable

	// A tile with a mesh is renderable, imagery may still veto it below.
	t.Renderable = t.Mesh != nil

	terrainDone := t.Terrain == TerrainReady
	t.UpsampledFromParent = t.HeightField != nil && t.HeightField.CreatedByUpsampling

	imageryDone := e.processTileImageries(i, t)
	if terrainDone && imageryDone && t.State == LoadLoading {
		t.State = LoadDone
		t.retry = retryState{}
	}

	// Once renderable, a tile stays renderable until it is evicted.
	if wasAlreadyRenderable {
		t.Renderable = true
	}
}

// prepareNewTile decides whether terrain data exists for the tile and
// attaches the imagery skeletons of every visible layer.
func (e *Engine) prepareNewTile(i TileIndex, t *Tile) {
	available, known := e.terrain.TileDataAvailable(t.Key)
	if !known && t.Parent != NoTile {
		parent := e.store.Tile(t.Parent)
		if parent.HeightField != nil {
			available = parent.HeightField.IsChildAvailable(parent.Key, t.Key)
			known = true
		}
	}

	if known && !available {
		t.Terrain = TerrainFailed
	}

	rect := e.store.Rectangle(i)
	terrainError := e.terrain.LevelMaximumGeometricError(t.Key.Level)
	for _, l := range e.layers.All() {
		if !l.Hidden {
			l.createTileImagerySkeletons(t, rect, terrainError, e.imagery, -1)
		}
	}
}

func (e *Engine) processTerrain(i TileIndex, t *Tile) {
	if t.Terrain == TerrainFailed && t.Parent != NoTile {
		// Upsampling needs the parent heights, possibly dropped on eviction.
		if e.store.Tile(t.Parent).HeightField == nil {
			e.processStateMachine(t.Parent, true)
		}
	}

	if t.Terrain == TerrainFailed {
		e.upsample(i, t)
	}

	if t.Terrain == TerrainUnloaded {
		job := terrainRequestJob{
			Provider: e.terrain,
			Key:      t.Key,
		}
		if e.spawn(jobTerrainRequest, job, i, NoImagery, t.generation) {
			t.Terrain = TerrainReceiving
		}
	}

	if t.Terrain == TerrainReceived {
		job := meshJob{
			Rectangle:   e.store.Rectangle(i),
			Ellipsoid:   e.ellipsoid,
			HeightField: t.HeightField,
		}
		if e.spawn(jobMesh, job, i, NoImagery, t.generation) {
			t.Terrain = TerrainTransforming
		}
	}

	if t.Terrain == TerrainTransformed {
		t.Mesh = t.pendingMesh
		t.pendingMesh = nil
		t.Terrain = TerrainReady
	}
}

// upsample derives the terrain of a tile from its parent. Root tiles have
// no parent and fail, to be retried after a delay.
func (e *Engine) upsample(i TileIndex, t *Tile) {
	if t.Parent == NoTile {
		t.State = LoadFailed
		t.retry.failures++
		t.retry.nextFrame = e.frame + e.retryDelay(t.retry.failures)

		logger := logs.WithTag("tile", t.Key.String()).
			WithTag("failures", t.retry.failures)
		if t.retry.failures > e.opts.MaximumRetries {
			logger.Error(errors.New("terrain of root tile failed to load, giving up"))
		} else {
			logger.Warn("terrain of root tile failed to load")
		}
		instrumentTileFailed()
		return
	}

	parent := e.store.Tile(t.Parent)
	if parent.HeightField == nil {
		return
	}

	job := upsampleJob{
		Source:    parent.HeightField,
		SourceKey: parent.Key,
		Key:       t.Key,
	}
	if e.spawn(jobUpsample, job, i, NoImagery, t.generation) {
		t.Terrain = TerrainReceiving
	}
}

// processTileImageries advances every imagery attached to a tile. It
// returns true when none of them has anything left to load.
func (e *Engine) processTileImageries(i TileIndex, t *Tile) bool {
	rect := e.store.Rectangle(i)
	terrainError := e.terrain.LevelMaximumGeometricError(t.Key.Level)

	isUpsampledOnly := t.UpsampledFromParent
	isAnyTileLoaded := false
	isDoneLoading := true
	awaitingRetry := false

	for j := 0; j < len(t.Imagery); j++ {
		ti := &t.Imagery[j]

		if ti.Loading != NoImagery {
			loading := e.imagery.Get(ti.Loading)
			if loading.State == ImageryPlaceholder {
				l := loading.layer
				if l.ready() {
					ti.free(e.imagery)
					t.Imagery = append(t.Imagery[:j], t.Imagery[j+1:]...)
					l.createTileImagerySkeletons(t, rect, terrainError, e.imagery, j)
					j--
					continue
				}
			}
		}

		thisTileDoneLoading := ti.Loading == NoImagery || e.processTileImagery(rect, ti)
		isDoneLoading = isDoneLoading && thisTileDoneLoading

		isAnyTileLoaded = isAnyTileLoaded || thisTileDoneLoading || ti.Ready != NoImagery

		if ti.Loading == NoImagery {
			isUpsampledOnly = false
		} else {
			loading := e.imagery.Get(ti.Loading)
			isUpsampledOnly = isUpsampledOnly &&
				(loading.State == ImageryFailed || loading.State == ImageryInvalid)
			awaitingRetry = awaitingRetry ||
				(loading.State == ImageryFailed && loading.retry.failures <= e.opts.MaximumRetries)
		}
	}

	t.UpsampledFromParent = isUpsampledOnly

	// Wait for at least one imagery tile before rendering, unless no
	// imagery is attached at all.
	t.Renderable = t.Renderable && (isAnyTileLoaded || isDoneLoading)

	// Failed imagery does not hold rendering back, but the tile keeps
	// loading until its retries are exhausted.
	return isDoneLoading && !awaitingRetry
}

// retryDelay returns the number of frames to wait before the given retry.
func (e *Engine) retryDelay(failures int) uint64 {
	if failures < 1 {
		failures = 1
	}
	shift := math.Min(float64(failures-1), 16)
	return uint64(e.opts.RetryDelayFrames) << uint(shift)
}
