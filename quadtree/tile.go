package quadtree

import (
	"github.com/aukilabs/globe/geom"
	"github.com/aukilabs/globe/providers"
	"github.com/aukilabs/globe/tiling"
)

// TileIndex addresses a tile in the Store.
type TileIndex int32

const NoTile TileIndex = -1

// LoadState is the load progress of a tile.
type LoadState uint8

const (
	LoadStart LoadState = iota
	LoadLoading
	LoadDone
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadStart:
		return "start"
	case LoadLoading:
		return "loading"
	case LoadDone:
		return "done"
	case LoadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TerrainState is the progress of a tile's terrain from request to mesh.
type TerrainState uint8

const (
	TerrainFailed TerrainState = iota
	TerrainUnloaded
	TerrainReceiving
	TerrainReceived
	TerrainTransforming
	TerrainTransformed
	TerrainReady
)

func (s TerrainState) String() string {
	switch s {
	case TerrainFailed:
		return "failed"
	case TerrainUnloaded:
		return "unloaded"
	case TerrainReceiving:
		return "receiving"
	case TerrainReceived:
		return "received"
	case TerrainTransforming:
		return "transforming"
	case TerrainTransformed:
		return "transformed"
	case TerrainReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Tile is a node of the quadtree. Tiles live in the Store for the lifetime
// of the engine; eviction only drops their payload.
type Tile struct {
	Key      tiling.Key
	Parent   TileIndex
	Children [4]TileIndex

	State               LoadState
	Renderable          bool
	UpsampledFromParent bool
	Distance            float64
	LoadPriority        float64

	Terrain     TerrainState
	HeightField *providers.HeightField
	Mesh        *Mesh
	Imagery     []TileImagery

	subdivided  bool
	pendingMesh *Mesh
	bounds      tileBounds

	selectionResult      SelectionResult
	selectionResultFrame uint64

	// The frame the tile was last queued for loading in.
	queuedFrame uint64

	// Replacement queue links.
	prev         TileIndex
	next         TileIndex
	queued       bool
	touchedFrame uint64

	// Bumped on eviction so late job results are discarded.
	generation uint32
	retry      retryState
}

type tileBounds struct {
	valid       bool
	source      TileIndex
	heightField *providers.HeightField
	mesh        *Mesh
	sphere      geom.BoundingSphere
}

type retryState struct {
	failures  int
	nextFrame uint64
}

// SelectionResult returns the result recorded for the tile and the frame it
// was recorded in.
func (t *Tile) SelectionResult() (SelectionResult, uint64) {
	return t.selectionResult, t.selectionResultFrame
}

func (t *Tile) IsSubdivided() bool {
	return t.subdivided
}

func (t *Tile) setSelection(r SelectionResult, frame uint64) {
	t.selectionResult = r
	t.selectionResultFrame = frame
}

// resultInFrame returns the selection result recorded in the given frame,
// None when the tile was not visited then.
func (t *Tile) resultInFrame(frame uint64) SelectionResult {
	if t.selectionResultFrame != frame {
		return SelectionNone
	}
	return t.selectionResult
}

// needsLoading reports whether the tile still has work to do. Failed tiles
// need loading again once their retry delay elapsed.
func (t *Tile) needsLoading(frame uint64, maxRetries int) bool {
	switch t.State {
	case LoadStart, LoadLoading:
		return true
	case LoadFailed:
		return t.retry.failures <= maxRetries && frame >= t.retry.nextFrame
	default:
		return false
	}
}

// freeResources drops the tile payload and resets it to Start.
func (t *Tile) freeResources(imagery *ImageryStore) {
	for i := range t.Imagery {
		t.Imagery[i].free(imagery)
	}
	t.Imagery = nil

	t.State = LoadStart
	t.Renderable = false
	t.UpsampledFromParent = false
	t.Terrain = TerrainUnloaded
	t.HeightField = nil
	t.Mesh = nil
	t.pendingMesh = nil
	t.bounds = tileBounds{source: NoTile}
	t.retry = retryState{}
	t.generation++
}
