package quadtree

import (
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// ReplacementQueue orders tiles from most to least recently used. The
// links live in the tiles themselves.
type ReplacementQueue struct {
	store   *Store
	imagery *ImageryStore

	head  TileIndex
	tail  TileIndex
	count int
	frame uint64
}

func NewReplacementQueue(store *Store, imagery *ImageryStore) *ReplacementQueue {
	return &ReplacementQueue{
		store:   store,
		imagery: imagery,
		head:    NoTile,
		tail:    NoTile,
	}
}

func (q *ReplacementQueue) Len() int {
	return q.count
}

// MarkStartOfRenderFrame starts a new frame. Tiles touched from now on
// belong to the frame.
func (q *ReplacementQueue) MarkStartOfRenderFrame(frame uint64) {
	q.frame = frame
}

// Touch moves a tile to the most recently used end, inserting it when it
// is not queued yet.
func (q *ReplacementQueue) Touch(i TileIndex) {
	t := q.store.Tile(i)
	t.touchedFrame = q.frame

	if t.queued {
		if q.head == i {
			return
		}
		q.unlink(i, t)
	}

	t.prev = NoTile
	t.next = q.head
	if q.head != NoTile {
		q.store.Tile(q.head).prev = i
	}
	q.head = i
	if q.tail == NoTile {
		q.tail = i
	}

	t.queued = true
	q.count++
}

// Remove takes a tile out of the queue without freeing it.
func (q *ReplacementQueue) Remove(i TileIndex) {
	t := q.store.Tile(i)
	if !t.queued {
		return
	}
	q.unlink(i, t)
}

func (q *ReplacementQueue) unlink(i TileIndex, t *Tile) {
	if t.prev != NoTile {
		q.store.Tile(t.prev).next = t.next
	} else {
		q.head = t.next
	}

	if t.next != NoTile {
		q.store.Tile(t.next).prev = t.prev
	} else {
		q.tail = t.prev
	}

	t.prev = NoTile
	t.next = NoTile
	t.queued = false
	q.count--
}

// EvictIfOverBudget frees tiles from the least recently used end until at
// most max tiles remain. Tiles not touched this frame go first, then tiles
// touched this frame that are not rendered. Root tiles are kept until
// nothing else can go. Tiles rendered this frame and tiles waiting for a
// job are never evicted. It returns the number of evicted tiles.
func (q *ReplacementQueue) EvictIfOverBudget(max int) int {
	evicted := 0

	passes := []func(t *Tile) bool{
		func(t *Tile) bool {
			return t.touchedFrame != q.frame
		},
		func(t *Tile) bool {
			return t.Parent != NoTile && !q.isRendered(t)
		},
		func(t *Tile) bool {
			return !q.isRendered(t)
		},
	}

	for _, eligible := range passes {
		for i := q.tail; i != NoTile && q.count > max; {
			t := q.store.Tile(i)
			prev := t.prev

			if eligible(t) && q.canUnload(t) {
				q.evict(i, t)
				evicted++
			}
			i = prev
		}
	}
	return evicted
}

// canUnload reports whether no terrain job runs for the tile and none of
// the imagery it is loading is being fetched or reprojected.
func (q *ReplacementQueue) canUnload(t *Tile) bool {
	if t.Terrain == TerrainReceiving || t.Terrain == TerrainTransforming {
		return false
	}

	for j := range t.Imagery {
		loading := t.Imagery[j].Loading
		if loading != NoImagery && q.imagery.Get(loading).State == ImageryTransitioning {
			return false
		}
	}
	return true
}

func (q *ReplacementQueue) isRendered(t *Tile) bool {
	return t.selectionResultFrame == q.frame && t.selectionResult == SelectionRendered
}

func (q *ReplacementQueue) evict(i TileIndex, t *Tile) {
	logs.WithTag("tile", t.Key.String()).
		WithTag("state", t.State.String()).
		Debug("evicting tile")

	q.unlink(i, t)
	t.freeResources(q.imagery)
	instrumentTileEvicted()
}
