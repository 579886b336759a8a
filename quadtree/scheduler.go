package quadtree

import (
	"sort"
)

// processLoadQueues trims the tile cache then advances the tiles queued
// during selection, most urgent lane first.
func (e *Engine) processLoadQueues() {
	e.stats.Evicted = e.replacement.EvictIfOverBudget(e.opts.TileCacheSize)

	for p := range e.loadQueues {
		queue := e.loadQueues[p]
		e.stats.Queued[p] = len(queue)

		sort.SliceStable(queue, func(a, b int) bool {
			return e.store.Tile(queue[a]).LoadPriority < e.store.Tile(queue[b]).LoadPriority
		})

		for _, i := range queue {
			// Loading a tile may load its parent too.
			if !e.store.Tile(i).needsLoading(e.frame, e.opts.MaximumRetries) {
				continue
			}
			e.replacement.Touch(i)
			e.loadTile(i)
		}
	}
}

// updateHeights refreshes the ground height under the camera when a tile
// containing it started rendering.
func (e *Engine) updateHeights() {
	for _, i := range e.heightUpdates {
		if e.containsCamera(i) {
			if h, ok := e.SampleHeight(e.cameraCartographic); ok {
				e.groundHeight = h
			}
			break
		}
	}
	e.stats.CameraHeight = e.cameraCartographic.Height - e.groundHeight
}
