package quadtree

import (
	"sort"

	"github.com/aukilabs/globe/geom"
	"github.com/aukilabs/globe/tiling"
)

type loadPriority int

const (
	loadHigh loadPriority = iota
	loadMedium
	loadLow
)

func (p loadPriority) String() string {
	switch p {
	case loadHigh:
		return "high"
	case loadMedium:
		return "medium"
	default:
		return "low"
	}
}

// selectTiles builds the render list of the frame, root tiles closest to
// the camera first.
func (e *Engine) selectTiles() {
	roots := append(e.sortedRoots[:0], e.store.Roots()...)
	distances := make(map[TileIndex]float64, len(roots))
	for _, i := range roots {
		center := e.store.Rectangle(i).Center()
		lon := center.Longitude - e.cameraCartographic.Longitude
		lat := center.Latitude - e.cameraCartographic.Latitude
		distances[i] = lon*lon + lat*lat
	}
	sort.SliceStable(roots, func(a, b int) bool {
		return distances[roots[a]] < distances[roots[b]]
	})
	e.sortedRoots = roots

	for j, i := range roots {
		t := e.store.Tile(i)
		if !t.Renderable {
			e.queueLoad(loadHigh, i)
			e.stats.WaitingForChildren++
			continue
		}
		e.visitIfVisible(i, false, &e.rootDetails[j])
	}

	e.lastSelectionFrame = e.frame
}

func (e *Engine) visitIfVisible(i TileIndex, ancestorMeetsSse bool, details *TraversalDetails) {
	if e.computeVisibility(i) != geom.VisibilityNone {
		e.visitTile(i, ancestorMeetsSse, details)
		return
	}

	e.stats.Culled++
	e.replacement.Touch(i)

	details.AllAreRenderable = true
	details.AnyWereRenderedLastFrame = false
	details.NotYetRenderableCount = 0

	t := e.store.Tile(i)
	switch {
	case e.containsCamera(i):
		// The tile is needed to know the height under the camera even
		// though it is not visible.
		if t.Mesh == nil {
			e.queueLoad(loadMedium, i)
		}
		t.setSelection(SelectionCulledButNeeded, e.frame)

	case e.opts.PreloadSiblings || t.Key.Level == 0:
		e.queueLoad(loadLow, i)
		t.setSelection(SelectionCulled, e.frame)

	default:
		t.setSelection(SelectionCulled, e.frame)
	}
}

func (e *Engine) visitTile(i TileIndex, ancestorMeetsSse bool, details *TraversalDetails) {
	t := e.store.Tile(i)

	e.stats.Visited++
	if t.Key.Level > e.stats.MaxDepth {
		e.stats.MaxDepth = t.Key.Level
	}
	e.replacement.Touch(i)

	t.Distance = e.computeDistance(i)
	meetsSse := e.screenSpaceError(t) < e.opts.MaximumScreenSpaceError

	lastFrameResult := t.resultInFrame(e.lastSelectionFrame)
	renderedLastFrame := lastFrameResult == SelectionRendered

	if meetsSse || ancestorMeetsSse {
		// Rendering this tile is good enough, but switching to it from
		// its descendants must not lose detail already on screen.
		original := lastFrameResult.Original()
		renderable := original == SelectionRendered ||
			original == SelectionCulled ||
			lastFrameResult == SelectionNone ||
			t.State == LoadDone

		if !renderable {
			renderable = e.canRenderWithoutLosingDetail(i)
		}

		if renderable {
			if meetsSse {
				e.queueLoad(loadMedium, i)
			}
			e.addToRenderList(i)
			details.set(t.Renderable, renderedLastFrame)
			t.setSelection(SelectionRendered, e.frame)
			if !details.AnyWereRenderedLastFrame {
				e.heightUpdates = append(e.heightUpdates, i)
			}
			return
		}

		// Keep refining, descendants stay until this tile is ready.
		ancestorMeetsSse = true

		if meetsSse {
			e.queueLoad(loadHigh, i)
		}
	}

	if !e.canRefine(t) {
		t.setSelection(SelectionRendered, e.frame)
		e.addToRenderList(i)
		e.queueLoad(loadHigh, i)
		details.set(t.Renderable, renderedLastFrame)
		return
	}

	children := e.store.Subdivide(i)

	allAreUpsampled := true
	for _, c := range children {
		allAreUpsampled = allAreUpsampled && e.store.Tile(c).UpsampledFromParent
	}

	if allAreUpsampled {
		// Children would only repeat this tile's data.
		e.addToRenderList(i)
		e.queueLoad(loadMedium, i)
		for _, c := range children {
			e.replacement.Touch(c)
		}
		details.set(t.Renderable, renderedLastFrame)
		t.setSelection(SelectionRendered, e.frame)
		if !details.AnyWereRenderedLastFrame {
			e.heightUpdates = append(e.heightUpdates, i)
		}
		return
	}

	t.setSelection(SelectionRefined, e.frame)

	firstRenderedDescendant := len(e.renderList)
	loadIndexLow := len(e.loadQueues[loadLow])
	loadIndexMedium := len(e.loadQueues[loadMedium])
	loadIndexHigh := len(e.loadQueues[loadHigh])
	heightsIndex := len(e.heightUpdates)

	e.visitChildrenNearToFar(i, children, ancestorMeetsSse, details)

	if firstRenderedDescendant == len(e.renderList) {
		return
	}

	queuedForLoad := false

	if !details.AllAreRenderable && !details.AnyWereRenderedLastFrame {
		// Some descendants are not ready and none was on screen last
		// frame: render this tile instead so there is no hole.
		for _, d := range e.renderList[firstRenderedDescendant:] {
			for w := d; w != NoTile && w != i; {
				wt := e.store.Tile(w)
				if wt.selectionResult.WasKicked() {
					break
				}
				wt.selectionResult = wt.selectionResult.Kick()
				w = wt.Parent
			}
		}

		e.renderList = e.renderList[:firstRenderedDescendant]
		e.heightUpdates = e.heightUpdates[:heightsIndex]
		e.addToRenderList(i)
		t.setSelection(SelectionRendered, e.frame)
		e.stats.WaitingForChildren++

		notYetRenderableCount := details.NotYetRenderableCount
		if !renderedLastFrame && notYetRenderableCount > e.opts.LoadingDescendantLimit {
			// Too many descendants to wait for: load this tile first.
			e.loadQueues[loadLow] = e.loadQueues[loadLow][:loadIndexLow]
			e.loadQueues[loadMedium] = e.loadQueues[loadMedium][:loadIndexMedium]
			e.loadQueues[loadHigh] = e.loadQueues[loadHigh][:loadIndexHigh]
			e.queueLoad(loadMedium, i)

			notYetRenderableCount = 0
			if !t.Renderable {
				notYetRenderableCount = 1
			}
			queuedForLoad = true
		}

		details.AllAreRenderable = t.Renderable
		details.AnyWereRenderedLastFrame = renderedLastFrame
		details.NotYetRenderableCount = notYetRenderableCount

		if !renderedLastFrame {
			e.heightUpdates = append(e.heightUpdates, i)
		}
	}

	if e.opts.PreloadAncestors && !queuedForLoad {
		e.queueLoad(loadLow, i)
	}
}

// visitChildrenNearToFar visits the children of a tile starting with the
// one under the camera and combines their details.
func (e *Engine) visitChildrenNearToFar(i TileIndex, children [4]TileIndex, ancestorMeetsSse bool, details *TraversalDetails) {
	level := e.store.Tile(i).Key.Level + 1
	q := &e.quadDetails[level]

	nw := children[tiling.Northwest]
	ne := children[tiling.Northeast]
	sw := children[tiling.Southwest]
	se := children[tiling.Southeast]

	visit := func(c TileIndex, d *TraversalDetails) {
		e.visitIfVisible(c, ancestorMeetsSse, d)
	}

	swRect := e.store.Rectangle(sw)
	camera := e.cameraCartographic

	switch {
	case camera.Longitude < swRect.East && camera.Latitude < swRect.North:
		visit(sw, &q.southwest)
		visit(se, &q.southeast)
		visit(nw, &q.northwest)
		visit(ne, &q.northeast)

	case camera.Longitude < swRect.East:
		visit(nw, &q.northwest)
		visit(sw, &q.southwest)
		visit(ne, &q.northeast)
		visit(se, &q.southeast)

	case camera.Latitude < swRect.North:
		visit(se, &q.southeast)
		visit(sw, &q.southwest)
		visit(ne, &q.northeast)
		visit(nw, &q.northwest)

	default:
		visit(ne, &q.northeast)
		visit(nw, &q.northwest)
		visit(se, &q.southeast)
		visit(sw, &q.southwest)
	}

	q.combine(details)
}

// canRefine reports whether the children of a tile may be selected: the
// maximum level is not reached and their terrain availability is known.
func (e *Engine) canRefine(t *Tile) bool {
	if t.Key.Level >= e.opts.MaximumLevel || t.Key.Level >= tiling.MaxLevel {
		return false
	}
	if t.HeightField != nil {
		return true
	}
	_, known := e.terrain.TileDataAvailable(t.Key.Child(tiling.Northwest))
	return known
}

// canRenderWithoutLosingDetail reports whether rendering the tile instead
// of the descendants rendered last frame keeps the terrain and imagery
// detail on screen.
func (e *Engine) canRenderWithoutLosingDetail(i TileIndex) bool {
	t := e.store.Tile(i)
	if !t.subdivided {
		return true
	}

	terrainReady := t.Terrain == TerrainReady

	readyImagery := e.readyImagery[:0]
	for range e.layers.All() {
		readyImagery = append(readyImagery, true)
	}
	e.readyImagery = readyImagery

	for j := range t.Imagery {
		ti := &t.Imagery[j]
		layer := e.layerIndex(ti.layer(e.imagery))
		if layer < 0 {
			continue
		}
		readyImagery[layer] = readyImagery[layer] && e.isImageryReady(ti)
	}

	work := append(e.descendants[:0], t.Children[:]...)
	for len(work) > 0 {
		d := work[len(work)-1]
		work = work[:len(work)-1]
		dt := e.store.Tile(d)

		switch dt.resultInFrame(e.lastSelectionFrame) {
		case SelectionRendered:
			if !terrainReady && dt.Terrain == TerrainReady {
				e.descendants = work
				return false
			}

			for j := range dt.Imagery {
				ti := &dt.Imagery[j]
				layer := e.layerIndex(ti.layer(e.imagery))
				if layer >= 0 && e.isImageryReady(ti) && !readyImagery[layer] {
					e.descendants = work
					return false
				}
			}

		case SelectionRefined:
			if dt.subdivided {
				work = append(work, dt.Children[:]...)
			}
		}
	}

	e.descendants = work
	return true
}

// isImageryReady reports whether an attachment has nothing left to load.
func (e *Engine) isImageryReady(ti *TileImagery) bool {
	if ti.Loading == NoImagery {
		return true
	}
	state := e.imagery.Get(ti.Loading).State
	return state == ImageryFailed || state == ImageryInvalid
}

func (e *Engine) layerIndex(l *Layer) int {
	if l == nil {
		return -1
	}
	for i, candidate := range e.layers.All() {
		if candidate == l {
			return i
		}
	}
	return -1
}

func (e *Engine) screenSpaceError(t *Tile) float64 {
	pixelRatio := e.camera.PixelRatio
	if pixelRatio <= 0 {
		pixelRatio = 1
	}

	maxGeometricError := e.terrain.LevelMaximumGeometricError(t.Key.Level)
	return maxGeometricError * e.camera.ViewportHeight /
		(t.Distance * e.camera.SSEDenominator()) /
		pixelRatio
}

func (e *Engine) containsCamera(i TileIndex) bool {
	return e.store.Rectangle(i).Contains(e.cameraCartographic)
}

func (e *Engine) addToRenderList(i TileIndex) {
	e.renderList = append(e.renderList, i)
}

// queueLoad adds a tile to a load lane. A tile joins at most one lane per
// frame, the first it is queued in.
func (e *Engine) queueLoad(p loadPriority, i TileIndex) {
	t := e.store.Tile(i)
	if t.queuedFrame == e.frame || !t.needsLoading(e.frame, e.opts.MaximumRetries) {
		return
	}

	t.queuedFrame = e.frame
	t.LoadPriority = e.computeLoadPriority(i)
	e.loadQueues[p] = append(e.loadQueues[p], i)
}
