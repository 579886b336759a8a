package quadtree

import (
	"math"

	"github.com/aukilabs/globe/providers"
	"github.com/aukilabs/globe/tiling"
	"github.com/google/uuid"
)

// LayerID identifies an imagery layer.
type LayerID uuid.UUID

func NewLayerID() LayerID {
	return LayerID(uuid.New())
}

func (id LayerID) String() string {
	return uuid.UUID(id).String()
}

func (id LayerID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *LayerID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// Layer is an imagery source draped over the terrain.
type Layer struct {
	ID       LayerID
	Name     string
	Provider providers.ImageryProvider

	// The base layer stretches its edge texels over the parts of the globe
	// it does not cover.
	Base bool

	// Hidden layers get no imagery attached.
	Hidden bool
}

// NewLayer returns a visible layer with a new id.
func NewLayer(name string, p providers.ImageryProvider, base bool) *Layer {
	return &Layer{
		ID:       NewLayerID(),
		Name:     name,
		Provider: p,
		Base:     base,
	}
}

func (l *Layer) ready() bool {
	return providers.IsReady(l.Provider)
}

// LayerCollection is the ordered list of imagery layers, bottom first.
type LayerCollection struct {
	layers []*Layer
}

func (c *LayerCollection) Len() int {
	return len(c.layers)
}

func (c *LayerCollection) All() []*Layer {
	return c.layers
}

func (c *LayerCollection) Add(l *Layer) {
	c.layers = append(c.layers, l)
}

// Remove deletes the layer with the given id and returns it.
func (c *LayerCollection) Remove(id LayerID) (*Layer, bool) {
	for i, l := range c.layers {
		if l.ID == id {
			c.layers = append(c.layers[:i], c.layers[i+1:]...)
			return l, true
		}
	}
	return nil, false
}

func (c *LayerCollection) Get(id LayerID) (*Layer, bool) {
	i := c.IndexOf(id)
	if i < 0 {
		return nil, false
	}
	return c.layers[i], true
}

// IndexOf returns the position of a layer, -1 when it is not in the
// collection.
func (c *LayerCollection) IndexOf(id LayerID) int {
	for i, l := range c.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// createTileImagerySkeletons inserts into the tile's imagery list, at
// insertionPoint, one TileImagery per imagery tile of the layer overlapping
// the terrain tile. It returns false when the layer has nothing to attach.
func (l *Layer) createTileImagerySkeletons(t *Tile, rect tiling.Rectangle, terrainError float64, store *ImageryStore, insertionPoint int) bool {
	if insertionPoint < 0 || insertionPoint > len(t.Imagery) {
		insertionPoint = len(t.Imagery)
	}

	if !l.ready() {
		ti := TileImagery{
			Loading: store.AcquirePlaceholder(l),
			Ready:   NoImagery,
		}
		t.Imagery = insertTileImagery(t.Imagery, insertionPoint, ti)
		return true
	}

	p := l.Provider
	scheme := p.TilingScheme()

	useWebMercatorT := scheme.Projection() == tiling.ProjectionWebMercator &&
		rect.North < tiling.MercatorMaximumLatitude &&
		rect.South > -tiling.MercatorMaximumLatitude

	imageryBounds := scheme.Rectangle()
	overlap, ok := rect.Intersection(imageryBounds)
	if !ok {
		if !l.Base {
			return false
		}
		overlap = stretchToBounds(rect, imageryBounds)
	}

	latitudeClosestToEquator := 0.0
	if overlap.South > 0 {
		latitudeClosestToEquator = overlap.South
	} else if overlap.North < 0 {
		latitudeClosestToEquator = overlap.North
	}

	level := l.levelWithMaximumTexelSpacing(terrainError, latitudeClosestToEquator)

	nw, _ := scheme.PositionToTile(overlap.Northwest(), level)
	se, _ := scheme.PositionToTile(overlap.Southeast(), level)

	veryCloseX := rect.Width() / 512
	veryCloseY := rect.Height() / 512

	nwRect := scheme.TileToRectangle(nw)
	if math.Abs(nwRect.South-rect.North) < veryCloseY && nw.Y < se.Y {
		nw.Y++
	}
	if math.Abs(nwRect.East-rect.West) < veryCloseX && nw.X < se.X {
		nw.X++
	}

	seRect := scheme.TileToRectangle(se)
	if math.Abs(seRect.North-rect.South) < veryCloseY && se.Y > nw.Y {
		se.Y--
	}
	if math.Abs(seRect.West-rect.East) < veryCloseX && se.X > nw.X {
		se.X--
	}

	terrainRect := rect
	imageryRect := scheme.TileToRectangle(nw)
	clipped, _ := imageryRect.Intersection(imageryBounds)
	tileToRectangle := scheme.TileToRectangle

	if useWebMercatorT {
		terrainRect = scheme.RectangleToNativeRectangle(terrainRect)
		clipped = scheme.RectangleToNativeRectangle(clipped)
		imageryBounds = scheme.RectangleToNativeRectangle(imageryBounds)
		tileToRectangle = scheme.TileToNativeRectangle
		veryCloseX = terrainRect.Width() / 512
		veryCloseY = terrainRect.Height() / 512
	}

	minU := 0.0
	maxU := 0.0
	minV := 1.0
	maxV := 0.0

	if !l.Base && math.Abs(clipped.West-terrainRect.West) >= veryCloseX {
		maxU = math.Min(1, (clipped.West-terrainRect.West)/terrainRect.Width())
	}
	if !l.Base && math.Abs(clipped.North-terrainRect.North) >= veryCloseY {
		minV = math.Max(0, (clipped.North-terrainRect.South)/terrainRect.Height())
	}
	initialMinV := minV

	for x := nw.X; x <= se.X; x++ {
		minU = maxU

		column, ok := tileToRectangle(tiling.NewKey(x, nw.Y, level)).SimpleIntersection(imageryBounds)
		if !ok {
			continue
		}

		maxU = math.Min(1, (column.East-terrainRect.West)/terrainRect.Width())
		if x == se.X && (l.Base || math.Abs(column.East-terrainRect.East) < veryCloseX) {
			maxU = 1
		}

		minV = initialMinV
		for y := nw.Y; y <= se.Y; y++ {
			maxV = minV

			cell, ok := tileToRectangle(tiling.NewKey(x, y, level)).SimpleIntersection(imageryBounds)
			if !ok {
				continue
			}

			minV = math.Max(0, (cell.South-terrainRect.South)/terrainRect.Height())
			if y == se.Y && (l.Base || math.Abs(cell.South-terrainRect.South) < veryCloseY) {
				minV = 0
			}

			ti := TileImagery{
				Loading:                    store.Acquire(l, tiling.NewKey(x, y, level)),
				Ready:                      NoImagery,
				TextureCoordinateRectangle: [4]float64{minU, minV, maxU, maxV},
				UseWebMercatorT:            useWebMercatorT,
			}
			t.Imagery = insertTileImagery(t.Imagery, insertionPoint, ti)
			insertionPoint++
		}
	}
	return true
}

// stretchToBounds returns the part of bounds closest to a rectangle lying
// outside of it, collapsed to an edge or a corner.
func stretchToBounds(rect, bounds tiling.Rectangle) tiling.Rectangle {
	var r tiling.Rectangle

	switch {
	case rect.South >= bounds.North:
		r.North, r.South = bounds.North, bounds.North
	case rect.North <= bounds.South:
		r.North, r.South = bounds.South, bounds.South
	default:
		r.South = math.Max(rect.South, bounds.South)
		r.North = math.Min(rect.North, bounds.North)
	}

	switch {
	case rect.West >= bounds.East:
		r.West, r.East = bounds.East, bounds.East
	case rect.East <= bounds.West:
		r.West, r.East = bounds.West, bounds.West
	default:
		r.West = math.Max(rect.West, bounds.West)
		r.East = math.Min(rect.East, bounds.East)
	}
	return r
}

// levelWithMaximumTexelSpacing returns the imagery level whose texel
// spacing best matches the given geometric error, clamped to the
// provider's levels.
func (l *Layer) levelWithMaximumTexelSpacing(texelSpacing, latitudeClosestToEquator float64) uint32 {
	p := l.Provider
	scheme := p.TilingScheme()

	latitudeFactor := 1.0
	if scheme.Projection() != tiling.ProjectionGeographic {
		latitudeFactor = math.Cos(latitudeClosestToEquator)
	}

	levelZeroMaximumTexelSpacing := scheme.Ellipsoid().MaximumRadius() *
		scheme.Rectangle().Width() * latitudeFactor /
		(float64(p.TileWidth()) * float64(scheme.NumberOfXTilesAtLevel(0)))

	level := math.Round(math.Log2(levelZeroMaximumTexelSpacing / texelSpacing))
	if math.IsNaN(level) || level < 0 {
		level = 0
	}
	if math.IsInf(level, 1) || level > float64(p.MaximumLevel()) {
		level = float64(p.MaximumLevel())
	}
	if level < float64(p.MinimumLevel()) {
		level = float64(p.MinimumLevel())
	}
	return uint32(level)
}

// textureTranslationAndScale maps the terrain tile parameter space onto
// the ready imagery texture.
func textureTranslationAndScale(terrainRect tiling.Rectangle, r *Imagery, useWebMercatorT bool) [4]float64 {
	imageryRect := r.Rectangle
	if useWebMercatorT {
		scheme := r.layer.Provider.TilingScheme()
		imageryRect = scheme.RectangleToNativeRectangle(imageryRect)
		terrainRect = scheme.RectangleToNativeRectangle(terrainRect)
	}

	terrainWidth := terrainRect.Width()
	terrainHeight := terrainRect.Height()
	scaleX := terrainWidth / imageryRect.Width()
	scaleY := terrainHeight / imageryRect.Height()

	return [4]float64{
		scaleX * (terrainRect.West - imageryRect.West) / terrainWidth,
		scaleY * (terrainRect.South - imageryRect.South) / terrainHeight,
		scaleX,
		scaleY,
	}
}

func insertTileImagery(list []TileImagery, at int, ti TileImagery) []TileImagery {
	list = append(list, TileImagery{})
	copy(list[at+1:], list[at:])
	list[at] = ti
	return list
}
