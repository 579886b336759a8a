package quadtree

import (
	"math"

	"github.com/aukilabs/globe/geom"
	"github.com/aukilabs/globe/tiling"
)

const rectangleSphereSamples = 9

// boundingSphereFromRectangle encloses the surface of a rectangle between
// two heights. Wide rectangles get a sphere centered on the ellipsoid.
func boundingSphereFromRectangle(r tiling.Rectangle, e geom.Ellipsoid, minHeight, maxHeight float64) geom.BoundingSphere {
	if r.Width() > math.Pi/2 {
		return geom.BoundingSphere{
			Radius: e.MaximumRadius() + math.Max(0, maxHeight),
		}
	}

	points := make([]geom.Vector3, 0, 2*rectangleSphereSamples*rectangleSphereSamples)
	step := 1 / float64(rectangleSphereSamples-1)
	for j := 0; j < rectangleSphereSamples; j++ {
		lat := r.South + float64(j)*step*r.Height()
		for i := 0; i < rectangleSphereSamples; i++ {
			lon := r.West + float64(i)*step*r.Width()
			points = append(points,
				e.CartographicToCartesian(geom.Cartographic{Longitude: lon, Latitude: lat, Height: minHeight}),
				e.CartographicToCartesian(geom.Cartographic{Longitude: lon, Latitude: lat, Height: maxHeight}),
			)
		}
	}
	return geom.BoundingSphereFromPoints(points)
}

// boundingSource returns the closest tile, starting with i itself, whose
// terrain heights are known.
func (e *Engine) boundingSource(i TileIndex) TileIndex {
	for s := i; s != NoTile; s = e.store.Tile(s).Parent {
		if e.store.Tile(s).HeightField != nil {
			return s
		}
	}
	return NoTile
}

// boundingSphere returns the bounding sphere of a tile. It reports false
// when neither the tile nor its ancestors have terrain heights, in which
// case the sphere assumes zero heights.
func (e *Engine) boundingSphere(i TileIndex) (geom.BoundingSphere, bool) {
	t := e.store.Tile(i)
	source := e.boundingSource(i)

	var s *Tile
	if source != NoTile {
		s = e.store.Tile(source)
	}

	b := t.bounds
	if b.valid && b.source == source &&
		(s == nil || (b.heightField == s.HeightField && b.mesh == s.Mesh)) {
		return b.sphere, source != NoTile
	}

	rect := e.store.Rectangle(i)
	b = tileBounds{source: source, valid: true}

	switch {
	case s == nil:
		b.sphere = boundingSphereFromRectangle(rect, e.ellipsoid, 0, 0)

	case source == i && t.Mesh != nil:
		b.heightField = t.HeightField
		b.mesh = t.Mesh
		b.sphere = t.Mesh.BoundingSphere

	default:
		b.heightField = s.HeightField
		b.mesh = s.Mesh
		b.sphere = boundingSphereFromRectangle(rect, e.ellipsoid,
			s.HeightField.MinimumHeight,
			s.HeightField.MaximumHeight)
	}

	t.bounds = b
	return b.sphere, source != NoTile
}

// computeVisibility tests a tile against the camera frustum. Tiles without
// known heights are assumed partially visible.
func (e *Engine) computeVisibility(i TileIndex) geom.Visibility {
	sphere, ok := e.boundingSphere(i)
	if !ok {
		return geom.VisibilityPartial
	}
	return e.cullingVolume.ComputeVisibility(sphere)
}

func (e *Engine) computeDistance(i TileIndex) float64 {
	sphere, _ := e.boundingSphere(i)
	return sphere.DistanceTo(e.camera.Position)
}

// computeLoadPriority favors tiles close to the camera and to the center
// of the view. Lower is more urgent.
func (e *Engine) computeLoadPriority(i TileIndex) float64 {
	sphere, ok := e.boundingSphere(i)
	if !ok {
		return 0
	}

	direction := geom.Sub(sphere.Center, e.camera.Position)
	magnitude := direction.Length()
	if magnitude < geom.Epsilon5 {
		return 0
	}

	direction = geom.Mul(direction, 1/magnitude)
	return (1 - geom.Dot(direction, geom.Normalized(e.camera.Direction))) * e.store.Tile(i).Distance
}
