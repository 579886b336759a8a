package quadtree

import (
	"sync"

	"github.com/aukilabs/globe/geom"
	"github.com/aukilabs/globe/providers"
	"github.com/aukilabs/globe/tiling"
)

// Mesh is the renderable surface of a tile: a regular grid of vertices
// following the height field.
type Mesh struct {
	Width  int
	Height int

	// Vertex positions relative to Center, xyz interleaved.
	Center    geom.Vector3
	Positions []float32

	// Triangle list shared by every mesh with the same grid size.
	Indices []uint32

	MinimumHeight  float64
	MaximumHeight  float64
	BoundingSphere geom.BoundingSphere
}

func (m *Mesh) VertexCount() int {
	return m.Width * m.Height
}

// NewMesh builds the mesh of a tile from its height field.
func NewMesh(rect tiling.Rectangle, e geom.Ellipsoid, hf *providers.HeightField) *Mesh {
	center := e.CartographicToCartesian(geom.Cartographic{
		Longitude: rect.Center().Longitude,
		Latitude:  rect.Center().Latitude,
		Height:    (hf.MinimumHeight + hf.MaximumHeight) / 2,
	})

	points := make([]geom.Vector3, 0, hf.Width*hf.Height)
	positions := make([]float32, 0, 3*hf.Width*hf.Height)

	for j := 0; j < hf.Height; j++ {
		v := float64(j) / float64(hf.Height-1)
		lat := rect.North - v*rect.Height()

		for i := 0; i < hf.Width; i++ {
			u := float64(i) / float64(hf.Width-1)
			p := e.CartographicToCartesian(geom.Cartographic{
				Longitude: rect.West + u*rect.Width(),
				Latitude:  lat,
				Height:    hf.At(i, j),
			})

			points = append(points, p)
			rel := geom.Sub(p, center)
			positions = append(positions, float32(rel.X), float32(rel.Y), float32(rel.Z))
		}
	}

	return &Mesh{
		Width:          hf.Width,
		Height:         hf.Height,
		Center:         center,
		Positions:      positions,
		Indices:        gridIndices(hf.Width, hf.Height),
		MinimumHeight:  hf.MinimumHeight,
		MaximumHeight:  hf.MaximumHeight,
		BoundingSphere: geom.BoundingSphereFromPoints(points),
	}
}

type gridSize struct {
	width  int
	height int
}

var gridIndicesCache sync.Map

// gridIndices returns the triangle list of a width x height vertex grid.
// The slice is shared and must not be modified.
func gridIndices(width, height int) []uint32 {
	size := gridSize{width: width, height: height}
	if v, ok := gridIndicesCache.Load(size); ok {
		return v.([]uint32)
	}

	indices := make([]uint32, 0, 6*(width-1)*(height-1))
	for j := 0; j < height-1; j++ {
		for i := 0; i < width-1; i++ {
			nw := uint32(j*width + i)
			ne := nw + 1
			sw := nw + uint32(width)
			se := sw + 1
			indices = append(indices, nw, sw, ne, ne, sw, se)
		}
	}

	v, _ := gridIndicesCache.LoadOrStore(size, indices)
	return v.([]uint32)
}
