package providers

import (
	"context"
	"math"

	"github.com/aukilabs/globe/tiling"
)

const (
	defaultHeightmapWidth = 64
	flatTileSamples       = 16

	// Quality factor of heightmap tiles when estimating geometric error.
	heightmapTerrainQuality = 0.25
)

// EstimatedLevelZeroGeometricError returns the geometric error of a level
// zero heightmap tile of the given width.
func EstimatedLevelZeroGeometricError(s tiling.Scheme, tileImageWidth int) float64 {
	return s.Ellipsoid().MaximumRadius() * 2 * math.Pi * heightmapTerrainQuality /
		(float64(tileImageWidth) * float64(s.NumberOfXTilesAtLevel(0)))
}

// EllipsoidTerrainProvider serves a smooth ellipsoid surface: every tile is
// a flat zero-height grid.
type EllipsoidTerrainProvider struct {
	scheme              tiling.Scheme
	levelZeroMaximumErr float64
}

func NewEllipsoidTerrainProvider(s tiling.Scheme) *EllipsoidTerrainProvider {
	if s == nil {
		s = tiling.NewGeographicScheme()
	}

	return &EllipsoidTerrainProvider{
		scheme:              s,
		levelZeroMaximumErr: EstimatedLevelZeroGeometricError(s, defaultHeightmapWidth),
	}
}

func (p *EllipsoidTerrainProvider) TilingScheme() tiling.Scheme {
	return p.scheme
}

func (p *EllipsoidTerrainProvider) LevelMaximumGeometricError(level uint32) float64 {
	return p.levelZeroMaximumErr / float64(uint64(1)<<level)
}

// TileDataAvailable is unknown for every tile: availability is learned from
// the loaded parent's child mask.
func (p *EllipsoidTerrainProvider) TileDataAvailable(k tiling.Key) (bool, bool) {
	return false, false
}

func (p *EllipsoidTerrainProvider) RequestTileGeometry(ctx context.Context, k tiling.Key) (*HeightField, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewFlatHeightField(flatTileSamples, flatTileSamples, 0, AllChildren), nil
}
