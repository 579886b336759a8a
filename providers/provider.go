package providers

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/globe/tiling"
)

const (
	// Network or storage failure. The tile may be retried.
	ErrTypeFetch = "fetch_failed"

	// Malformed payload.
	ErrTypeDecode = "decode_failed"

	// The provider reports the tile does not exist.
	ErrTypeInvalid = "tile_invalid"
)

// TerrainProvider supplies terrain height data per tile.
type TerrainProvider interface {
	// The tiling scheme of the terrain tiles.
	TilingScheme() tiling.Scheme

	// The maximum geometric error, in meters, of tiles at the given level.
	LevelMaximumGeometricError(level uint32) float64

	// Reports whether a tile has data. Known is false when the provider
	// cannot tell without loading an ancestor first.
	TileDataAvailable(k tiling.Key) (available bool, known bool)

	// Fetches and decodes the height data of a tile.
	RequestTileGeometry(ctx context.Context, k tiling.Key) (*HeightField, error)
}

// ImageryProvider supplies imagery tiles.
type ImageryProvider interface {
	TilingScheme() tiling.Scheme
	TileWidth() int
	TileHeight() int
	MinimumLevel() uint32
	MaximumLevel() uint32

	// Fetches and decodes an image tile.
	RequestImage(ctx context.Context, k tiling.Key) (*ImagePayload, error)
}

// ReadinessReporter is implemented by providers that need some setup before
// they can describe their tiles. Providers not implementing it are always
// ready.
type ReadinessReporter interface {
	Ready() bool
}

// IsReady reports whether a provider is ready to serve tiles.
func IsReady(p any) bool {
	if r, ok := p.(ReadinessReporter); ok {
		return r.Ready()
	}
	return true
}

// Loader is implemented by providers that fetch their metadata before
// serving tiles.
type Loader interface {
	Load(ctx context.Context) error
}

// Load loads the metadata of a provider implementing Loader. Fetch errors
// are retried every retryInterval until the context is done.
func Load(ctx context.Context, p any, retryInterval time.Duration) error {
	l, ok := p.(Loader)
	if !ok {
		return nil
	}

	for {
		err := l.Load(ctx)
		if err == nil {
			return nil
		}
		if !errors.IsType(err, ErrTypeFetch) {
			return err
		}

		logs.WithTag("retry_interval", retryInterval).Warn(err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// ImagePayload is a decoded RGBA8 image.
type ImagePayload struct {
	Width  int    `cbor:"width"`
	Height int    `cbor:"height"`
	Pixels []byte `cbor:"pixels"`
}
