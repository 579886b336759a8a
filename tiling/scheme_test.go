package tiling

import (
	"math"
	"testing"

	"github.com/aukilabs/globe/geom"
	"github.com/stretchr/testify/require"
)

func TestGeographicScheme(t *testing.T) {
	s := NewGeographicScheme()

	t.Run("tile counts", func(t *testing.T) {
		require.Equal(t, uint32(2), s.NumberOfXTilesAtLevel(0))
		require.Equal(t, uint32(1), s.NumberOfYTilesAtLevel(0))
		require.Equal(t, uint32(8), s.NumberOfXTilesAtLevel(2))
		require.Equal(t, uint32(4), s.NumberOfYTilesAtLevel(2))
		require.Len(t, RootKeys(s), 2)
	})

	t.Run("root rectangles", func(t *testing.T) {
		west := s.TileToRectangle(NewKey(0, 0, 0))
		require.InDelta(t, -math.Pi, west.West, 1e-12)
		require.InDelta(t, 0, west.East, 1e-12)
		require.InDelta(t, -math.Pi/2, west.South, 1e-12)
		require.InDelta(t, math.Pi/2, west.North, 1e-12)
	})

	t.Run("children tile their parent", func(t *testing.T) {
		parent := NewKey(1, 0, 0)
		r := s.TileToRectangle(parent)

		nw := s.TileToRectangle(parent.Child(Northwest))
		se := s.TileToRectangle(parent.Child(Southeast))
		require.InDelta(t, r.West, nw.West, 1e-12)
		require.InDelta(t, r.North, nw.North, 1e-12)
		require.InDelta(t, r.East, se.East, 1e-12)
		require.InDelta(t, r.South, se.South, 1e-12)
		require.InDelta(t, nw.East, se.West, 1e-12)
	})

	t.Run("position to tile", func(t *testing.T) {
		k, ok := s.PositionToTile(geom.NewCartographicFromDegrees(10, 10, 0), 2)
		require.True(t, ok)
		require.Equal(t, NewKey(4, 1, 2), k)

		k, ok = s.PositionToTile(geom.Cartographic{Longitude: math.Pi, Latitude: -math.Pi / 2}, 1)
		require.True(t, ok)
		require.Equal(t, NewKey(3, 1, 1), k)

		_, ok = s.PositionToTile(geom.Cartographic{Latitude: 2}, 0)
		require.False(t, ok)
	})
}

func TestWebMercatorScheme(t *testing.T) {
	s := NewWebMercatorScheme()

	t.Run("root covers mercator range", func(t *testing.T) {
		r := s.TileToRectangle(NewKey(0, 0, 0))
		require.InDelta(t, MercatorMaximumLatitude, r.North, 1e-12)
		require.InDelta(t, -MercatorMaximumLatitude, r.South, 1e-12)
		require.InDelta(t, geom.ToRadians(85.05112878), MercatorMaximumLatitude, 1e-8)
	})

	t.Run("equator splits level one", func(t *testing.T) {
		r := s.TileToRectangle(NewKey(0, 0, 1))
		require.InDelta(t, 0, r.South, 1e-12)
		require.InDelta(t, 0, r.East, 1e-12)
	})

	t.Run("mercator angle round trip", func(t *testing.T) {
		for _, lat := range []float64{-1.2, -0.5, 0, 0.3, 1.1} {
			require.InDelta(t, lat, MercatorAngleToLatitude(LatitudeToMercatorAngle(lat)), 1e-12)
		}
	})

	t.Run("native rectangle matches tile", func(t *testing.T) {
		k := NewKey(5, 3, 3)
		native := s.TileToNativeRectangle(k)
		converted := s.RectangleToNativeRectangle(s.TileToRectangle(k))
		require.InDelta(t, native.West, converted.West, 1e-6)
		require.InDelta(t, native.South, converted.South, 1e-6)
		require.InDelta(t, native.East, converted.East, 1e-6)
		require.InDelta(t, native.North, converted.North, 1e-6)
	})

	t.Run("position to tile", func(t *testing.T) {
		k, ok := s.PositionToTile(geom.NewCartographicFromDegrees(-1, 1, 0), 1)
		require.True(t, ok)
		require.Equal(t, NewKey(0, 0, 1), k)
	})
}

func TestRectangle(t *testing.T) {
	t.Run("intersection", func(t *testing.T) {
		a := Rectangle{West: -1, South: -1, East: 1, North: 1}
		b := Rectangle{West: 0, South: 0, East: 2, North: 2}

		r, ok := a.Intersection(b)
		require.True(t, ok)
		require.Equal(t, Rectangle{West: 0, South: 0, East: 1, North: 1}, r)

		_, ok = a.Intersection(Rectangle{West: 1.5, South: 0, East: 2, North: 1})
		require.False(t, ok)
	})

	t.Run("anti-meridian", func(t *testing.T) {
		wrap := Rectangle{West: 3, South: -0.1, East: -3, North: 0.1}
		require.InDelta(t, 2*math.Pi-6, wrap.Width(), 1e-12)
		require.True(t, wrap.Contains(geom.Cartographic{Longitude: math.Pi}))
		require.True(t, wrap.Contains(geom.Cartographic{Longitude: -3.1}))
		require.False(t, wrap.Contains(geom.Cartographic{Longitude: 0}))
	})

	t.Run("center", func(t *testing.T) {
		c := Rectangle{West: 0, South: 0, East: 1, North: 0.5}.Center()
		require.InDelta(t, 0.5, c.Longitude, 1e-12)
		require.InDelta(t, 0.25, c.Latitude, 1e-12)
	})
}
