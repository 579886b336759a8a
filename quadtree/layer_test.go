package quadtree

import (
	"math"
	"testing"

	"github.com/aukilabs/globe/tiling"
	"github.com/stretchr/testify/require"
)

func TestLayerCollection(t *testing.T) {
	var c LayerCollection
	a := NewLayer("a", newFakeImageryProvider(tiling.NewGeographicScheme(), 2), true)
	b := NewLayer("b", newFakeImageryProvider(tiling.NewGeographicScheme(), 2), false)
	require.NotEqual(t, a.ID, b.ID)

	c.Add(a)
	c.Add(b)
	require.Equal(t, 2, c.Len())
	require.Equal(t, 1, c.IndexOf(b.ID))

	l, ok := c.Get(a.ID)
	require.True(t, ok)
	require.Same(t, a, l)

	l, ok = c.Remove(a.ID)
	require.True(t, ok)
	require.Same(t, a, l)
	require.Equal(t, 0, c.IndexOf(b.ID))
	require.Equal(t, -1, c.IndexOf(a.ID))

	_, ok = c.Remove(a.ID)
	require.False(t, ok)
	_, ok = c.Get(a.ID)
	require.False(t, ok)
}

func TestLayerIDText(t *testing.T) {
	id := NewLayerID()
	b, err := id.MarshalText()
	require.NoError(t, err)
	require.Equal(t, id.String(), string(b))
	require.Len(t, id.String(), 36)
}

func TestLevelWithMaximumTexelSpacing(t *testing.T) {
	scheme := tiling.NewGeographicScheme()
	layer := NewLayer("base", newFakeImageryProvider(scheme, 4), true)
	levelZero := scheme.Ellipsoid().MaximumRadius() * scheme.Rectangle().Width() / (256 * 2)

	tests := []struct {
		name         string
		texelSpacing float64
		expected     uint32
	}{
		{name: "level zero", texelSpacing: levelZero, expected: 0},
		{name: "level two", texelSpacing: levelZero / 4, expected: 2},
		{name: "rounded", texelSpacing: levelZero / 5, expected: 2},
		{name: "coarser than level zero", texelSpacing: levelZero * 16, expected: 0},
		{name: "clamped to maximum", texelSpacing: levelZero / 1e6, expected: 4},
		{name: "zero", texelSpacing: 0, expected: 4},
		{name: "negative", texelSpacing: -1, expected: 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, layer.levelWithMaximumTexelSpacing(test.texelSpacing, 0))
		})
	}
}

func TestCreateTileImagerySkeletonsGeographic(t *testing.T) {
	scheme := tiling.NewGeographicScheme()
	store := NewImageryStore()
	layer := NewLayer("base", newFakeImageryProvider(scheme, 4), true)
	levelZero := scheme.Ellipsoid().MaximumRadius() * scheme.Rectangle().Width() / (256 * 2)

	k := tiling.NewKey(5, 1, 2)
	var tile Tile
	require.True(t, layer.createTileImagerySkeletons(&tile, scheme.TileToRectangle(k), levelZero/4, store, -1))

	require.Len(t, tile.Imagery, 1)
	ti := tile.Imagery[0]
	require.Equal(t, NoImagery, ti.Ready)
	require.False(t, ti.UseWebMercatorT)
	require.Equal(t, k, store.Get(ti.Loading).Key.Tile)
	require.Equal(t, [4]float64{0, 0, 1, 1}, ti.TextureCoordinateRectangle)
}

func TestCreateTileImagerySkeletonsWebMercator(t *testing.T) {
	terrainScheme := tiling.NewGeographicScheme()
	scheme := tiling.NewWebMercatorScheme()
	store := NewImageryStore()
	layer := NewLayer("base", newFakeImageryProvider(scheme, 4), true)
	levelZero := scheme.Ellipsoid().MaximumRadius() * scheme.Rectangle().Width() / 256

	// Longitude 0 to 45, latitude 0 to 45.
	k := tiling.NewKey(4, 1, 2)
	var tile Tile
	require.True(t, layer.createTileImagerySkeletons(&tile, terrainScheme.TileToRectangle(k), levelZero/8, store, -1))

	require.Len(t, tile.Imagery, 2)
	north := tile.Imagery[0]
	south := tile.Imagery[1]

	require.Equal(t, tiling.NewKey(4, 2, 3), store.Get(north.Loading).Key.Tile)
	require.Equal(t, tiling.NewKey(4, 3, 3), store.Get(south.Loading).Key.Tile)
	require.True(t, north.UseWebMercatorT)
	require.True(t, south.UseWebMercatorT)

	require.InDelta(t, 1, north.TextureCoordinateRectangle[3], 1e-9)
	require.InDelta(t, 0, south.TextureCoordinateRectangle[1], 1e-9)
	require.InDelta(t, north.TextureCoordinateRectangle[1], south.TextureCoordinateRectangle[3], 1e-9)

	expectedSplit := (math.Pi - 3*math.Pi/4) / tiling.LatitudeToMercatorAngle(math.Pi/4)
	require.InDelta(t, expectedSplit, north.TextureCoordinateRectangle[1], 1e-6)
	for _, ti := range tile.Imagery {
		require.InDelta(t, 0, ti.TextureCoordinateRectangle[0], 1e-9)
		require.InDelta(t, 1, ti.TextureCoordinateRectangle[2], 1e-9)
	}
}

func TestCreateTileImagerySkeletonsOutsideCoverage(t *testing.T) {
	terrainScheme := tiling.NewGeographicScheme()
	scheme := tiling.NewWebMercatorScheme()
	polar := terrainScheme.TileToRectangle(tiling.NewKey(0, 0, 6))

	t.Run("overlay", func(t *testing.T) {
		store := NewImageryStore()
		layer := NewLayer("overlay", newFakeImageryProvider(scheme, 4), false)

		var tile Tile
		require.False(t, layer.createTileImagerySkeletons(&tile, polar, 1e7, store, -1))
		require.Empty(t, tile.Imagery)
		require.Zero(t, store.Len())
	})

	t.Run("base layer stretches its edge", func(t *testing.T) {
		store := NewImageryStore()
		layer := NewLayer("base", newFakeImageryProvider(scheme, 4), true)

		var tile Tile
		require.True(t, layer.createTileImagerySkeletons(&tile, polar, 1e7, store, -1))
		require.Len(t, tile.Imagery, 1)
		require.False(t, tile.Imagery[0].UseWebMercatorT)
		require.Equal(t, tiling.NewKey(0, 0, 0), store.Get(tile.Imagery[0].Loading).Key.Tile)
	})
}

func TestCreateTileImagerySkeletonsPlaceholder(t *testing.T) {
	scheme := tiling.NewGeographicScheme()
	store := NewImageryStore()
	layer := NewLayer("late", &lateImageryProvider{fakeImageryProvider: newFakeImageryProvider(scheme, 4)}, true)
	other := NewLayer("other", newFakeImageryProvider(scheme, 0), true)

	var tile Tile
	rect := scheme.TileToRectangle(tiling.NewKey(0, 0, 0))
	require.True(t, other.createTileImagerySkeletons(&tile, rect, 1e7, store, -1))
	require.True(t, layer.createTileImagerySkeletons(&tile, rect, 1e7, store, 0))

	require.Len(t, tile.Imagery, 2)
	require.Equal(t, ImageryPlaceholder, store.Get(tile.Imagery[0].Loading).State)
	require.Same(t, other, tile.Imagery[1].layer(store))
}

func TestTextureTranslationAndScale(t *testing.T) {
	scheme := tiling.NewGeographicScheme()
	layer := NewLayer("base", newFakeImageryProvider(scheme, 4), true)

	parent := tiling.NewKey(1, 0, 1)
	r := &Imagery{
		Rectangle: scheme.TileToRectangle(parent),
		layer:     layer,
	}

	ts := textureTranslationAndScale(scheme.TileToRectangle(parent.Child(tiling.Northeast)), r, false)
	require.InDelta(t, 0.5, ts[0], 1e-9)
	require.InDelta(t, 0.5, ts[1], 1e-9)
	require.InDelta(t, 0.5, ts[2], 1e-9)
	require.InDelta(t, 0.5, ts[3], 1e-9)

	ts = textureTranslationAndScale(scheme.TileToRectangle(parent), r, false)
	require.Equal(t, [4]float64{0, 0, 1, 1}, ts)
}
