package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVector3(t *testing.T) {
	a := NewVector3(1, 0, 0)
	b := NewVector3(0, 1, 0)

	require.Equal(t, NewVector3(0, 0, 1), Cross(a, b))
	require.Equal(t, 0.0, Dot(a, b))
	require.Equal(t, NewVector3(1, 1, 0), Add(a, b))
	require.Equal(t, NewVector3(1, -1, 0), Sub(a, b))
	require.InDelta(t, math.Sqrt2, Distance(a, b), 1e-12)
	require.InDelta(t, 1, Normalized(NewVector3(3, 4, 0)).Length(), 1e-12)
	require.Equal(t, Vector3{}, Normalized(Vector3{}))
}

func TestEllipsoidCartographicRoundTrip(t *testing.T) {
	positions := []Cartographic{
		{},
		NewCartographicFromDegrees(45, 45, 1000),
		NewCartographicFromDegrees(-120, -30, 10_000_000),
		NewCartographicFromDegrees(179, 80, -200),
	}

	for _, c := range positions {
		p := WGS84.CartographicToCartesian(c)
		back := WGS84.CartesianToCartographic(p)
		require.InDelta(t, c.Longitude, back.Longitude, 1e-9)
		require.InDelta(t, c.Latitude, back.Latitude, 1e-9)
		require.InDelta(t, c.Height, back.Height, 1e-3)
	}
}

func TestEllipsoidEquator(t *testing.T) {
	p := WGS84.CartographicToCartesian(Cartographic{})
	require.InDelta(t, 6378137.0, p.X, 1e-6)
	require.InDelta(t, 0, p.Y, 1e-6)
	require.InDelta(t, 0, p.Z, 1e-6)

	north := WGS84.CartesianToCartographic(NewVector3(0, 0, 7e6))
	require.InDelta(t, math.Pi/2, north.Latitude, 1e-12)
	require.InDelta(t, 7e6-WGS84.Radii.Z, north.Height, 1e-6)
}

func TestBoundingSphere(t *testing.T) {
	s := BoundingSphereFromPoints([]Vector3{
		{-1, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
	})
	require.Equal(t, NewVector3(0, 0.5, 0), s.Center)
	require.InDelta(t, math.Sqrt(1.25), s.Radius, 1e-12)

	require.Equal(t, 0.0, s.DistanceTo(NewVector3(0, 0, 0)))
	require.InDelta(t, 10-s.Radius, s.DistanceTo(NewVector3(0, 10.5, 0)), 1e-12)
}

func TestCameraCullingVolume(t *testing.T) {
	cam := LookAt(NewVector3(0, 0, 10), Vector3{}, NewVector3(0, 1, 0), math.Pi/3, 1, 1000)
	cv := cam.CullingVolume()
	require.Len(t, cv.Planes, 6)

	t.Run("sphere ahead is inside", func(t *testing.T) {
		require.Equal(t, VisibilityFull, cv.ComputeVisibility(BoundingSphere{Radius: 1}))
	})

	t.Run("sphere behind is outside", func(t *testing.T) {
		require.Equal(t, VisibilityNone, cv.ComputeVisibility(BoundingSphere{Center: NewVector3(0, 0, 20), Radius: 1}))
	})

	t.Run("sphere on the side is outside", func(t *testing.T) {
		require.Equal(t, VisibilityNone, cv.ComputeVisibility(BoundingSphere{Center: NewVector3(100, 0, 0), Radius: 1}))
		require.Equal(t, VisibilityNone, cv.ComputeVisibility(BoundingSphere{Center: NewVector3(-100, 0, 0), Radius: 1}))
		require.Equal(t, VisibilityNone, cv.ComputeVisibility(BoundingSphere{Center: NewVector3(0, 100, 0), Radius: 1}))
		require.Equal(t, VisibilityNone, cv.ComputeVisibility(BoundingSphere{Center: NewVector3(0, -100, 0), Radius: 1}))
	})

	t.Run("sphere crossing an edge is partial", func(t *testing.T) {
		// Half width of the frustum at distance 10 is 10*tan(30deg) ~ 5.77.
		require.Equal(t, VisibilityPartial, cv.ComputeVisibility(BoundingSphere{Center: NewVector3(5.77, 0, 0), Radius: 1}))
	})

	require.InDelta(t, 2*math.Tan(math.Pi/6), cam.SSEDenominator(), 1e-12)
}
