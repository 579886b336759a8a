package geom

import "math"

// Visibility is the result of testing a volume against a culling volume.
type Visibility int

const (
	VisibilityNone Visibility = iota
	VisibilityPartial
	VisibilityFull
)

func (v Visibility) String() string {
	switch v {
	case VisibilityNone:
		return "none"
	case VisibilityPartial:
		return "partial"
	case VisibilityFull:
		return "full"
	default:
		return "unknown"
	}
}

// BoundingSphere is a sphere enclosing a tile's surface.
type BoundingSphere struct {
	Center Vector3
	Radius float64
}

// DistanceTo returns the distance from p to the closest point of the sphere,
// zero when p is inside it.
func (s BoundingSphere) DistanceTo(p Vector3) float64 {
	return math.Max(0, Distance(s.Center, p)-s.Radius)
}

// BoundingSphereFromPoints returns a sphere centered on the points' bounding
// box center that encloses every point.
func BoundingSphereFromPoints(points []Vector3) BoundingSphere {
	if len(points) == 0 {
		return BoundingSphere{}
	}

	min := points[0]
	max := points[0]
	for _, p := range points[1:] {
		min = Vector3{math.Min(min.X, p.X), math.Min(min.Y, p.Y), math.Min(min.Z, p.Z)}
		max = Vector3{math.Max(max.X, p.X), math.Max(max.Y, p.Y), math.Max(max.Z, p.Z)}
	}

	center := Mul(Add(min, max), 0.5)
	var radiusSquared float64
	for _, p := range points {
		radiusSquared = math.Max(radiusSquared, Sub(p, center).LengthSquared())
	}

	return BoundingSphere{
		Center: center,
		Radius: math.Sqrt(radiusSquared),
	}
}

// Plane is the set of points p where Dot(Normal, p) + Distance == 0. The
// normal points toward the inside of a culling volume.
type Plane struct {
	Normal   Vector3
	Distance float64
}

func NewPlaneFromPointNormal(point, normal Vector3) Plane {
	return Plane{
		Normal:   normal,
		Distance: -Dot(normal, point),
	}
}

func (p Plane) SignedDistance(point Vector3) float64 {
	return Dot(p.Normal, point) + p.Distance
}

// CullingVolume is a convex volume bounded by inward-facing planes.
type CullingVolume struct {
	Planes []Plane
}

// ComputeVisibility tests a sphere against every plane of the volume.
func (c CullingVolume) ComputeVisibility(s BoundingSphere) Visibility {
	intersecting := false
	for _, p := range c.Planes {
		d := p.SignedDistance(s.Center)
		if d < -s.Radius {
			return VisibilityNone
		}
		if d < s.Radius {
			intersecting = true
		}
	}

	if intersecting {
		return VisibilityPartial
	}
	return VisibilityFull
}
