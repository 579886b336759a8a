package geom

import "math"

// Camera is a perspective camera in earth-fixed coordinates.
type Camera struct {
	Position  Vector3
	Direction Vector3
	Up        Vector3

	// Vertical field of view in radians.
	FovY        float64
	AspectRatio float64
	Near        float64
	Far         float64

	// Viewport height in pixels.
	ViewportHeight float64
	PixelRatio     float64
}

// LookAt returns a camera at position looking at target. Up is
// re-orthogonalized against the view direction.
func LookAt(position, target, up Vector3, fovY, aspectRatio, viewportHeight float64) Camera {
	direction := Normalized(Sub(target, position))
	right := Normalized(Cross(direction, up))

	return Camera{
		Position:       position,
		Direction:      direction,
		Up:             Normalized(Cross(right, direction)),
		FovY:           fovY,
		AspectRatio:    aspectRatio,
		Near:           1,
		Far:            1e10,
		ViewportHeight: viewportHeight,
		PixelRatio:     1,
	}
}

func (c Camera) Right() Vector3 {
	return Normalized(Cross(c.Direction, c.Up))
}

// SSEDenominator is 2*tan(fovy/2), the factor converting geometric error at a
// distance into a fraction of the viewport height.
func (c Camera) SSEDenominator() float64 {
	return 2 * math.Tan(c.FovY/2)
}

// PositionCartographic returns the camera position on the given ellipsoid.
func (c Camera) PositionCartographic(e Ellipsoid) Cartographic {
	return e.CartesianToCartographic(c.Position)
}

// CullingVolume returns the six frustum planes with normals facing inside.
func (c Camera) CullingVolume() CullingVolume {
	direction := Normalized(c.Direction)
	up := Normalized(c.Up)
	right := Normalized(Cross(direction, up))

	t := c.Near * math.Tan(c.FovY/2)
	r := t * c.AspectRatio

	nearCenter := Add(c.Position, Mul(direction, c.Near))
	farCenter := Add(c.Position, Mul(direction, c.Far))

	var planes []Plane

	// Left.
	n := Normalized(Sub(Add(nearCenter, Mul(right, -r)), c.Position))
	n = Normalized(Cross(n, up))
	planes = append(planes, NewPlaneFromPointNormal(c.Position, n))

	// Right.
	n = Normalized(Sub(Add(nearCenter, Mul(right, r)), c.Position))
	n = Normalized(Cross(up, n))
	planes = append(planes, NewPlaneFromPointNormal(c.Position, n))

	// Bottom.
	n = Normalized(Sub(Add(nearCenter, Mul(up, -t)), c.Position))
	n = Normalized(Cross(right, n))
	planes = append(planes, NewPlaneFromPointNormal(c.Position, n))

	// Top.
	n = Normalized(Sub(Add(nearCenter, Mul(up, t)), c.Position))
	n = Normalized(Cross(n, right))
	planes = append(planes, NewPlaneFromPointNormal(c.Position, n))

	planes = append(planes,
		NewPlaneFromPointNormal(nearCenter, direction),
		NewPlaneFromPointNormal(farCenter, direction.Negate()),
	)

	return CullingVolume{Planes: planes}
}
