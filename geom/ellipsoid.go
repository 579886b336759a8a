package geom

import "math"

// Cartographic is a geodetic position: longitude and latitude in radians,
// height in meters above the ellipsoid.
type Cartographic struct {
	Longitude float64
	Latitude  float64
	Height    float64
}

func NewCartographicFromDegrees(lon, lat, height float64) Cartographic {
	return Cartographic{
		Longitude: ToRadians(lon),
		Latitude:  ToRadians(lat),
		Height:    height,
	}
}

func ToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func ToDegrees(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Ellipsoid is an ellipsoid of revolution centered at the origin.
type Ellipsoid struct {
	Radii Vector3

	radiiSquared Vector3
}

// WGS84 is the World Geodetic System 1984 ellipsoid.
var WGS84 = NewEllipsoid(6378137.0, 6378137.0, 6356752.3142451793)

func NewEllipsoid(x, y, z float64) Ellipsoid {
	return Ellipsoid{
		Radii:        Vector3{x, y, z},
		radiiSquared: Vector3{x * x, y * y, z * z},
	}
}

func (e Ellipsoid) MaximumRadius() float64 {
	return e.Radii.MaximumComponent()
}

// GeodeticSurfaceNormal returns the unit normal of the ellipsoid surface at
// the given longitude and latitude.
func (e Ellipsoid) GeodeticSurfaceNormal(c Cartographic) Vector3 {
	cosLat := math.Cos(c.Latitude)
	return Normalized(Vector3{
		X: cosLat * math.Cos(c.Longitude),
		Y: cosLat * math.Sin(c.Longitude),
		Z: math.Sin(c.Latitude),
	})
}

// CartographicToCartesian converts a geodetic position to earth-fixed
// cartesian coordinates.
func (e Ellipsoid) CartographicToCartesian(c Cartographic) Vector3 {
	n := e.GeodeticSurfaceNormal(c)
	k := MulComponents(e.radiiSquared, n)
	gamma := math.Sqrt(Dot(n, k))
	k = Mul(k, 1/gamma)
	return Add(k, Mul(n, c.Height))
}

// CartesianToCartographic converts an earth-fixed position to geodetic
// coordinates. The origin maps to the zero cartographic.
func (e Ellipsoid) CartesianToCartographic(p Vector3) Cartographic {
	a := e.Radii.X
	b := e.Radii.Z
	if p.LengthSquared() == 0 {
		return Cartographic{}
	}

	lon := math.Atan2(p.Y, p.X)
	horizontal := math.Hypot(p.X, p.Y)
	if horizontal < Epsilon12 {
		lat := math.Pi / 2
		if p.Z < 0 {
			lat = -lat
		}
		return Cartographic{Longitude: lon, Latitude: lat, Height: math.Abs(p.Z) - b}
	}

	e2 := 1 - (b*b)/(a*a)
	lat := math.Atan2(p.Z, horizontal*(1-e2))
	var height float64
	for i := 0; i < 8; i++ {
		sinLat := math.Sin(lat)
		n := a / math.Sqrt(1-e2*sinLat*sinLat)
		height = horizontal/math.Cos(lat) - n
		next := math.Atan2(p.Z, horizontal*(1-e2*n/(n+height)))
		if math.Abs(next-lat) < Epsilon12 {
			lat = next
			break
		}
		lat = next
	}

	return Cartographic{Longitude: lon, Latitude: lat, Height: height}
}
