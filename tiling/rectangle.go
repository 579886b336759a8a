package tiling

import (
	"math"

	"github.com/aukilabs/globe/geom"
)

const twoPi = 2 * math.Pi

// Rectangle is a geographic extent in radians. East may be smaller than
// west when the rectangle crosses the anti-meridian.
type Rectangle struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// MaxRectangle covers the whole globe.
var MaxRectangle = Rectangle{
	West:  -math.Pi,
	South: -math.Pi / 2,
	East:  math.Pi,
	North: math.Pi / 2,
}

func (r Rectangle) Width() float64 {
	if r.East < r.West {
		return r.East + twoPi - r.West
	}
	return r.East - r.West
}

func (r Rectangle) Height() float64 {
	return r.North - r.South
}

func (r Rectangle) Center() geom.Cartographic {
	east := r.East
	if east < r.West {
		east += twoPi
	}

	return geom.Cartographic{
		Longitude: negativePiToPi((r.West + east) * 0.5),
		Latitude:  (r.South + r.North) * 0.5,
	}
}

func (r Rectangle) Northwest() geom.Cartographic {
	return geom.Cartographic{Longitude: r.West, Latitude: r.North}
}

func (r Rectangle) Southeast() geom.Cartographic {
	return geom.Cartographic{Longitude: r.East, Latitude: r.South}
}

// Contains reports whether c lies inside r, edges included.
func (r Rectangle) Contains(c geom.Cartographic) bool {
	lon := c.Longitude
	lat := c.Latitude
	west := r.West
	east := r.East

	if east < west {
		east += twoPi
		if lon < 0 {
			lon += twoPi
		}
	}

	return (lon > west || geom.EqualWithEpsilon(lon, west, geom.Epsilon12)) &&
		(lon < east || geom.EqualWithEpsilon(lon, east, geom.Epsilon12)) &&
		lat >= r.South &&
		lat <= r.North
}

// Intersection returns the overlap of r and o, handling rectangles that
// cross the anti-meridian. It returns false when they do not overlap.
func (r Rectangle) Intersection(o Rectangle) (Rectangle, bool) {
	rEast := r.East
	rWest := r.West
	oEast := o.East
	oWest := o.West

	if rEast < rWest && oEast > 0 {
		rEast += twoPi
	} else if oEast < oWest && rEast > 0 {
		oEast += twoPi
	}

	if rEast < rWest && oWest < 0 {
		oWest += twoPi
	} else if oEast < oWest && rWest < 0 {
		rWest += twoPi
	}

	west := negativePiToPi(math.Max(rWest, oWest))
	east := negativePiToPi(math.Min(rEast, oEast))
	if (r.West < r.East || o.West < o.East) && east <= west {
		return Rectangle{}, false
	}

	south := math.Max(r.South, o.South)
	north := math.Min(r.North, o.North)
	if south >= north {
		return Rectangle{}, false
	}

	return Rectangle{West: west, South: south, East: east, North: north}, true
}

// SimpleIntersection intersects two rectangles without anti-meridian
// handling. Suitable for native (projected) rectangles.
func (r Rectangle) SimpleIntersection(o Rectangle) (Rectangle, bool) {
	west := math.Max(r.West, o.West)
	south := math.Max(r.South, o.South)
	east := math.Min(r.East, o.East)
	north := math.Min(r.North, o.North)
	if south >= north || west >= east {
		return Rectangle{}, false
	}
	return Rectangle{West: west, South: south, East: east, North: north}, true
}

func negativePiToPi(angle float64) float64 {
	if angle >= -math.Pi && angle <= math.Pi {
		return angle
	}
	return zeroToTwoPi(angle+math.Pi) - math.Pi
}

func zeroToTwoPi(angle float64) float64 {
	if angle >= 0 && angle <= twoPi {
		return angle
	}
	mod := math.Mod(angle, twoPi)
	if mod < 0 {
		mod += twoPi
	}
	if math.Abs(mod) < geom.Epsilon12 && math.Abs(angle) > geom.Epsilon12 {
		return twoPi
	}
	return mod
}
