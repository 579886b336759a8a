package tiling

import (
	"math"

	"github.com/aukilabs/globe/geom"
)

// Projection identifies the native coordinate system of a tiling scheme.
type Projection int

const (
	ProjectionGeographic Projection = iota
	ProjectionWebMercator
)

func (p Projection) String() string {
	switch p {
	case ProjectionGeographic:
		return "geographic"
	case ProjectionWebMercator:
		return "web_mercator"
	default:
		return "unknown"
	}
}

// Scheme maps tile keys to geographic rectangles.
type Scheme interface {
	Ellipsoid() geom.Ellipsoid

	// The extent covered by the level zero tiles.
	Rectangle() Rectangle

	Projection() Projection

	NumberOfXTilesAtLevel(level uint32) uint32
	NumberOfYTilesAtLevel(level uint32) uint32

	// Returns the geographic rectangle of a tile, in radians.
	TileToRectangle(k Key) Rectangle

	// Returns the rectangle of a tile in the scheme's native coordinates.
	TileToNativeRectangle(k Key) Rectangle

	// Converts a geographic rectangle to native coordinates.
	RectangleToNativeRectangle(r Rectangle) Rectangle

	// Returns the key of the tile containing the position at the given
	// level, false when the position is outside the scheme rectangle.
	PositionToTile(c geom.Cartographic, level uint32) (Key, bool)
}

// RootKeys returns the level zero keys of a scheme in row-major order.
func RootKeys(s Scheme) []Key {
	nx := s.NumberOfXTilesAtLevel(0)
	ny := s.NumberOfYTilesAtLevel(0)

	keys := make([]Key, 0, nx*ny)
	for y := uint32(0); y < ny; y++ {
		for x := uint32(0); x < nx; x++ {
			keys = append(keys, Key{X: x, Y: y})
		}
	}
	return keys
}

// IsValidKey reports whether k addresses an existing tile of s.
func IsValidKey(s Scheme, k Key) bool {
	return k.Level <= MaxLevel &&
		k.X < s.NumberOfXTilesAtLevel(k.Level) &&
		k.Y < s.NumberOfYTilesAtLevel(k.Level)
}

// GeographicScheme is an equirectangular scheme where x and y map linearly
// to longitude and latitude.
type GeographicScheme struct {
	ellipsoid  geom.Ellipsoid
	rectangle  Rectangle
	rootTilesX uint32
	rootTilesY uint32
}

// NewGeographicScheme returns the usual 2x1 root geographic scheme over
// the WGS84 ellipsoid.
func NewGeographicScheme() *GeographicScheme {
	return &GeographicScheme{
		ellipsoid:  geom.WGS84,
		rectangle:  MaxRectangle,
		rootTilesX: 2,
		rootTilesY: 1,
	}
}

func (s *GeographicScheme) Ellipsoid() geom.Ellipsoid {
	return s.ellipsoid
}

func (s *GeographicScheme) Rectangle() Rectangle {
	return s.rectangle
}

func (s *GeographicScheme) Projection() Projection {
	return ProjectionGeographic
}

func (s *GeographicScheme) NumberOfXTilesAtLevel(level uint32) uint32 {
	return s.rootTilesX << level
}

func (s *GeographicScheme) NumberOfYTilesAtLevel(level uint32) uint32 {
	return s.rootTilesY << level
}

func (s *GeographicScheme) TileToRectangle(k Key) Rectangle {
	return tileToRectangle(s.rectangle, s.NumberOfXTilesAtLevel(k.Level), s.NumberOfYTilesAtLevel(k.Level), k)
}

// TileToNativeRectangle returns the radian rectangle: geographic native
// coordinates are linear in longitude and latitude.
func (s *GeographicScheme) TileToNativeRectangle(k Key) Rectangle {
	return s.TileToRectangle(k)
}

func (s *GeographicScheme) RectangleToNativeRectangle(r Rectangle) Rectangle {
	return r
}

func (s *GeographicScheme) PositionToTile(c geom.Cartographic, level uint32) (Key, bool) {
	if !s.rectangle.Contains(c) {
		return Key{}, false
	}

	lon := c.Longitude
	if s.rectangle.East < s.rectangle.West {
		lon += twoPi
	}

	return positionToTile(s.rectangle, s.NumberOfXTilesAtLevel(level), s.NumberOfYTilesAtLevel(level), lon, c.Latitude, level), true
}

// MercatorMaximumLatitude is the latitude where the web mercator projection
// reaches y == pi.
var MercatorMaximumLatitude = MercatorAngleToLatitude(math.Pi)

// WebMercatorScheme is the square 1x1 root scheme used by most XYZ imagery
// servers.
type WebMercatorScheme struct {
	ellipsoid       geom.Ellipsoid
	rectangle       Rectangle
	nativeRectangle Rectangle
	rootTilesX      uint32
	rootTilesY      uint32
}

func NewWebMercatorScheme() *WebMercatorScheme {
	e := geom.WGS84
	semimajor := e.MaximumRadius()
	extent := math.Pi * semimajor

	return &WebMercatorScheme{
		ellipsoid: e,
		rectangle: Rectangle{
			West:  -math.Pi,
			South: -MercatorMaximumLatitude,
			East:  math.Pi,
			North: MercatorMaximumLatitude,
		},
		nativeRectangle: Rectangle{
			West:  -extent,
			South: -extent,
			East:  extent,
			North: extent,
		},
		rootTilesX: 1,
		rootTilesY: 1,
	}
}

func (s *WebMercatorScheme) Ellipsoid() geom.Ellipsoid {
	return s.ellipsoid
}

func (s *WebMercatorScheme) Rectangle() Rectangle {
	return s.rectangle
}

func (s *WebMercatorScheme) Projection() Projection {
	return ProjectionWebMercator
}

func (s *WebMercatorScheme) NumberOfXTilesAtLevel(level uint32) uint32 {
	return s.rootTilesX << level
}

func (s *WebMercatorScheme) NumberOfYTilesAtLevel(level uint32) uint32 {
	return s.rootTilesY << level
}

func (s *WebMercatorScheme) TileToNativeRectangle(k Key) Rectangle {
	return tileToRectangle(s.nativeRectangle, s.NumberOfXTilesAtLevel(k.Level), s.NumberOfYTilesAtLevel(k.Level), k)
}

func (s *WebMercatorScheme) TileToRectangle(k Key) Rectangle {
	native := s.TileToNativeRectangle(k)
	semimajor := s.ellipsoid.MaximumRadius()

	return Rectangle{
		West:  native.West / semimajor,
		South: MercatorAngleToLatitude(native.South / semimajor),
		East:  native.East / semimajor,
		North: MercatorAngleToLatitude(native.North / semimajor),
	}
}

func (s *WebMercatorScheme) RectangleToNativeRectangle(r Rectangle) Rectangle {
	semimajor := s.ellipsoid.MaximumRadius()

	return Rectangle{
		West:  r.West * semimajor,
		South: LatitudeToMercatorAngle(r.South) * semimajor,
		East:  r.East * semimajor,
		North: LatitudeToMercatorAngle(r.North) * semimajor,
	}
}

func (s *WebMercatorScheme) PositionToTile(c geom.Cartographic, level uint32) (Key, bool) {
	if !s.rectangle.Contains(c) {
		return Key{}, false
	}

	semimajor := s.ellipsoid.MaximumRadius()
	x := c.Longitude * semimajor
	y := LatitudeToMercatorAngle(c.Latitude) * semimajor

	return positionToTile(s.nativeRectangle, s.NumberOfXTilesAtLevel(level), s.NumberOfYTilesAtLevel(level), x, y, level), true
}

// LatitudeToMercatorAngle converts a geodetic latitude to the web mercator
// y angle. Latitudes are clamped to the mercator range.
func LatitudeToMercatorAngle(lat float64) float64 {
	lat = geom.Clamp(lat, -MercatorMaximumLatitude, MercatorMaximumLatitude)
	sinLat := math.Sin(lat)
	return 0.5 * math.Log((1+sinLat)/(1-sinLat))
}

// MercatorAngleToLatitude converts a web mercator y angle to a geodetic
// latitude.
func MercatorAngleToLatitude(angle float64) float64 {
	return math.Pi/2 - 2*math.Atan(math.Exp(-angle))
}

func tileToRectangle(r Rectangle, nx, ny uint32, k Key) Rectangle {
	tileWidth := r.Width() / float64(nx)
	tileHeight := r.Height() / float64(ny)

	return Rectangle{
		West:  float64(k.X)*tileWidth + r.West,
		East:  float64(k.X+1)*tileWidth + r.West,
		North: r.North - float64(k.Y)*tileHeight,
		South: r.North - float64(k.Y+1)*tileHeight,
	}
}

func positionToTile(r Rectangle, nx, ny uint32, x, y float64, level uint32) Key {
	tileWidth := r.Width() / float64(nx)
	tileHeight := r.Height() / float64(ny)

	tx := uint32(math.Max(0, math.Floor((x-r.West)/tileWidth)))
	if tx >= nx {
		tx = nx - 1
	}

	ty := uint32(math.Max(0, math.Floor((r.North-y)/tileHeight)))
	if ty >= ny {
		ty = ny - 1
	}

	return Key{X: tx, Y: ty, Level: level}
}
