package main

import (
	"math"
	"sync"
	"time"

	"github.com/aukilabs/globe/geom"
)

// orbitCamera looks down at the globe from a fixed height, circling it
// eastward once per period. A camera set by a client replaces the orbit.
type orbitCamera struct {
	Longitude float64
	Latitude  float64
	Height    float64

	// The time to circle the globe. Zero keeps the camera still.
	Period time.Duration

	start time.Time
	now   func() time.Time

	mutex    sync.RWMutex
	override *geom.Camera
}

func newOrbitCamera(conf cameraConfig) *orbitCamera {
	return &orbitCamera{
		Longitude: conf.Longitude,
		Latitude:  conf.Latitude,
		Height:    conf.Height,
		Period:    conf.OrbitPeriod,
		start:     time.Now(),
		now:       time.Now,
	}
}

// Set replaces the orbit by the given camera.
func (c *orbitCamera) Set(camera geom.Camera) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.override = &camera
}

func (c *orbitCamera) Camera() geom.Camera {
	c.mutex.RLock()
	override := c.override
	c.mutex.RUnlock()

	if override != nil {
		return *override
	}

	lon := c.Longitude
	if c.Period > 0 {
		elapsed := c.now().Sub(c.start)
		lon += 360 * float64(elapsed%c.Period) / float64(c.Period)
	}
	lon = math.Mod(lon+180, 360) - 180

	e := geom.WGS84
	position := e.CartographicToCartesian(geom.NewCartographicFromDegrees(lon, c.Latitude, c.Height))
	target := e.CartographicToCartesian(geom.NewCartographicFromDegrees(lon, c.Latitude, 0))

	up := geom.NewVector3(0, 0, 1)
	if math.Abs(c.Latitude) > 89 {
		up = geom.NewVector3(1, 0, 0)
	}
	return geom.LookAt(position, target, up, math.Pi/3, 16.0/9, 1080)
}
