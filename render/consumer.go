// Package render hands the frames selected by a quadtree engine to
// consumers, such as the websocket frame stream.
package render

import (
	"sync"

	"github.com/aukilabs/globe/quadtree"
)

// Consumer receives the frames of an engine. HandleFrame is called on the
// engine goroutine and must not block.
type Consumer interface {
	// Handles a frame. The frame meshes and textures are shared and must
	// not be modified.
	HandleFrame(f quadtree.Frame)

	// Releases the consumer resources.
	Close()
}

// Attach registers a consumer to the frames of an engine. The returned
// function unregisters and closes the consumer.
func Attach(e *quadtree.Engine, c Consumer) (detach func()) {
	cancel := e.HandleFrame(c.HandleFrame)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			c.Close()
		})
	}
}

// ConsumerFunc is a consumer without resources.
type ConsumerFunc func(f quadtree.Frame)

func (fn ConsumerFunc) HandleFrame(f quadtree.Frame) {
	fn(f)
}

func (fn ConsumerFunc) Close() {
}

// LatestFrame keeps the last frame it received.
type LatestFrame struct {
	mutex sync.RWMutex
	frame quadtree.Frame
	set   bool
}

func (l *LatestFrame) HandleFrame(f quadtree.Frame) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.frame = f
	l.set = true
}

func (l *LatestFrame) Close() {
}

// Get returns the last frame, false when none was received yet.
func (l *LatestFrame) Get() (quadtree.Frame, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.frame, l.set
}
