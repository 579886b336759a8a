package quadtree

import (
	"sort"
	"sync"
)

// handlerIDs hands out small integer ids for frame handlers. Released ids
// are handed out again, lowest first.
type handlerIDs struct {
	mutex    sync.Mutex
	last     uint32
	released []uint32
}

func (g *handlerIDs) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.released) > 0 {
		id := g.released[0]
		g.released = g.released[1:]
		return id
	}

	g.last++
	return g.last
}

// Release makes an id available again.
func (g *handlerIDs) Release(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	i := sort.Search(len(g.released), func(i int) bool {
		return g.released[i] >= id
	})
	if i < len(g.released) && g.released[i] == id {
		return
	}

	g.released = append(g.released, 0)
	copy(g.released[i+1:], g.released[i:])
	g.released[i] = id
}
