package quadtree

import (
	"github.com/aukilabs/globe/providers"
	"github.com/aukilabs/globe/tiling"
)

// ImageryState is the progress of an imagery record.
type ImageryState uint8

const (
	ImageryUnloaded ImageryState = iota
	ImageryTransitioning
	ImageryReceived
	ImageryTextureLoaded
	ImageryReady
	ImageryFailed
	ImageryInvalid
	ImageryPlaceholder
)

func (s ImageryState) String() string {
	switch s {
	case ImageryUnloaded:
		return "unloaded"
	case ImageryTransitioning:
		return "transitioning"
	case ImageryReceived:
		return "received"
	case ImageryTextureLoaded:
		return "texture_loaded"
	case ImageryReady:
		return "ready"
	case ImageryFailed:
		return "failed"
	case ImageryInvalid:
		return "invalid"
	case ImageryPlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// ImageryIndex addresses a record in the ImageryStore.
type ImageryIndex int32

const NoImagery ImageryIndex = -1

// ImageryKey identifies an imagery record.
type ImageryKey struct {
	Layer       LayerID
	Tile        tiling.Key
	Placeholder bool
}

// Texture is a decoded image ready to be mapped on terrain.
type Texture struct {
	Width      int
	Height     int
	Pixels     []byte
	Rectangle  tiling.Rectangle
	Projection tiling.Projection
}

// Imagery is one image tile of a layer, shared by every terrain tile it
// overlaps.
type Imagery struct {
	Key       ImageryKey
	State     ImageryState
	Parent    ImageryIndex
	Rectangle tiling.Rectangle

	// The texture in geographic form, and in web mercator form for web
	// mercator layers.
	Texture            *Texture
	TextureWebMercator *Texture

	layer      *Layer
	image      *providers.ImagePayload
	refCount   int
	live       bool
	generation uint32
	retry      retryState
}

func (r *Imagery) RefCount() int {
	return r.refCount
}

// ImageryStore holds reference counted imagery records. A record holds one
// reference on its parent and is freed when its count drops to zero.
type ImageryStore struct {
	records arena[Imagery]
	free    []ImageryIndex
	byKey   map[ImageryKey]ImageryIndex
}

func NewImageryStore() *ImageryStore {
	return &ImageryStore{
		byKey: make(map[ImageryKey]ImageryIndex),
	}
}

// Get returns the record at index i. It panics when i was never allocated.
func (s *ImageryStore) Get(i ImageryIndex) *Imagery {
	return s.records.at(int(i))
}

// Len returns the number of live records.
func (s *ImageryStore) Len() int {
	return len(s.byKey)
}

func (s *ImageryStore) Lookup(k ImageryKey) (ImageryIndex, bool) {
	i, ok := s.byKey[k]
	return i, ok
}

// isCurrent reports whether i still designates the record that had the
// given generation.
func (s *ImageryStore) isCurrent(i ImageryIndex, generation uint32) bool {
	if int(i) < 0 || int(i) >= s.records.len() {
		return false
	}
	r := s.Get(i)
	return r.live && r.generation == generation
}

// Acquire returns the record of an imagery tile with one more reference,
// creating it and its ancestors when needed.
func (s *ImageryStore) Acquire(l *Layer, k tiling.Key) ImageryIndex {
	key := ImageryKey{Layer: l.ID, Tile: k}
	if i, ok := s.byKey[key]; ok {
		s.AddRef(i)
		return i
	}

	parent := NoImagery
	if pk, ok := k.Parent(); ok {
		parent = s.Acquire(l, pk)
	}

	i := s.alloc(key, l)
	r := s.Get(i)
	r.Parent = parent
	r.Rectangle = l.Provider.TilingScheme().TileToRectangle(k)
	r.refCount = 1
	return i
}

// AcquirePlaceholder returns the placeholder record of a layer whose
// provider is not ready yet.
func (s *ImageryStore) AcquirePlaceholder(l *Layer) ImageryIndex {
	key := ImageryKey{Layer: l.ID, Placeholder: true}
	if i, ok := s.byKey[key]; ok {
		s.AddRef(i)
		return i
	}

	i := s.alloc(key, l)
	r := s.Get(i)
	r.State = ImageryPlaceholder
	r.Parent = NoImagery
	r.refCount = 1
	return i
}

func (s *ImageryStore) alloc(key ImageryKey, l *Layer) ImageryIndex {
	var i ImageryIndex
	var r *Imagery

	if n := len(s.free); n > 0 {
		i = s.free[n-1]
		s.free = s.free[:n-1]
		r = s.Get(i)
	} else {
		idx, rec := s.records.alloc()
		i = ImageryIndex(idx)
		r = rec
	}

	*r = Imagery{
		Key:        key,
		Parent:     NoImagery,
		layer:      l,
		live:       true,
		generation: r.generation + 1,
	}
	s.byKey[key] = i
	return i
}

func (s *ImageryStore) AddRef(i ImageryIndex) {
	s.Get(i).refCount++
}

// Release drops one reference. At zero the record is freed and its parent
// released. Releasing a freed record does nothing. It returns the remaining
// reference count.
func (s *ImageryStore) Release(i ImageryIndex) int {
	if i == NoImagery {
		return 0
	}

	r := s.Get(i)
	if !r.live {
		return 0
	}

	r.refCount--
	if r.refCount > 0 {
		return r.refCount
	}

	parent := r.Parent
	delete(s.byKey, r.Key)
	*r = Imagery{generation: r.generation}
	s.free = append(s.free, i)

	if parent != NoImagery {
		s.Release(parent)
	}
	return 0
}

// ForEach calls fn for every live record.
func (s *ImageryStore) ForEach(fn func(i ImageryIndex, r *Imagery)) {
	for i := 0; i < s.records.len(); i++ {
		if r := s.records.at(i); r.live {
			fn(ImageryIndex(i), r)
		}
	}
}
