package quadtree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/globe/tiling"
)

// Store is the arena holding every tile created so far. Tiles are created
// lazily: roots up front, children when their parent is subdivided.
type Store struct {
	scheme tiling.Scheme
	tiles  arena[Tile]
	byKey  map[tiling.Key]TileIndex
	roots  []TileIndex
}

func NewStore(s tiling.Scheme) *Store {
	store := &Store{
		scheme: s,
		byKey:  make(map[tiling.Key]TileIndex),
	}

	for _, k := range tiling.RootKeys(s) {
		store.roots = append(store.roots, store.create(k, NoTile))
	}
	return store
}

func (s *Store) create(k tiling.Key, parent TileIndex) TileIndex {
	i, t := s.tiles.alloc()
	*t = Tile{
		Key:      k,
		Parent:   parent,
		Children: [4]TileIndex{NoTile, NoTile, NoTile, NoTile},
		Terrain:  TerrainUnloaded,
		prev:     NoTile,
		next:     NoTile,
		bounds:   tileBounds{source: NoTile},
	}

	idx := TileIndex(i)
	s.byKey[k] = idx
	return idx
}

func (s *Store) Scheme() tiling.Scheme {
	return s.scheme
}

// Tile returns the tile at index i. It panics when i is not a tile of the
// store.
func (s *Store) Tile(i TileIndex) *Tile {
	return s.tiles.at(int(i))
}

func (s *Store) Len() int {
	return s.tiles.len()
}

func (s *Store) Roots() []TileIndex {
	return s.roots
}

// Lookup returns the index of the tile with the given key if it was created.
func (s *Store) Lookup(k tiling.Key) (TileIndex, bool) {
	i, ok := s.byKey[k]
	return i, ok
}

// Subdivide creates the children of a tile and returns them in quadrant
// order. Subdividing an already subdivided tile returns the existing
// children.
func (s *Store) Subdivide(i TileIndex) [4]TileIndex {
	t := s.Tile(i)
	if t.subdivided {
		return t.Children
	}

	if t.Key.Level >= tiling.MaxLevel {
		panic(errors.New("subdividing a tile at the deepest level").
			WithType(ErrTypeInvariant).
			WithTag("tile", t.Key.String()))
	}

	keys := t.Key.Children()
	var children [4]TileIndex
	for q, k := range keys {
		children[q] = s.create(k, i)
	}

	t.Children = children
	t.subdivided = true
	return children
}

// Child returns the child of a tile in the given quadrant, subdividing it
// when needed.
func (s *Store) Child(i TileIndex, q tiling.Quadrant) TileIndex {
	return s.Subdivide(i)[q]
}

// Rectangle returns the geographic rectangle of a tile, derived from its
// key.
func (s *Store) Rectangle(i TileIndex) tiling.Rectangle {
	return s.scheme.TileToRectangle(s.Tile(i).Key)
}

// ForEach calls fn for every tile in creation order.
func (s *Store) ForEach(fn func(i TileIndex, t *Tile)) {
	for i := 0; i < s.tiles.len(); i++ {
		fn(TileIndex(i), s.tiles.at(i))
	}
}

// IsAncestor reports whether a is a strict ancestor of b.
func (s *Store) IsAncestor(a, b TileIndex) bool {
	for p := s.Tile(b).Parent; p != NoTile; p = s.Tile(p).Parent {
		if p == a {
			return true
		}
	}
	return false
}
