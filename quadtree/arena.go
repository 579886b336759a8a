package quadtree

import "github.com/aukilabs/go-tooling/pkg/errors"

// ErrTypeInvariant marks programming errors in the engine. They panic.
const ErrTypeInvariant = "invariant_violation"

const (
	arenaChunkBits = 10
	arenaChunkSize = 1 << arenaChunkBits
)

// arena stores values in fixed size chunks so pointers to elements stay
// valid while it grows.
type arena[T any] struct {
	chunks [][]T
	size   int
}

func (a *arena[T]) alloc() (int, *T) {
	if a.size == len(a.chunks)*arenaChunkSize {
		a.chunks = append(a.chunks, make([]T, arenaChunkSize))
	}

	i := a.size
	a.size++
	return i, a.at(i)
}

func (a *arena[T]) at(i int) *T {
	if i < 0 || i >= a.size {
		panic(errors.New("index outside arena").
			WithType(ErrTypeInvariant).
			WithTag("index", i).
			WithTag("size", a.size))
	}
	return &a.chunks[i>>arenaChunkBits][i&(arenaChunkSize-1)]
}

func (a *arena[T]) len() int {
	return a.size
}
