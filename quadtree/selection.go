package quadtree

import "fmt"

// SelectionResult records what the traversal did with a tile in a frame.
// The low two bits hold the original decision; bit 4 flags a tile that
// would have rendered but was replaced by an ancestor.
type SelectionResult uint8

const (
	SelectionNone     SelectionResult = 0
	SelectionCulled   SelectionResult = 1
	SelectionRendered SelectionResult = 2
	SelectionRefined  SelectionResult = 3

	kickedBit          SelectionResult = 4
	culledButNeededBit SelectionResult = 8

	// A culled tile containing the camera position, loaded for its terrain
	// heights only.
	SelectionCulledButNeeded = SelectionCulled | culledButNeededBit

	SelectionRenderedAndKicked = SelectionRendered | kickedBit
	SelectionRefinedAndKicked  = SelectionRefined | kickedBit
)

func (r SelectionResult) WasKicked() bool {
	return r&kickedBit != 0
}

// Original strips the kicked and culled-but-needed flags.
func (r SelectionResult) Original() SelectionResult {
	return r & 3
}

func (r SelectionResult) Kick() SelectionResult {
	return r | kickedBit
}

func (r SelectionResult) String() string {
	var s string
	switch r.Original() {
	case SelectionNone:
		s = "none"
	case SelectionCulled:
		s = "culled"
	case SelectionRendered:
		s = "rendered"
	case SelectionRefined:
		s = "refined"
	}

	if r&culledButNeededBit != 0 {
		s += "_but_needed"
	}
	if r.WasKicked() {
		s += "_and_kicked"
	}
	if r&^(3|kickedBit|culledButNeededBit) != 0 {
		return fmt.Sprintf("selection(%d)", uint8(r))
	}
	return s
}
