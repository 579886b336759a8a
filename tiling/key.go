package tiling

import "fmt"

// MaxLevel is the deepest level a key can address.
const MaxLevel = 31

// Quadrant is the position of a tile inside its parent.
type Quadrant uint8

const (
	Northwest Quadrant = iota
	Northeast
	Southwest
	Southeast
)

// Quadrants lists the quadrants in child slot order.
var Quadrants = [4]Quadrant{Northwest, Northeast, Southwest, Southeast}

func (q Quadrant) String() string {
	switch q {
	case Northwest:
		return "nw"
	case Northeast:
		return "ne"
	case Southwest:
		return "sw"
	case Southeast:
		return "se"
	default:
		return fmt.Sprintf("quadrant(%d)", uint8(q))
	}
}

// Key identifies a tile in a tiling scheme. Y grows southward: row 0 is the
// northernmost row of a level.
type Key struct {
	X     uint32 `json:"x"`
	Y     uint32 `json:"y"`
	Level uint32 `json:"level"`
}

func NewKey(x, y, level uint32) Key {
	return Key{X: x, Y: y, Level: level}
}

// Parent returns the key of the tile containing k at the previous level. It
// returns false for root tiles.
func (k Key) Parent() (Key, bool) {
	if k.Level == 0 {
		return Key{}, false
	}
	return Key{X: k.X / 2, Y: k.Y / 2, Level: k.Level - 1}, true
}

// Child returns the key of the child tile in the given quadrant.
func (k Key) Child(q Quadrant) Key {
	child := Key{X: k.X * 2, Y: k.Y * 2, Level: k.Level + 1}
	if q == Northeast || q == Southeast {
		child.X++
	}
	if q == Southwest || q == Southeast {
		child.Y++
	}
	return child
}

// Children returns the four child keys in quadrant order.
func (k Key) Children() [4]Key {
	return [4]Key{
		k.Child(Northwest),
		k.Child(Northeast),
		k.Child(Southwest),
		k.Child(Southeast),
	}
}

// Quadrant returns the position of k inside its parent. Root keys report
// Northwest.
func (k Key) Quadrant() Quadrant {
	if k.Level == 0 {
		return Northwest
	}

	q := Northwest
	if k.X%2 == 1 {
		q = Northeast
	}
	if k.Y%2 == 1 {
		q += 2
	}
	return q
}

// IsAncestorOf reports whether k strictly contains other.
func (k Key) IsAncestorOf(other Key) bool {
	if other.Level <= k.Level {
		return false
	}
	shift := other.Level - k.Level
	return other.X>>shift == k.X && other.Y>>shift == k.Y
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Level, k.X, k.Y)
}
