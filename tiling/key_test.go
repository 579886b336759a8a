package tiling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyParentChildRoundTrip(t *testing.T) {
	keys := []Key{
		{X: 0, Y: 0, Level: 0},
		{X: 1, Y: 0, Level: 0},
		{X: 3, Y: 2, Level: 2},
		{X: 1023, Y: 511, Level: 10},
	}

	for _, k := range keys {
		for _, q := range Quadrants {
			child := k.Child(q)
			require.Equal(t, k.Level+1, child.Level)
			require.Equal(t, q, child.Quadrant())

			parent, ok := child.Parent()
			require.True(t, ok)
			require.Equal(t, k, parent)
			require.Equal(t, child, parent.Child(child.Quadrant()))
		}
	}
}

func TestKeyChildren(t *testing.T) {
	k := NewKey(1, 2, 3)
	require.Equal(t, [4]Key{
		{X: 2, Y: 4, Level: 4},
		{X: 3, Y: 4, Level: 4},
		{X: 2, Y: 5, Level: 4},
		{X: 3, Y: 5, Level: 4},
	}, k.Children())
}

func TestKeyParentOfRoot(t *testing.T) {
	_, ok := NewKey(1, 0, 0).Parent()
	require.False(t, ok)
}

func TestKeyIsAncestorOf(t *testing.T) {
	root := NewKey(1, 0, 0)
	grandChild := root.Child(Southeast).Child(Northwest)

	require.True(t, root.IsAncestorOf(grandChild))
	require.False(t, grandChild.IsAncestorOf(root))
	require.False(t, root.IsAncestorOf(root))
	require.False(t, NewKey(0, 0, 0).IsAncestorOf(grandChild))
}

func TestKeyString(t *testing.T) {
	require.Equal(t, "3/1/2", NewKey(1, 2, 3).String())
	require.Equal(t, "se", Southeast.String())
}
