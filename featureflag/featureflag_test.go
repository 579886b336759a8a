package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{"PRELOAD_SIBLINGS"})

	t.Run("run if enabled", func(t *testing.T) {
		var preloadSiblings bool
		f.IfSet(FlagPreloadSiblings, func() {
			preloadSiblings = true
		})
		require.True(t, preloadSiblings)

		var disableCache bool
		f.IfSet(FlagDisableTileCache, func() {
			disableCache = true
		})
		require.False(t, disableCache)
	})

	t.Run("run if disabled", func(t *testing.T) {
		var preloadSiblings bool
		f.IfNotSet(FlagPreloadSiblings, func() {
			preloadSiblings = true
		})
		require.False(t, preloadSiblings)

		var preloadAncestors bool
		f.IfNotSet(FlagDisablePreloadAncestors, func() {
			preloadAncestors = true
		})
		require.True(t, preloadAncestors)
	})
}

func TestNewNormalizesFlags(t *testing.T) {
	f := New([]string{" disable_tile_cache", "", "Preload_Siblings "})
	require.True(t, f.IsSet(FlagDisableTileCache))
	require.True(t, f.IsSet(FlagPreloadSiblings))
	require.False(t, f.IsSet(FlagDisableClientCamera))
	require.Equal(t, []string{"DISABLE_TILE_CACHE", "PRELOAD_SIBLINGS"}, f.Strings())
}
