package featureflag

type Flag string

const (
	// Loads the culled siblings of visited tiles so panning reveals loaded
	// terrain.
	FlagPreloadSiblings Flag = "PRELOAD_SIBLINGS"

	FlagDisablePreloadAncestors Flag = "DISABLE_PRELOAD_ANCESTORS"

	// Fetches every payload from the network, even for layers marked as
	// cached.
	FlagDisableTileCache Flag = "DISABLE_TILE_CACHE"

	// Ignores the cameras sent by frame stream clients.
	FlagDisableClientCamera Flag = "DISABLE_CLIENT_CAMERA"
)
