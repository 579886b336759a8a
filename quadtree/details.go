package quadtree

// TraversalDetails summarizes the selection of a subtree for its parent.
type TraversalDetails struct {
	// True when every selected tile of the subtree can render now.
	AllAreRenderable bool

	// True when any selected tile of the subtree rendered last frame.
	AnyWereRenderedLastFrame bool

	// The number of selected tiles that cannot render yet.
	NotYetRenderableCount int
}

// quadDetails holds the details of four sibling tiles.
type quadDetails struct {
	southwest TraversalDetails
	southeast TraversalDetails
	northwest TraversalDetails
	northeast TraversalDetails
}

func (q *quadDetails) slot(quadrant int) *TraversalDetails {
	switch quadrant {
	case 0:
		return &q.northwest
	case 1:
		return &q.northeast
	case 2:
		return &q.southwest
	default:
		return &q.southeast
	}
}

func (q *quadDetails) combine(result *TraversalDetails) {
	result.AllAreRenderable = q.southwest.AllAreRenderable &&
		q.southeast.AllAreRenderable &&
		q.northwest.AllAreRenderable &&
		q.northeast.AllAreRenderable

	result.AnyWereRenderedLastFrame = q.southwest.AnyWereRenderedLastFrame ||
		q.southeast.AnyWereRenderedLastFrame ||
		q.northwest.AnyWereRenderedLastFrame ||
		q.northeast.AnyWereRenderedLastFrame

	result.NotYetRenderableCount = q.southwest.NotYetRenderableCount +
		q.southeast.NotYetRenderableCount +
		q.northwest.NotYetRenderableCount +
		q.northeast.NotYetRenderableCount
}

// set records the details of a single selected tile.
func (d *TraversalDetails) set(renderable, renderedLastFrame bool) {
	d.AllAreRenderable = renderable
	d.AnyWereRenderedLastFrame = renderedLastFrame
	d.NotYetRenderableCount = 0
	if !renderable {
		d.NotYetRenderableCount = 1
	}
}
