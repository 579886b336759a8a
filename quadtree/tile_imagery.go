package quadtree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/globe/providers"
	"github.com/aukilabs/globe/tiling"
)

// TileImagery attaches one imagery record to a terrain tile. Loading is the
// record being loaded, Ready the best record available meanwhile, possibly
// an ancestor of Loading.
type TileImagery struct {
	Loading ImageryIndex
	Ready   ImageryIndex

	// The part of the terrain tile covered by the imagery tile, as
	// (west, south, east, north) in [0, 1].
	TextureCoordinateRectangle [4]float64

	// Maps terrain tile parameters onto the Ready texture, as
	// (translation x, translation y, scale x, scale y).
	TranslationAndScale [4]float64

	// Texture coordinates are computed in web mercator along Y.
	UseWebMercatorT bool
}

func (ti *TileImagery) free(store *ImageryStore) {
	store.Release(ti.Loading)
	store.Release(ti.Ready)
	ti.Loading = NoImagery
	ti.Ready = NoImagery
}

// layer returns the layer of the attached imagery.
func (ti *TileImagery) layer(store *ImageryStore) *Layer {
	if ti.Loading != NoImagery {
		return store.Get(ti.Loading).layer
	}
	if ti.Ready != NoImagery {
		return store.Get(ti.Ready).layer
	}
	return nil
}

// processTileImagery advances the imagery being loaded and falls back to the
// closest ready ancestor meanwhile. It returns true once nothing is left to
// load for this attachment.
func (e *Engine) processTileImagery(rect tiling.Rectangle, ti *TileImagery) bool {
	loadingIndex := ti.Loading
	loading := e.imagery.Get(loadingIndex)
	needGeographic := !ti.UseWebMercatorT

	e.processImageryRecord(loadingIndex, needGeographic)

	// A ready web mercator record may still wait for its geographic
	// texture when its reprojection could not be started.
	if loading.State == ImageryReady && (!needGeographic || loading.Texture != nil) {
		if ti.Ready != NoImagery {
			e.imagery.Release(ti.Ready)
		}
		ti.Ready = loadingIndex
		ti.Loading = NoImagery
		ti.TranslationAndScale = textureTranslationAndScale(rect, loading, ti.UseWebMercatorT)
		return true
	}

	ancestor := loading.Parent
	closestAncestorThatNeedsLoading := NoImagery
	for ancestor != NoImagery {
		r := e.imagery.Get(ancestor)
		if r.State == ImageryReady && (!needGeographic || r.Texture != nil) {
			break
		}
		if closestAncestorThatNeedsLoading == NoImagery &&
			r.State != ImageryFailed &&
			r.State != ImageryInvalid {
			closestAncestorThatNeedsLoading = ancestor
		}
		ancestor = r.Parent
	}

	if ti.Ready != ancestor {
		if ti.Ready != NoImagery {
			e.imagery.Release(ti.Ready)
		}

		ti.Ready = ancestor
		if ancestor != NoImagery {
			e.imagery.AddRef(ancestor)
			ti.TranslationAndScale = textureTranslationAndScale(rect, e.imagery.Get(ancestor), ti.UseWebMercatorT)
		}
	}

	if loading.State == ImageryFailed || loading.State == ImageryInvalid {
		if closestAncestorThatNeedsLoading != NoImagery {
			e.processImageryRecord(closestAncestorThatNeedsLoading, needGeographic)
			return false
		}
		return true
	}
	return false
}

// processImageryRecord advances an imagery record: request, texture
// creation and reprojection to geographic when needed.
func (e *Engine) processImageryRecord(i ImageryIndex, needGeographic bool) {
	r := e.imagery.Get(i)

	if r.State == ImageryFailed &&
		r.retry.failures <= e.opts.MaximumRetries &&
		e.frame >= r.retry.nextFrame {
		r.State = ImageryUnloaded
	}

	if r.State == ImageryUnloaded {
		r.State = ImageryTransitioning
		job := imageryRequestJob{
			Provider: r.layer.Provider,
			Key:      r.Key.Tile,
		}
		if !e.spawn(jobImageryRequest, job, NoTile, i, r.generation) {
			r.State = ImageryUnloaded
		}
	}

	if r.State == ImageryReceived {
		e.createTexture(r)
	}

	needsReprojection := r.State == ImageryReady && needGeographic && r.Texture == nil
	if r.State == ImageryTextureLoaded || needsReprojection {
		e.reprojectTexture(i, r, needGeographic)
	}
}

func (e *Engine) createTexture(r *Imagery) {
	img := r.image
	r.image = nil

	projection := r.layer.Provider.TilingScheme().Projection()
	tex := &Texture{
		Width:      img.Width,
		Height:     img.Height,
		Pixels:     img.Pixels,
		Rectangle:  r.Rectangle,
		Projection: projection,
	}

	if projection == tiling.ProjectionWebMercator {
		r.TextureWebMercator = tex
	} else {
		r.Texture = tex
	}
	r.State = ImageryTextureLoaded
}

func (e *Engine) reprojectTexture(i ImageryIndex, r *Imagery, needGeographic bool) {
	tex := r.TextureWebMercator
	if tex == nil {
		tex = r.Texture
	}

	previous := r.State
	scheme := r.layer.Provider.TilingScheme()

	if needGeographic &&
		scheme.Projection() == tiling.ProjectionWebMercator &&
		r.Texture == nil &&
		r.Rectangle.Width()/float64(tex.Width) > 1e-5 {
		r.State = ImageryTransitioning
		job := reprojectJob{
			Source:    tex,
			Rectangle: r.Rectangle,
		}
		if !e.spawn(jobReproject, job, NoTile, i, r.generation) {
			r.State = previous
		}
		return
	}

	if needGeographic && r.Texture == nil {
		r.Texture = tex
	}
	r.State = ImageryReady
}

// imageryFailed records a failed imagery request and schedules its retry.
func (e *Engine) imageryFailed(r *Imagery, err error) {
	r.State = ImageryFailed
	r.retry.failures++
	r.retry.nextFrame = e.frame + e.retryDelay(r.retry.failures)

	logger := logs.WithTag("layer", r.layer.Name).
		WithTag("imagery", r.Key.Tile.String()).
		WithTag("failures", r.retry.failures)
	if r.retry.failures > e.opts.MaximumRetries || errors.IsType(err, providers.ErrTypeDecode) {
		logger.Warn(err)
		return
	}
	logger.Debug(err)
}
