package providers

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/globe/tiling"
)

// Child tile mask bits.
const (
	ChildSouthwest uint8 = 1 << iota
	ChildSoutheast
	ChildNorthwest
	ChildNortheast

	AllChildren = ChildSouthwest | ChildSoutheast | ChildNorthwest | ChildNortheast
)

// HeightField is a regular grid of heights covering a tile rectangle. Rows
// run from north to south and columns from west to east; the first and last
// rows and columns lie on the tile edges.
type HeightField struct {
	Width               int       `cbor:"width"`
	Height              int       `cbor:"height"`
	Heights             []float32 `cbor:"heights"`
	MinimumHeight       float64   `cbor:"min_height"`
	MaximumHeight       float64   `cbor:"max_height"`
	ChildTileMask       uint8     `cbor:"child_mask"`
	CreatedByUpsampling bool      `cbor:"upsampled"`
}

// NewFlatHeightField returns a width x height grid filled with h.
func NewFlatHeightField(width, height int, h float32, childMask uint8) *HeightField {
	heights := make([]float32, width*height)
	for i := range heights {
		heights[i] = h
	}

	return &HeightField{
		Width:         width,
		Height:        height,
		Heights:       heights,
		MinimumHeight: float64(h),
		MaximumHeight: float64(h),
		ChildTileMask: childMask,
	}
}

// Validate checks the grid dimensions against the height samples.
func (h *HeightField) Validate() error {
	if h.Width < 2 || h.Height < 2 {
		return errors.New("height field is smaller than 2x2").
			WithType(ErrTypeDecode).
			WithTag("width", h.Width).
			WithTag("height", h.Height)
	}

	if len(h.Heights) != h.Width*h.Height {
		return errors.New("height field sample count mismatch").
			WithType(ErrTypeDecode).
			WithTag("expected", h.Width*h.Height).
			WithTag("got", len(h.Heights))
	}
	return nil
}

// ComputeMinMax refreshes the minimum and maximum heights from the samples.
func (h *HeightField) ComputeMinMax() {
	if len(h.Heights) == 0 {
		h.MinimumHeight = 0
		h.MaximumHeight = 0
		return
	}

	min := math.Inf(1)
	max := math.Inf(-1)
	for _, v := range h.Heights {
		min = math.Min(min, float64(v))
		max = math.Max(max, float64(v))
	}
	h.MinimumHeight = min
	h.MaximumHeight = max
}

// At returns the sample at column i, row j.
func (h *HeightField) At(i, j int) float64 {
	return float64(h.Heights[j*h.Width+i])
}

// Sample bilinearly interpolates the height at normalized coordinates u
// (west to east) and v (north to south), both in [0, 1].
func (h *HeightField) Sample(u, v float64) float64 {
	x := clamp01(u) * float64(h.Width-1)
	y := clamp01(v) * float64(h.Height-1)

	i0 := int(math.Floor(x))
	j0 := int(math.Floor(y))
	i1 := min(i0+1, h.Width-1)
	j1 := min(j0+1, h.Height-1)
	fx := x - float64(i0)
	fy := y - float64(j0)

	top := h.At(i0, j0)*(1-fx) + h.At(i1, j0)*fx
	bottom := h.At(i0, j1)*(1-fx) + h.At(i1, j1)*fx
	return top*(1-fy) + bottom*fy
}

// IsChildAvailable reports whether the child tile has its own data
// according to the child tile mask.
func (h *HeightField) IsChildAvailable(parent, child tiling.Key) bool {
	bit := uint(2)
	if child.X != parent.X*2 {
		bit++
	}
	if child.Y != parent.Y*2 {
		bit -= 2
	}
	return h.ChildTileMask&(1<<bit) != 0
}

// Upsample derives the height field of a descendant tile by interpolating
// this tile's samples. The result keeps the grid dimensions and has no
// available children.
func (h *HeightField) Upsample(ancestor, descendant tiling.Key) (*HeightField, error) {
	if !ancestor.IsAncestorOf(descendant) {
		return nil, errors.New("upsampling from a tile that is not an ancestor").
			WithTag("ancestor", ancestor.String()).
			WithTag("descendant", descendant.String())
	}

	levels := descendant.Level - ancestor.Level
	scale := 1 / float64(uint64(1)<<levels)
	u0 := float64(descendant.X-ancestor.X<<levels) * scale
	v0 := float64(descendant.Y-ancestor.Y<<levels) * scale

	heights := make([]float32, h.Width*h.Height)
	for j := 0; j < h.Height; j++ {
		v := v0 + float64(j)/float64(h.Height-1)*scale
		for i := 0; i < h.Width; i++ {
			u := u0 + float64(i)/float64(h.Width-1)*scale
			heights[j*h.Width+i] = float32(h.Sample(u, v))
		}
	}

	upsampled := &HeightField{
		Width:               h.Width,
		Height:              h.Height,
		Heights:             heights,
		CreatedByUpsampling: true,
	}
	upsampled.ComputeMinMax()
	return upsampled, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
