package providers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/globe/tiling"
)

const imageAccept = "image/png,image/jpeg;q=0.9,*/*;q=0.01"

// URLTemplateImageryProvider fetches image tiles from a URL template such
// as https://tile.example.com/{z}/{x}/{y}.png. {reverseY} is replaced by
// the row counted from the south.
type URLTemplateImageryProvider struct {
	URL    string
	Client *http.Client

	scheme       tiling.Scheme
	tileWidth    int
	tileHeight   int
	minimumLevel uint32
	maximumLevel uint32
}

type URLTemplateOptions struct {
	URL          string
	Client       *http.Client
	Scheme       tiling.Scheme
	TileWidth    int
	TileHeight   int
	MinimumLevel uint32
	MaximumLevel uint32
}

func NewURLTemplateImageryProvider(opts URLTemplateOptions) *URLTemplateImageryProvider {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Scheme == nil {
		opts.Scheme = tiling.NewWebMercatorScheme()
	}
	if opts.TileWidth == 0 {
		opts.TileWidth = 256
	}
	if opts.TileHeight == 0 {
		opts.TileHeight = 256
	}
	if opts.MaximumLevel == 0 {
		opts.MaximumLevel = 18
	}

	return &URLTemplateImageryProvider{
		URL:          opts.URL,
		Client:       opts.Client,
		scheme:       opts.Scheme,
		tileWidth:    opts.TileWidth,
		tileHeight:   opts.TileHeight,
		minimumLevel: opts.MinimumLevel,
		maximumLevel: opts.MaximumLevel,
	}
}

func (p *URLTemplateImageryProvider) TilingScheme() tiling.Scheme {
	return p.scheme
}

func (p *URLTemplateImageryProvider) TileWidth() int {
	return p.tileWidth
}

func (p *URLTemplateImageryProvider) TileHeight() int {
	return p.tileHeight
}

func (p *URLTemplateImageryProvider) MinimumLevel() uint32 {
	return p.minimumLevel
}

func (p *URLTemplateImageryProvider) MaximumLevel() uint32 {
	return p.maximumLevel
}

func (p *URLTemplateImageryProvider) RequestImage(ctx context.Context, k tiling.Key) (*ImagePayload, error) {
	body, err := httpGet(ctx, p.Client, p.tileURL(k), imageAccept)
	if err != nil {
		return nil, err
	}

	img, err := DecodeImage(body)
	if err != nil {
		return nil, errors.New("decoding image tile failed").
			WithType(ErrTypeDecode).
			WithTag("tile", k.String()).
			Wrap(err)
	}
	return img, nil
}

func (p *URLTemplateImageryProvider) tileURL(k tiling.Key) string {
	reverseY := p.scheme.NumberOfYTilesAtLevel(k.Level) - 1 - k.Y

	return strings.NewReplacer(
		"{z}", fmt.Sprint(k.Level),
		"{x}", fmt.Sprint(k.X),
		"{y}", fmt.Sprint(k.Y),
		"{reverseY}", fmt.Sprint(reverseY),
	).Replace(p.URL)
}

// DecodeImage decodes a PNG or JPEG image into an RGBA payload.
func DecodeImage(b []byte) (*ImagePayload, error) {
	src, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
	}

	return &ImagePayload{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pixels: rgba.Pix,
	}, nil
}
