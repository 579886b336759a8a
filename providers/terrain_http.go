package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/globe/tiling"
	"github.com/klauspost/compress/gzip"
	"github.com/segmentio/encoding/json"
)

const (
	quantizedMeshAccept   = "application/vnd.quantized-mesh,application/octet-stream;q=0.9,*/*;q=0.01"
	quantizedMeshGridSize = 65
)

// AvailableRange is an inclusive rectangle of available tiles at a level,
// with y counted from the south (TMS).
type AvailableRange struct {
	StartX uint32 `json:"startX"`
	StartY uint32 `json:"startY"`
	EndX   uint32 `json:"endX"`
	EndY   uint32 `json:"endY"`
}

// LayerJSON is the layer.json document describing a quantized-mesh tileset.
type LayerJSON struct {
	TileJSON   string             `json:"tilejson"`
	Format     string             `json:"format"`
	Version    string             `json:"version"`
	Scheme     string             `json:"scheme"`
	Tiles      []string           `json:"tiles"`
	MinZoom    uint32             `json:"minzoom"`
	MaxZoom    uint32             `json:"maxzoom"`
	Projection string             `json:"projection"`
	Available  [][]AvailableRange `json:"available"`
}

// QuantizedMeshTerrainProvider fetches quantized-mesh tiles over HTTP. Load
// must succeed before the provider is ready.
type QuantizedMeshTerrainProvider struct {
	// The tileset root URL, the directory containing layer.json.
	BaseURL string

	// The HTTP client used for requests. http.DefaultClient when nil.
	Client *http.Client

	scheme              tiling.Scheme
	levelZeroMaximumErr float64

	mutex sync.RWMutex
	layer *LayerJSON
}

func NewQuantizedMeshTerrainProvider(baseURL string, client *http.Client) *QuantizedMeshTerrainProvider {
	scheme := tiling.NewGeographicScheme()
	if client == nil {
		client = http.DefaultClient
	}

	return &QuantizedMeshTerrainProvider{
		BaseURL:             strings.TrimSuffix(baseURL, "/"),
		Client:              client,
		scheme:              scheme,
		levelZeroMaximumErr: EstimatedLevelZeroGeometricError(scheme, quantizedMeshGridSize),
	}
}

// Load fetches and parses layer.json.
func (p *QuantizedMeshTerrainProvider) Load(ctx context.Context) error {
	body, err := p.get(ctx, p.BaseURL+"/layer.json", "application/json")
	if err != nil {
		return err
	}

	var layer LayerJSON
	if err := json.Unmarshal(body, &layer); err != nil {
		return errors.New("parsing layer.json failed").
			WithType(ErrTypeDecode).
			WithTag("url", p.BaseURL).
			Wrap(err)
	}

	if len(layer.Tiles) == 0 {
		return errors.New("layer.json has no tile url template").
			WithType(ErrTypeDecode).
			WithTag("url", p.BaseURL)
	}

	if layer.Format != "" && !strings.HasPrefix(layer.Format, "quantized-mesh") {
		return errors.New("unsupported terrain format").
			WithType(ErrTypeDecode).
			WithTag("format", layer.Format)
	}

	p.mutex.Lock()
	p.layer = &layer
	p.mutex.Unlock()
	return nil
}

func (p *QuantizedMeshTerrainProvider) Ready() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.layer != nil
}

func (p *QuantizedMeshTerrainProvider) TilingScheme() tiling.Scheme {
	return p.scheme
}

func (p *QuantizedMeshTerrainProvider) LevelMaximumGeometricError(level uint32) float64 {
	return p.levelZeroMaximumErr / float64(uint64(1)<<level)
}

func (p *QuantizedMeshTerrainProvider) TileDataAvailable(k tiling.Key) (bool, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.layer == nil {
		return false, false
	}
	return p.isAvailable(k), true
}

func (p *QuantizedMeshTerrainProvider) isAvailable(k tiling.Key) bool {
	if k.Level > p.layer.MaxZoom || int(k.Level) >= len(p.layer.Available) {
		return false
	}

	y := p.tmsY(k)
	for _, r := range p.layer.Available[k.Level] {
		if k.X >= r.StartX && k.X <= r.EndX && y >= r.StartY && y <= r.EndY {
			return true
		}
	}
	return false
}

func (p *QuantizedMeshTerrainProvider) tmsY(k tiling.Key) uint32 {
	if p.layer != nil && p.layer.Scheme == "slippyMap" {
		return k.Y
	}
	return p.scheme.NumberOfYTilesAtLevel(k.Level) - 1 - k.Y
}

func (p *QuantizedMeshTerrainProvider) RequestTileGeometry(ctx context.Context, k tiling.Key) (*HeightField, error) {
	p.mutex.RLock()
	layer := p.layer
	var url string
	var childMask uint8
	if layer != nil {
		url = p.tileURL(k)
		for i, q := range tiling.Quadrants {
			if p.isAvailable(k.Child(q)) {
				childMask |= quadrantChildBits[i]
			}
		}
	}
	p.mutex.RUnlock()

	if layer == nil {
		return nil, errors.New("terrain provider is not ready").
			WithType(ErrTypeFetch).
			WithTag("tile", k.String())
	}

	body, err := p.get(ctx, url, quantizedMeshAccept)
	if err != nil {
		return nil, err
	}

	body, err = gunzipIfNeeded(body)
	if err != nil {
		return nil, errors.New("decompressing terrain tile failed").
			WithType(ErrTypeDecode).
			WithTag("tile", k.String()).
			Wrap(err)
	}

	mesh, err := DecodeQuantizedMesh(body)
	if err != nil {
		return nil, errors.New("decoding terrain tile failed").
			WithType(ErrTypeDecode).
			WithTag("tile", k.String()).
			Wrap(err)
	}

	return mesh.HeightField(quantizedMeshGridSize, quantizedMeshGridSize, childMask), nil
}

var quadrantChildBits = [4]uint8{ChildNorthwest, ChildNortheast, ChildSouthwest, ChildSoutheast}

func (p *QuantizedMeshTerrainProvider) tileURL(k tiling.Key) string {
	r := strings.NewReplacer(
		"{z}", fmt.Sprint(k.Level),
		"{x}", fmt.Sprint(k.X),
		"{y}", fmt.Sprint(p.tmsY(k)),
		"{version}", p.layer.Version,
	)
	return p.BaseURL + "/" + strings.TrimPrefix(r.Replace(p.layer.Tiles[0]), "/")
}

func (p *QuantizedMeshTerrainProvider) get(ctx context.Context, url, accept string) ([]byte, error) {
	return httpGet(ctx, p.Client, url, accept)
}

func httpGet(ctx context.Context, client *http.Client, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.New("creating request failed").
			WithType(ErrTypeFetch).
			WithTag("url", url).
			Wrap(err)
	}
	req.Header.Set("Accept", accept)

	res, err := client.Do(req)
	if err != nil {
		return nil, errors.New("request failed").
			WithType(ErrTypeFetch).
			WithTag("url", url).
			Wrap(err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusNoContent:
		return nil, errors.New("tile does not exist").
			WithType(ErrTypeInvalid).
			WithTag("url", url).
			WithTag("status", res.StatusCode)

	case res.StatusCode != http.StatusOK:
		return nil, errors.New("unexpected response status").
			WithType(ErrTypeFetch).
			WithTag("url", url).
			WithTag("status", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.New("reading response body failed").
			WithType(ErrTypeFetch).
			WithTag("url", url).
			Wrap(err)
	}
	return body, nil
}

// gunzipIfNeeded inflates gzip payloads served without a Content-Encoding
// header, which is how most static quantized-mesh tilesets are hosted.
func gunzipIfNeeded(b []byte) ([]byte, error) {
	if len(b) < 2 || b[0] != 0x1f || b[1] != 0x8b {
		return b, nil
	}

	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
