package providers

import (
	"net/http"
	"os"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/globe/tiling"
	"gopkg.in/yaml.v3"
)

const (
	TerrainTypeEllipsoid     = "ellipsoid"
	TerrainTypeQuantizedMesh = "quantized-mesh"
)

// LayersConfig describes the terrain and imagery layers to load.
type LayersConfig struct {
	Terrain TerrainConfig   `yaml:"terrain"`
	Imagery []ImageryConfig `yaml:"imagery"`
}

type TerrainConfig struct {
	Type  string `yaml:"type"`
	URL   string `yaml:"url"`
	Cache bool   `yaml:"cache"`
}

type ImageryConfig struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	Scheme       string `yaml:"scheme"`
	TileWidth    int    `yaml:"tile_width"`
	TileHeight   int    `yaml:"tile_height"`
	MinimumLevel uint32 `yaml:"minimum_level"`
	MaximumLevel uint32 `yaml:"maximum_level"`
	Base         bool   `yaml:"base"`
	Hidden       bool   `yaml:"hidden"`
	Cache        bool   `yaml:"cache"`
}

// DefaultLayersConfig renders a smooth ellipsoid without imagery.
func DefaultLayersConfig() LayersConfig {
	return LayersConfig{
		Terrain: TerrainConfig{Type: TerrainTypeEllipsoid},
	}
}

// LoadLayersConfig reads a YAML layers file.
func LoadLayersConfig(path string) (LayersConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return LayersConfig{}, errors.New("reading layers file failed").
			WithTag("path", path).
			Wrap(err)
	}

	conf := DefaultLayersConfig()
	if err := yaml.Unmarshal(b, &conf); err != nil {
		return LayersConfig{}, errors.New("parsing layers file failed").
			WithTag("path", path).
			Wrap(err)
	}

	if err := conf.Validate(); err != nil {
		return LayersConfig{}, errors.New("invalid layers file").
			WithTag("path", path).
			Wrap(err)
	}
	return conf, nil
}

func (c LayersConfig) Validate() error {
	switch c.Terrain.Type {
	case "", TerrainTypeEllipsoid:
	case TerrainTypeQuantizedMesh:
		if c.Terrain.URL == "" {
			return errors.New("quantized-mesh terrain requires an url")
		}
	default:
		return errors.New("unknown terrain type").WithTag("type", c.Terrain.Type)
	}

	for i, l := range c.Imagery {
		if l.URL == "" {
			return errors.New("imagery layer requires an url").WithTag("index", i)
		}
		if _, err := ParseScheme(l.Scheme); err != nil {
			return errors.New("invalid imagery layer").WithTag("name", l.Name).Wrap(err)
		}
		if l.MaximumLevel != 0 && l.MaximumLevel < l.MinimumLevel {
			return errors.New("imagery maximum level below minimum level").WithTag("name", l.Name)
		}
	}
	return nil
}

// ParseScheme returns the tiling scheme with the given name. An empty name
// is web mercator, the scheme of most XYZ servers.
func ParseScheme(name string) (tiling.Scheme, error) {
	switch name {
	case "", "web_mercator", "webmercator":
		return tiling.NewWebMercatorScheme(), nil
	case "geographic":
		return tiling.NewGeographicScheme(), nil
	default:
		return nil, errors.New("unknown tiling scheme").WithTag("scheme", name)
	}
}

// NewTerrainProvider builds the configured terrain provider. Cache may be
// nil.
func (c TerrainConfig) NewTerrainProvider(client *http.Client, cache *Cache) TerrainProvider {
	var p TerrainProvider
	switch c.Type {
	case TerrainTypeQuantizedMesh:
		p = NewQuantizedMeshTerrainProvider(c.URL, client)
	default:
		return NewEllipsoidTerrainProvider(nil)
	}

	if c.Cache && cache != nil {
		p = &CachedTerrainProvider{
			TerrainProvider: p,
			Cache:           cache,
			Name:            c.URL,
		}
	}
	return p
}

// NewImageryProvider builds the configured imagery provider. Cache may be
// nil.
func (c ImageryConfig) NewImageryProvider(client *http.Client, cache *Cache) (ImageryProvider, error) {
	scheme, err := ParseScheme(c.Scheme)
	if err != nil {
		return nil, err
	}

	var p ImageryProvider = NewURLTemplateImageryProvider(URLTemplateOptions{
		URL:          c.URL,
		Client:       client,
		Scheme:       scheme,
		TileWidth:    c.TileWidth,
		TileHeight:   c.TileHeight,
		MinimumLevel: c.MinimumLevel,
		MaximumLevel: c.MaximumLevel,
	})

	if c.Cache && cache != nil {
		name := c.Name
		if name == "" {
			name = c.URL
		}
		p = &CachedImageryProvider{
			ImageryProvider: p,
			Cache:           cache,
			Name:            name,
		}
	}
	return p, nil
}
