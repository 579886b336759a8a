package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/globe/tiling"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Cache is a persistent tile payload store. Values are CBOR encoded with
// core deterministic encoding and zstd compressed.
type Cache struct {
	// How long entries live. Zero keeps them forever.
	TTL time.Duration

	db      *badger.DB
	encMode cbor.EncMode
	decMode cbor.DecMode
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// OpenCache opens the cache stored in dir. An empty dir opens an in-memory
// cache.
func OpenCache(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.New("opening tile cache failed").
			WithTag("dir", dir).
			Wrap(err)
	}

	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		db.Close()
		return nil, errors.New("creating cbor encoder failed").Wrap(err)
	}

	decMode, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		db.Close()
		return nil, errors.New("creating cbor decoder failed").Wrap(err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, errors.New("creating zstd encoder failed").Wrap(err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, errors.New("creating zstd decoder failed").Wrap(err)
	}

	return &Cache{
		db:      db,
		encMode: encMode,
		decMode: decMode,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

func (c *Cache) Close() error {
	c.decoder.Close()
	c.encoder.Close()
	return c.db.Close()
}

// Get decodes the value stored under key into v. It returns false when the
// key is missing.
func (c *Cache) Get(key string, v any) (bool, error) {
	var compressed []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		compressed, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.New("reading tile cache failed").
			WithTag("key", key).
			Wrap(err)
	}

	raw, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return false, errors.New("decompressing cached tile failed").
			WithTag("key", key).
			Wrap(err)
	}

	if err := c.decMode.Unmarshal(raw, v); err != nil {
		return false, errors.New("decoding cached tile failed").
			WithTag("key", key).
			Wrap(err)
	}
	return true, nil
}

// Set encodes and stores v under key.
func (c *Cache) Set(key string, v any) error {
	raw, err := c.encMode.Marshal(v)
	if err != nil {
		return errors.New("encoding tile failed").
			WithTag("key", key).
			Wrap(err)
	}
	compressed := c.encoder.EncodeAll(raw, nil)

	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), compressed)
		if c.TTL > 0 {
			e = e.WithTTL(c.TTL)
		}
		return txn.SetEntry(e)
	})
}

// CachedTerrainProvider serves terrain tiles from a Cache, falling back to
// the wrapped provider on misses.
type CachedTerrainProvider struct {
	TerrainProvider

	Cache *Cache

	// Distinguishes tilesets sharing the same cache.
	Name string
}

func (p *CachedTerrainProvider) Ready() bool {
	return IsReady(p.TerrainProvider)
}

func (p *CachedTerrainProvider) Load(ctx context.Context) error {
	if l, ok := p.TerrainProvider.(Loader); ok {
		return l.Load(ctx)
	}
	return nil
}

func (p *CachedTerrainProvider) RequestTileGeometry(ctx context.Context, k tiling.Key) (*HeightField, error) {
	key := cacheKey("terrain", p.Name, k)

	var hf HeightField
	ok, err := p.Cache.Get(key, &hf)
	if err != nil {
		logs.WithTag("key", key).Warn(err)
	}
	if ok && hf.Validate() == nil {
		instrumentCacheLookup("terrain", true)
		return &hf, nil
	}
	instrumentCacheLookup("terrain", false)

	res, err := p.TerrainProvider.RequestTileGeometry(ctx, k)
	if err != nil {
		return nil, err
	}

	if err := p.Cache.Set(key, res); err != nil {
		logs.WithTag("key", key).Warn(err)
	}
	return res, nil
}

// CachedImageryProvider serves image tiles from a Cache, falling back to
// the wrapped provider on misses.
type CachedImageryProvider struct {
	ImageryProvider

	Cache *Cache
	Name  string
}

func (p *CachedImageryProvider) Ready() bool {
	return IsReady(p.ImageryProvider)
}

func (p *CachedImageryProvider) RequestImage(ctx context.Context, k tiling.Key) (*ImagePayload, error) {
	key := cacheKey("imagery", p.Name, k)

	var img ImagePayload
	ok, err := p.Cache.Get(key, &img)
	if err != nil {
		logs.WithTag("key", key).Warn(err)
	}
	if ok && len(img.Pixels) == img.Width*img.Height*4 {
		instrumentCacheLookup("imagery", true)
		return &img, nil
	}
	instrumentCacheLookup("imagery", false)

	res, err := p.ImageryProvider.RequestImage(ctx, k)
	if err != nil {
		return nil, err
	}

	if err := p.Cache.Set(key, res); err != nil {
		logs.WithTag("key", key).Warn(err)
	}
	return res, nil
}

func cacheKey(kind, name string, k tiling.Key) string {
	return fmt.Sprintf("%s/%s/%d/%d/%d", kind, name, k.Level, k.X, k.Y)
}
