package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/globe/featureflag"
	globehttp "github.com/aukilabs/globe/http"
	"github.com/aukilabs/globe/jobs"
	"github.com/aukilabs/globe/providers"
	"github.com/aukilabs/globe/quadtree"
	"github.com/aukilabs/globe/render"
	"github.com/aukilabs/globe/smoketest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The globe version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "globe_info",
		Help:        "Globe information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr                  string        `cli:""        env:"GLOBE_ADDR"                    help:"Listening address for frame stream clients."`
	AdminAddr             string        `cli:""        env:"GLOBE_ADMIN_ADDR"              help:"Admin listening address."`
	LogLevel              string        `cli:""        env:"GLOBE_LOG_LEVEL"               help:"Log level (debug|info|warning|error)."`
	LogIndent             bool          `cli:""        env:"GLOBE_LOG_INDENT"              help:"Indent logs."`
	LayersFile            string        `cli:""        env:"GLOBE_LAYERS_FILE"             help:"The YAML file describing the terrain and imagery layers."`
	CacheDir              string        `cli:""        env:"GLOBE_CACHE_DIR"               help:"The directory where tile payloads are cached. Empty keeps them in memory."`
	CacheTTL              time.Duration `cli:",hidden" env:"GLOBE_CACHE_TTL"               help:"How long cached tile payloads live. Zero keeps them forever."`
	FrameDuration         time.Duration `cli:",hidden" env:"GLOBE_FRAME_DURATION"          help:"The duration of a frame."`
	LogSummaryInterval    time.Duration `cli:",hidden" env:"GLOBE_LOG_SUMMARY_INTERVAL"    help:"The duration between each frame log summary."`
	ClientIdleTimeout     time.Duration `cli:",hidden" env:"GLOBE_CLIENT_IDLE_TIMEOUT"     help:"Time until an idle frame stream client is disconnected."`
	ProviderRetryInterval time.Duration `cli:",hidden" env:"GLOBE_PROVIDER_RETRY_INTERVAL" help:"The duration between each try to load provider metadata."`
	RequestTimeout        time.Duration `cli:",hidden" env:"GLOBE_REQUEST_TIMEOUT"         help:"The timeout of tile HTTP requests."`
	Workers               int           `cli:",hidden" env:"GLOBE_WORKERS"                 help:"The number of goroutines fetching and processing tiles."`
	JobQueueSize          int           `cli:",hidden" env:"GLOBE_JOB_QUEUE_SIZE"          help:"The number of tile jobs waiting for a worker."`
	Engine                engineConfig  `cli:",hidden" env:"-"                             help:"Tile selection configuration."`
	Camera                cameraConfig  `cli:",hidden" env:"-"                             help:"Default camera configuration."`
	FeatureFlags          []string      `cli:",hidden" env:"GLOBE_FEATURE_FLAGS"           help:"Comma separated feature flags"`
	Version               bool          `cli:""        env:"-"                             help:"Show version."`
	Help                  bool          `cli:""        env:"-"                             help:"Show help."`
}

type engineConfig struct {
	MaximumScreenSpaceError   float64 `cli:",hidden" env:"GLOBE_MAXIMUM_SCREEN_SPACE_ERROR"   help:"The screen space error, in pixels, above which a tile is refined."`
	TileCacheSize             int     `cli:",hidden" env:"GLOBE_TILE_CACHE_SIZE"              help:"The number of tiles kept loaded beyond the ones of the current frame."`
	MaximumLevel              int     `cli:",hidden" env:"GLOBE_MAXIMUM_LEVEL"                help:"The deepest tile level selected."`
	LoadingDescendantLimit    int     `cli:",hidden" env:"GLOBE_LOADING_DESCENDANT_LIMIT"     help:"The loading descendants above which their ancestor is loaded first."`
	MaximumRequestsPerFrame   int     `cli:",hidden" env:"GLOBE_MAXIMUM_REQUESTS_PER_FRAME"   help:"The tile fetches started per frame. Zero means no limit."`
	MaximumConcurrentRequests int     `cli:",hidden" env:"GLOBE_MAXIMUM_CONCURRENT_REQUESTS"  help:"The tile fetches in flight. Zero means no limit."`
	RetryDelayFrames          int     `cli:",hidden" env:"GLOBE_RETRY_DELAY_FRAMES"           help:"The frames before the first retry of a failed fetch."`
	MaximumRetries            int     `cli:",hidden" env:"GLOBE_MAXIMUM_RETRIES"              help:"The retries of a failed root or imagery tile."`
}

type cameraConfig struct {
	Longitude   float64       `cli:",hidden" env:"GLOBE_CAMERA_LONGITUDE"    help:"The longitude, in degrees, under the default camera."`
	Latitude    float64       `cli:",hidden" env:"GLOBE_CAMERA_LATITUDE"     help:"The latitude, in degrees, under the default camera."`
	Height      float64       `cli:",hidden" env:"GLOBE_CAMERA_HEIGHT"       help:"The height, in meters, of the default camera."`
	OrbitPeriod time.Duration `cli:",hidden" env:"GLOBE_CAMERA_ORBIT_PERIOD" help:"The time the default camera takes to circle the globe. Zero keeps it still."`
}

func defaultConfig() config {
	opts := quadtree.DefaultOptions()

	return config{
		Addr:                  ":4000",
		AdminAddr:             ":18190",
		LogLevel:              logs.InfoLevel.String(),
		FrameDuration:         time.Millisecond * 16,
		LogSummaryInterval:    time.Minute,
		ClientIdleTimeout:     time.Minute * 5,
		ProviderRetryInterval: time.Second * 5,
		RequestTimeout:        time.Second * 30,
		Workers:               runtime.NumCPU(),
		JobQueueSize:          256,
		Engine: engineConfig{
			MaximumScreenSpaceError:   opts.MaximumScreenSpaceError,
			TileCacheSize:             opts.TileCacheSize,
			MaximumLevel:              int(opts.MaximumLevel),
			LoadingDescendantLimit:    opts.LoadingDescendantLimit,
			MaximumRequestsPerFrame:   opts.MaximumRequestsPerFrame,
			MaximumConcurrentRequests: opts.MaximumConcurrentRequests,
			RetryDelayFrames:          opts.RetryDelayFrames,
			MaximumRetries:            opts.MaximumRetries,
		},
		Camera: cameraConfig{
			Height:      2e7,
			OrbitPeriod: time.Minute * 10,
		},
	}
}

func main() {
	conf := defaultConfig()

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the globe server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	flags := featureflag.New(conf.FeatureFlags)

	layers := providers.DefaultLayersConfig()
	if conf.LayersFile != "" {
		var err error
		if layers, err = providers.LoadLayersConfig(conf.LayersFile); err != nil {
			logs.Fatal(err)
		}
	}

	var cache *providers.Cache
	flags.IfNotSet(featureflag.FlagDisableTileCache, func() {
		var err error
		if cache, err = providers.OpenCache(conf.CacheDir); err != nil {
			logs.Fatal(err)
		}
		cache.TTL = conf.CacheTTL
	})
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				logs.Warn(err)
			}
		}()
	}

	client := &http.Client{
		Transport: metrics.HTTPTransport(http.DefaultTransport),
		Timeout:   conf.RequestTimeout,
	}

	terrain := layers.Terrain.NewTerrainProvider(client, cache)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := providers.Load(ctx, terrain, conf.ProviderRetryInterval); err != nil && err != context.Canceled {
			logs.Error(errors.New("loading terrain provider failed").Wrap(err))
		}
	}()

	pool := jobs.NewPool(ctx, "tiles", conf.Workers, conf.JobQueueSize)
	defer pool.Close()

	opts := engineOptions(conf, flags)
	engine := quadtree.NewEngine(terrain, pool, opts)

	for _, l := range layers.Imagery {
		p, err := l.NewImageryProvider(client, cache)
		if err != nil {
			logs.Fatal(err)
		}

		layer := quadtree.NewLayer(l.Name, p, l.Base)
		layer.Hidden = l.Hidden
		engine.AddLayer(layer)
	}

	camera := newOrbitCamera(conf.Camera)

	stream := render.NewStream()
	stream.IdleTimeout = conf.ClientIdleTimeout
	flags.IfNotSet(featureflag.FlagDisableClientCamera, func() {
		stream.OnCamera = camera.Set
	})

	var streamConsumer render.Consumer = stream
	streamConsumer = render.ConsumerWithLogs(streamConsumer, "frame_stream", conf.LogSummaryInterval)
	streamConsumer = render.ConsumerWithMetrics(streamConsumer, "frame_stream")
	defer render.Attach(engine, streamConsumer)()

	latest := &render.LatestFrame{}
	defer render.Attach(engine, latest)()

	readinessCheck := engine.Ready
	stats := func() (any, bool) {
		f, ok := latest.Get()
		return f.Stats, ok
	}

	var service http.ServeMux
	service.Handle("/frames", globehttp.HandleWithCORS(stream.Server(ctx)))
	service.Handle("/health", globehttp.HandleWithCORS(http.HandlerFunc(globehttp.HandleHealthCheck)))
	service.Handle("/version", globehttp.HandleWithCORS(globehttp.HandleVersion(version)))
	service.Handle("/ready", globehttp.HandleWithCORS(globehttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/stats", globehttp.HandleWithCORS(globehttp.HandleJSON(stats)))
	service.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		NewEngine: func() (*quadtree.Engine, error) {
			if !providers.IsReady(terrain) {
				return nil, errors.New("terrain provider is not ready")
			}
			return quadtree.NewEngine(terrain, pool, opts), nil
		},
		FrameDuration: conf.FrameDuration,
		SendResult: func(_ context.Context, res smoketest.Result) error {
			logs.WithTag("status", res.Status).
				WithTag("frames", res.Frames).
				WithTag("rendered", res.Rendered).
				WithTag("max_depth", res.MaxDepth).
				WithTag("latency_ms", res.LatencyMilliSec).
				Info("smoke test finished")
			return nil
		},
	}))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", globehttp.HandleHealthCheck)
	admin.HandleFunc("/version", globehttp.HandleVersion(version))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", globehttp.HandleReadyCheck(readinessCheck))

	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx, conf.FrameDuration, camera.Camera)
	}()

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("terrain", layers.Terrain.Type).
		WithTag("imagery_layers", len(layers.Imagery)).
		WithTag("feature_flags", flags.Strings()).
		Info("starting globe server")

	if err := globehttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			globehttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	); err != nil {
		logs.Error(err)
	}

	cancel()
	stream.Close()
	wg.Wait()
}

func engineOptions(conf config, flags featureflag.FeatureFlag) quadtree.Options {
	opts := quadtree.DefaultOptions()
	opts.MaximumScreenSpaceError = conf.Engine.MaximumScreenSpaceError
	opts.TileCacheSize = conf.Engine.TileCacheSize
	opts.MaximumLevel = uint32(conf.Engine.MaximumLevel)
	opts.LoadingDescendantLimit = conf.Engine.LoadingDescendantLimit
	opts.MaximumRequestsPerFrame = conf.Engine.MaximumRequestsPerFrame
	opts.MaximumConcurrentRequests = conf.Engine.MaximumConcurrentRequests
	opts.RetryDelayFrames = conf.Engine.RetryDelayFrames
	opts.MaximumRetries = conf.Engine.MaximumRetries

	flags.IfSet(featureflag.FlagPreloadSiblings, func() {
		opts.PreloadSiblings = true
	})
	flags.IfSet(featureflag.FlagDisablePreloadAncestors, func() {
		opts.PreloadAncestors = false
	})
	return opts
}

func validateConfig(conf config) error {
	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.Engine.MaximumScreenSpaceError <= 0 {
		return errors.New("maximum screen space error must be positive").
			WithTag("maximum_screen_space_error", conf.Engine.MaximumScreenSpaceError)
	}

	if conf.Engine.MaximumLevel < 0 || conf.Engine.TileCacheSize < 0 {
		return errors.New("maximum level and tile cache size cannot be negative")
	}

	if conf.Camera.Height <= 0 {
		return errors.New("camera height must be positive").
			WithTag("height", conf.Camera.Height)
	}

	if conf.Camera.Latitude < -90 || conf.Camera.Latitude > 90 {
		return errors.New("camera latitude out of range").
			WithTag("latitude", conf.Camera.Latitude)
	}

	return nil
}
