package providers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	kindLabel   = "kind"
	resultLabel = "result"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_tile_cache_lookups",
		Help: "The number of tile cache lookups.",
	}, []string{
		kindLabel,
		resultLabel,
	})
)

func instrumentCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	cacheLookups.
		With(prometheus.Labels{
			kindLabel:   kind,
			resultLabel: result,
		}).
		Inc()
}
