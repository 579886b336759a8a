package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/globe/jobs"
	"github.com/aukilabs/globe/providers"
	"github.com/aukilabs/globe/quadtree"
	"github.com/aukilabs/globe/tiling"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

// offlineTerrainProvider fails every tile request.
type offlineTerrainProvider struct {
	*providers.EllipsoidTerrainProvider
}

func (p offlineTerrainProvider) RequestTileGeometry(ctx context.Context, k tiling.Key) (*providers.HeightField, error) {
	return nil, errors.New("terrain server offline").WithType(providers.ErrTypeFetch)
}

func newEngine(terrain providers.TerrainProvider) func() (*quadtree.Engine, error) {
	return func() (*quadtree.Engine, error) {
		return quadtree.NewEngine(terrain, jobs.Inline{}, quadtree.DefaultOptions()), nil
	}
}

func postSmokeTest(t *testing.T, h http.HandlerFunc, req Request) *httptest.ResponseRecorder {
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://localglobe/smoke-test", bytes.NewReader(body)))
	return rec
}

func TestSmokeTest(t *testing.T) {
	t.Run("smoke test success", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		ctx = context.WithValue(ctx, testCtxKeyValue, testContext{
			Context: ctx,
			Cancel:  cancel,
		})

		var gotResult bool
		smokeTest := HandleSmokeTest(ctx, Options{
			NewEngine:     newEngine(providers.NewEllipsoidTerrainProvider(nil)),
			FrameDuration: time.Millisecond,
			SendResult: func(_ context.Context, res Result) error {
				require.Equal(t, StatusSuccess, res.Status)
				require.Empty(t, res.Error)
				require.GreaterOrEqual(t, res.Rendered, 1)
				require.NotZero(t, res.Frames)
				gotResult = true
				return nil
			},
		})

		rec := postSmokeTest(t, smokeTest, Request{
			Longitude: 12,
			Latitude:  41,
			Timeout:   time.Second,
		})
		require.Equal(t, http.StatusAccepted, rec.Code)

		<-ctx.Done()
		require.True(t, gotResult)
	})

	t.Run("smoke test failed - offline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		ctx = context.WithValue(ctx, testCtxKeyValue, testContext{
			Context: ctx,
			Cancel:  cancel,
		})

		terrain := offlineTerrainProvider{providers.NewEllipsoidTerrainProvider(nil)}

		var gotResult bool
		smokeTest := HandleSmokeTest(ctx, Options{
			NewEngine:     newEngine(terrain),
			FrameDuration: time.Millisecond,
			SendResult: func(_ context.Context, res Result) error {
				require.Equal(t, StatusFailed, res.Status)
				require.NotEmpty(t, res.Error)
				require.Zero(t, res.Rendered)
				require.Zero(t, res.LatencyMilliSec)
				gotResult = true
				return nil
			},
		})

		rec := postSmokeTest(t, smokeTest, Request{
			Timeout: 50 * time.Millisecond,
		})
		require.Equal(t, http.StatusAccepted, rec.Code)

		<-ctx.Done()
		require.True(t, gotResult)
	})

	t.Run("bad request", func(t *testing.T) {
		smokeTest := HandleSmokeTest(context.Background(), Options{})

		rec := httptest.NewRecorder()
		smokeTest.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://localglobe/smoke-test", bytes.NewReader([]byte("{"))))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRunPolarCamera(t *testing.T) {
	e, err := newEngine(providers.NewEllipsoidTerrainProvider(nil))()
	require.NoError(t, err)

	res, err := Run(context.Background(), e, Request{
		Latitude: 90,
		Timeout:  time.Second,
	}, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
}
