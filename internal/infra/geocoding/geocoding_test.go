package geocoding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/app/apptest"
	"carshare/internal/app/policies"
)

func TestNominatim(t *testing.T) {
	var gotQuery, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAgent = r.Header.Get("User-Agent")
		switch gotQuery {
		case "nowhere":
			_, _ = w.Write([]byte(`[]`))
		case "broken":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`[{"lat":"45.5152","lon":"-122.6784","display_name":"Portland"}]`))
		}
	}))
	defer srv.Close()
	g := NewNominatim(srv.URL+"/", "carshare-test")

	coords, err := g.Geocode(context.Background(), "1 Main St, Portland")
	require.NoError(t, err)
	assert.Equal(t, policies.Coordinates{Lat: 45.5152, Lon: -122.6784}, coords)
	assert.Equal(t, "1 Main St, Portland", gotQuery)
	assert.Equal(t, "carshare-test", gotAgent)

	_, err = g.Geocode(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = g.Geocode(context.Background(), "broken")
	assert.ErrorContains(t, err, "status 429")

	_, err = g.Geocode(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNoMatch)
}

type mapCache struct {
	items   map[string]string
	readErr error
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	if c.readErr != nil {
		return "", false, c.readErr
	}
	v, ok := c.items[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.items[key] = value
	return nil
}

func TestCachedGeocoder(t *testing.T) {
	next := &apptest.Geocoder{Coords: policies.Coordinates{Lat: 52.52, Lon: 13.405}}
	cache := &mapCache{items: map[string]string{}}
	g := CachedGeocoder{Next: next, Cache: cache, TTL: time.Hour}
	ctx := context.Background()

	for _, addr := range []string{"Unter den Linden 1, Berlin", "unter  den linden 1,   BERLIN"} {
		coords, err := g.Geocode(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, 52.52, coords.Lat)
	}
	assert.Len(t, next.Queries, 1)
	assert.Equal(t, "52.52,13.405", cache.items["geocode:unter den linden 1, berlin"])

	t.Run("cache outage falls through", func(t *testing.T) {
		cache.readErr = errors.New("connection refused")
		_, err := g.Geocode(ctx, "Unter den Linden 1, Berlin")
		require.NoError(t, err)
		assert.Len(t, next.Queries, 2)
	})

	t.Run("lookup errors are not cached", func(t *testing.T) {
		cache.readErr = nil
		failing := CachedGeocoder{Next: &apptest.Geocoder{Err: ErrNoMatch}, Cache: cache}
		_, err := failing.Geocode(ctx, "atlantis")
		assert.ErrorIs(t, err, ErrNoMatch)
		assert.NotContains(t, cache.items, "geocode:atlantis")
	})
}
