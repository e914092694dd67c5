package geocoding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"carshare/internal/app/policies"
)

const cachePrefix = "geocode:"

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	Client *redis.Client
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{Client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// CachedGeocoder memoizes lookups. Cache failures only cost a fresh lookup.
type CachedGeocoder struct {
	Next   policies.Geocoder
	Cache  Cache
	TTL    time.Duration
	Logger *slog.Logger
}

func (g CachedGeocoder) Geocode(ctx context.Context, address string) (policies.Coordinates, error) {
	key := cachePrefix + strings.ToLower(strings.Join(strings.Fields(address), " "))
	if raw, ok, err := g.Cache.Get(ctx, key); err != nil {
		g.warn("geocode cache read failed", err)
	} else if ok {
		if coords, err := decodeCoordinates(raw); err == nil {
			return coords, nil
		}
	}
	coords, err := g.Next.Geocode(ctx, address)
	if err != nil {
		return coords, err
	}
	if err := g.Cache.Set(ctx, key, encodeCoordinates(coords), g.TTL); err != nil {
		g.warn("geocode cache write failed", err)
	}
	return coords, nil
}

func (g CachedGeocoder) warn(msg string, err error) {
	if g.Logger != nil {
		g.Logger.Warn(msg, "error", err)
	}
}

func encodeCoordinates(c policies.Coordinates) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

func decodeCoordinates(raw string) (policies.Coordinates, error) {
	latRaw, lonRaw, ok := strings.Cut(raw, ",")
	if !ok {
		return policies.Coordinates{}, fmt.Errorf("geocoding: bad cache entry %q", raw)
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return policies.Coordinates{}, err
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return policies.Coordinates{}, err
	}
	return policies.Coordinates{Lat: lat, Lon: lon}, nil
}

var _ Cache = (*RedisCache)(nil)
var _ policies.Geocoder = CachedGeocoder{}
