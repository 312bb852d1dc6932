package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eventstaff/internal/metrics"
	"eventstaff/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrCacheMiss ключа нет в кэше.
var ErrCacheMiss = errors.New("cache miss")

// Cache хранилище ответов маршрутизатора.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache адаптер go-redis к Cache.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedRouter кэширует успешные маршруты. Ошибки кэша не мешают запросу к маршрутизатору.
type CachedRouter struct {
	next    Router
	cache   Cache
	ttl     time.Duration
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewCachedRouter(next Router, cache Cache, ttl time.Duration, log logrus.FieldLogger, m *metrics.Metrics) *CachedRouter {
	return &CachedRouter{next: next, cache: cache, ttl: ttl, log: log, metrics: m}
}

// routeKey координаты округлены до ~1 м, чтобы одинаковые точки попадали в один ключ.
func routeKey(origin, destination models.Coordinates) string {
	return fmt.Sprintf("route:%.5f,%.5f:%.5f,%.5f", origin.Lat, origin.Lng, destination.Lat, destination.Lng)
}

func (c *CachedRouter) Route(ctx context.Context, origin, destination models.Coordinates) (Route, error) {
	key := routeKey(origin, destination)

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var r Route
		if jerr := json.Unmarshal(raw, &r); jerr == nil {
			c.metrics.RouteCache("hit")
			return r, nil
		}
		c.metrics.RouteCache("error")
	case errors.Is(err, ErrCacheMiss):
		c.metrics.RouteCache("miss")
	default:
		c.metrics.RouteCache("error")
		c.log.WithError(err).Debug("route cache get failed")
	}

	r, err := c.next.Route(ctx, origin, destination)
	if err != nil {
		return Route{}, err
	}
	if raw, err := json.Marshal(r); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.log.WithError(err).Debug("route cache set failed")
		}
	}
	return r, nil
}
