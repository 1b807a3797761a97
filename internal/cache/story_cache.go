package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"bedtime-server/internal/interfaces"
	"bedtime-server/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DefaultTTL - время жизни кэшированной истории.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "story:"

var cacheOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bedtime_story_cache_operations_total",
		Help: "Story cache operations by result (hit, miss, error, stored).",
	},
	[]string{"operation", "result"},
)

// DeriveKey строит ключ кэша из имени, интересов, темы и пола.
// Интересы сортируются на копии, поэтому порядок не влияет на ключ.
// Остальные поля StoryInput (mood, readingLevel, favoriteCharacters) в ключ не входят.
func DeriveKey(input models.StoryInput) string {
	interests := append([]string(nil), input.Interests...)
	sort.Strings(interests)

	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteString(input.ChildName)
	b.WriteByte(':')
	b.WriteString(strings.Join(interests, ","))
	b.WriteByte(':')
	b.WriteString(input.Theme)
	b.WriteByte(':')
	b.WriteString(string(input.Gender))
	return b.String()
}

// StoryCache хранит сырые ответы провайдера по ключу DeriveKey.
// Ошибки хранилища не пробрасываются: кэш - только оптимизация.
type StoryCache struct {
	store  interfaces.KeyValueStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewStoryCache создает кэш. ttl <= 0 означает DefaultTTL.
func NewStoryCache(store interfaces.KeyValueStore, ttl time.Duration, logger *zap.Logger) *StoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoryCache{
		store:  store,
		ttl:    ttl,
		logger: logger.Named("StoryCache"),
	}
}

// Lookup возвращает сырой текст истории. Ошибка хранилища считается промахом.
func (c *StoryCache) Lookup(ctx context.Context, key string) (string, bool) {
	if c == nil || c.store == nil {
		return "", false
	}
	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil && raw != "":
		cacheOperations.WithLabelValues("lookup", "hit").Inc()
		c.logger.Debug("Story cache hit", zap.String("key", key))
		return raw, true
	case err == nil, errors.Is(err, models.ErrNotFound):
		cacheOperations.WithLabelValues("lookup", "miss").Inc()
		c.logger.Debug("Story cache miss", zap.String("key", key))
		return "", false
	default:
		cacheOperations.WithLabelValues("lookup", "error").Inc()
		c.logger.Warn("Story cache lookup failed, continuing without cache", zap.String("key", key), zap.Error(err))
		return "", false
	}
}

// Store сохраняет сырой текст с TTL. Ошибка логируется и проглатывается.
func (c *StoryCache) Store(ctx context.Context, key, raw string) {
	if c == nil || c.store == nil || raw == "" {
		return
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		cacheOperations.WithLabelValues("store", "error").Inc()
		c.logger.Warn("Failed to cache story", zap.String("key", key), zap.Error(err))
		return
	}
	cacheOperations.WithLabelValues("store", "stored").Inc()
	c.logger.Debug("Story cached", zap.String("key", key), zap.Duration("ttl", c.ttl))
}

// TTL возвращает время жизни записей.
func (c *StoryCache) TTL() time.Duration {
	return c.ttl
}
