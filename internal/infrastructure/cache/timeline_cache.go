package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/metrics"
)

// TimelineCache is a read-through cache for merged timelines and insight
// summaries. Entries expire by TTL; the loader never invalidates, so the
// TTLs bound how stale a served timeline can be.
type TimelineCache struct {
	cache       Cache
	logger      *zap.Logger
	registry    *metrics.Registry
	timelineTTL time.Duration
	insightTTL  time.Duration
}

// NewTimelineCache creates a timeline cache on top of a generic Cache.
// A nil registry disables hit-rate accounting.
func NewTimelineCache(c Cache, registry *metrics.Registry, logger *zap.Logger, timelineTTL, insightTTL time.Duration) *TimelineCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = metrics.NewNopRegistry()
	}
	if timelineTTL <= 0 {
		timelineTTL = DefaultTimelineTTL
	}
	if insightTTL <= 0 {
		insightTTL = DefaultInsightTTL
	}
	return &TimelineCache{
		cache:       c,
		logger:      logger,
		registry:    registry,
		timelineTTL: timelineTTL,
		insightTTL:  insightTTL,
	}
}

// Variant fingerprints a query-parameter string into a short stable key
// segment so each filter combination caches independently.
func Variant(params string) string {
	if params == "" {
		return "all"
	}
	sum := sha256.Sum256([]byte(params))
	return hex.EncodeToString(sum[:8])
}

// TimelineKey builds the cache key for one scenario timeline variant.
func TimelineKey(scenarioID, variant string) string {
	return TimelinePrefix + scenarioID + ":" + variant
}

// InsightKey builds the cache key for one insight summary variant.
func InsightKey(name, variant string) string {
	return InsightPrefix + name + ":" + variant
}

// JourneyKey builds the cache key for one user journey variant.
func JourneyKey(userID, variant string) string {
	return JourneyPrefix + userID + ":" + variant
}

// GetTimeline returns a cached merged timeline, or nil and false on a miss.
// Cache errors degrade to a miss so the caller falls through to the store.
func (tc *TimelineCache) GetTimeline(ctx context.Context, scenarioID, variant string) ([]*audit.Event, bool) {
	key := TimelineKey(scenarioID, variant)

	var events []*audit.Event
	if err := tc.cache.GetJSON(ctx, key, &events); err != nil {
		if _, ok := err.(ErrCacheKeyNotFound); !ok {
			tc.logger.Warn("timeline cache read failed", zap.String("key", key), zap.Error(err))
		}
		tc.registry.RecordCacheLookup(false)
		return nil, false
	}

	tc.registry.RecordCacheLookup(true)
	return events, true
}

// SetTimeline stores a merged timeline. Failures are logged and swallowed;
// serving the response matters more than caching it.
func (tc *TimelineCache) SetTimeline(ctx context.Context, scenarioID, variant string, events []*audit.Event) {
	key := TimelineKey(scenarioID, variant)
	if err := tc.cache.SetJSON(ctx, key, events, tc.timelineTTL); err != nil {
		tc.logger.Warn("timeline cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// GetInsight loads a cached insight summary into dest, reporting whether it hit.
func (tc *TimelineCache) GetInsight(ctx context.Context, name, variant string, dest interface{}) bool {
	key := InsightKey(name, variant)

	if err := tc.cache.GetJSON(ctx, key, dest); err != nil {
		if _, ok := err.(ErrCacheKeyNotFound); !ok {
			tc.logger.Warn("insight cache read failed", zap.String("key", key), zap.Error(err))
		}
		tc.registry.RecordCacheLookup(false)
		return false
	}

	tc.registry.RecordCacheLookup(true)
	return true
}

// SetInsight stores an insight summary under the shorter insight TTL.
func (tc *TimelineCache) SetInsight(ctx context.Context, name, variant string, value interface{}) {
	key := InsightKey(name, variant)
	if err := tc.cache.SetJSON(ctx, key, value, tc.insightTTL); err != nil {
		tc.logger.Warn("insight cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// GetJourney loads a cached user journey into dest, reporting whether it hit.
func (tc *TimelineCache) GetJourney(ctx context.Context, userID, variant string, dest interface{}) bool {
	key := JourneyKey(userID, variant)

	if err := tc.cache.GetJSON(ctx, key, dest); err != nil {
		if _, ok := err.(ErrCacheKeyNotFound); !ok {
			tc.logger.Warn("journey cache read failed", zap.String("key", key), zap.Error(err))
		}
		tc.registry.RecordCacheLookup(false)
		return false
	}

	tc.registry.RecordCacheLookup(true)
	return true
}

// SetJourney stores a user journey under the insight TTL.
func (tc *TimelineCache) SetJourney(ctx context.Context, userID, variant string, value interface{}) {
	key := JourneyKey(userID, variant)
	if err := tc.cache.SetJSON(ctx, key, value, tc.insightTTL); err != nil {
		tc.logger.Warn("journey cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateTimeline drops the unfiltered timeline entry for a scenario.
// Filtered variants age out by TTL.
func (tc *TimelineCache) InvalidateTimeline(ctx context.Context, scenarioID string) {
	key := TimelineKey(scenarioID, "all")
	if err := tc.cache.Delete(ctx, key); err != nil {
		tc.logger.Warn("timeline cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}
