package model

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = sqlx.ErrNotFound

// cacheHelper wraps the optional Redis-backed cache shared by the models.
// A nil cache disables caching entirely, which keeps tests simple.
type cacheHelper struct {
	cache gocache.Cache
}

func (h cacheHelper) get(ctx context.Context, key string, v interface{}) bool {
	if h.cache == nil {
		return false
	}
	if err := h.cache.GetCtx(ctx, key, v); err != nil {
		if !h.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("get cache %s: %v", key, err)
		}
		return false
	}
	return true
}

func (h cacheHelper) set(ctx context.Context, key string, ttl time.Duration, v interface{}) {
	if h.cache == nil || ttl <= 0 {
		return
	}
	if err := h.cache.SetWithExpireCtx(ctx, key, v, ttl); err != nil {
		logx.WithContext(ctx).Errorf("set cache %s: %v", key, err)
	}
}

func (h cacheHelper) del(ctx context.Context, keys ...string) {
	if h.cache == nil || len(keys) == 0 {
		return
	}
	if err := h.cache.DelCtx(ctx, keys...); err != nil {
		logx.WithContext(ctx).Errorf("del cache %v: %v", keys, err)
	}
}
