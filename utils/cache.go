package utils

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cppla/blogsite/config"
)

// Cache key prefixes for the JSON read API.
const (
	CachePostListPrefix   = "blog:cache:posts:list:"
	CachePostDetailPrefix = "blog:cache:post:detail:"
	CacheTagListKey       = "blog:cache:tags"
)

// PostListCacheKey identifies one page of the public post list.
func PostListCacheKey(page, pageSize int) string {
	return fmt.Sprintf("%spage=%d:size=%d", CachePostListPrefix, page, pageSize)
}

// PostDetailCacheKey identifies the cached payload of a single post.
func PostDetailCacheKey(slug string) string {
	return CachePostDetailPrefix + slug
}

func cacheTTL() time.Duration {
	if s := config.Get().CacheTTLSec; s > 0 {
		return time.Duration(s) * time.Second
	}
	return time.Hour
}

// CacheGetBytes returns cached bytes for a key from Redis.
func CacheGetBytes(key string) ([]byte, bool) {
	rc := GetRedis()
	if rc == nil {
		return nil, false
	}
	ctx, cancel := redisCtx()
	defer cancel()
	b, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		Sugar.Debugf("cache get miss key=%s err=%v", key, err)
		return nil, false
	}
	return b, true
}

// CacheSetJSON marshals v and stores the JSON bytes with the configured TTL.
func CacheSetJSON(key string, v interface{}) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		Sugar.Warnf("cache marshal failed key=%s err=%v", key, err)
		return
	}
	ctx, cancel := redisCtx()
	defer cancel()
	if err := rc.Set(ctx, key, b, cacheTTL()).Err(); err != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// InvalidateByPrefix deletes keys that match the given prefix using SCAN.
func InvalidateByPrefix(prefix string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := redisCtx()
	defer cancel()
	var cursor uint64
	for i := 0; i < 10; i++ { // limit rounds to avoid long loops
		keys, cur, err := rc.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			Sugar.Warnf("cache scan failed prefix=%s err=%v", prefix, err)
			return
		}
		cursor = cur
		if len(keys) > 0 {
			pipe := rc.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			_, _ = pipe.Exec(ctx)
		}
		if cursor == 0 {
			return
		}
	}
}

// InvalidatePost drops cached list pages, the tag list and the detail payload of one post.
func InvalidatePost(slug string) {
	InvalidateByPrefix(CachePostListPrefix)
	InvalidateByPrefix(CacheTagListKey)
	if slug != "" {
		InvalidateByPrefix(PostDetailCacheKey(slug))
	}
}
