package utils

import (
	"sync"
	"time"
)

const blacklistKeyPrefix = "blog:jwt:blacklist:"

var (
	blacklist   = map[string]time.Time{}
	blacklistMu sync.RWMutex
)

// BlacklistToken revokes a token until its natural expiration to support logout.
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := redisCtx()
		defer cancel()
		err := rc.Set(ctx, blacklistKeyPrefix+token, "1", ttl).Err()
		if err == nil {
			return
		}
		Sugar.Warnf("token blacklist write failed, using memory: %v", err)
	}
	blacklistMu.Lock()
	pruneBlacklistLocked(time.Now())
	blacklist[token] = expiresAt
	blacklistMu.Unlock()
}

// IsTokenBlacklisted checks if a token was revoked before natural expiration.
func IsTokenBlacklisted(token string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := redisCtx()
		defer cancel()
		if n, err := rc.Exists(ctx, blacklistKeyPrefix+token).Result(); err == nil && n > 0 {
			return true
		}
	}
	blacklistMu.RLock()
	expiresAt, ok := blacklist[token]
	blacklistMu.RUnlock()
	return ok && time.Now().Before(expiresAt)
}

func pruneBlacklistLocked(now time.Time) {
	for token, expiresAt := range blacklist {
		if now.After(expiresAt) {
			delete(blacklist, token)
		}
	}
}
