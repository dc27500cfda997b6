package utils

import (
	"sync"
	"time"
)

const stateKeyPrefix = "blog:oauth:state:"

var (
	stateStore   = map[string]time.Time{}
	stateStoreMu sync.Mutex
)

// SaveState stores an OAuth state token with TTL to mitigate CSRF.
func SaveState(state string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := redisCtx()
		defer cancel()
		if err := rc.Set(ctx, stateKeyPrefix+state, "1", ttl).Err(); err == nil {
			return
		}
	}
	stateStoreMu.Lock()
	stateStore[state] = time.Now().Add(ttl)
	stateStoreMu.Unlock()
}

// ConsumeState validates and removes a state token; each token is accepted once.
func ConsumeState(state string) bool {
	if state == "" {
		return false
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := redisCtx()
		defer cancel()
		if v, err := rc.GetDel(ctx, stateKeyPrefix+state).Result(); err == nil && v != "" {
			return true
		}
	}
	stateStoreMu.Lock()
	expiresAt, ok := stateStore[state]
	if ok {
		delete(stateStore, state)
	}
	stateStoreMu.Unlock()
	return ok && time.Now().Before(expiresAt)
}
