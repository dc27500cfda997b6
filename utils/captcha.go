package utils

import (
	"sync"
	"time"

	"github.com/mojocn/base64Captcha"
)

const captchaKeyPrefix = "blog:captcha:"

var (
	captchaStore     base64Captcha.Store
	captchaStoreOnce sync.Once
)

// redisCaptchaStore implements base64Captcha.Store backed by Redis so captchas survive
// across instances behind a load balancer.
type redisCaptchaStore struct {
	ttl time.Duration
}

func (s *redisCaptchaStore) Set(id string, value string) error {
	ctx, cancel := redisCtx()
	defer cancel()
	return GetRedis().Set(ctx, captchaKeyPrefix+id, value, s.ttl).Err()
}

func (s *redisCaptchaStore) Get(id string, clear bool) string {
	ctx, cancel := redisCtx()
	defer cancel()
	key := captchaKeyPrefix + id
	if clear {
		v, _ := GetRedis().GetDel(ctx, key).Result()
		return v
	}
	v, _ := GetRedis().Get(ctx, key).Result()
	return v
}

func (s *redisCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}

func getCaptchaStore() base64Captcha.Store {
	captchaStoreOnce.Do(func() {
		if GetRedis() != nil {
			captchaStore = &redisCaptchaStore{ttl: 10 * time.Minute}
			return
		}
		captchaStore = base64Captcha.DefaultMemStore
	})
	return captchaStore
}

// GenerateCaptcha creates a digit captcha and returns (id, dataURI) for the form to display.
func GenerateCaptcha() (string, string, error) {
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	c := base64Captcha.NewCaptcha(driver, getCaptchaStore())
	id, b64, _, err := c.Generate()
	return id, b64, err
}

// VerifyCaptcha verifies the provided answer and consumes the captcha.
func VerifyCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return getCaptchaStore().Verify(id, answer, true)
}
