package routetable

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const defaultSuppressWindow = 5 * time.Second

// rateLimiter suppresses repeats of the same diagnostic within a time
// window. Kernel notifications arrive in bursts, and a noisy peer must
// not be able to flood the log through the rejection paths.
type rateLimiter struct {
	seen *ttlcache.Cache[string, struct{}]
}

func newRateLimiter(window time.Duration) *rateLimiter {
	return &rateLimiter{
		seen: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](window),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

// allow reports whether msg may be logged now, and if so starts a new
// suppression window for it.
func (r *rateLimiter) allow(msg string) bool {
	if r.seen.Get(msg) != nil {
		return false
	}
	r.seen.Set(msg, struct{}{}, ttlcache.DefaultTTL)
	return true
}
