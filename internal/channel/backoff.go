package channel

import (
	"math/rand/v2"
	"time"
)

// backoff returns the delay before retry attempt n (n >= 1): attempt²
// units plus up to 50% jitter, capped at ceiling.
func backoff(attempt int, unit, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		return 0
	}
	base := time.Duration(attempt*attempt) * unit
	if base <= 0 || base > ceiling {
		base = ceiling
	}
	jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
	d := base + jitter
	if d > ceiling {
		d = ceiling
	}
	return d
}
