package poller

import "time"

// backoff returns base * 2^failures, capped at ceiling.
func backoff(base, ceiling time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return base
	}
	// 2^30 periods exceed any sensible cap.
	if failures > 30 {
		return ceiling
	}
	d := base * time.Duration(1<<failures)
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}
