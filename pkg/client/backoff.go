package client

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes retry wait durations. The base wait doubles
// with every attempt until it reaches MaxWait; rate-limit failures get
// twice the base wait of server failures for the same attempt, since a
// throttling upstream needs a proportionally longer cooldown.
type BackoffPolicy struct {
	// InitialWait is the base wait for the first retry.
	InitialWait time.Duration

	// MaxWait caps the pre-jitter base wait.
	MaxWait time.Duration

	// jitter returns a draw in [0, 1). Defaults to rand.Float64.
	jitter func() float64
}

// DefaultBackoffPolicy returns the backoff used when none is configured.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialWait: 1 * time.Second,
		MaxWait:     30 * time.Second,
	}
}

// Wait returns the duration to sleep before retrying the given attempt
// (1-based). A random jitter in [0, base) is added so concurrent callers
// retrying the same attempt do not wake simultaneously.
func (p BackoffPolicy) Wait(attempt int, class ErrorClass) time.Duration {
	base := p.base(attempt, class)

	draw := rand.Float64
	if p.jitter != nil {
		draw = p.jitter
	}

	return base + time.Duration(draw()*float64(base))
}

// base returns the pre-jitter wait. The MaxWait cap applies before the
// rate-limit multiplier so rate-limit waits strictly dominate server
// waits at every attempt. A non-positive MaxWait means uncapped, so a
// policy with only InitialWait set still backs off.
func (p BackoffPolicy) base(attempt int, class ErrorClass) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := p.InitialWait
	for i := 1; i < attempt; i++ {
		base *= 2
		if p.MaxWait > 0 && base >= p.MaxWait {
			base = p.MaxWait
			break
		}
	}
	if p.MaxWait > 0 && base > p.MaxWait {
		base = p.MaxWait
	}

	if class == ErrorClassRateLimit {
		base *= 2
	}

	return base
}
