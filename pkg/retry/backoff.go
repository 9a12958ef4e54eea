package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// exponential builds a jittered exponential backoff. A zero maxElapsed never
// stops on elapsed time, leaving MaxAttempts as the only bound.
func exponential(initial, maxInterval, maxElapsed time.Duration, multiplier float64) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if initial > 0 {
		exp.InitialInterval = initial
	}
	if maxInterval > 0 {
		exp.MaxInterval = maxInterval
	}
	exp.Multiplier = multiplier
	exp.MaxElapsedTime = maxElapsed
	exp.Reset()
	return exp
}

// nominalDelay is the un-jittered wait after the given zero-based attempt,
// as reported to retry callbacks.
func nominalDelay(attempt int, initial time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	d := float64(initial) * math.Pow(multiplier, float64(attempt))
	if maxInterval > 0 && d > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(d)
}
