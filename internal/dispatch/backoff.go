package dispatch

import (
	"math"
	"time"
)

// MaxWait caps a single backoff wait.
const MaxWait = 24 * time.Hour

// ExpBackOff waits Base^n seconds before retry n (n starting at 1). It never
// stops by itself; wrap it with backoff.WithMaxRetries to bound attempts.
type ExpBackOff struct {
	Base float64
	n    int
}

// NextBackOff implements backoff.BackOff. Waits are capped at MaxWait.
func (b *ExpBackOff) NextBackOff() time.Duration {
	b.n++
	secs := math.Pow(b.Base, float64(b.n))
	if math.IsNaN(secs) || secs >= MaxWait.Seconds() {
		return MaxWait
	}
	return time.Duration(secs * float64(time.Second))
}

// Reset implements backoff.BackOff.
func (b *ExpBackOff) Reset() {
	b.n = 0
}

// TotalWait is the sleep time of a call that exhausts maxAttempts.
func TotalWait(base float64, maxAttempts int) time.Duration {
	var total time.Duration
	b := &ExpBackOff{Base: base}
	for n := 1; n < maxAttempts; n++ {
		total += b.NextBackOff()
	}
	return total
}
