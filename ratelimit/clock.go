package ratelimit

import "time"

// Clock abstracts the passage of time so tests can drive a TokenBucket
// deterministically instead of depending on wall-clock sleeps.
type Clock interface {
	Now() time.Time
}

// realClock is the default Clock, backed by the monotonic system clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock is the Clock every TokenBucket uses unless a test overrides it.
var SystemClock Clock = realClock{}
