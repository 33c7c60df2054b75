package ratelimit

import "fmt"

// secondsPerUnit normalizes a configured flow-rate unit to tokens/second.
var secondsPerUnit = map[string]float64{
	"day":    86400,
	"hour":   3600,
	"minute": 60,
	"second": 1,
	"msec":   0.001,
}

// NormalizeFlowRate converts a "rate per unit" figure into tokens/second,
// the unit every TokenBucket operates in internally.
func NormalizeFlowRate(rate float64, unit string) (float64, error) {
	if unit == "" {
		unit = "second"
	}
	divisor, ok := secondsPerUnit[unit]
	if !ok {
		return 0, fmt.Errorf("ratelimit: unknown time unit %q (want day|hour|minute|second|msec)", unit)
	}
	return rate / divisor, nil
}
