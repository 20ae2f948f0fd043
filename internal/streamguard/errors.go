package streamguard

import (
	"fmt"
	"time"
)

// StalledStreamError is returned when a body delivers no data for the
// grace period.
type StalledStreamError struct {
	Grace time.Duration
}

// Error implements the error interface.
func (e *StalledStreamError) Error() string {
	return fmt.Sprintf("stalled stream: no data received for %s", e.Grace)
}

// ThroughputBelowMinimumError is returned when a body stays below the
// minimum throughput for longer than the grace period.
type ThroughputBelowMinimumError struct {
	Expected Throughput
	Actual   Throughput
}

// Error implements the error interface.
func (e *ThroughputBelowMinimumError) Error() string {
	return fmt.Sprintf("minimum throughput was specified at %s, but throughput of %s was observed",
		e.Expected, e.Actual)
}
