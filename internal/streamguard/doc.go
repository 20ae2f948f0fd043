// Package streamguard wraps HTTP bodies to detect streams that stall or
// fall below a minimum throughput.
//
// Each guarded body reads the underlying body from a pump goroutine so a
// blocked read can be timed out. The goroutine exits as soon as the
// underlying read returns an error or the body is closed.
package streamguard
