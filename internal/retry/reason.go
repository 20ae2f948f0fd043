package retry

import (
	"fmt"
	"time"
)

// ErrorKind is the class of a retryable failure.
type ErrorKind int

// Error kinds.
const (
	// Transient covers connection failures, timeouts and 5xx responses.
	Transient ErrorKind = iota

	// Throttling means the service asked the client to slow down.
	Throttling

	// Server is a modeled server fault.
	Server

	// Client is a fault in the request itself. It is never retried.
	Client
)

// String returns the kind name used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Throttling:
		return "throttling"
	case Server:
		return "server"
	case Client:
		return "client"
	default:
		return "unknown"
	}
}

// Reason explains why an attempt may be retried. A nil *Reason means the
// outcome is not retryable.
type Reason struct {
	kind     ErrorKind
	delay    time.Duration
	explicit bool
}

// Explicit returns a reason carrying a server-provided delay.
func Explicit(delay time.Duration) *Reason {
	return &Reason{delay: delay, explicit: true}
}

// Error returns a reason for a failure of the given kind.
func Error(kind ErrorKind) *Reason {
	return &Reason{kind: kind}
}

// IsExplicit reports whether the reason carries its own delay.
func (r *Reason) IsExplicit() bool {
	return r != nil && r.explicit
}

// Delay returns the explicit delay. It is zero for error reasons.
func (r *Reason) Delay() time.Duration {
	if r == nil {
		return 0
	}
	return r.delay
}

// Kind returns the error kind. Explicit reasons report Transient.
func (r *Reason) Kind() ErrorKind {
	if r == nil {
		return Client
	}
	return r.kind
}

// Label is the metric label for the reason.
func (r *Reason) Label() string {
	switch {
	case r == nil:
		return "none"
	case r.explicit:
		return "explicit"
	default:
		return r.kind.String()
	}
}

// String implements fmt.Stringer.
func (r *Reason) String() string {
	switch {
	case r == nil:
		return "not retryable"
	case r.explicit:
		return fmt.Sprintf("explicit(%s)", r.delay)
	default:
		return fmt.Sprintf("error(%s)", r.kind)
	}
}

type decision int

const (
	decisionNo decision = iota
	decisionYes
	decisionYesAfterDelay
)

// ShouldAttempt is a strategy's answer to whether an attempt should be
// made.
type ShouldAttempt struct {
	decision decision
	delay    time.Duration
}

// Yes and No are the undelayed answers.
var (
	Yes = ShouldAttempt{decision: decisionYes}
	No  = ShouldAttempt{decision: decisionNo}
)

// YesAfterDelay allows the attempt once d has elapsed.
func YesAfterDelay(d time.Duration) ShouldAttempt {
	if d <= 0 {
		return Yes
	}
	return ShouldAttempt{decision: decisionYesAfterDelay, delay: d}
}

// Allowed reports whether the attempt may be made.
func (s ShouldAttempt) Allowed() bool {
	return s.decision != decisionNo
}

// Delay returns how long to wait before the attempt.
func (s ShouldAttempt) Delay() time.Duration {
	return s.delay
}

// String implements fmt.Stringer.
func (s ShouldAttempt) String() string {
	switch s.decision {
	case decisionYes:
		return "yes"
	case decisionYesAfterDelay:
		return fmt.Sprintf("yes after %s", s.delay)
	default:
		return "no"
	}
}
