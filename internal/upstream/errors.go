package upstream

import (
	"errors"
	"fmt"
)

// Kind classifies an upstream failure for the retry/fallback layer.
type Kind int

const (
	// KindTransient failures (timeout, transient network error, empty or
	// malformed output) retry the same target with backoff.
	KindTransient Kind = iota

	// KindRateLimited is transient but backs off from a longer base delay.
	KindRateLimited

	// KindTargetUnavailable failures (target overloaded, out of capacity)
	// abandon the remaining retries on this target and move to the next
	// target in rank order.
	KindTargetUnavailable

	// KindFatal failures (auth, content policy) abort the call immediately
	// without trying other targets.
	KindFatal
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindTargetUnavailable:
		return "target_unavailable"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// CallError wraps an upstream failure with its classification. Severe
// failures additionally trip the target's circuit breaker immediately,
// regardless of its failure threshold.
type CallError struct {
	Kind   Kind
	Target string
	Severe bool
	Err    error
}

// Error implements error.
func (e *CallError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("upstream %s (%s): %v", e.Target, e.Kind, e.Err)
	}
	return fmt.Sprintf("upstream (%s): %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable-generic failure.
func Transient(target string, err error) *CallError {
	return &CallError{Kind: KindTransient, Target: target, Err: err}
}

// RateLimited wraps err as a retryable rate-limit failure.
func RateLimited(target string, err error) *CallError {
	return &CallError{Kind: KindRateLimited, Target: target, Err: err}
}

// TargetUnavailable wraps err as a this-target-only failure. severe marks
// capacity exhaustion and similar conditions that should open the breaker
// on the first occurrence.
func TargetUnavailable(target string, severe bool, err error) *CallError {
	return &CallError{Kind: KindTargetUnavailable, Target: target, Severe: severe, Err: err}
}

// Fatal wraps err as a non-retryable failure.
func Fatal(target string, err error) *CallError {
	return &CallError{Kind: KindFatal, Target: target, Err: err}
}

// KindOf extracts the classification from err. Unclassified errors are
// treated as transient so unknown transport failures stay retryable.
func KindOf(err error) Kind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}

// IsSevere reports whether err is flagged severe.
func IsSevere(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Severe
}

// Retryable reports whether err permits another attempt somewhere in the
// target list.
func Retryable(err error) bool {
	return KindOf(err) != KindFatal
}
