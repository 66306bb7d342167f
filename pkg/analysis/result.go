package analysis

import (
	"fmt"
	"time"
)

// Status is the outcome of one analyzer.
type Status string

// Result statuses.
const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusPartial, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Result is the outcome of invoking one analyzer. Construct it with [OK],
// [Partial], [Failed] or [Skipped] and consume it with a [Visitor].
//
// Payload is set for ok and partial results. Reason is set for failed and
// skipped results.
type Result struct {
	Analyzer string        `json:"analyzer"`
	Status   Status        `json:"status"`
	Payload  any           `json:"data,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"-"`
}

// OK is a complete result.
func OK(payload any) Result {
	return Result{Status: StatusOK, Payload: payload}
}

// Partial is a usable result with gaps described by warnings.
func Partial(payload any, warnings ...string) Result {
	return Result{Status: StatusPartial, Payload: payload, Warnings: warnings}
}

// Failed is an analyzer that ran and could not produce a result.
func Failed(reason string) Result {
	return Result{Status: StatusFailed, Reason: reason}
}

// Failedf is [Failed] with a formatted reason.
func Failedf(format string, args ...any) Result {
	return Failed(fmt.Sprintf(format, args...))
}

// Skipped is an analyzer that was never run.
func Skipped(reason string) Result {
	return Result{Status: StatusSkipped, Reason: reason}
}

// Usable reports whether the payload can be consumed (ok or partial).
func (r Result) Usable() bool {
	return r.Status == StatusOK || r.Status == StatusPartial
}

// Visitor handles every result status. Adding a status adds a method, so
// the compiler finds every consumer that must change.
type Visitor interface {
	VisitOK(r Result)
	VisitPartial(r Result)
	VisitFailed(r Result)
	VisitSkipped(r Result)
}

// Accept dispatches r to the visitor method for its status. A result with
// an unknown status is treated as failed.
func (r Result) Accept(v Visitor) {
	switch r.Status {
	case StatusOK:
		v.VisitOK(r)
	case StatusPartial:
		v.VisitPartial(r)
	case StatusSkipped:
		v.VisitSkipped(r)
	default:
		v.VisitFailed(r)
	}
}

// Payload returns r's payload as T when r is usable and the payload has
// that type.
func Payload[T any](r Result) (T, bool) {
	var zero T
	if !r.Usable() {
		return zero, false
	}
	p, ok := r.Payload.(T)
	return p, ok
}
