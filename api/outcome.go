package api

import (
	"errors"
	"fmt"
)

// Status classifies what an upstream call produced
type Status int

const (
	// StatusOK means the source answered with data
	StatusOK Status = iota
	// StatusEmpty means the source answered but carried nothing usable
	StatusEmpty
	// StatusUnavailable means a transport error or a non-200 response
	StatusUnavailable
)

// String returns the label used in logs and metrics
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrNoData is the reason attached to an Empty outcome when the caller gave none
var ErrNoData = errors.New("no data in response")

// Outcome is the result of one adapter call. Data is only meaningful when
// Status is StatusOK; Reason is set for the other two states.
type Outcome[T any] struct {
	Status Status
	Data   T
	Reason error
}

// OK wraps data returned by a source
func OK[T any](data T) Outcome[T] {
	return Outcome[T]{Status: StatusOK, Data: data}
}

// Empty records that the source answered without data
func Empty[T any](reason error) Outcome[T] {
	if reason == nil {
		reason = ErrNoData
	}
	return Outcome[T]{Status: StatusEmpty, Reason: reason}
}

// Unavailable records that the source could not be reached or refused the request
func Unavailable[T any](err error) Outcome[T] {
	return Outcome[T]{Status: StatusUnavailable, Reason: err}
}

// OK reports whether the outcome carries data
func (o Outcome[T]) OK() bool {
	return o.Status == StatusOK
}

// Get returns the data and whether it is valid
func (o Outcome[T]) Get() (T, bool) {
	return o.Data, o.Status == StatusOK
}

// Err returns the reason for a non-OK outcome, or nil
func (o Outcome[T]) Err() error {
	if o.Status == StatusOK {
		return nil
	}
	if o.Reason == nil {
		return fmt.Errorf("%s", o.Status)
	}
	return fmt.Errorf("%s: %w", o.Status, o.Reason)
}
