package models

import (
	"errors"
	"fmt"
)

var (
	// ErrEnsembleUnavailable is returned when no forecasting source
	// succeeded. The predictor never fabricates a number in its place.
	ErrEnsembleUnavailable = errors.New("ensemble unavailable: no forecasting source succeeded")

	// ErrInsufficientCandidates is returned when no protocol satisfies the
	// optimizer's risk ceiling for the requested tolerance tier.
	ErrInsufficientCandidates = errors.New("no protocol satisfies the risk ceiling")

	// ErrNoFallback is returned by the resilience layer when a call has
	// failed and neither a cached value nor a static reference exists.
	ErrNoFallback = errors.New("no cached or reference fallback available")

	// ErrUnknownProtocol is returned for protocol ids outside the
	// supported registry.
	ErrUnknownProtocol = errors.New("unknown protocol")
)

// ValidationError reports malformed or missing required input data.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid data: field %q %s", e.Field, e.Reason)
}

// InvalidInputError reports bad caller parameters, e.g. a non-positive
// investment amount or an unknown risk tolerance.
type InvalidInputError struct {
	Param  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Param, e.Reason)
}
