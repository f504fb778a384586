package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Design encoding errors: a design factor does not take exactly two
	// levels in the modeling sample, which signals a data-integrity
	// problem upstream.
	ErrDesignEncoding = errors.New("design encoding failed")

	// Data sufficiency errors
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrNoObservations   = fmt.Errorf("%w: no non-missing observations", ErrInsufficientData)
	ErrTooFewSubjects   = fmt.Errorf("%w: fewer than 2 subjects", ErrInsufficientData)
	ErrNoReplication    = fmt.Errorf("%w: random-effect grouping factor has no replication", ErrInsufficientData)

	// Lookup errors
	ErrNotFound        = errors.New("resource not found")
	ErrOutcomeNotFound = fmt.Errorf("%w: outcome", ErrNotFound)
	ErrModelNotFound   = fmt.Errorf("%w: fitted model", ErrNotFound)

	// Prediction errors
	ErrUnknownCovariate  = errors.New("covariate not present in model formula")
	ErrIncompleteGrid    = errors.New("covariate neither fixed nor swept in prediction query")
	ErrConflictingAssign = errors.New("covariate both fixed and swept in prediction query")
)

// NewDesignEncodingError reports a factor with the wrong number of observed levels
func NewDesignEncodingError(factor string, levels int) error {
	return fmt.Errorf("%w: factor %q has %d observed levels, want 2", ErrDesignEncoding, factor, levels)
}

// NewInsufficientDataError wraps ErrInsufficientData with outcome context
func NewInsufficientDataError(outcome string, reason string) error {
	return fmt.Errorf("%w: outcome %q: %s", ErrInsufficientData, outcome, reason)
}

// Error checking helpers
func IsDesignEncodingError(err error) bool {
	return errors.Is(err, ErrDesignEncoding)
}

func IsInsufficientDataError(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
