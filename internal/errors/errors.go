// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrPlanInvalid         = errors.New("invalid execution plan")
	ErrUnknownTool         = errors.New("unknown tool")
	ErrDuplicateStep       = errors.New("duplicate step id")
	ErrDanglingReference   = errors.New("reference to unknown step or field")
	ErrCyclicPlan          = errors.New("cyclic step references")
	ErrForwardReference    = errors.New("reference to a later step")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrMissingParameter    = errors.New("missing parameter")
	ErrDataFetch           = errors.New("data fetch failed")
	ErrProviderUnavailable = errors.New("market data provider unavailable")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrDataNotFound        = errors.New("data not found")
	ErrDatabaseError       = errors.New("database error")
	ErrTimeout             = errors.New("operation timed out")
)

// PlanValidationError reports a malformed plan. It is fatal: no step runs.
type PlanValidationError struct {
	StepID string
	Reason string
	Err    error
}

func (e *PlanValidationError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("plan validation error: %s", e.Reason)
	}
	return fmt.Sprintf("plan validation error [%s]: %s", e.StepID, e.Reason)
}

// Unwrap returns the sentinel cause, falling back to ErrPlanInvalid.
func (e *PlanValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrPlanInvalid
}

// Is lets errors.Is(err, ErrPlanInvalid) match any validation failure.
func (e *PlanValidationError) Is(target error) bool {
	return target == ErrPlanInvalid
}

// NewPlanValidationError creates a new PlanValidationError.
func NewPlanValidationError(stepID, reason string, err error) *PlanValidationError {
	return &PlanValidationError{
		StepID: stepID,
		Reason: reason,
		Err:    err,
	}
}

// ParameterError represents a missing or invalid tool parameter.
type ParameterError struct {
	Tool    string
	Param   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ParameterError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("parameter error [%s] %s: %s", e.Tool, e.Param, e.Message)
	}
	return fmt.Sprintf("parameter error [%s] %s (%v): %s", e.Tool, e.Param, e.Value, e.Message)
}

func (e *ParameterError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidParameter
}

// NewParameterError creates a new ParameterError.
func NewParameterError(tool, param string, value interface{}, message string) *ParameterError {
	return &ParameterError{
		Tool:    tool,
		Param:   param,
		Value:   value,
		Message: message,
	}
}

// NewMissingParameterError creates a ParameterError for an absent required parameter.
func NewMissingParameterError(tool, param string) *ParameterError {
	return &ParameterError{
		Tool:    tool,
		Param:   param,
		Message: "required parameter is missing",
		Err:     ErrMissingParameter,
	}
}

// DataFetchError represents a provider or network failure for a ticker.
type DataFetchError struct {
	Ticker string
	Period string
	Err    error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("data fetch error [%s %s]: %v", e.Ticker, e.Period, e.Err)
}

func (e *DataFetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDataFetch) match any fetch failure.
func (e *DataFetchError) Is(target error) bool {
	return target == ErrDataFetch
}

// NewDataFetchError creates a new DataFetchError.
func NewDataFetchError(ticker, period string, err error) *DataFetchError {
	return &DataFetchError{
		Ticker: ticker,
		Period: period,
		Err:    err,
	}
}

// InsufficientDataWarning explains why an indicator produced no values.
// It is carried in results, never returned as an error.
type InsufficientDataWarning struct {
	Indicator string
	Required  int
	Available int
}

func (w InsufficientDataWarning) String() string {
	return fmt.Sprintf("insufficient data for %s: need at least %d data points, have %d",
		w.Indicator, w.Required, w.Available)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
