package models

import (
	"errors"
	"fmt"
)

// Error codes reported for core failures.
const (
	CodeInvalidInput        = "ERR_INVALID_INPUT"
	CodeDegenerateInput     = "ERR_DEGENERATE_INPUT"
	CodeInsufficientHistory = "ERR_INSUFFICIENT_HISTORY"
	CodeEmptyChain          = "ERR_EMPTY_CHAIN"
	CodeInternal            = "ERR_INTERNAL"
)

// InvalidInputError reports a malformed or out-of-domain input.
type InvalidInputError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidInputError) Code() string { return CodeInvalidInput }

// DegenerateInputError reports inputs for which the closed form is undefined.
type DegenerateInputError struct {
	Field string
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("degenerate input: %s is zero", e.Field)
}

func (e *DegenerateInputError) Code() string { return CodeDegenerateInput }

// InsufficientHistoryError reports a series shorter than required.
type InsufficientHistoryError struct {
	Required int
	Got      int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: need %d bars, got %d", e.Required, e.Got)
}

func (e *InsufficientHistoryError) Code() string { return CodeInsufficientHistory }

// EmptyChainError reports an options chain without contracts.
type EmptyChainError struct {
	Underlying string
}

func (e *EmptyChainError) Error() string {
	if e.Underlying == "" {
		return "empty options chain"
	}
	return fmt.Sprintf("empty options chain for %s", e.Underlying)
}

func (e *EmptyChainError) Code() string { return CodeEmptyChain }

type coder interface {
	Code() string
}

// ErrorCode returns the stable code of a (possibly wrapped) core error.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}
