package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCategory     = errors.New("unknown test category")
	ErrUnknownCheck        = errors.New("unknown check")
	ErrTargetNotDiscovered = errors.New("target not present in discovery snapshot")
	ErrRunNotFound         = errors.New("run not found")
	ErrRunNotTerminal      = errors.New("run is not in a terminal state")
	ErrRunNotCancellable   = errors.New("run cannot be cancelled")
	ErrBudgetExceeded      = errors.New("llm token budget exceeded")
	ErrNotifierDisabled    = errors.New("discord client not configured")
)

// CheckError wraps a failure raised while executing a single planned check.
type CheckError struct {
	Category string
	Check    string
	Target   string
	Err      error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("check %s/%s against %s failed: %v", e.Category, e.Check, e.Target, e.Err)
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

func NewCheckError(category, check, target string, err error) *CheckError {
	return &CheckError{
		Category: category,
		Check:    check,
		Target:   target,
		Err:      err,
	}
}

// PlanValidationError reports every plan entry the planner refused to accept.
type PlanValidationError struct {
	Violations []string
}

func (e *PlanValidationError) Error() string {
	return fmt.Sprintf("plan rejected: %d invalid entries: %v", len(e.Violations), e.Violations)
}

func NewPlanValidationError(violations []string) *PlanValidationError {
	return &PlanValidationError{Violations: violations}
}

type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value: %v): %s", e.Field, e.Value, e.Message)
}

func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
