package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSkillNotFound    = errors.New("skill not found")
	ErrDuplicateSkill   = errors.New("duplicate skill name")
	ErrInvalidSequence  = errors.New("skill sequence must be a permutation of the skill names")
	ErrRuntimeNotFound  = errors.New("runtime not found")
	ErrEmptyDataset     = errors.New("dataset is empty")
	ErrColumnNotFound   = errors.New("column not found")
	ErrNoOutputTemplate = errors.New("output template declares no fields")
)

// TemplateError reports a placeholder that could not be resolved against a record.
// It is returned before any model call is made.
type TemplateError struct {
	Template string
	Field    string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template references unknown field %q", e.Field)
}

// DecodeError reports a completion that does not satisfy the output contract.
// The runtime recovers from it locally and never returns it to callers.
type DecodeError struct {
	Missing []string
	Raw     string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("completion is missing fields: %s", strings.Join(e.Missing, ", "))
}

// InvocationError wraps a provider, network, auth or timeout failure of a runtime call.
// The provider error is kept as is and reachable through errors.Unwrap.
type InvocationError struct {
	Runtime string
	Model   string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("runtime %s (model %s): %v", e.Runtime, e.Model, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Timeout reports whether the call hit its deadline.
func (e *InvocationError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// IsTemplateError reports whether err is or wraps a *TemplateError.
func IsTemplateError(err error) bool {
	var te *TemplateError
	return errors.As(err, &te)
}

// IsInvocationError reports whether err is or wraps an *InvocationError.
func IsInvocationError(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie)
}
