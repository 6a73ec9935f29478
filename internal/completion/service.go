// Package completion is the boundary to the text-completion service that
// plans, writes and merges analysis code.
package completion

import (
	"context"
	"fmt"
	"strings"
)

// Service turns named string inputs into the requested named string outputs.
// Output names ending in "?" (see Optional) may be absent from the result.
type Service interface {
	Complete(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error)
}

// Func adapts a plain function to Service.
type Func func(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error)

func (f Func) Complete(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error) {
	return f(ctx, inputs, outputs)
}

// ServiceError reports a transport, auth or quota failure of the backend.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("completion service: %v", e.Err)
	}
	return fmt.Sprintf("completion service %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// MalformedResponseError reports a reply that lacks a requested field or
// cannot be decoded at all (Field is empty in that case).
type MalformedResponseError struct {
	Field string
	Err   error
}

func (e *MalformedResponseError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("malformed completion response: field %q: %v", e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("malformed completion response: missing field %q", e.Field)
	case e.Err != nil:
		return fmt.Sprintf("malformed completion response: %v", e.Err)
	}
	return "malformed completion response"
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

const optionalSuffix = "?"

// Optional marks an output field that the backend may omit.
func Optional(name string) string { return name + optionalSuffix }

// FieldName strips the optional marker from a requested output field.
func FieldName(field string) (name string, optional bool) {
	if strings.HasSuffix(field, optionalSuffix) {
		return strings.TrimSuffix(field, optionalSuffix), true
	}
	return field, false
}

// CheckOutputs returns a MalformedResponseError for the first required output
// missing from resp.
func CheckOutputs(resp map[string]string, outputs []string) error {
	for _, f := range outputs {
		name, optional := FieldName(f)
		if optional {
			continue
		}
		if _, ok := resp[name]; !ok {
			return &MalformedResponseError{Field: name}
		}
	}
	return nil
}

type instructionsKey struct{}

// WithInstructions attaches the task description the backend should follow
// for calls made with ctx.
func WithInstructions(ctx context.Context, instructions string) context.Context {
	return context.WithValue(ctx, instructionsKey{}, instructions)
}

// InstructionsFrom returns the instructions attached by WithInstructions.
func InstructionsFrom(ctx context.Context) string {
	s, _ := ctx.Value(instructionsKey{}).(string)
	return s
}
