package agent

import (
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/analyst/internal/capability"
	"github.com/mohammad-safakhou/analyst/internal/completion"
)

// Kind names an error category as reported to callers.
type Kind string

const (
	KindDuplicateAgent    Kind = "DuplicateAgentError"
	KindUnknownAgent      Kind = "UnknownAgentError"
	KindPlanning          Kind = "PlanningError"
	KindAgentExecution    Kind = "AgentExecutionError"
	KindCombination       Kind = "CombinationError"
	KindService           Kind = "ServiceError"
	KindMalformedResponse Kind = "MalformedResponseError"
	KindInternal          Kind = "InternalError"
)

var (
	ErrPlanning       = errors.New("planning failed")
	ErrAgentExecution = errors.New("agent execution failed")
	ErrCombination    = errors.New("combination failed")
	ErrEngineUsed     = errors.New("engine already ran")
)

// StageError attributes a failure to a pipeline stage. Step and Agent are
// set for failures of a plan step and are -1 and "" otherwise.
type StageError struct {
	Kind  Kind
	Step  int
	Agent string
	Err   error
}

func (e *StageError) Error() string {
	if e.Agent != "" {
		return fmt.Sprintf("%s at step %d (%s): %v", e.Kind, e.Step, e.Agent, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is matches the stage sentinels so callers can test errors.Is(err, ErrPlanning).
func (e *StageError) Is(target error) bool {
	switch target {
	case ErrPlanning:
		return e.Kind == KindPlanning
	case ErrAgentExecution:
		return e.Kind == KindAgentExecution
	case ErrCombination:
		return e.Kind == KindCombination
	}
	return false
}

func stageErr(kind Kind, err error) *StageError {
	return &StageError{Kind: kind, Step: -1, Err: err}
}

// KindOf maps err to the kind surfaced to callers. The outermost stage wins,
// so a service failure during a step reports as AgentExecutionError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, capability.ErrDuplicateAgent):
		return KindDuplicateAgent
	case errors.Is(err, capability.ErrUnknownAgent):
		return KindUnknownAgent
	}
	var svc *completion.ServiceError
	if errors.As(err, &svc) {
		return KindService
	}
	var mal *completion.MalformedResponseError
	if errors.As(err, &mal) {
		return KindMalformedResponse
	}
	return KindInternal
}
