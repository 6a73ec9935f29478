package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/analyst/internal/capability"
	"github.com/mohammad-safakhou/analyst/internal/completion"
)

// Invoker runs a single agent contract against the completion service.
type Invoker struct {
	svc    completion.Service
	logger *log.Logger
}

// NewInvoker creates an invoker. A nil logger uses the default [AGENT] logger.
func NewInvoker(svc completion.Service, logger *log.Logger) *Invoker {
	if logger == nil {
		logger = log.New(log.Writer(), "[AGENT] ", log.LstdFlags)
	}
	return &Invoker{svc: svc, logger: logger}
}

// Invoke asks the agent described by spec for code that serves goal on dataset.
// Optional outputs may be missing; a missing code field is an AgentExecutionError.
func (i *Invoker) Invoke(ctx context.Context, spec capability.AgentSpec, dataset, goal string) (AgentResult, error) {
	fail := func(err error) (AgentResult, error) {
		return AgentResult{}, &StageError{Kind: KindAgentExecution, Step: -1, Agent: spec.Name, Err: err}
	}

	inputs := make(map[string]string, len(spec.InputContract))
	for _, f := range spec.InputContract {
		switch f.Name {
		case capability.FieldDataset:
			inputs[f.Name] = dataset
		case capability.FieldGoal:
			inputs[f.Name] = goal
		default:
			return fail(fmt.Errorf("input %q cannot be supplied", f.Name))
		}
	}
	outputs := make([]string, 0, len(spec.OutputContract))
	for _, f := range spec.OutputContract {
		if f.Optional {
			outputs = append(outputs, completion.Optional(f.Name))
		} else {
			outputs = append(outputs, f.Name)
		}
	}

	ctx = completion.WithInstructions(ctx, agentInstructions(spec))
	resp, err := i.svc.Complete(ctx, inputs, outputs)
	if err != nil {
		return fail(err)
	}
	if err := completion.CheckOutputs(resp, outputs); err != nil {
		return fail(err)
	}
	if _, ok := resp[capability.FieldCode]; !ok {
		return fail(&completion.MalformedResponseError{Field: capability.FieldCode})
	}

	res := AgentResult{
		AgentName:  spec.Name,
		Commentary: strings.TrimSpace(resp[capability.FieldCommentary]),
		Code:       resp[capability.FieldCode],
	}
	i.logger.Printf("%s produced %d bytes of code", spec.Name, len(res.Code))
	return res, nil
}
