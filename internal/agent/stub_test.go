package agent

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/analyst/internal/capability"
	"github.com/mohammad-safakhou/analyst/internal/completion"
)

// stubLLM answers planner, agent and combiner requests deterministically.
type stubLLM struct {
	mu sync.Mutex

	plan    string
	planErr error

	code       map[string]string // agent -> code
	commentary map[string]string
	agentErr   map[string]error
	omitCode   map[string]bool

	combine func(code string) (map[string]string, error)

	agentCalls   []string
	combineCalls []string
}

func newStub(plan string) *stubLLM {
	return &stubLLM{
		plan:       plan,
		code:       map[string]string{},
		commentary: map[string]string{},
		agentErr:   map[string]error{},
		omitCode:   map[string]bool{},
	}
}

func (s *stubLLM) Complete(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := inputs[capability.FieldAgentDesc]; ok {
		if s.planErr != nil {
			return nil, s.planErr
		}
		return map[string]string{capability.FieldPlan: s.plan, capability.FieldPlanDesc: "because"}, nil
	}
	if code, ok := inputs[capability.FieldAgentCodeList]; ok {
		s.combineCalls = append(s.combineCalls, code)
		if s.combine != nil {
			return s.combine(code)
		}
		return map[string]string{capability.FieldCode: "# merged\n" + code}, nil
	}

	name := agentFromInstructions(completion.InstructionsFrom(ctx))
	s.agentCalls = append(s.agentCalls, name)
	if err := s.agentErr[name]; err != nil {
		return nil, err
	}
	out := map[string]string{}
	if !s.omitCode[name] {
		out[capability.FieldCode] = s.code[name]
	}
	if c, ok := s.commentary[name]; ok {
		out[capability.FieldCommentary] = c
	}
	return out, nil
}

func agentFromInstructions(s string) string {
	s = strings.TrimPrefix(s, "You are the ")
	name, _, _ := strings.Cut(s, " agent.")
	return name
}

func testSpec(name string, withCommentary bool) capability.AgentSpec {
	outputs := []capability.Field{{Name: capability.FieldCode}}
	if withCommentary {
		outputs = append([]capability.Field{{Name: capability.FieldCommentary, Optional: true}}, outputs...)
	}
	return capability.AgentSpec{
		Name:           name,
		Purpose:        "does " + name,
		InputContract:  []capability.Field{{Name: capability.FieldDataset}, {Name: capability.FieldGoal}},
		OutputContract: outputs,
	}
}

func testCatalog() *capability.Catalog {
	return capability.NewCatalog().MustRegister(
		testSpec("PreProcess", false),
		testSpec("Stats", true),
		testSpec("Viz", true),
	)
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestEngine(llm completion.Service, catalog Catalog, opts ...EngineOption) *Engine {
	opts = append([]EngineOption{WithEngineLogger(quiet())}, opts...)
	return NewEngine(NewPlanner(llm, quiet()), NewInvoker(llm, quiet()), catalog, opts...)
}

var errDown = &completion.ServiceError{Op: "stub", Err: errors.New("connection refused")}
