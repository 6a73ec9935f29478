package agent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/analyst/internal/capability"
	"github.com/mohammad-safakhou/analyst/internal/completion"
)

func TestEngineVisitsStepsInPlanOrder(t *testing.T) {
	plans := []string{
		"PreProcess -> Stats -> Viz",
		"Viz -> PreProcess",
		"Stats -> Stats -> PreProcess -> Stats",
		"Viz",
	}
	for _, p := range plans {
		llm := newStub(p)
		llm.code = map[string]string{"PreProcess": "p()", "Stats": "s()", "Viz": "v()"}
		e := newTestEngine(llm, testCatalog())
		if err := e.Run(context.Background(), "df", "goal"); err != nil {
			t.Fatalf("%q: Run: %v", p, err)
		}
		want := ParseSteps(p)
		if got := e.Trace().Names(); !reflect.DeepEqual(got, want) {
			t.Fatalf("%q: trace %v, want %v", p, got, want)
		}
		for i, entry := range e.Trace() {
			if entry.Step != i {
				t.Fatalf("%q: entry %d has step %d", p, i, entry.Step)
			}
		}
		if e.State() != StateDone {
			t.Fatalf("%q: state %s", p, e.State())
		}
	}
}

func TestEngineUnknownAgentKeepsPartialTrace(t *testing.T) {
	for k := 0; k < 3; k++ {
		steps := []string{"PreProcess", "Stats", "Viz"}[:k]
		steps = append(steps, "Cleanup", "Viz")
		llm := newStub(strings.Join(steps, " -> "))
		llm.code = map[string]string{"PreProcess": "p()", "Stats": "s()", "Viz": "v()"}

		e := newTestEngine(llm, testCatalog())
		err := e.Run(context.Background(), "df", "goal")
		if !errors.Is(err, capability.ErrUnknownAgent) || KindOf(err) != KindUnknownAgent {
			t.Fatalf("k=%d: expected UnknownAgentError, got %v", k, err)
		}
		var se *StageError
		if !errors.As(err, &se) || se.Step != k || se.Agent != "Cleanup" {
			t.Fatalf("k=%d: unexpected stage error %+v", k, se)
		}
		if e.State() != StateFailed {
			t.Fatalf("k=%d: state %s", k, e.State())
		}
		if len(e.Trace()) != k {
			t.Fatalf("k=%d: trace length %d", k, len(e.Trace()))
		}
		if len(llm.agentCalls) != k {
			t.Fatalf("k=%d: steps after the failure must not run, calls=%v", k, llm.agentCalls)
		}
	}
}

func TestEngineAgentFailureStopsRun(t *testing.T) {
	llm := newStub("PreProcess -> Stats -> Viz")
	llm.code = map[string]string{"PreProcess": "p()", "Viz": "v()"}
	llm.agentErr["Stats"] = errDown

	e := newTestEngine(llm, testCatalog())
	err := e.Run(context.Background(), "df", "goal")
	if !errors.Is(err, ErrAgentExecution) || KindOf(err) != KindAgentExecution {
		t.Fatalf("expected AgentExecutionError, got %v", err)
	}
	var svc *completion.ServiceError
	if !errors.As(err, &svc) {
		t.Fatalf("cause should be kept, got %v", err)
	}
	if got := e.Trace().Names(); !reflect.DeepEqual(got, []string{"PreProcess"}) {
		t.Fatalf("trace %v", got)
	}
	if e.Buffer() != "p()" {
		t.Fatalf("buffer %q", e.Buffer())
	}
	if !reflect.DeepEqual(llm.agentCalls, []string{"PreProcess", "Stats"}) {
		t.Fatalf("no retry and no skip expected, calls=%v", llm.agentCalls)
	}
}

func TestEngineMissingCodeIsAgentExecutionError(t *testing.T) {
	llm := newStub("Stats")
	llm.omitCode["Stats"] = true
	llm.commentary["Stats"] = "ran a t-test"

	e := newTestEngine(llm, testCatalog())
	err := e.Run(context.Background(), "df", "goal")
	if KindOf(err) != KindAgentExecution {
		t.Fatalf("expected AgentExecutionError, got %v", err)
	}
	var mal *completion.MalformedResponseError
	if !errors.As(err, &mal) || mal.Field != capability.FieldCode {
		t.Fatalf("expected missing code cause, got %v", err)
	}
}

func TestEngineOptionalCommentary(t *testing.T) {
	llm := newStub("PreProcess -> Stats")
	llm.code = map[string]string{"PreProcess": "p()", "Stats": "s()"}
	llm.commentary["Stats"] = "  OLS regression  "

	e := newTestEngine(llm, testCatalog())
	if err := e.Run(context.Background(), "df", "goal"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	tr := e.Trace()
	if tr[0].Result.Commentary != "" || tr[1].Result.Commentary != "OLS regression" {
		t.Fatalf("unexpected commentary %+v", tr)
	}
}

func TestEnginePlanningFailure(t *testing.T) {
	llm := newStub("")
	llm.planErr = errDown
	var transitions []string
	e := newTestEngine(llm, testCatalog(), OnTransition(func(from, to State) {
		transitions = append(transitions, string(from)+">"+string(to))
	}))
	err := e.Run(context.Background(), "df", "goal")
	if KindOf(err) != KindPlanning || e.State() != StateFailed {
		t.Fatalf("err=%v state=%s", err, e.State())
	}
	if len(e.Trace()) != 0 || len(llm.agentCalls) != 0 {
		t.Fatalf("nothing may execute after a planning failure")
	}
	if !reflect.DeepEqual(transitions, []string{"PLANNING>FAILED"}) {
		t.Fatalf("transitions %v", transitions)
	}
}

func TestEngineEmptyPlan(t *testing.T) {
	for _, p := range []string{"", "->", " -> -> "} {
		var transitions []string
		e := newTestEngine(newStub(p), testCatalog(), OnTransition(func(from, to State) {
			transitions = append(transitions, string(from)+">"+string(to))
		}))
		if err := e.Run(context.Background(), "df", "goal"); err != nil {
			t.Fatalf("%q: Run: %v", p, err)
		}
		if e.State() != StateDone || len(e.Trace()) != 0 || e.Buffer() != "" {
			t.Fatalf("%q: state=%s trace=%v buffer=%q", p, e.State(), e.Trace(), e.Buffer())
		}
		if !reflect.DeepEqual(transitions, []string{"PLANNING>EXECUTING", "EXECUTING>DONE"}) {
			t.Fatalf("%q: transitions %v", p, transitions)
		}
	}
}

func TestEngineIsSingleUse(t *testing.T) {
	e := newTestEngine(newStub(""), testCatalog())
	if err := e.Run(context.Background(), "df", "goal"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := e.Run(context.Background(), "df", "goal"); !errors.Is(err, ErrEngineUsed) {
		t.Fatalf("expected ErrEngineUsed, got %v", err)
	}
	if e.State() != StateDone {
		t.Fatalf("second run must not change state, got %s", e.State())
	}
}

func TestInvokerPassesContract(t *testing.T) {
	var gotInputs map[string]string
	var gotOutputs []string
	svc := completion.Func(func(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error) {
		gotInputs, gotOutputs = inputs, outputs
		return map[string]string{"code": "x"}, nil
	})
	res, err := NewInvoker(svc, quiet()).Invoke(context.Background(), testSpec("Viz", true), "a,b\n1,2", "plot a")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.AgentName != "Viz" || res.Code != "x" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotInputs["dataset"] != "a,b\n1,2" || gotInputs["goal"] != "plot a" || len(gotInputs) != 2 {
		t.Fatalf("inputs %v", gotInputs)
	}
	if !reflect.DeepEqual(gotOutputs, []string{completion.Optional("commentary"), "code"}) {
		t.Fatalf("outputs %v", gotOutputs)
	}

	bad := testSpec("Odd", false)
	bad.InputContract = append(bad.InputContract, capability.Field{Name: "schema"})
	if _, err := NewInvoker(svc, quiet()).Invoke(context.Background(), bad, "", ""); KindOf(err) != KindAgentExecution {
		t.Fatalf("unsupplied input should fail, got %v", err)
	}
}
