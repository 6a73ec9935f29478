package agent

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/analyst/internal/capability"
)

// Catalog is the read-only view of the agent registry an engine needs.
type Catalog interface {
	Describe() string
	Resolve(name string) (capability.AgentSpec, error)
}

// TransitionFunc observes engine state changes.
type TransitionFunc func(from, to State)

// StepFunc observes each completed step.
type StepFunc func(TraceEntry)

// Engine drives one run: plan, then every step strictly in plan order.
// An Engine is single-use; create one per run.
type Engine struct {
	planner *Planner
	invoker *Invoker
	catalog Catalog
	logger  *log.Logger

	onTransition TransitionFunc
	onStep       StepFunc

	mu      sync.Mutex
	started bool
	state   State
	plan    ExecutionPlan
	trace   ExecutionTrace
	buffer  strings.Builder
	err     error
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithEngineLogger replaces the default [ENGINE] logger.
func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// OnTransition registers a hook called after every state change.
func OnTransition(fn TransitionFunc) EngineOption {
	return func(e *Engine) { e.onTransition = fn }
}

// OnStep registers a hook called after every successful step.
func OnStep(fn StepFunc) EngineOption {
	return func(e *Engine) { e.onStep = fn }
}

// NewEngine creates an engine in the PLANNING state.
func NewEngine(planner *Planner, invoker *Invoker, catalog Catalog, opts ...EngineOption) *Engine {
	e := &Engine{
		planner: planner,
		invoker: invoker,
		catalog: catalog,
		logger:  log.New(log.Writer(), "[ENGINE] ", log.LstdFlags),
		state:   StatePlanning,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run plans and executes. It returns nil when the engine reaches DONE and the
// failure that moved it to FAILED otherwise; the partial trace stays readable.
func (e *Engine) Run(ctx context.Context, dataset, goal string) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrEngineUsed
	}
	e.started = true
	e.mu.Unlock()

	plan, err := e.planner.Plan(ctx, e.catalog.Describe(), goal)
	if err != nil {
		return e.fail(err)
	}
	e.mu.Lock()
	e.plan = plan
	e.mu.Unlock()
	e.transition(StateExecuting)

	for i, name := range plan.Steps {
		if err := e.step(ctx, i, name, dataset, goal); err != nil {
			return e.fail(err)
		}
	}
	e.transition(StateDone)
	e.logger.Printf("done: %d steps, %d bytes of code", len(plan.Steps), e.bufferLen())
	return nil
}

func (e *Engine) step(ctx context.Context, i int, name, dataset, goal string) error {
	ctx, span := tracer.Start(ctx, "agent.step", trace.WithAttributes(
		attribute.Int("step.index", i),
		attribute.String("agent.name", name),
	))
	defer span.End()

	spec, err := e.catalog.Resolve(name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown agent")
		return &StageError{Kind: KindUnknownAgent, Step: i, Agent: name, Err: err}
	}
	res, err := e.invoker.Invoke(ctx, spec, dataset, goal)
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			se.Step = i
		} else {
			err = &StageError{Kind: KindAgentExecution, Step: i, Agent: name, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	entry := TraceEntry{Step: i, Result: res}
	e.mu.Lock()
	e.trace = append(e.trace, entry)
	e.buffer.WriteString(res.Code)
	e.mu.Unlock()
	if e.onStep != nil {
		e.onStep(entry)
	}
	return nil
}

func (e *Engine) fail(err error) error {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
	e.logger.Printf("failed: %v", err)
	e.transition(StateFailed)
	return err
}

func (e *Engine) transition(to State) {
	e.mu.Lock()
	from := e.state
	e.state = to
	e.mu.Unlock()
	if e.onTransition != nil {
		e.onTransition(from, to)
	}
}

func (e *Engine) bufferLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.Len()
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Plan returns the plan once planning succeeded.
func (e *Engine) Plan() ExecutionPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ExecutionPlan{Steps: append([]string(nil), e.plan.Steps...), Rationale: e.plan.Rationale}
}

// Trace returns a copy of the steps completed so far.
func (e *Engine) Trace() ExecutionTrace {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(ExecutionTrace(nil), e.trace...)
}

// Buffer returns the code of all completed steps concatenated in plan order.
func (e *Engine) Buffer() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.String()
}

// Err returns the failure that moved the engine to FAILED.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
