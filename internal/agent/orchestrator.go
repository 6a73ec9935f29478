package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/analyst/internal/completion"
	"github.com/mohammad-safakhou/analyst/internal/telemetry"
)

var tracer trace.Tracer = otel.Tracer("analyst/internal/agent")

// Services are the completion backends of the three pipeline stages.
type Services struct {
	Planning  completion.Service
	Agents    completion.Service
	Combining completion.Service
}

// Single uses one backend for every stage.
func Single(svc completion.Service) Services {
	return Services{Planning: svc, Agents: svc, Combining: svc}
}

// Orchestrator composes planner, engine and combiner into a run.
// It holds no per-run state and is safe for concurrent runs.
type Orchestrator struct {
	planner  *Planner
	invoker  *Invoker
	combiner *Combiner
	metrics  *telemetry.Metrics
	logger   *log.Logger
	quiet    bool
	onState  TransitionFunc

	engineLog *log.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records run, step and latency metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger replaces the [ORCH] logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Quiet discards the logs of the stage components.
func Quiet() Option {
	return func(o *Orchestrator) { o.quiet = true }
}

// WithStateHook observes the engine state of every run.
func WithStateHook(fn TransitionFunc) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// NewOrchestrator creates an orchestrator over the given backends.
func NewOrchestrator(s Services, opts ...Option) *Orchestrator {
	o := &Orchestrator{logger: log.New(log.Writer(), "[ORCH] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(o)
	}
	var stageLog func(prefix string) *log.Logger
	if o.quiet {
		discard := log.New(io.Discard, "", 0)
		stageLog = func(string) *log.Logger { return discard }
	} else {
		stageLog = func(prefix string) *log.Logger { return log.New(log.Writer(), prefix, log.LstdFlags) }
	}
	o.planner = NewPlanner(o.timed(s.Planning, completion.StagePlanning), stageLog("[PLANNER] "))
	o.invoker = NewInvoker(o.timed(s.Agents, completion.StageAgents), stageLog("[AGENT] "))
	o.combiner = NewCombiner(o.timed(s.Combining, completion.StageCombining), stageLog("[COMBINER] "))
	o.engineLog = stageLog("[ENGINE] ")
	return o
}

// Outcome is everything a run produced, including partial results of a failed run.
type Outcome struct {
	ID       string
	Plan     ExecutionPlan
	Trace    ExecutionTrace
	Buffer   string
	Artifact FinalArtifact
	State    State
	Duration time.Duration
}

// Run executes the pipeline and returns the merged script and the trace.
// On failure the trace holds the steps completed before the error.
func (o *Orchestrator) Run(ctx context.Context, catalog Catalog, dataset, goal string) (FinalArtifact, ExecutionTrace, error) {
	out, err := o.RunDetailed(ctx, catalog, dataset, goal)
	return out.Artifact, out.Trace, err
}

// RunDetailed is Run with the plan, buffer and final state exposed.
func (o *Orchestrator) RunDetailed(ctx context.Context, catalog Catalog, dataset, goal string) (Outcome, error) {
	start := time.Now()
	out := Outcome{ID: uuid.NewString()}
	ctx, span := tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("run.id", out.ID),
		attribute.Int("dataset.bytes", len(dataset)),
	))
	defer span.End()

	opts := []EngineOption{
		WithEngineLogger(o.engineLog),
		OnStep(func(e TraceEntry) { o.metrics.StepFinished(e.Result.AgentName, true) }),
	}
	if o.onState != nil {
		opts = append(opts, OnTransition(o.onState))
	}
	engine := NewEngine(o.planner, o.invoker, catalog, opts...)

	err := engine.Run(ctx, dataset, goal)
	out.Plan = engine.Plan()
	out.Trace = engine.Trace()
	out.Buffer = engine.Buffer()
	out.State = engine.State()
	if err == nil {
		out.Artifact, err = o.combiner.Combine(ctx, out.Buffer)
	} else if se, ok := err.(*StageError); ok && se.Agent != "" {
		o.metrics.StepFinished(se.Agent, false)
	}
	out.Duration = time.Since(start)

	if err != nil {
		kind := KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		o.metrics.RunFinished(string(kind))
		o.logger.Printf("run %s failed after %d steps in %s: %v", out.ID, len(out.Trace), out.Duration, err)
		return out, fmt.Errorf("run %s: %w", out.ID, err)
	}
	o.metrics.RunFinished("done")
	o.logger.Printf("run %s done: %d steps in %s", out.ID, len(out.Trace), out.Duration)
	return out, nil
}

// timed records completion latency per stage.
func (o *Orchestrator) timed(svc completion.Service, stage string) completion.Service {
	return completion.Func(func(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error) {
		start := time.Now()
		resp, err := svc.Complete(ctx, inputs, outputs)
		o.metrics.ObserveCompletion(stage, time.Since(start))
		return resp, err
	})
}
