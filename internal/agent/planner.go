package agent

import (
	"context"
	"log"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/analyst/internal/capability"
	"github.com/mohammad-safakhou/analyst/internal/completion"
)

// PlanSeparator joins agent names in a plan.
const PlanSeparator = "->"

// Planner asks the completion service which agents to run for a goal.
type Planner struct {
	svc    completion.Service
	logger *log.Logger
}

// NewPlanner creates a planner. A nil logger uses the default [PLANNER] logger.
func NewPlanner(svc completion.Service, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{svc: svc, logger: logger}
}

// Plan derives an execution plan for goal from the catalog description.
// No plan is fabricated on failure: any error is a PlanningError.
func (p *Planner) Plan(ctx context.Context, catalogDescription, goal string) (ExecutionPlan, error) {
	ctx, span := tracer.Start(ctx, "agent.plan")
	defer span.End()

	ctx = completion.WithInstructions(ctx, plannerInstructions)
	resp, err := p.svc.Complete(ctx, map[string]string{
		capability.FieldAgentDesc: catalogDescription,
		capability.FieldGoal:      goal,
	}, []string{capability.FieldPlan, capability.FieldPlanDesc})
	if err == nil {
		err = completion.CheckOutputs(resp, []string{capability.FieldPlan, capability.FieldPlanDesc})
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Printf("planning failed: %v", err)
		return ExecutionPlan{}, stageErr(KindPlanning, err)
	}

	plan := ExecutionPlan{
		Steps:     ParseSteps(resp[capability.FieldPlan]),
		Rationale: strings.TrimSpace(resp[capability.FieldPlanDesc]),
	}
	span.SetAttributes(
		attribute.Int("plan.steps", len(plan.Steps)),
		attribute.String("plan.sequence", strings.Join(plan.Steps, " "+PlanSeparator+" ")),
	)
	p.logger.Printf("plan: %s", formatPlan(plan.Steps))
	return plan, nil
}

// ParseSteps splits a plan on the separator, trims each name and drops empty
// tokens. Order and repeats are kept.
func ParseSteps(s string) []string {
	parts := strings.Split(s, PlanSeparator)
	steps := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			steps = append(steps, name)
		}
	}
	return steps
}

func formatPlan(steps []string) string {
	if len(steps) == 0 {
		return "(empty)"
	}
	return strings.Join(steps, " "+PlanSeparator+" ")
}
