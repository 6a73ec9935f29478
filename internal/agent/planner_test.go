package agent

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mohammad-safakhou/analyst/internal/capability"
	"github.com/mohammad-safakhou/analyst/internal/completion"
)

func TestParseSteps(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Agent1 -> Agent2  ->Agent3", []string{"Agent1", "Agent2", "Agent3"}},
		{"Agent1->Agent2->Agent3", []string{"Agent1", "Agent2", "Agent3"}},
		{"  Agent1  ", []string{"Agent1"}},
		{"A -> B ->", []string{"A", "B"}},
		{"-> A -> -> B", []string{"A", "B"}},
		{"A -> A -> B", []string{"A", "A", "B"}},
		{"", []string{}},
		{"->", []string{}},
		{" -> -> ", []string{}},
	}
	for _, tc := range cases {
		got := ParseSteps(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ParseSteps(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestPlannerPlan(t *testing.T) {
	var gotInputs map[string]string
	var gotInstructions string
	svc := completion.Func(func(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error) {
		gotInputs = inputs
		gotInstructions = completion.InstructionsFrom(ctx)
		return map[string]string{"plan": "PreProcess -> Stats", "plan_desc": "  clean, then test  "}, nil
	})
	plan, err := NewPlanner(svc, quiet()).Plan(context.Background(), "PreProcess: cleans", "is x related to y?")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !reflect.DeepEqual(plan.Steps, []string{"PreProcess", "Stats"}) || plan.Rationale != "clean, then test" {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if gotInputs[capability.FieldAgentDesc] != "PreProcess: cleans" || gotInputs[capability.FieldGoal] != "is x related to y?" {
		t.Fatalf("unexpected inputs %v", gotInputs)
	}
	if gotInstructions == "" {
		t.Fatalf("planner must attach instructions")
	}
}

func TestPlannerFailures(t *testing.T) {
	cases := map[string]completion.Service{
		"service error": completion.Func(func(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error) {
			return nil, errDown
		}),
		"malformed": completion.Func(func(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error) {
			return nil, &completion.MalformedResponseError{Field: "plan"}
		}),
		"missing rationale": completion.Func(func(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error) {
			return map[string]string{"plan": "A"}, nil
		}),
	}
	for name, svc := range cases {
		t.Run(name, func(t *testing.T) {
			plan, err := NewPlanner(svc, quiet()).Plan(context.Background(), "", "goal")
			if !errors.Is(err, ErrPlanning) || KindOf(err) != KindPlanning {
				t.Fatalf("expected PlanningError, got %v", err)
			}
			if len(plan.Steps) != 0 {
				t.Fatalf("no plan may be fabricated on failure, got %+v", plan)
			}
		})
	}
}
