package agent

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/analyst/internal/capability"
)

const plannerInstructions = `You are a data analytics planner agent. Create a strategic plan for achieving a user-defined goal using the available agents.

Inputs:
  AGENT_DESC: the available data agents, one per line as "name: purpose".
  GOAL: the end objective the user wants to accomplish.

Task:
  1. Decide which agents to use, and in which order, to best achieve the goal.
  2. Use only the agents that are relevant; you do not have to use all of them.
  3. Refer to agents only by their exact names.

Output:
  plan: the agent names joined by "->", e.g. "Agent1 -> Agent3".
  plan_desc: why each agent was selected and how it contributes to the goal.`

const combinerInstructions = `You are a code combine agent. Combine Python code from multiple agents into a single, error-free script.
Fix any syntax, logical or compatibility issues, remove redundancy and keep the order of the steps.
Output the final, well-commented Python code as "code".`

// agentInstructions renders the task description of one agent from its spec.
func agentInstructions(spec capability.AgentSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s agent. %s\n", spec.Name, spec.Purpose)
	writeFields(&b, "Inputs", spec.InputContract)
	writeFields(&b, "Outputs", spec.OutputContract)
	return strings.TrimRight(b.String(), "\n")
}

func writeFields(b *strings.Builder, title string, fields []capability.Field) {
	if len(fields) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, f := range fields {
		if f.Description == "" {
			fmt.Fprintf(b, "  %s\n", f.Name)
			continue
		}
		fmt.Fprintf(b, "  %s: %s\n", f.Name, f.Description)
	}
}
