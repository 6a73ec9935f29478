package agent

// State is the lifecycle position of an Engine.
type State string

const (
	StatePlanning  State = "PLANNING"
	StateExecuting State = "EXECUTING"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// ExecutionPlan is the planner's ordered choice of agents. Names may repeat.
type ExecutionPlan struct {
	Steps     []string `json:"steps"`
	Rationale string   `json:"rationale"`
}

// AgentResult is the output of one executed step.
type AgentResult struct {
	AgentName  string `json:"agent_name"`
	Commentary string `json:"commentary,omitempty"`
	Code       string `json:"code"`
}

// TraceEntry pairs a plan position with its result.
type TraceEntry struct {
	Step   int         `json:"step"`
	Result AgentResult `json:"result"`
}

// ExecutionTrace holds the results of completed steps in plan order.
type ExecutionTrace []TraceEntry

// Names returns the agent names of the trace in order.
func (t ExecutionTrace) Names() []string {
	out := make([]string, len(t))
	for i, e := range t {
		out[i] = e.Result.AgentName
	}
	return out
}

// Results drops the step indexes.
func (t ExecutionTrace) Results() []AgentResult {
	out := make([]AgentResult, len(t))
	for i, e := range t {
		out[i] = e.Result
	}
	return out
}

// FinalArtifact is the merged script of a successful run.
type FinalArtifact struct {
	Code string `json:"code"`
}
