package capability

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Contract field names shared by the catalog, the agents and the completion layer.
const (
	FieldDataset       = "dataset"
	FieldGoal          = "goal"
	FieldCode          = "code"
	FieldCommentary    = "commentary"
	FieldAgentDesc     = "agent_desc"
	FieldPlan          = "plan"
	FieldPlanDesc      = "plan_desc"
	FieldAgentCodeList = "agent_code_list"
)

var (
	// ErrDuplicateAgent is returned when an agent name is registered twice.
	ErrDuplicateAgent = errors.New("duplicate agent")
	// ErrUnknownAgent is returned when a name does not resolve to a registered agent.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrInvalidSpec is returned for specs that cannot be invoked.
	ErrInvalidSpec = errors.New("invalid agent spec")
)

// Field is one named slot of an agent's input or output contract.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// AgentSpec statically declares an agent: its name, what it is for and its contract.
type AgentSpec struct {
	Name           string  `json:"name" yaml:"name"`
	Purpose        string  `json:"purpose" yaml:"purpose"`
	InputContract  []Field `json:"input_contract" yaml:"inputs"`
	OutputContract []Field `json:"output_contract" yaml:"outputs"`
	Signature      string  `json:"-" yaml:"signature,omitempty"`
}

// Output returns the output field with the given name.
func (s AgentSpec) Output(name string) (Field, bool) {
	for _, f := range s.OutputContract {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (s AgentSpec) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSpec)
	}
	if strings.Contains(s.Name, "->") {
		return fmt.Errorf("%w: name %q contains the plan separator", ErrInvalidSpec, s.Name)
	}
	code, ok := s.Output(FieldCode)
	if !ok {
		return fmt.Errorf("%w: %s has no %q output", ErrInvalidSpec, s.Name, FieldCode)
	}
	if code.Optional {
		return fmt.Errorf("%w: %s marks %q optional", ErrInvalidSpec, s.Name, FieldCode)
	}
	return nil
}

func (s AgentSpec) clone() AgentSpec {
	s.InputContract = append([]Field(nil), s.InputContract...)
	s.OutputContract = append([]Field(nil), s.OutputContract...)
	return s
}

// Description is the planner-facing view of a registered agent.
type Description struct {
	Name    string `json:"name"`
	Purpose string `json:"purpose"`
}

// Catalog holds the registered agents in registration order. Reads are safe
// for concurrent use; registration is expected to finish before runs start.
type Catalog struct {
	mu    sync.RWMutex
	order []string
	specs map[string]AgentSpec
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{specs: make(map[string]AgentSpec)}
}

// Register adds spec to the catalog.
func (c *Catalog) Register(spec AgentSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.specs[spec.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, spec.Name)
	}
	c.specs[spec.Name] = spec.clone()
	c.order = append(c.order, spec.Name)
	return nil
}

// MustRegister is Register for static catalogs; it panics on error.
func (c *Catalog) MustRegister(specs ...AgentSpec) *Catalog {
	for _, s := range specs {
		if err := c.Register(s); err != nil {
			panic(err)
		}
	}
	return c
}

// Resolve returns the spec registered under name. Read methods accept a nil
// catalog, which behaves as an empty one.
func (c *Catalog) Resolve(name string) (AgentSpec, error) {
	if c == nil {
		return AgentSpec{}, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	c.mu.RLock()
	spec, ok := c.specs[name]
	c.mu.RUnlock()
	if !ok {
		return AgentSpec{}, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return spec.clone(), nil
}

// DescribeAll lists (name, purpose) pairs in registration order.
func (c *Catalog) DescribeAll() []Description {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Description, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, Description{Name: name, Purpose: c.specs[name].Purpose})
	}
	return out
}

// Describe renders DescribeAll as the text handed to the planner.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for i, d := range c.DescribeAll() {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", d.Name, d.Purpose)
	}
	return b.String()
}

// Len returns the number of registered agents.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
