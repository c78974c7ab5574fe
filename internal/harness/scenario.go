package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of transactions and the checks that
// must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions is a directory holding one CUE package of classes and
	// processes. Relative paths are resolved against the scenario file.
	Definitions string `yaml:"definitions,omitempty"`

	// Source is inline CUE, used instead of Definitions.
	Source string `yaml:"source,omitempty"`

	// Actor submits every step. Defaults to DefaultActor.
	Actor string `yaml:"actor,omitempty"`

	// Space holds created documents. Defaults to DefaultSpace.
	Space string `yaml:"space,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one transaction. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// ID is the document of create, update, mixin and remove.
	ID string `yaml:"id,omitempty"`

	// Class is the class of a created document.
	Class string `yaml:"class,omitempty"`

	// Attrs are the attributes of create and mixin.
	Attrs map[string]any `yaml:"attrs,omitempty"`

	// Ops is an update in wire form: plain assignments plus $-operators.
	Ops map[string]any `yaml:"ops,omitempty"`

	// Mixin is the mixin class of a mixin step.
	Mixin string `yaml:"mixin,omitempty"`

	// Card and Process select the execution whose checkpoint a complete
	// step finishes.
	Card    string `yaml:"card,omitempty"`
	Process string `yaml:"process,omitempty"`

	// Results are written to the checkpoint by a complete step.
	Results map[string]any `yaml:"results,omitempty"`

	// Approved is the decision of a complete step on an approval request.
	Approved *bool `yaml:"approved,omitempty"`

	// Undo is the 1-based number of the step a rollback step undoes.
	Undo int `yaml:"step,omitempty"`
}

// Step operations.
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpMixin    = "mixin"
	OpRemove   = "remove"
	OpComplete = "complete"
	OpRollback = "rollback"
)

// Assertion checks the state left behind by the steps.
type Assertion struct {
	Type    string         `yaml:"type"`
	Card    string         `yaml:"card,omitempty"`
	Process string         `yaml:"process,omitempty"`
	State   string         `yaml:"state,omitempty"`
	Status  string         `yaml:"status,omitempty"`
	Context map[string]any `yaml:"context,omitempty"`
	ID      string         `yaml:"id,omitempty"`
	Attrs   map[string]any `yaml:"attrs,omitempty"`
	Exists  *bool          `yaml:"exists,omitempty"`
	Count   *int           `yaml:"count,omitempty"`
	Open    *int           `yaml:"open,omitempty"`
	Kind    string         `yaml:"kind,omitempty"`
	Class   string         `yaml:"class,omitempty"`
}

// Assertion type constants.
const (
	AssertExecution   = "execution"
	AssertExecutions  = "executions"
	AssertCheckpoints = "checkpoints"
	AssertDocument    = "document"
	AssertTraceCount  = "trace_count"
)

// Scenario defaults.
const (
	DefaultActor = "harness"
	DefaultSpace = "space-1"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Definitions != "" && !filepath.IsAbs(scenario.Definitions) {
		scenario.Definitions = filepath.Join(filepath.Dir(path), scenario.Definitions)
	}
	if scenario.Definitions != "" {
		if _, err := os.Stat(scenario.Definitions); err != nil {
			return nil, fmt.Errorf("invalid scenario: definitions: %w", err)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Definitions paths are left as given.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.Actor == "" {
		scenario.Actor = DefaultActor
	}
	if scenario.Space == "" {
		scenario.Space = DefaultSpace
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Definitions == "") == (s.Source == "") {
		return fmt.Errorf("exactly one of definitions and source is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, s Step) error {
	switch s.Op {
	case OpCreate:
		if s.ID == "" || s.Class == "" {
			return fmt.Errorf("steps[%d]: create needs id and class", i)
		}
	case OpUpdate:
		if s.ID == "" || len(s.Ops) == 0 {
			return fmt.Errorf("steps[%d]: update needs id and ops", i)
		}
	case OpMixin:
		if s.ID == "" || s.Mixin == "" {
			return fmt.Errorf("steps[%d]: mixin needs id and mixin", i)
		}
	case OpRemove:
		if s.ID == "" {
			return fmt.Errorf("steps[%d]: remove needs id", i)
		}
	case OpComplete:
		if s.Card == "" || s.Process == "" {
			return fmt.Errorf("steps[%d]: complete needs card and process", i)
		}
	case OpRollback:
		if s.Undo < 1 || s.Undo > i {
			return fmt.Errorf("steps[%d]: rollback must name an earlier step, got %d", i, s.Undo)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, s.Op)
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertExecution:
		if a.Card == "" || a.Process == "" {
			return fmt.Errorf("assertions[%d]: execution needs card and process", i)
		}
	case AssertExecutions:
		if a.Card == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: executions needs card and count", i)
		}
	case AssertCheckpoints:
		if a.Card == "" || a.Process == "" || (a.Count == nil && a.Open == nil) {
			return fmt.Errorf("assertions[%d]: checkpoints needs card, process and count or open", i)
		}
	case AssertDocument:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: document needs id", i)
		}
	case AssertTraceCount:
		if a.Class == "" || a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: trace_count needs class and a non-negative count", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
