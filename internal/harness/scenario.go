package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/crudkit/internal/ir"
)

// Scenario is a scripted sequence of procedure calls with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs is a directory of .cue entity specs, relative to the scenario
	// file. Empty means the embedded default catalog.
	Specs string `yaml:"specs,omitempty"`

	// Setup calls establish initial state and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow calls are checked against their expect clauses.
	Flow []FlowStep `yaml:"flow"`

	// Assertions check the trace and final database state.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Path is the file the scenario was loaded from.
	Path string `yaml:"-"`
}

// Step is one procedure call.
type Step struct {
	Invoke string         `yaml:"invoke"`
	Args   map[string]any `yaml:"args"`
}

// FlowStep is a procedure call with an optional expectation. A step
// without expect must succeed.
type FlowStep struct {
	Invoke string         `yaml:"invoke"`
	Args   map[string]any `yaml:"args"`
	Expect *Expect        `yaml:"expect,omitempty"`
}

// Expect describes the outcome of a flow step.
type Expect struct {
	// Status is "ok" (default) or "error".
	Status string `yaml:"status,omitempty"`

	// Code is the expected error code, e.g. NOT_FOUND. Implies status error.
	Code string `yaml:"code,omitempty"`

	// Result is matched against an object result with subset semantics.
	Result map[string]any `yaml:"result,omitempty"`

	// Count is the expected length of a list result.
	Count *int `yaml:"count,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Procedure is used by trace_contains and trace_count.
	Procedure string `yaml:"procedure,omitempty"`

	// Args are matched with subset semantics by trace_contains.
	Args map[string]any `yaml:"args,omitempty"`

	// Procedures is the expected order for trace_order.
	Procedures []string `yaml:"procedures,omitempty"`

	// Entity is queried by final_state and row_count.
	Entity string `yaml:"entity,omitempty"`

	// Where holds equality filters for final_state and row_count.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds field values for final_state (subset).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is used by trace_count and row_count.
	Count int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
)

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	s.Path = path
	if s.Specs != "" && !filepath.IsAbs(s.Specs) {
		s.Specs = filepath.Join(filepath.Dir(path), s.Specs)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadDir loads every .yaml and .yml file in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	names := make(map[string]string)
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		if prev, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("scenario name %q used by both %s and %s", s.Name, prev, p)
		}
		names[s.Name] = p
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validName(s.Name) {
		return fmt.Errorf("name %q may only contain letters, digits, '_' and '-'", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if s.Specs != "" {
		if _, err := os.Stat(s.Specs); err != nil {
			return fmt.Errorf("specs directory: %w", err)
		}
	}

	for i, step := range s.Setup {
		if step.Invoke == "" {
			return fmt.Errorf("setup[%d]: invoke is required", i)
		}
	}
	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if err := validateExpect(step.Expect); err != nil {
			return fmt.Errorf("flow[%d].expect: %w", i, err)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateExpect(e *Expect) error {
	if e == nil {
		return nil
	}
	switch e.Status {
	case "":
		e.Status = StatusOK
		if e.Code != "" {
			e.Status = StatusError
		}
	case StatusOK, StatusError:
	default:
		return fmt.Errorf("status must be %q or %q, got %q", StatusOK, StatusError, e.Status)
	}
	if e.Status == StatusOK && e.Code != "" {
		return fmt.Errorf("code %s given with status ok", e.Code)
	}
	if e.Status == StatusError && (e.Result != nil || e.Count != nil) {
		return fmt.Errorf("result and count only apply to status ok")
	}
	if e.Result != nil && e.Count != nil {
		return fmt.Errorf("result and count are mutually exclusive")
	}
	if e.Count != nil && *e.Count < 0 {
		return fmt.Errorf("count must be non-negative")
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Procedure == "" {
			return fmt.Errorf("assertions[%d]: procedure is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Procedures) == 0 {
			return fmt.Errorf("assertions[%d]: procedures list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Procedure == "" {
			return fmt.Errorf("assertions[%d]: procedure is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validName(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// toIRObject converts YAML-decoded arguments to an IRObject.
func toIRObject(m map[string]any) (ir.IRObject, error) {
	if m == nil {
		return ir.IRObject{}, nil
	}
	v, err := ir.FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(ir.IRObject), nil
}
