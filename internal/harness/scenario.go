package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one command scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Templates are registered first, in order.
	Templates []string `yaml:"templates,omitempty"`

	// TemplateFile is a line-oriented template file registered after
	// Templates. Relative paths resolve against the scenario file.
	TemplateFile string `yaml:"template_file,omitempty"`

	// Catalog is a CUE catalog registered after TemplateFile.
	Catalog string `yaml:"catalog,omitempty"`

	// Types are custom types installed before any template compiles.
	Types map[string]TypeSpec `yaml:"types,omitempty"`

	// HistorySize overrides the engine's history size when set.
	HistorySize *int `yaml:"history_size,omitempty"`

	// Routes answer matched events, tried in order.
	Routes []Route `yaml:"routes,omitempty"`

	// Steps are the commands handled, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the whole trace after all steps ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// TypeSpec is a custom type. In YAML it is either a bare pattern string
// or a mapping with pattern and convert (a registered type to borrow the
// converter of).
type TypeSpec struct {
	Pattern   string `yaml:"pattern"`
	ConvertAs string `yaml:"convert,omitempty"`
}

// UnmarshalYAML accepts the bare pattern form.
func (t *TypeSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Pattern = node.Value
		return nil
	}
	type plain TypeSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = TypeSpec(p)
	return nil
}

// Route is a canned handler.
type Route struct {
	// Template selects events that matched it. Empty selects every
	// matched event.
	Template string `yaml:"template,omitempty"`

	// Echo returns the captured vars as the result.
	Echo bool `yaml:"echo,omitempty"`

	// Result is returned as-is when Echo is false and Error is empty.
	Result any `yaml:"result,omitempty"`

	// Error makes the handler fail with this message.
	Error string `yaml:"error,omitempty"`
}

// Step is one handled command.
type Step struct {
	Command string         `yaml:"command"`
	Meta    map[string]any `yaml:"meta,omitempty"`
	Expect  *Expect        `yaml:"expect,omitempty"`
}

// Expect checks one step's result. Unset fields are not checked.
type Expect struct {
	OK *bool `yaml:"ok,omitempty"`

	// Template is the raw template expected to match.
	Template string `yaml:"template,omitempty"`

	// Vars is a subset match against the captures.
	Vars map[string]any `yaml:"vars,omitempty"`

	// Feedback is the adapter feedback flag for the result.
	Feedback *bool `yaml:"feedback,omitempty"`

	// Result is a subset match for mapping results, equality otherwise.
	Result any `yaml:"result,omitempty"`

	// Error expects a failed result whose message contains this text.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final trace or engine state.
type Assertion struct {
	Type      string         `yaml:"type"`
	Template  string         `yaml:"template,omitempty"`
	Templates []string       `yaml:"templates,omitempty"`
	Vars      map[string]any `yaml:"vars,omitempty"`
	Metric    string         `yaml:"metric,omitempty"`
	Count     int            `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertMetric        = "metric"
	AssertHistoryLen    = "history_len"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// Relative template_file and catalog paths are resolved against the
// scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	if scenario.TemplateFile != "" && !filepath.IsAbs(scenario.TemplateFile) {
		scenario.TemplateFile = filepath.Join(base, scenario.TemplateFile)
	}
	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(base, scenario.Catalog)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "step:" vs "steps:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and assertion shapes.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Templates) == 0 && s.TemplateFile == "" && s.Catalog == "" {
		return fmt.Errorf("at least one of templates, template_file or catalog is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one command")
	}
	if s.HistorySize != nil && *s.HistorySize < 0 {
		return fmt.Errorf("history_size must be non-negative")
	}
	for name, t := range s.Types {
		if t.Pattern == "" {
			return fmt.Errorf("types.%s: pattern is required", name)
		}
	}
	for i, r := range s.Routes {
		if r.Echo && r.Error != "" {
			return fmt.Errorf("routes[%d]: echo and error are exclusive", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Template == "" {
			return fmt.Errorf("assertions[%d]: template is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Templates) == 0 {
			return fmt.Errorf("assertions[%d]: templates list is required for trace_order", index)
		}
	case AssertTraceCount, AssertHistoryLen:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertMetric:
		if a.Metric == "" {
			return fmt.Errorf("assertions[%d]: metric is required for metric", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
