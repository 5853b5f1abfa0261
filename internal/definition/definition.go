package definition

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Objective selects what "best" means when ranking variants.
const (
	ObjectiveQuality = "quality"
	ObjectiveCost    = "cost"
	ObjectiveSpeed   = "speed"
)

// DefaultProvider is the label used when a definition names no providers.
// It is only an artifact namespace; the harness never interprets it.
const DefaultProvider = "default"

// Definition is one declarative benchmark: the variants under comparison and
// the scenarios every variant must face. Test definitions are YAML; JSON
// documents parse as a YAML subset.
type Definition struct {
	TestName    string     `yaml:"test_name"`
	Description string     `yaml:"description"`
	Providers   []string   `yaml:"providers"`
	Iterations  int        `yaml:"iterations"`
	Variants    []Variant  `yaml:"variants"`
	Scenarios   []Scenario `yaml:"scenarios"`
	Metrics     Metrics    `yaml:"metrics"`
	Harness     Harness    `yaml:"harness"`
}

// Variant is one named configuration alternative. Config is either a scalar
// file path or an inline mapping; Overrides is a mapping of dotted paths to
// replacement values, applied in document order.
type Variant struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Config      yaml.Node `yaml:"config"`
	Overrides   yaml.Node `yaml:"config_overrides"`
	Image       string    `yaml:"image"`
}

// Scenario is one task prompt plus its success checks.
type Scenario struct {
	Name           string      `yaml:"name"`
	Prompt         string      `yaml:"prompt"`
	Agent          string      `yaml:"agent"`
	TimeoutSeconds int         `yaml:"timeout_seconds"`
	Keywords       []string    `yaml:"expected_output_keywords"`
	Criteria       []Criterion `yaml:"success_criteria"`
}

// Criterion is a single pattern check against captured output. Patterns match
// case-insensitively across the whole output, not line by line.
type Criterion struct {
	Criterion   string `yaml:"criterion"`
	Description string `yaml:"description"`
	Pattern     string `yaml:"check_pattern"`
}

type Metrics struct {
	Primary  string            `yaml:"primary"`
	Patterns map[string]string `yaml:"patterns"`
}

// Harness carries run-level settings embedded in the definition. Flags and
// CRUCIBLE_* environment variables take precedence over all of these.
type Harness struct {
	SubjectBin           string `yaml:"subject_bin"`
	ResultsDir           string `yaml:"results_dir"`
	StartupGraceSeconds  int    `yaml:"startup_grace_seconds"`
	ShutdownGraceSeconds int    `yaml:"shutdown_grace_seconds"`
	CallTimeoutSeconds   int    `yaml:"call_timeout_seconds"`
}

// Error reports a malformed or incomplete test definition. It aborts the
// whole run; nothing downstream attempts partial recovery.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("test definition: missing required field %q", e.Field)
	}
	return fmt.Sprintf("test definition: field %q: %s", e.Field, e.Reason)
}

// Load reads, parses and validates one test definition document.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading test definition %s: %w", path, err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing test definition %s: %w", path, err)
	}
	if err := validate(&def); err != nil {
		return nil, fmt.Errorf("invalid test definition %s: %w", path, err)
	}
	return &def, nil
}

func validate(def *Definition) error {
	if def.TestName == "" {
		return &Error{Field: "test_name"}
	}
	if def.Description == "" {
		return &Error{Field: "description"}
	}
	if len(def.Variants) == 0 {
		return &Error{Field: "variants"}
	}
	if len(def.Scenarios) == 0 {
		return &Error{Field: "scenarios"}
	}
	seen := make(map[string]bool, len(def.Variants))
	for i := range def.Variants {
		v := &def.Variants[i]
		if v.Name == "" {
			return &Error{Field: fmt.Sprintf("variants[%d].name", i)}
		}
		if seen[v.Name] {
			return &Error{Field: fmt.Sprintf("variants[%d].name", i), Reason: fmt.Sprintf("duplicate variant %q", v.Name)}
		}
		seen[v.Name] = true
		if v.Config.Kind == 0 {
			return &Error{Field: fmt.Sprintf("variants[%d].config", i)}
		}
		if v.Config.Kind != yaml.ScalarNode && v.Config.Kind != yaml.MappingNode {
			return &Error{Field: fmt.Sprintf("variants[%d].config", i), Reason: "must be a file path or an inline mapping"}
		}
		if v.Overrides.Kind != 0 && v.Overrides.Kind != yaml.MappingNode {
			return &Error{Field: fmt.Sprintf("variants[%d].config_overrides", i), Reason: "must be a mapping"}
		}
	}
	for i := range def.Scenarios {
		s := &def.Scenarios[i]
		if s.Name == "" {
			return &Error{Field: fmt.Sprintf("scenarios[%d].name", i)}
		}
		if s.Prompt == "" {
			return &Error{Field: fmt.Sprintf("scenarios[%d].prompt", i)}
		}
	}
	switch def.Metrics.Primary {
	case "":
		def.Metrics.Primary = ObjectiveQuality
	case ObjectiveQuality, ObjectiveCost, ObjectiveSpeed:
	default:
		return &Error{Field: "metrics.primary", Reason: fmt.Sprintf("unknown objective %q", def.Metrics.Primary)}
	}
	if def.Iterations < 1 {
		def.Iterations = 1
	}
	if len(def.Providers) == 0 {
		def.Providers = []string{DefaultProvider}
	}
	return nil
}

// ConfigFile returns the variant's configuration file path when the config
// source is a reference rather than an inline mapping.
func (v *Variant) ConfigFile() (string, bool) {
	if v.Config.Kind == yaml.ScalarNode {
		return v.Config.Value, true
	}
	return "", false
}

// Inline returns the variant's inline configuration mapping, if any.
func (v *Variant) Inline() (*yaml.Node, bool) {
	if v.Config.Kind == yaml.MappingNode {
		return &v.Config, true
	}
	return nil, false
}

// Override is one dotted-path assignment.
type Override struct {
	Path  string
	Value *yaml.Node
}

// OverrideList returns the variant's overrides in document order. A Go map
// would lose the order the definition wrote them in.
func (v *Variant) OverrideList() []Override {
	if v.Overrides.Kind != yaml.MappingNode {
		return nil
	}
	overrides := make([]Override, 0, len(v.Overrides.Content)/2)
	for i := 0; i+1 < len(v.Overrides.Content); i += 2 {
		overrides = append(overrides, Override{
			Path:  v.Overrides.Content[i].Value,
			Value: v.Overrides.Content[i+1],
		})
	}
	return overrides
}

// Timeout returns the scenario's call timeout, falling back to the given
// default when the scenario declares none.
func (s *Scenario) Timeout(fallback int) int {
	if s.TimeoutSeconds > 0 {
		return s.TimeoutSeconds
	}
	return fallback
}
