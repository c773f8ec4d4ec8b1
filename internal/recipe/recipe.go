// Package recipe describes what the provisioning agent installs on a new VM.
//
// A recipe is a YAML document listing the inbound ports the VM needs and the
// shell steps the agent runs, each with its own retry budget.
package recipe

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

var stepNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_]*$`)

// Request parameters a recipe may list under requires.
const (
	RequiresDomain = "domain"
)

// Recipe is a named provisioning plan.
type Recipe struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Ports       []int    `yaml:"ports,omitempty"`
	Requires    []string `yaml:"requires,omitempty"`
	Steps       []Step   `yaml:"steps"`
}

// Step is one shell command run by the agent.
type Step struct {
	Name     string   `yaml:"name"`
	Run      string   `yaml:"run"`
	Tolerant bool     `yaml:"tolerant,omitempty"`
	Attempts int      `yaml:"attempts,omitempty"`
	Delay    Duration `yaml:"delay,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty"`
}

// Duration is a time.Duration written as "30s" in YAML.
type Duration time.Duration

// UnmarshalYAML parses Go duration syntax.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes Go duration syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// IsZero lets omitempty drop unset durations.
func (d Duration) IsZero() bool { return d == 0 }

// Parse decodes and validates a recipe.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse recipe: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Load reads and parses a recipe file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Validate checks names, ports and retry settings.
func (r *Recipe) Validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("recipe name is required"))
	}
	if len(r.Steps) == 0 {
		errs = append(errs, errors.New("recipe has no steps"))
	}
	for _, p := range r.Ports {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("port %d out of range", p))
		}
	}
	for _, req := range r.Requires {
		if req != RequiresDomain {
			errs = append(errs, fmt.Errorf("unknown requirement %q", req))
		}
	}
	seen := make(map[string]bool, len(r.Steps))
	for i, s := range r.Steps {
		switch {
		case !stepNamePattern.MatchString(s.Name):
			errs = append(errs, fmt.Errorf("step %d: name %q must be lower_snake_case", i, s.Name))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("step %d: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Run == "" {
			errs = append(errs, fmt.Errorf("step %q: run is required", s.Name))
		}
		if s.Attempts < 0 || s.Attempts > 10 {
			errs = append(errs, fmt.Errorf("step %q: attempts must be between 0 and 10", s.Name))
		}
		if s.Delay < 0 || s.Timeout < 0 {
			errs = append(errs, fmt.Errorf("step %q: negative duration", s.Name))
		}
	}
	return errors.Join(errs...)
}

// NeedsDomain reports whether the recipe only works with a domain name.
func (r *Recipe) NeedsDomain() bool {
	return slices.Contains(r.Requires, RequiresDomain)
}

// Marshal encodes the recipe back to YAML.
func (r *Recipe) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}
