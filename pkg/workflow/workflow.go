package workflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Step ids of the two-step earthquake workflow.
const (
	StepExtractLoad = "extract_load"
	StepTransform   = "transform"
)

const startDateLayout = "2006-01-02"

// Definition is the named, scheduled workflow: extract+load followed by transform.
type Definition struct {
	Name      string   `yaml:"name"`
	Schedule  string   `yaml:"schedule"`
	StartDate string   `yaml:"start_date"`
	Catchup   bool     `yaml:"catchup"`
	Tags      []string `yaml:"tags"`
	Steps     []Step   `yaml:"steps"`
}

// Step is one node of the workflow. After names the step it depends on.
type Step struct {
	ID      string `yaml:"id"`
	After   string `yaml:"after,omitempty"`
	Command string `yaml:"command,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// Default returns the built-in daily earthquake pipeline. Its steps carry no
// command or dir, so the transform settings come from configuration.
func Default() *Definition {
	return &Definition{
		Name:      "earthquake_pipeline",
		Schedule:  "@daily",
		StartDate: "2025-10-23",
		Catchup:   false,
		Tags:      []string{"portfolio", "earthquake", "dbt"},
		Steps: []Step{
			{ID: StepExtractLoad},
			{ID: StepTransform, After: StepExtractLoad},
		},
	}
}

// Load reads a YAML workflow definition from path and validates it.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file '%s': %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals and validates a YAML workflow definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow YAML: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition describes the supported workflow shape.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("validation error: workflow name is required")
	}
	if _, err := ParseSchedule(d.Schedule); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if d.StartDate != "" {
		if _, err := time.Parse(startDateLayout, d.StartDate); err != nil {
			return fmt.Errorf("validation error: start_date %q must be YYYY-MM-DD: %w", d.StartDate, err)
		}
	}
	if d.Catchup {
		return fmt.Errorf("validation error: catchup is not supported, missed runs are never replayed")
	}
	if len(d.Steps) != 2 {
		return fmt.Errorf("validation error: expected 2 steps (%s, %s), got %d", StepExtractLoad, StepTransform, len(d.Steps))
	}
	if d.Steps[0].ID != StepExtractLoad || d.Steps[0].After != "" {
		return fmt.Errorf("validation error: steps[0] must be %q with no dependency", StepExtractLoad)
	}
	if d.Steps[1].ID != StepTransform || d.Steps[1].After != StepExtractLoad {
		return fmt.Errorf("validation error: steps[1] must be %q after %q", StepTransform, StepExtractLoad)
	}
	return nil
}

// Start returns the first instant a run may happen in loc. Zero when unset.
func (d *Definition) Start(loc *time.Location) time.Time {
	if d.StartDate == "" {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(startDateLayout, d.StartDate, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Step returns the step with the given id.
func (d *Definition) Step(id string) (Step, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}
