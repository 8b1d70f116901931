package bulk

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// State is where a site stopped in the per-site pipeline.
type State int

const (
	Idle State = iota
	Locating
	Collecting
	ConfirmArchive
	Archiving
	ConfirmUpgrade
	Upgrading
	Done
)

var stateNames = []string{"idle", "locating", "collecting", "confirm-archive", "archiving", "confirm-upgrade", "upgrading", "done"}

func (s State) String() string {
	if s < Idle || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown state '%s'", name)
}

func (s State) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s *State) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseState(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Site outcomes.
const (
	StatusCollected = "Collected"
	StatusSkipped   = "Skipped"
	StatusArchived  = "Archived"
	StatusUpgraded  = "Upgraded"
	StatusFailed    = "Failed"
)

// SiteResult is the outcome of one installation.
type SiteResult struct {
	Path           string       `yaml:"path"`
	Site           string       `yaml:"site,omitempty"`
	State          State        `yaml:"state"`
	Status         string       `yaml:"status"`
	PendingUpdates int          `yaml:"pendingUpdates"`
	Archive        string       `yaml:"archive,omitempty"`
	Details        string       `yaml:"details,omitempty"`
	Steps          []StepResult `yaml:"steps,omitempty"`

	Err error `yaml:"-"`
}

// StepResult is the outcome of one upgrade step. Error is empty on success.
type StepResult struct {
	Step  string `yaml:"step"`
	Error string `yaml:"error,omitempty"`
}

// RunSummary is written to --summary after a run.
type RunSummary struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Started    time.Time    `yaml:"started"`
	Finished   time.Time    `yaml:"finished"`
	Target     string       `yaml:"target"`
	Report     string       `yaml:"report,omitempty"`
	UpdateMode bool         `yaml:"updateMode"`
	Skipped    []string     `yaml:"skippedPaths,omitempty"`
	Sites      []SiteResult `yaml:"sites"`
}

func writeSummary(path string, s *RunSummary) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write run summary %s: %w", path, err)
	}
	return nil
}

// ReadSummary loads a summary written by a previous run.
func ReadSummary(path string) (*RunSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run summary %s: %w", path, err)
	}
	var s RunSummary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML from %s: %w", path, err)
	}
	return &s, nil
}
