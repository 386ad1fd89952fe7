package core

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// WorkflowDefToml is the on-disk TOML shape of a Pipeline: a name and an
// ordered list of steps. This is the portable representation a pipeline
// author serializes to and a CLI host loads from.
type WorkflowDefToml struct {
	Name  string             `toml:"name"`
	Steps []WorkflowStepToml `toml:"steps"`
}

// WorkflowStepToml is the TOML representation of a WorkflowStep.
type WorkflowStepToml struct {
	Name         string            `toml:"name"`
	Mode         string            `toml:"mode"`
	AgentNames   []string          `toml:"agents"`
	InputMapping map[string]string `toml:"input_mapping"`
	Required     bool              `toml:"required"`

	ConsensusThreshold float64 `toml:"consensus_threshold"`

	Goal                 string  `toml:"goal"`
	MaxRounds            int     `toml:"max_rounds"`
	ConvergenceThreshold float64 `toml:"convergence_threshold"`

	CollabContext string `toml:"context"`
	Character     string `toml:"character"`
	K             int    `toml:"k"`

	Proposers   []string `toml:"proposers"`
	Judges      []string `toml:"judges"`
	Synthesizer string   `toml:"synthesizer"`
	DropBottomK int      `toml:"drop_bottom_k"`
	MaxLoop     int      `toml:"max_loop"`
}

// LoadWorkflowDef reads a workflow definition from a TOML file.
func LoadWorkflowDef(path string) (WorkflowDefToml, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return WorkflowDefToml{}, &EngineError{Kind: KindBadConfiguration, Op: "LoadWorkflowDef", Err: fmt.Errorf("workflow file not found: %s", path)}
	}

	var def WorkflowDefToml
	if _, err := toml.DecodeFile(path, &def); err != nil {
		return WorkflowDefToml{}, &EngineError{Kind: KindBadConfiguration, Op: "LoadWorkflowDef", Err: fmt.Errorf("failed to parse %s: %w", path, err)}
	}
	return def, nil
}

// ToSteps converts the TOML definition to the WorkflowSteps a Pipeline runs.
// Validators are never serialized: an assembly step loaded this way always
// runs with a nil validator unless the caller overrides it afterward.
func (d WorkflowDefToml) ToSteps() []WorkflowStep {
	steps := make([]WorkflowStep, 0, len(d.Steps))
	for _, s := range d.Steps {
		steps = append(steps, WorkflowStep{
			Name:                 s.Name,
			Mode:                 ExecutionMode(s.Mode),
			AgentNames:           s.AgentNames,
			InputMapping:         s.InputMapping,
			Required:             s.Required,
			ConsensusThreshold:   s.ConsensusThreshold,
			Goal:                 s.Goal,
			MaxRounds:            s.MaxRounds,
			ConvergenceThreshold: s.ConvergenceThreshold,
			CollabContext:        s.CollabContext,
			Character:     s.Character,
			K:             s.K,
			Proposers:     s.Proposers,
			Judges:        s.Judges,
			Synthesizer:   s.Synthesizer,
			DropBottomK:   s.DropBottomK,
			MaxLoop:       s.MaxLoop,
		})
	}
	return steps
}
