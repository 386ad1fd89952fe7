package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWorkflowTOML = `
name = "short-story"

[[steps]]
name = "draft"
mode = "parallel"
agents = ["drafter"]
required = true

[[steps]]
name = "polish"
mode = "pipeline"
agents = ["drafter", "editor"]

[[steps]]
name = "finale"
mode = "assembly"
proposers = ["p1", "p2"]
judges = ["j1"]
synthesizer = "synth"
drop_bottom_k = 1

[[steps]]
name = "tag-vote"
mode = "consensus"
agents = ["v1", "v2", "v3"]
consensus_threshold = 0.6

[[steps]]
name = "debate"
mode = "socratic"
agents = ["proposer", "critic"]
goal = "tighten the scene"
max_rounds = 4
convergence_threshold = 0.85
`

func TestLoadWorkflowDef_ParsesStepsAndAssemblyFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleWorkflowTOML), 0o644))

	def, err := LoadWorkflowDef(path)

	require.NoError(t, err)
	assert.Equal(t, "short-story", def.Name)
	require.Len(t, def.Steps, 5)
	assert.Equal(t, "pipeline", def.Steps[1].Mode)
	assert.Equal(t, []string{"p1", "p2"}, def.Steps[2].Proposers)
	assert.Equal(t, 1, def.Steps[2].DropBottomK)
	assert.Equal(t, 0.6, def.Steps[3].ConsensusThreshold)
	assert.Equal(t, 0.85, def.Steps[4].ConvergenceThreshold)
}

func TestLoadWorkflowDef_MissingFileIsBadConfiguration(t *testing.T) {
	_, err := LoadWorkflowDef("/nonexistent/workflow.toml")

	require.Error(t, err)
	assert.Equal(t, KindBadConfiguration, ErrorKind(err))
}

func TestWorkflowDefToml_ToStepsPreservesAssemblyFields(t *testing.T) {
	def := WorkflowDefToml{
		Name: "x",
		Steps: []WorkflowStepToml{
			{Name: "finale", Mode: "assembly", Proposers: []string{"p1"}, Judges: []string{"j1"}, Synthesizer: "synth", DropBottomK: 2, MaxLoop: 4},
		},
	}

	steps := def.ToSteps()

	require.Len(t, steps, 1)
	assert.Equal(t, ModeAssembly, steps[0].Mode)
	assert.Equal(t, []string{"p1"}, steps[0].Proposers)
	assert.Equal(t, "synth", steps[0].Synthesizer)
	assert.Equal(t, 2, steps[0].DropBottomK)
	assert.Equal(t, 4, steps[0].MaxLoop)
	assert.Nil(t, steps[0].Validator, "a validator is never serialized; loaded steps always start with none")
}

func TestWorkflowDefToml_ToStepsPreservesThresholdFields(t *testing.T) {
	def := WorkflowDefToml{
		Name: "x",
		Steps: []WorkflowStepToml{
			{Name: "vote", Mode: "consensus", ConsensusThreshold: 0.7},
			{Name: "debate", Mode: "socratic", ConvergenceThreshold: 0.9},
		},
	}

	steps := def.ToSteps()

	require.Len(t, steps, 2)
	assert.Equal(t, 0.7, steps[0].ConsensusThreshold)
	assert.Equal(t, 0.9, steps[1].ConvergenceThreshold)
	assert.Nil(t, steps[0].Precondition, "a precondition predicate is never serialized; loaded steps always start with none")
}
