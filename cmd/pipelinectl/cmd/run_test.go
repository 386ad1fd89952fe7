package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yarnspinner/pipeline/core"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name   string
		result core.WorkflowResult
		want   int
	}{
		{"success", core.WorkflowResult{}, 0},
		{"cancelled", core.WorkflowResult{Cancelled: true, Err: errors.New("cancelled")}, 2},
		{"bad configuration", core.WorkflowResult{Err: &core.EngineError{Kind: core.KindBadConfiguration, Err: errors.New("x")}}, 3},
		{"no provider", core.WorkflowResult{Err: &core.EngineError{Kind: core.KindNoProvider, Err: errors.New("x")}}, 4},
		{"required step failure", core.WorkflowResult{Err: &core.EngineError{Kind: core.KindParseFailed, Err: errors.New("x")}}, 1},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, exitCodeFor(c.result), c.name)
	}
}

func TestReadInput_EmptyPathReturnsEmptyMap(t *testing.T) {
	input, err := readInput("")

	assert.NoError(t, err)
	assert.Empty(t, input)
}

func TestReadInput_MissingFileReturnsError(t *testing.T) {
	_, err := readInput("/nonexistent/input.json")

	assert.Error(t, err)
}
