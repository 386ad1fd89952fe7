package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkflowAgent(pool *AgentPool, name, response string) *MockModelProvider {
	router := NewFunctionRouter()
	provider := NewMockModelProvider(name)
	provider.QueueResponse(response)
	router.RegisterProvider(name, provider)
	router.RegisterFunction(FunctionMapping{FunctionID: name, Primary: name})
	pool.Register(NewAgent(AgentConfig{Name: name, Function: name, Template: "go"}, router))
	return provider
}

func TestPipeline_RunProducesOutputPerStepAndAssignsRunID(t *testing.T) {
	pool := NewAgentPool(0)
	newWorkflowAgent(pool, "drafter", "a draft")

	pipeline := NewPipeline("story", pool, []WorkflowStep{
		{Name: "draft", Mode: ModeParallel, AgentNames: []string{"drafter"}},
	})

	result := pipeline.Run(context.Background(), map[string]interface{}{})

	require.NoError(t, result.Err)
	assert.NotEmpty(t, result.RunID)
	assert.Contains(t, result.Output, "draft")
}

func TestPipeline_RequiredStepFailureAbortsRemainingSteps(t *testing.T) {
	pool := NewAgentPool(0)
	router := NewFunctionRouter()
	provider := NewMockModelProvider("broken")
	provider.QueueError(KindBadConfiguration, assert.AnError)
	router.RegisterProvider("broken", provider)
	router.RegisterFunction(FunctionMapping{FunctionID: "broken", Primary: "broken"})
	pool.Register(NewAgent(AgentConfig{Name: "broken", Function: "broken", Template: "go"}, router))

	neverRun := newWorkflowAgent(pool, "later", "should not run")

	pipeline := NewPipeline("story", pool, []WorkflowStep{
		{Name: "first", Mode: ModeParallel, AgentNames: []string{"broken"}, Required: true},
		{Name: "second", Mode: ModeParallel, AgentNames: []string{"later"}},
	})

	result := pipeline.Run(context.Background(), map[string]interface{}{})

	require.Error(t, result.Err)
	assert.Equal(t, "first", result.FailedStep)
	assert.Equal(t, 0, neverRun.CallCount())
}

func TestPipeline_OptionalStepFailureDoesNotAbort(t *testing.T) {
	pool := NewAgentPool(0)
	router := NewFunctionRouter()
	provider := NewMockModelProvider("broken")
	provider.QueueError(KindBadConfiguration, assert.AnError)
	router.RegisterProvider("broken", provider)
	router.RegisterFunction(FunctionMapping{FunctionID: "broken", Primary: "broken"})
	pool.Register(NewAgent(AgentConfig{Name: "broken", Function: "broken", Template: "go"}, router))

	newWorkflowAgent(pool, "after", "still ran")

	pipeline := NewPipeline("story", pool, []WorkflowStep{
		{Name: "first", Mode: ModeParallel, AgentNames: []string{"broken"}, Required: false},
		{Name: "second", Mode: ModeParallel, AgentNames: []string{"after"}, Required: true},
	})

	result := pipeline.Run(context.Background(), map[string]interface{}{})

	require.NoError(t, result.Err)
	assert.Contains(t, result.Output, "second")
	assert.NotContains(t, result.Output, "first")
}

func TestPipeline_CancelStopsBeforeNextStep(t *testing.T) {
	pool := NewAgentPool(0)
	neverRun := newWorkflowAgent(pool, "never", "should not run")

	pipeline := NewPipeline("story", pool, []WorkflowStep{
		{Name: "only", Mode: ModeParallel, AgentNames: []string{"never"}},
	})
	pipeline.Cancel()

	result := pipeline.Run(context.Background(), map[string]interface{}{})

	require.Error(t, result.Err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, KindCancelled, ErrorKind(result.Err))
	assert.Equal(t, 0, neverRun.CallCount())
}

func TestPipeline_ContextCancellationStopsBeforeNextStep(t *testing.T) {
	pool := NewAgentPool(0)
	neverRun := newWorkflowAgent(pool, "never", "should not run")

	pipeline := NewPipeline("story", pool, []WorkflowStep{
		{Name: "only", Mode: ModeParallel, AgentNames: []string{"never"}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := pipeline.Run(ctx, map[string]interface{}{})

	require.Error(t, result.Err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, 0, neverRun.CallCount())
}

func TestPipeline_SocraticStepRequiresExactlyTwoAgentsAndAGoal(t *testing.T) {
	pool := NewAgentPool(0)
	newWorkflowAgent(pool, "proposer", "a proposal")

	pipeline := NewPipeline("story", pool, []WorkflowStep{
		{Name: "debate", Mode: ModeSocratic, AgentNames: []string{"proposer"}, Goal: "write well"},
	})

	result := pipeline.Run(context.Background(), map[string]interface{}{})

	require.Error(t, result.Err)
	assert.Equal(t, KindBadConfiguration, ErrorKind(result.Err))

	newWorkflowAgent(pool, "critic", "a critique")
	noGoal := NewPipeline("story", pool, []WorkflowStep{
		{Name: "debate", Mode: ModeSocratic, AgentNames: []string{"proposer", "critic"}},
	})

	result = noGoal.Run(context.Background(), map[string]interface{}{})

	require.Error(t, result.Err)
	assert.Equal(t, KindBadInput, ErrorKind(result.Err))
}

func TestPipeline_AssemblyStepRequiresProposersJudgesAndSynthesizer(t *testing.T) {
	pool := NewAgentPool(0)

	pipeline := NewPipeline("story", pool, []WorkflowStep{
		{Name: "assemble", Mode: ModeAssembly, Proposers: []string{"p1"}},
	})

	result := pipeline.Run(context.Background(), map[string]interface{}{})

	require.Error(t, result.Err)
	assert.Equal(t, KindBadConfiguration, ErrorKind(result.Err))
}

func TestPipeline_UnknownModeIsBadConfiguration(t *testing.T) {
	pool := NewAgentPool(0)

	pipeline := NewPipeline("story", pool, []WorkflowStep{
		{Name: "mystery", Mode: ExecutionMode("not-a-real-mode")},
	})

	result := pipeline.Run(context.Background(), map[string]interface{}{})

	require.Error(t, result.Err)
	assert.Equal(t, KindBadConfiguration, ErrorKind(result.Err))
}

func TestPipeline_PreconditionFalseSkipsStepWithoutMarkingFailure(t *testing.T) {
	pool := NewAgentPool(0)
	neverRun := newWorkflowAgent(pool, "skippable", "should not run")
	newWorkflowAgent(pool, "after", "still ran")

	pipeline := NewPipeline("story", pool, []WorkflowStep{
		{
			Name:         "gated",
			Mode:         ModeParallel,
			AgentNames:   []string{"skippable"},
			Precondition: func(output map[string]interface{}) bool { return false },
		},
		{Name: "second", Mode: ModeParallel, AgentNames: []string{"after"}},
	})

	ch := make(chan ProgressEvent, 2)
	pipeline.Subscribe(ch)

	result := pipeline.Run(context.Background(), map[string]interface{}{})

	require.NoError(t, result.Err)
	assert.Equal(t, 0, neverRun.CallCount())
	assert.NotContains(t, result.Output, "gated")
	assert.Contains(t, result.Output, "second")

	gatedEvt := <-ch
	assert.Equal(t, "gated", gatedEvt.StepName)
	secondEvt := <-ch
	assert.Equal(t, "second", secondEvt.StepName)
}

func TestPipeline_PreconditionTrueRunsTheStep(t *testing.T) {
	pool := NewAgentPool(0)
	ran := newWorkflowAgent(pool, "gated-agent", "ran fine")

	pipeline := NewPipeline("story", pool, []WorkflowStep{
		{
			Name:         "gated",
			Mode:         ModeParallel,
			AgentNames:   []string{"gated-agent"},
			Precondition: func(output map[string]interface{}) bool { return true },
		},
	})

	result := pipeline.Run(context.Background(), map[string]interface{}{})

	require.NoError(t, result.Err)
	assert.Equal(t, 1, ran.CallCount())
	assert.Contains(t, result.Output, "gated")
}

func TestPipeline_SubscribeReceivesProgressEvents(t *testing.T) {
	pool := NewAgentPool(0)
	newWorkflowAgent(pool, "drafter", "a draft")

	pipeline := NewPipeline("story", pool, []WorkflowStep{
		{Name: "draft", Mode: ModeParallel, AgentNames: []string{"drafter"}},
	})

	ch := make(chan ProgressEvent, 1)
	pipeline.Subscribe(ch)

	pipeline.Run(context.Background(), map[string]interface{}{})

	select {
	case evt := <-ch:
		assert.Equal(t, "draft", evt.StepName)
		assert.Equal(t, 1, evt.CompletedCount)
		assert.Equal(t, 100.0, evt.Percent)
	default:
		t.Fatal("expected a progress event to be published")
	}
}
