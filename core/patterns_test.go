package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPooledAgent registers a mock-backed agent named name in pool, queuing
// response as its only output (or err, classified as kind, if err is set).
func newPooledAgent(pool *AgentPool, name string, response string, parser Parser) *MockModelProvider {
	router := NewFunctionRouter()
	provider := NewMockModelProvider(name)
	router.RegisterProvider(name, provider)
	router.RegisterFunction(FunctionMapping{FunctionID: name, Primary: name})
	if response != "" {
		provider.QueueResponse(response)
	}
	pool.Register(NewAgent(AgentConfig{Name: name, Function: name, Template: "go", Parser: parser}, router))
	return provider
}

func newFailingPooledAgent(pool *AgentPool, name string, kind Kind) *MockModelProvider {
	router := NewFunctionRouter()
	provider := NewMockModelProvider(name)
	router.RegisterProvider(name, provider)
	router.RegisterFunction(FunctionMapping{FunctionID: name, Primary: name})
	provider.QueueError(kind, assert.AnError)
	pool.Register(NewAgent(AgentConfig{Name: name, Function: name, Template: "go"}, router))
	return provider
}

func TestRunParallel_ReturnsAllResultsInAgentOrder(t *testing.T) {
	pool := NewAgentPool(0)
	newPooledAgent(pool, "a", "output-a", nil)
	newPooledAgent(pool, "b", "output-b", nil)

	results := RunParallel(context.Background(), pool, []string{"a", "b"}, map[string]interface{}{})

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].AgentName)
	assert.Equal(t, "output-a", results[0].Response.RawOutput)
	assert.Equal(t, "b", results[1].AgentName)
	assert.Equal(t, "output-b", results[1].Response.RawOutput)
}

func TestRunSequential_ContinuesPastFailureAndUsesOriginalInput(t *testing.T) {
	pool := NewAgentPool(0)
	newFailingPooledAgent(pool, "broken", KindBadConfiguration)
	okProvider := newPooledAgent(pool, "ok", "survived", nil)

	results := RunSequential(context.Background(), pool, []string{"broken", "ok"}, map[string]interface{}{})

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.Equal(t, "survived", results[1].Response.RawOutput)
	assert.Equal(t, 1, okProvider.CallCount(), "every agent must still run even after an earlier failure")
}

func TestRunPipeline_StopsAtFirstFailure(t *testing.T) {
	pool := NewAgentPool(0)
	newFailingPooledAgent(pool, "broken", KindBadConfiguration)
	neverCalled := newPooledAgent(pool, "downstream", "should not run", nil)

	results := RunPipeline(context.Background(), pool, []string{"broken", "downstream"}, map[string]interface{}{})

	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Equal(t, 0, neverCalled.CallCount(), "a pipeline must not invoke downstream agents after a failure")
}

func TestRunPipeline_ChainsParsedOutputIntoNextAgentsInput(t *testing.T) {
	pool := NewAgentPool(0)
	newPooledAgent(pool, "first", "first-output", nil)

	router := NewFunctionRouter()
	provider := NewMockModelProvider("second")
	router.RegisterProvider("second", provider)
	router.RegisterFunction(FunctionMapping{FunctionID: "second", Primary: "second"})
	provider.QueueResponse("second-output")
	pool.Register(NewAgent(AgentConfig{
		Name: "second", Function: "second",
		Template: "{{.first}}",
	}, router))

	results := RunPipeline(context.Background(), pool, []string{"first", "second"}, map[string]interface{}{})

	require.Len(t, results, 2)
	require.NoError(t, results[1].Err)
	assert.Equal(t, "first-output", provider.Calls()[0].Params.Prompt)
}

func TestRunConsensus_AcceptsItemsAtOrAboveThresholdRejectsTheRest(t *testing.T) {
	pool := NewAgentPool(0)
	newPooledAgent(pool, "v1", "A,B,C", nil)
	newPooledAgent(pool, "v2", "A,B,C", nil)
	newPooledAgent(pool, "v3", "A,B", nil)
	newPooledAgent(pool, "v4", "A,D", nil)
	newPooledAgent(pool, "v5", "A,B,E", nil)

	result, err := RunConsensus(context.Background(), pool, []string{"v1", "v2", "v3", "v4", "v5"}, map[string]interface{}{}, 0.6)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, result.Accepted)
	assert.ElementsMatch(t, []string{"C", "D", "E"}, result.Rejected)
	assert.InDelta(t, 1.0, result.AgreementRatios["A"], 0.0001)
	assert.InDelta(t, 0.8, result.AgreementRatios["B"], 0.0001)
	assert.InDelta(t, 0.4, result.AgreementRatios["C"], 0.0001)
	assert.InDelta(t, 0.2, result.AgreementRatios["D"], 0.0001)
	assert.InDelta(t, 0.2, result.AgreementRatios["E"], 0.0001)
	assert.Equal(t, 0.6, result.Threshold)
}

func TestRunConsensus_NormalizesVariantSpellingsIntoOneTag(t *testing.T) {
	pool := NewAgentPool(0)
	newPooledAgent(pool, "v1", "char_mei", nil)
	newPooledAgent(pool, "v2", "CHAR MEI", nil)
	newPooledAgent(pool, "v3", "CHAR-MEI", nil)

	result, err := RunConsensus(context.Background(), pool, []string{"v1", "v2", "v3"}, map[string]interface{}{}, 0.5)

	require.NoError(t, err)
	assert.Equal(t, []string{"CHAR_MEI"}, result.Accepted)
	assert.InDelta(t, 1.0, result.AgreementRatios["CHAR_MEI"], 0.0001)
}

func TestRunConsensus_AllPlaceholderVotesIsEmptyResultNotError(t *testing.T) {
	pool := NewAgentPool(0)
	newPooledAgent(pool, "v1", "TAG", nil)
	newPooledAgent(pool, "v2", "PLACEHOLDER", nil)

	result, err := RunConsensus(context.Background(), pool, []string{"v1", "v2"}, map[string]interface{}{}, 0.6)

	require.NoError(t, err)
	assert.Empty(t, result.Accepted)
	assert.Empty(t, result.Rejected)
}

func TestRunConsensus_ThresholdOutOfRangeFallsBackToDefault(t *testing.T) {
	pool := NewAgentPool(0)
	newPooledAgent(pool, "v1", "A", nil)
	newPooledAgent(pool, "v2", "A", nil)

	result, err := RunConsensus(context.Background(), pool, []string{"v1", "v2"}, map[string]interface{}{}, 0)

	require.NoError(t, err)
	assert.Equal(t, defaultConsensusThreshold, result.Threshold)
}

// sequenceAgent returns a fixed queue of responses across successive calls,
// used to script a Socratic critic converging on a stable critique.
func newSequenceAgent(t *testing.T, name string, responses []string) Agent {
	t.Helper()
	router := NewFunctionRouter()
	provider := NewMockModelProvider(name)
	for _, r := range responses {
		provider.QueueResponse(r)
	}
	router.RegisterProvider(name, provider)
	router.RegisterFunction(FunctionMapping{FunctionID: name, Primary: name})
	return NewAgent(AgentConfig{Name: name, Function: name, Template: "{{.goal}}{{.transcript}}"}, router)
}

func TestRunSocratic_StopsEarlyOnCriticConvergence(t *testing.T) {
	proposer := newSequenceAgent(t, "proposer", []string{"draft one", "draft two", "draft three"})
	critic := newSequenceAgent(t, "critic", []string{
		"needs more tension",
		"looks good now",
		"looks good now",
	})

	turns, err := RunSocratic(context.Background(), proposer, critic, "write a scene", 5, 0)

	require.NoError(t, err)
	assert.Equal(t, 6, len(turns), "should stop after round 3 (2 turns/round * 3 rounds)")
}

func TestRunSocratic_RunsFullMaxRoundsWithoutConvergence(t *testing.T) {
	proposer := newSequenceAgent(t, "proposer", []string{"a", "b", "c"})
	critic := newSequenceAgent(t, "critic", []string{"totally different one", "totally different two", "totally different three"})

	turns, err := RunSocratic(context.Background(), proposer, critic, "write a scene", 3, 0)

	require.NoError(t, err)
	assert.Equal(t, 6, len(turns))
}

func TestRunSocratic_ZeroThresholdFallsBackToDefaultPointEightFive(t *testing.T) {
	proposer := newSequenceAgent(t, "proposer", []string{"draft one", "draft two"})
	critic := newSequenceAgent(t, "critic", []string{
		"needs more tension",
		"needs more tension and clearer stakes",
	})

	// Jaccard of these two critiques is below 0.85 but above a looser custom
	// threshold - passing that threshold explicitly should converge early
	// where the 0.85 default would not.
	sim := jaccardSimilarity("needs more tension", "needs more tension and clearer stakes")
	require.Less(t, sim, defaultSocraticConvergenceThreshold)

	// With threshold 0 falling back to 0.85, round 2 (similarity 0.5) does not
	// converge; the mocks repeat their last response, so round 3's critique
	// equals round 2's and converges there.
	turnsWithDefault, err := RunSocratic(context.Background(), proposer, critic, "write a scene", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, len(turnsWithDefault), "the 0.85 default does not treat a similarity of 0.5 as converged")

	proposer2 := newSequenceAgent(t, "proposer", []string{"draft one", "draft two"})
	critic2 := newSequenceAgent(t, "critic", []string{
		"needs more tension",
		"needs more tension and clearer stakes",
	})
	turnsWithLooseThreshold, err := RunSocratic(context.Background(), proposer2, critic2, "write a scene", 5, sim)
	require.NoError(t, err)
	assert.Equal(t, 4, len(turnsWithLooseThreshold), "a threshold at or below the observed similarity converges after round 2")
}

func TestRunRoleplay_RunsExactly2KPlus1TurnsAlternating(t *testing.T) {
	agentA := newSequenceAgent(t, "a", []string{"a1", "a2", "a3"})
	agentB := newSequenceAgent(t, "b", []string{"b1", "b2"})

	turns, err := RunRoleplay(context.Background(), agentA, agentB, "a tavern", "a rogue", 2)

	require.NoError(t, err)
	require.Len(t, turns, 5)
	assert.Equal(t, "a", turns[0].AgentName)
	assert.Equal(t, "b", turns[1].AgentName)
	assert.Equal(t, "a", turns[4].AgentName, "agentA speaks first and last")
}

func newJudgeAgent(t *testing.T, name string, scores map[string]float64) (Agent, *MockModelProvider) {
	t.Helper()
	router := NewFunctionRouter()
	provider := NewMockModelProvider(name)
	provider.QueueResponse("scored")
	router.RegisterProvider(name, provider)
	router.RegisterFunction(FunctionMapping{FunctionID: name, Primary: name})
	agent := NewAgent(AgentConfig{
		Name: name, Function: name, Template: "go",
		Parser: ParserFunc(func(raw string) (interface{}, error) { return scores, nil }),
	}, router)
	return agent, provider
}

func newProposerAgent(t *testing.T, name string, output string) (Agent, *MockModelProvider) {
	t.Helper()
	router := NewFunctionRouter()
	provider := NewMockModelProvider(name)
	provider.QueueResponse(output)
	router.RegisterProvider(name, provider)
	router.RegisterFunction(FunctionMapping{FunctionID: name, Primary: name})
	agent := NewAgent(AgentConfig{Name: name, Function: name, Template: "go"}, router)
	return agent, provider
}

func TestRunAssembly_DropsLowestScoringProposalsAndSynthesizesFinalists(t *testing.T) {
	p1, _ := newProposerAgent(t, "p1", "proposal one")
	p2, _ := newProposerAgent(t, "p2", "proposal two")
	p3, _ := newProposerAgent(t, "p3", "proposal three")
	proposers := []Agent{p1, p2, p3}

	judge, _ := newJudgeAgent(t, "j1", map[string]float64{"p1": 9, "p2": 5, "p3": 1})
	judges := []Agent{judge}

	synthesizer, _ := newProposerAgent(t, "synth", "final synthesis")

	run, err := RunAssembly(context.Background(), proposers, judges, synthesizer, 1, nil, map[string]interface{}{}, 1)

	require.NoError(t, err)
	assert.Equal(t, "final synthesis", run.Synthesis)
	assert.ElementsMatch(t, []string{"p1", "p2"}, run.Finalists, "dropping bottom 1 of 3 keeps the two highest scorers")
	assert.False(t, run.ContinuityUnverified)
	assert.Equal(t, 1, run.LoopsTaken)
}

func TestRunAssembly_LoopsUntilValidatorAcceptsThenGivesUpAtMaxLoop(t *testing.T) {
	proposer, proposerProvider := newProposerAgent(t, "p1", "proposal")
	proposers := []Agent{proposer}
	judge, judgeProvider := newJudgeAgent(t, "j1", map[string]float64{"p1": 5})
	judges := []Agent{judge}

	router := NewFunctionRouter()
	synthProvider := NewMockModelProvider("synth")
	synthProvider.QueueResponse("never good enough, attempt 1")
	synthProvider.QueueResponse("never good enough, attempt 2")
	router.RegisterProvider("synth", synthProvider)
	router.RegisterFunction(FunctionMapping{FunctionID: "synth", Primary: "synth"})
	synthesizer := NewAgent(AgentConfig{Name: "synth", Function: "synth", Template: "go"}, router)

	alwaysReject := func(string) bool { return false }

	run, err := RunAssembly(context.Background(), proposers, judges, synthesizer, 0, alwaysReject, map[string]interface{}{}, 2)

	require.NoError(t, err)
	assert.True(t, run.ContinuityUnverified)
	assert.Equal(t, 2, run.LoopsTaken)
	assert.Equal(t, "never good enough, attempt 2", run.Synthesis)
	assert.Equal(t, 1, proposerProvider.CallCount(), "proposers run exactly once regardless of validator retries")
	assert.Equal(t, 1, judgeProvider.CallCount(), "judges run exactly once regardless of validator retries")
	assert.Equal(t, 2, synthProvider.CallCount(), "only the synthesizer re-runs, once per retry attempt")
}

func TestRunAssembly_SynthesizerRetriesSeeIdenticalFinalistsWithOnlyFeedbackChanging(t *testing.T) {
	proposer, _ := newProposerAgent(t, "p1", "proposal")
	proposers := []Agent{proposer}
	judge, _ := newJudgeAgent(t, "j1", map[string]float64{"p1": 5})
	judges := []Agent{judge}

	router := NewFunctionRouter()
	synthProvider := NewMockModelProvider("synth")
	synthProvider.QueueResponse("draft 1")
	synthProvider.QueueResponse("draft 2")
	router.RegisterProvider("synth", synthProvider)
	router.RegisterFunction(FunctionMapping{FunctionID: "synth", Primary: "synth"})
	synthesizer := NewAgent(AgentConfig{Name: "synth", Function: "synth", Template: "go"}, router)

	attempt := 0
	acceptSecond := func(string) bool {
		attempt++
		return attempt >= 2
	}

	run, err := RunAssembly(context.Background(), proposers, judges, synthesizer, 0, acceptSecond, map[string]interface{}{}, 3)

	require.NoError(t, err)
	assert.False(t, run.ContinuityUnverified)
	assert.Equal(t, 2, run.LoopsTaken)
	assert.Equal(t, "draft 2", run.Synthesis)
	assert.Equal(t, []string{"p1"}, run.Finalists, "the finalist set does not change between retries")
	require.Len(t, synthProvider.Calls(), 2)
}

func TestRunAssembly_RequiresAtLeastOneProposerJudgeAndSynthesizer(t *testing.T) {
	_, err := RunAssembly(context.Background(), nil, nil, nil, 0, nil, map[string]interface{}{}, 1)
	require.Error(t, err)
	assert.Equal(t, KindBadConfiguration, ErrorKind(err))
}

func TestNormalizeConsensusTag(t *testing.T) {
	cases := map[string]string{
		"  approve ":    "APPROVE",
		"needs-work":    "NEEDS_WORK",
		"multi   space": "MULTI_SPACE",
		"__trim__":      "TRIM",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeConsensusTag(input), fmt.Sprintf("input %q", input))
	}
}
