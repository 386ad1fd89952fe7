// Package core: execution patterns compose agents from a pool into the
// coordination shapes a pipeline step can invoke - parallel fan-out,
// sequential chaining, N-way consensus, the two-agent collaboration patterns,
// and the proposer/judge/synthesizer assembly.
package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// RunParallel executes every named agent concurrently against the same
// input and returns results in agent-list order.
func RunParallel(ctx context.Context, pool *AgentPool, agentNames []string, input map[string]interface{}) []PoolResult {
	executions := make([]PooledExecution, len(agentNames))
	for i, name := range agentNames {
		executions[i] = PooledExecution{AgentName: name, Input: input}
	}
	return pool.ExecuteParallel(ctx, executions)
}

// RunSequential executes the named agents in order, each seeing the original
// input. A failure is recorded against that agent but does not stop the
// sequence - every agent still runs.
func RunSequential(ctx context.Context, pool *AgentPool, agentNames []string, input map[string]interface{}) []PoolResult {
	executions := make([]PooledExecution, len(agentNames))
	for i, name := range agentNames {
		executions[i] = PooledExecution{AgentName: name, Input: input}
	}
	return pool.ExecuteSequential(ctx, executions, false)
}

// RunPipeline executes the named agents in order, threading each agent's
// parsed output into the next agent's input under the producing agent's
// name, and stops immediately at the first failure - downstream agents do
// not run.
func RunPipeline(ctx context.Context, pool *AgentPool, agentNames []string, input map[string]interface{}) []PoolResult {
	executions := make([]PooledExecution, len(agentNames))
	for i, name := range agentNames {
		executions[i] = PooledExecution{AgentName: name, Input: input}
	}
	return pool.ExecuteSequential(ctx, executions, true)
}

// ConsensusResult is the outcome of an N-agent tag vote: the items that
// reached the agreement threshold, the items that did not, the per-item
// agreement ratio across the full bag, each agent's own raw extraction, and
// the threshold that was applied.
type ConsensusResult struct {
	Accepted        []string
	Rejected        []string
	AgreementRatios map[string]float64
	Extractions     map[string][]string // agent name -> its normalized tag set
	Threshold       float64
	Responses       []PoolResult
}

// consensusPlaceholderTags are template-artifact values filtered out before
// tallying, so an agent that echoes an unfilled template slot can't contribute
// a vote for it.
var consensusPlaceholderTags = map[string]bool{
	"TAG": true, "TOPIC": true, "CATEGORY": true, "PLACEHOLDER": true, "N_A": true,
}

// defaultConsensusThreshold is the agreement ratio applied when a caller
// passes a threshold outside (0, 1].
const defaultConsensusThreshold = 0.6

// NormalizeConsensusTag canonicalizes a raw vote string: uppercase, spaces
// and hyphens become underscores, repeated underscores collapse to one, and
// leading/trailing underscores are trimmed.
func NormalizeConsensusTag(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// extractConsensusTags splits an agent's raw output on commas, semicolons,
// and newlines into a deduplicated, normalized, placeholder-filtered tag set.
func extractConsensusTags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	seen := make(map[string]bool, len(fields))
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		tag := NormalizeConsensusTag(f)
		if tag == "" || consensusPlaceholderTags[tag] || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// RunConsensus runs agentNames in parallel, extracts a tag set from each
// agent's raw output, and tallies agreement ratio per tag across the full
// bag (count of agents contributing the tag / count of agents that produced
// a usable extraction). A tag is accepted when its ratio is >= threshold
// (threshold outside (0, 1] falls back to defaultConsensusThreshold);
// everything else is rejected. A run in which no agent produces a usable
// extraction returns an empty accepted/rejected result rather than an error -
// an empty consensus is a valid, if uninteresting, outcome.
func RunConsensus(ctx context.Context, pool *AgentPool, agentNames []string, input map[string]interface{}, threshold float64) (ConsensusResult, error) {
	if len(agentNames) == 0 {
		return ConsensusResult{}, &EngineError{Kind: KindBadConfiguration, Op: "RunConsensus", Err: fmt.Errorf("at least one agent is required")}
	}
	if threshold <= 0 || threshold > 1 {
		threshold = defaultConsensusThreshold
	}

	results := RunParallel(ctx, pool, agentNames, input)

	extractions := make(map[string][]string, len(agentNames))
	tagCounts := make(map[string]int)
	numExtractions := 0
	for i, r := range results {
		if r.Err != nil || !r.Response.Success {
			continue
		}
		numExtractions++
		tags := extractConsensusTags(r.Response.RawOutput)
		extractions[agentNames[i]] = tags
		for _, tag := range tags {
			tagCounts[tag]++
		}
	}

	if numExtractions == 0 {
		return ConsensusResult{Extractions: extractions, AgreementRatios: map[string]float64{}, Threshold: threshold, Responses: results}, nil
	}

	ratios := make(map[string]float64, len(tagCounts))
	tags := make([]string, 0, len(tagCounts))
	for tag, count := range tagCounts {
		ratios[tag] = float64(count) / float64(numExtractions)
		tags = append(tags, tag)
	}
	sort.Strings(tags) // deterministic ordering over the accepted/rejected sets

	var accepted, rejected []string
	for _, tag := range tags {
		if ratios[tag] >= threshold {
			accepted = append(accepted, tag)
		} else {
			rejected = append(rejected, tag)
		}
	}

	return ConsensusResult{
		Accepted: accepted, Rejected: rejected,
		AgreementRatios: ratios, Extractions: extractions,
		Threshold: threshold, Responses: results,
	}, nil
}

// CollaborationTurn is one agent's contribution to a Socratic or roleplay run.
type CollaborationTurn struct {
	Round     int
	AgentName string
	Content   string
}

// jaccardSimilarity computes word-set Jaccard similarity between two strings.
func jaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = true
	}
	return set
}

// defaultSocraticConvergenceThreshold is the Jaccard similarity above which
// two consecutive critiques from agent B are considered to have converged.
const defaultSocraticConvergenceThreshold = 0.85

// RunSocratic alternates agentA (proposer) and agentB (critic) toward goal,
// stopping early once agent B's last two critiques converge (by Jaccard
// similarity on their word sets, at or above convergenceThreshold - a
// non-positive value falls back to defaultSocraticConvergenceThreshold) or
// maxRounds is reached. Convergence is checked only against agent B's
// critiques, never agent A's proposals - the asymmetry is intentional: the
// critic's stabilizing judgment is the signal that further iteration would
// not change the outcome.
func RunSocratic(ctx context.Context, agentA, agentB Agent, goal string, maxRounds int, convergenceThreshold float64) ([]CollaborationTurn, error) {
	if agentA == nil || agentB == nil {
		return nil, &EngineError{Kind: KindBadConfiguration, Op: "RunSocratic", Err: fmt.Errorf("socratic collaboration requires exactly 2 agents")}
	}
	if goal == "" {
		return nil, &EngineError{Kind: KindBadInput, Op: "RunSocratic", Err: fmt.Errorf("socratic collaboration requires a goal")}
	}
	if convergenceThreshold <= 0 {
		convergenceThreshold = defaultSocraticConvergenceThreshold
	}

	var turns []CollaborationTurn
	var critiques []string
	transcript := ""

	for round := 1; round <= maxRounds; round++ {
		proposal, err := agentA.Execute(ctx, map[string]interface{}{"goal": goal, "transcript": transcript})
		if err != nil {
			return turns, err
		}
		turns = append(turns, CollaborationTurn{Round: round, AgentName: agentA.Name(), Content: proposal.RawOutput})
		transcript += fmt.Sprintf("\n[%s]: %s", agentA.Name(), proposal.RawOutput)

		critique, err := agentB.Execute(ctx, map[string]interface{}{"goal": goal, "transcript": transcript})
		if err != nil {
			return turns, err
		}
		turns = append(turns, CollaborationTurn{Round: round, AgentName: agentB.Name(), Content: critique.RawOutput})
		transcript += fmt.Sprintf("\n[%s]: %s", agentB.Name(), critique.RawOutput)
		critiques = append(critiques, critique.RawOutput)

		if len(turns) >= 4 && len(critiques) >= 2 {
			sim := jaccardSimilarity(critiques[len(critiques)-1], critiques[len(critiques)-2])
			if sim >= convergenceThreshold {
				break
			}
		}
	}

	return turns, nil
}

// RunRoleplay alternates agentA and agentB for exactly 2k+1 turns (agentA
// speaks first and last), with no convergence check - the pattern runs its
// full bounded length every time.
func RunRoleplay(ctx context.Context, agentA, agentB Agent, collabContext, character string, k int) ([]CollaborationTurn, error) {
	if agentA == nil || agentB == nil {
		return nil, &EngineError{Kind: KindBadConfiguration, Op: "RunRoleplay", Err: fmt.Errorf("roleplay collaboration requires exactly 2 agents")}
	}
	if collabContext == "" || character == "" {
		return nil, &EngineError{Kind: KindBadInput, Op: "RunRoleplay", Err: fmt.Errorf("roleplay collaboration requires context and character")}
	}

	totalTurns := 2*k + 1
	turns := make([]CollaborationTurn, 0, totalTurns)
	transcript := ""

	for i := 0; i < totalTurns; i++ {
		speaker := agentA
		if i%2 == 1 {
			speaker = agentB
		}

		resp, err := speaker.Execute(ctx, map[string]interface{}{
			"context": collabContext, "character": character, "transcript": transcript,
		})
		if err != nil {
			return turns, err
		}
		turns = append(turns, CollaborationTurn{Round: i + 1, AgentName: speaker.Name(), Content: resp.RawOutput})
		transcript += fmt.Sprintf("\n[%s]: %s", speaker.Name(), resp.RawOutput)
	}

	return turns, nil
}

// AssemblyRun is the outcome of a P-proposer / J-judge assembly: every
// proposal, each proposer's mean judge score, the finalists the calculator
// kept, the synthesized artifact, and how many continuity-validation loops
// were actually taken.
type AssemblyRun struct {
	Proposals            map[string]string
	MeanScores           map[string]float64
	Finalists            []string
	Synthesis            string
	LoopsTaken           int
	ContinuityUnverified bool
	Turns                []CollaborationTurn
}

// defaultAssemblyMaxLoop is the default bound on continuity-validation retries.
const defaultAssemblyMaxLoop = 3

type agentOutcome struct {
	name string
	resp AgentResponse
	err  error
}

// executeAgentsConcurrently runs every agent against input at once and
// returns one outcome per agent, in agent order.
func executeAgentsConcurrently(ctx context.Context, agents []Agent, input map[string]interface{}) []agentOutcome {
	outcomes := make([]agentOutcome, len(agents))
	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, a Agent) {
			defer wg.Done()
			resp, err := a.Execute(ctx, input)
			outcomes[i] = agentOutcome{name: a.Name(), resp: resp, err: err}
		}(i, a)
	}
	wg.Wait()
	return outcomes
}

// RunAssembly runs P proposers in parallel exactly once, then J judges (each
// scoring every proposal, parsed as a map[string]float64 of proposer name to
// score) exactly once after all proposers complete, deterministically
// averages the judge scores per proposer and drops the dropBottomK
// lowest-scoring proposals. Only the synthesizer step repeats: if validator
// is non-nil and rejects a synthesis, the synthesizer alone is re-invoked
// with the validator's rejection carried as feedback, up to maxLoop attempts
// (maxLoop <= 0 uses the default of 3). The calculator and every synthesizer
// attempt see the identical proposal set and finalist list; only the
// validator_feedback input changes between attempts. The loop always
// terminates after maxLoop attempts: the last synthesis is returned with
// ContinuityUnverified set if validation never passed.
func RunAssembly(ctx context.Context, proposers []Agent, judges []Agent, synthesizer Agent, dropBottomK int, validator func(string) bool, input map[string]interface{}, maxLoop int) (AssemblyRun, error) {
	if len(proposers) == 0 || len(judges) == 0 || synthesizer == nil {
		return AssemblyRun{}, &EngineError{Kind: KindBadConfiguration, Op: "RunAssembly", Err: fmt.Errorf("assembly requires at least one proposer, one judge, and a synthesizer")}
	}
	if maxLoop <= 0 {
		maxLoop = defaultAssemblyMaxLoop
	}

	var run AssemblyRun

	proposalOutcomes := executeAgentsConcurrently(ctx, proposers, input)
	proposals := make(map[string]string, len(proposalOutcomes))
	for _, o := range proposalOutcomes {
		if o.err != nil {
			return run, o.err
		}
		proposals[o.name] = o.resp.RawOutput
		run.Turns = append(run.Turns, CollaborationTurn{Round: 0, AgentName: o.name, Content: o.resp.RawOutput})
	}
	run.Proposals = proposals

	judgeInput := mergeMaps(input, map[string]interface{}{"proposals": proposals})
	judgeOutcomes := executeAgentsConcurrently(ctx, judges, judgeInput)

	totals := make(map[string]float64, len(proposals))
	counts := make(map[string]int, len(proposals))
	for _, o := range judgeOutcomes {
		if o.err != nil {
			return run, o.err
		}
		run.Turns = append(run.Turns, CollaborationTurn{Round: 0, AgentName: o.name, Content: o.resp.RawOutput})
		scores, _ := o.resp.ParsedOutput.(map[string]float64)
		for proposerName, score := range scores {
			totals[proposerName] += score
			counts[proposerName]++
		}
	}

	means := make(map[string]float64, len(totals))
	for name, total := range totals {
		if counts[name] > 0 {
			means[name] = total / float64(counts[name])
		}
	}
	run.MeanScores = means
	run.Finalists = dropBottomScores(proposals, means, dropBottomK)

	finalistText := make(map[string]string, len(run.Finalists))
	for _, name := range run.Finalists {
		finalistText[name] = proposals[name]
	}

	feedback := ""
	for attempt := 1; attempt <= maxLoop; attempt++ {
		run.LoopsTaken = attempt

		synthInput := map[string]interface{}{"finalists": finalistText}
		if feedback != "" {
			synthInput["validator_feedback"] = feedback
		}
		synthesis, err := synthesizer.Execute(ctx, synthInput)
		if err != nil {
			return run, err
		}
		run.Synthesis = synthesis.RawOutput
		run.Turns = append(run.Turns, CollaborationTurn{Round: attempt, AgentName: synthesizer.Name(), Content: synthesis.RawOutput})

		if validator == nil {
			return run, nil
		}
		if validator(run.Synthesis) {
			return run, nil
		}
		feedback = fmt.Sprintf("continuity check rejected attempt %d", attempt)
	}

	run.ContinuityUnverified = true
	return run, nil
}

// dropBottomScores sorts proposer names by mean score and returns everyone
// except the k lowest-scoring - finalists carried forward to synthesis.
// Proposers with no judge score (an all-judges-failed edge case) sort last.
// k is capped at len(proposals)-1, so at least one finalist always remains.
func dropBottomScores(proposals map[string]string, means map[string]float64, k int) []string {
	names := make([]string, 0, len(proposals))
	for name := range proposals {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		si, oki := means[names[i]]
		sj, okj := means[names[j]]
		if oki != okj {
			return oki
		}
		if si != sj {
			return si > sj
		}
		return names[i] < names[j]
	})
	if k < 0 {
		k = 0
	}
	if k >= len(names) {
		k = len(names) - 1
	}
	if k < 0 {
		return nil
	}
	return names[:len(names)-k]
}
