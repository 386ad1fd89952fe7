// Package core: the pipeline runtime sequences workflow steps over a shared
// output map, publishing progress and honoring cooperative cancellation
// between steps.
package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/yarnspinner/pipeline/internal/logging"
)

// ExecutionMode names which execution pattern a WorkflowStep invokes.
type ExecutionMode string

const (
	ModeParallel   ExecutionMode = "parallel"
	ModeSequential ExecutionMode = "sequential"
	ModePipeline   ExecutionMode = "pipeline"
	ModeConsensus  ExecutionMode = "consensus"
	ModeSocratic   ExecutionMode = "socratic"
	ModeRoleplay   ExecutionMode = "roleplay"
	ModeAssembly   ExecutionMode = "assembly"
)

// WorkflowStep is one stage of a pipeline: which agents it invokes, under
// which execution mode, and how the shared output map feeds its input.
type WorkflowStep struct {
	Name         string
	Mode         ExecutionMode
	AgentNames   []string          // parallel/sequential/consensus: every agent invoked
	InputMapping map[string]string // output-map key -> step input key; overlays a full copy of output
	Required     bool              // if true, a failure here aborts the pipeline

	// Precondition, if set, is evaluated against the accumulated output map
	// before the step runs. A false result skips the step entirely - neither
	// success nor failure is recorded, and output gains no entry for it.
	Precondition func(map[string]interface{}) bool

	// Consensus-only. A non-positive value falls back to defaultConsensusThreshold.
	ConsensusThreshold float64

	// Socratic-only.
	Goal                 string
	MaxRounds            int
	ConvergenceThreshold float64 // non-positive falls back to defaultSocraticConvergenceThreshold

	// Roleplay-only.
	CollabContext string
	Character     string
	K             int

	// Assembly-only.
	Proposers   []string
	Judges      []string
	Synthesizer string
	DropBottomK int
	Validator   func(string) bool
	MaxLoop     int
}

// WorkflowResult is the outcome of running a Pipeline to completion or to
// the first required-step failure.
type WorkflowResult struct {
	RunID        string
	PipelineName string
	Output       map[string]interface{}
	FailedStep   string
	Err          error
	Cancelled    bool
}

// ProgressEvent reports how far a pipeline run has advanced.
type ProgressEvent struct {
	PipelineName   string
	StepName       string
	CompletedCount int
	TotalCount     int
	Percent        float64
}

// Pipeline is a named, ordered sequence of WorkflowSteps run against a shared
// AgentPool, with progress published to non-blocking subscribers and
// cancellation checked before each step begins.
type Pipeline struct {
	Name  string
	Steps []WorkflowStep

	pool        *AgentPool
	mu          sync.Mutex
	subscribers []chan ProgressEvent
	cancelled   atomic.Bool
}

// NewPipeline builds a pipeline with the given name and steps, running agents
// out of pool.
func NewPipeline(name string, pool *AgentPool, steps []WorkflowStep) *Pipeline {
	return &Pipeline{Name: name, Steps: steps, pool: pool}
}

// Subscribe registers a channel to receive progress events. Sends are
// non-blocking: a slow or full subscriber drops events rather than stalling
// the pipeline.
func (p *Pipeline) Subscribe(ch chan ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, ch)
}

// Cancel requests the pipeline stop before its next step. A step already in
// flight runs to completion; it is never force-aborted mid-step.
func (p *Pipeline) Cancel() {
	p.cancelled.Store(true)
}

func (p *Pipeline) publish(evt ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Run executes every step in order over a shared output map, seeded from
// initialInput. Before a step runs, its optional Precondition is evaluated
// against the accumulated output map; a false result skips the step without
// marking it failed or writing an output entry. Socratic and roleplay steps
// require exactly 2 named agents (otherwise KindBadConfiguration); socratic
// steps require a "goal" input and roleplay steps require "context" and
// "character" inputs (otherwise KindBadInput). Both checks run before any
// agent is invoked.
func (p *Pipeline) Run(ctx context.Context, initialInput map[string]interface{}) WorkflowResult {
	runID := uuid.New().String()
	log := logging.GetLogger().With().Str("pipeline", p.Name).Str("run_id", runID).Logger()
	log.Info().Int("steps", len(p.Steps)).Msg("pipeline run started")

	output := mergeMaps(initialInput, map[string]interface{}{})
	total := len(p.Steps)

	for i, step := range p.Steps {
		if p.cancelled.Load() || ctx.Err() != nil {
			log.Warn().Str("step", step.Name).Msg("pipeline run cancelled")
			return WorkflowResult{RunID: runID, PipelineName: p.Name, Output: output, Cancelled: true,
				Err: &EngineError{Kind: KindCancelled, Op: "Pipeline.Run", Err: fmt.Errorf("cancelled before step %q", step.Name)}}
		}

		if step.Precondition != nil && !step.Precondition(output) {
			log.Info().Str("step", step.Name).Msg("step skipped by precondition")
			p.publish(ProgressEvent{PipelineName: p.Name, StepName: step.Name, CompletedCount: i + 1, TotalCount: total, Percent: 100 * float64(i+1) / float64(total)})
			continue
		}

		stepInput := prepareStepInput(output, step.InputMapping)

		result, err := p.runStep(ctx, step, stepInput)
		if err != nil {
			log.Error().Str("step", step.Name).Err(err).Bool("required", step.Required).Msg("step failed")
			if step.Required {
				return WorkflowResult{RunID: runID, PipelineName: p.Name, Output: output, FailedStep: step.Name, Err: err}
			}
		} else {
			output[step.Name] = result
		}

		p.publish(ProgressEvent{
			PipelineName:   p.Name,
			StepName:       step.Name,
			CompletedCount: i + 1,
			TotalCount:     total,
			Percent:        100 * float64(i+1) / float64(total),
		})
	}

	log.Info().Msg("pipeline run completed")
	return WorkflowResult{RunID: runID, PipelineName: p.Name, Output: output}
}

// prepareStepInput copies the full output map, then overlays the step's
// input mapping on top - a step's explicit mapping always wins over an
// identically named key carried from earlier output.
func prepareStepInput(output map[string]interface{}, mapping map[string]string) map[string]interface{} {
	input := make(map[string]interface{}, len(output)+len(mapping))
	for k, v := range output {
		input[k] = v
	}
	for outputKey, inputKey := range mapping {
		if v, ok := output[outputKey]; ok {
			input[inputKey] = v
		}
	}
	return input
}

func (p *Pipeline) runStep(ctx context.Context, step WorkflowStep, input map[string]interface{}) (interface{}, error) {
	switch step.Mode {
	case ModeParallel:
		results := RunParallel(ctx, p.pool, step.AgentNames, input)
		return getAllContent(results), firstRequiredErr(results)

	case ModeSequential:
		results := RunSequential(ctx, p.pool, step.AgentNames, input)
		return getAllContent(results), firstRequiredErr(results)

	case ModePipeline:
		results := RunPipeline(ctx, p.pool, step.AgentNames, input)
		return getAllContent(results), firstRequiredErr(results)

	case ModeConsensus:
		consensus, err := RunConsensus(ctx, p.pool, step.AgentNames, input, step.ConsensusThreshold)
		return consensus, err

	case ModeSocratic:
		agentA, agentB, err := p.twoAgents(step.AgentNames)
		if err != nil {
			return nil, err
		}
		goal, _ := input["goal"].(string)
		if step.Goal != "" {
			goal = step.Goal
		}
		if goal == "" {
			return nil, &EngineError{Kind: KindBadInput, Op: "Pipeline.Run", Err: fmt.Errorf("socratic step %q requires a goal", step.Name)}
		}
		turns, err := RunSocratic(ctx, agentA, agentB, goal, step.MaxRounds, step.ConvergenceThreshold)
		return turns, err

	case ModeRoleplay:
		agentA, agentB, err := p.twoAgents(step.AgentNames)
		if err != nil {
			return nil, err
		}
		collabContext, _ := input["context"].(string)
		if step.CollabContext != "" {
			collabContext = step.CollabContext
		}
		character, _ := input["character"].(string)
		if step.Character != "" {
			character = step.Character
		}
		if collabContext == "" || character == "" {
			return nil, &EngineError{Kind: KindBadInput, Op: "Pipeline.Run", Err: fmt.Errorf("roleplay step %q requires context and character", step.Name)}
		}
		turns, err := RunRoleplay(ctx, agentA, agentB, collabContext, character, step.K)
		return turns, err

	case ModeAssembly:
		if len(step.Proposers) == 0 || len(step.Judges) == 0 || step.Synthesizer == "" {
			return nil, &EngineError{Kind: KindBadConfiguration, Op: "Pipeline.Run", Err: fmt.Errorf("assembly step %q requires at least one proposer, one judge, and a synthesizer", step.Name)}
		}
		proposers, err := p.namedAgents(step.Proposers)
		if err != nil {
			return nil, err
		}
		judges, err := p.namedAgents(step.Judges)
		if err != nil {
			return nil, err
		}
		synthesizer, err := p.pool.get(step.Synthesizer)
		if err != nil {
			return nil, err
		}
		run, err := RunAssembly(ctx, proposers, judges, synthesizer, step.DropBottomK, step.Validator, input, step.MaxLoop)
		return run, err

	default:
		return nil, &EngineError{Kind: KindBadConfiguration, Op: "Pipeline.Run", Err: fmt.Errorf("unknown execution mode %q for step %q", step.Mode, step.Name)}
	}
}

func (p *Pipeline) namedAgents(names []string) ([]Agent, error) {
	agents := make([]Agent, 0, len(names))
	for _, name := range names {
		a, err := p.pool.get(name)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

func (p *Pipeline) twoAgents(names []string) (Agent, Agent, error) {
	if len(names) != 2 {
		return nil, nil, &EngineError{Kind: KindBadConfiguration, Op: "Pipeline.Run", Err: fmt.Errorf("collaboration step requires exactly 2 agents, got %d", len(names))}
	}
	a, err := p.pool.get(names[0])
	if err != nil {
		return nil, nil, err
	}
	b, err := p.pool.get(names[1])
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// getAllContent collects the parsed output of every successful result, in
// order, discarding failures - a partial fan-out still produces a usable list.
func getAllContent(results []PoolResult) []interface{} {
	content := make([]interface{}, 0, len(results))
	for _, r := range results {
		if r.Err == nil && r.Response.Success {
			content = append(content, r.Response.ParsedOutput)
		}
	}
	return content
}

func firstRequiredErr(results []PoolResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
