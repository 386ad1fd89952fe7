package core

import (
	"context"
	"fmt"
	"sync"
)

// PooledExecution names one agent invocation to run as part of a pool call.
type PooledExecution struct {
	AgentName string
	Input     map[string]interface{}
}

// PoolResult pairs a PooledExecution with the AgentResponse it produced.
type PoolResult struct {
	AgentName string
	Response  AgentResponse
	Err       error
}

// AgentPool holds a named set of agents and bounds how many execute
// concurrently, regardless of how many ExecuteParallel calls are in flight.
type AgentPool struct {
	mu             sync.RWMutex
	agents         map[string]Agent
	maxConcurrent  int
	sem            chan struct{}
}

// NewAgentPool creates a pool with the given concurrency ceiling. maxConcurrent
// <= 0 means unbounded.
func NewAgentPool(maxConcurrent int) *AgentPool {
	p := &AgentPool{agents: make(map[string]Agent), maxConcurrent: maxConcurrent}
	if maxConcurrent > 0 {
		p.sem = make(chan struct{}, maxConcurrent)
	}
	return p
}

// Register adds an agent to the pool under its own name.
func (p *AgentPool) Register(agent Agent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agents[agent.Name()] = agent
}

func (p *AgentPool) get(name string) (Agent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.agents[name]
	if !ok {
		return nil, &EngineError{Kind: KindBadConfiguration, Op: "AgentPool", Err: fmt.Errorf("no agent registered as %q", name)}
	}
	return a, nil
}

func (p *AgentPool) acquire(ctx context.Context) error {
	if p.sem == nil {
		return nil
	}
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AgentPool) release() {
	if p.sem != nil {
		<-p.sem
	}
}

// ExecuteParallel runs every execution concurrently, bounded by the pool's
// concurrency limit, and returns results in the same order as the input
// slice regardless of completion order.
func (p *AgentPool) ExecuteParallel(ctx context.Context, executions []PooledExecution) []PoolResult {
	results := make([]PoolResult, len(executions))
	var wg sync.WaitGroup

	for i, exec := range executions {
		wg.Add(1)
		go func(i int, exec PooledExecution) {
			defer wg.Done()

			if err := p.acquire(ctx); err != nil {
				results[i] = PoolResult{AgentName: exec.AgentName, Err: &EngineError{Kind: KindCancelled, Op: "AgentPool.ExecuteParallel", Err: err}}
				return
			}
			defer p.release()

			agent, err := p.get(exec.AgentName)
			if err != nil {
				results[i] = PoolResult{AgentName: exec.AgentName, Err: err}
				return
			}

			resp, err := agent.Execute(ctx, exec.Input)
			results[i] = PoolResult{AgentName: exec.AgentName, Response: resp, Err: err}
		}(i, exec)
	}

	wg.Wait()
	return results
}

// ExecuteSequential runs each execution in order. When passResults is false
// (plain Sequential), every agent sees the original input and a failure is
// recorded but does not stop the sequence. When passResults is true
// (Pipeline: sequential with result chaining), every successful response's
// parsed output is merged into the input map of subsequent executions under
// the producing agent's name, and the first failure stops the chain
// immediately - downstream agents are not invoked.
func (p *AgentPool) ExecuteSequential(ctx context.Context, executions []PooledExecution, passResults bool) []PoolResult {
	results := make([]PoolResult, 0, len(executions))
	carried := map[string]interface{}{}

	for _, exec := range executions {
		if ctx.Err() != nil {
			results = append(results, PoolResult{AgentName: exec.AgentName, Err: &EngineError{Kind: KindCancelled, Op: "AgentPool.ExecuteSequential", Err: ctx.Err()}})
			if passResults {
				break
			}
			continue
		}

		agent, err := p.get(exec.AgentName)
		if err != nil {
			results = append(results, PoolResult{AgentName: exec.AgentName, Err: err})
			if passResults {
				break
			}
			continue
		}

		input := exec.Input
		if passResults && len(carried) > 0 {
			input = mergeMaps(exec.Input, carried)
		}

		resp, err := agent.Execute(ctx, input)
		results = append(results, PoolResult{AgentName: exec.AgentName, Response: resp, Err: err})
		if err != nil {
			if passResults {
				break
			}
			continue
		}
		if passResults {
			carried[exec.AgentName] = resp.ParsedOutput
		}
	}

	return results
}

func mergeMaps(base map[string]interface{}, overlay map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
