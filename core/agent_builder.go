// Package core provides a fluent builder for constructing Agent instances.
package core

import (
	"fmt"
	"time"
)

// AgentBuilder assembles an AgentConfig through chained With* calls, then
// produces an Agent bound to a FunctionRouter via Build.
type AgentBuilder struct {
	config AgentConfig
	errs   []string
}

// NewAgentBuilder starts a builder for the named agent, with a retry count of
// 2 and a 30-second timeout until overridden.
func NewAgentBuilder(name string) *AgentBuilder {
	return &AgentBuilder{config: AgentConfig{Name: name, RetryCount: 2, Timeout: 30 * time.Second}}
}

func (b *AgentBuilder) WithFunction(functionID string) *AgentBuilder {
	b.config.Function = functionID
	return b
}

func (b *AgentBuilder) WithSystemPrompt(prompt string) *AgentBuilder {
	b.config.SystemPrompt = prompt
	return b
}

func (b *AgentBuilder) WithTemplate(template string) *AgentBuilder {
	b.config.Template = template
	return b
}

func (b *AgentBuilder) WithRetryCount(count int) *AgentBuilder {
	if count < 0 {
		b.errs = append(b.errs, "retry count cannot be negative")
		return b
	}
	b.config.RetryCount = count
	return b
}

func (b *AgentBuilder) WithTimeout(timeout time.Duration) *AgentBuilder {
	b.config.Timeout = timeout
	return b
}

func (b *AgentBuilder) WithTemperature(temperature float32) *AgentBuilder {
	b.config.Temperature = temperature
	return b
}

func (b *AgentBuilder) WithMaxTokens(maxTokens int32) *AgentBuilder {
	b.config.MaxTokens = maxTokens
	return b
}

func (b *AgentBuilder) WithParser(parser Parser) *AgentBuilder {
	b.config.Parser = parser
	return b
}

// Validate reports every configuration problem accumulated so far.
func (b *AgentBuilder) Validate() []string {
	errs := append([]string{}, b.errs...)
	if b.config.Name == "" {
		errs = append(errs, "agent name is required")
	}
	if b.config.Function == "" {
		errs = append(errs, "agent function is required")
	}
	if b.config.Template == "" {
		errs = append(errs, "agent template is required")
	}
	return errs
}

// Build validates the accumulated config and, if valid, constructs an Agent
// bound to router.
func (b *AgentBuilder) Build(router *FunctionRouter) (Agent, error) {
	if errs := b.Validate(); len(errs) > 0 {
		return nil, &EngineError{Kind: KindBadConfiguration, Op: "AgentBuilder.Build", Err: fmt.Errorf("%v", errs)}
	}
	return NewAgent(b.config, router), nil
}
