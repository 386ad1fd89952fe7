// Package core: the agent layer wraps a function-routed model call with a
// prompt template, a structured-output parser, and bounded retry.
package core

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"
)

// Parser turns an agent's raw text output into a structured value. A parse
// failure is reported as KindParseFailed with the raw text preserved on the
// AgentResponse, never discarded.
type Parser interface {
	Parse(raw string) (interface{}, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(raw string) (interface{}, error)

func (f ParserFunc) Parse(raw string) (interface{}, error) { return f(raw) }

// IdentityParser returns the raw text unchanged as the parsed value. It is
// the default for agents that don't need structured output.
var IdentityParser Parser = ParserFunc(func(raw string) (interface{}, error) { return raw, nil })

// AgentConfig describes one named unit of work: which function it routes
// through, its system prompt, its input template, and its retry/timeout policy.
type AgentConfig struct {
	Name         string
	Function     string // FunctionMapping.FunctionID this agent routes through
	SystemPrompt string
	Template     string // text/template body rendered against the input map
	RetryCount   int
	Timeout      time.Duration
	Temperature  float32
	MaxTokens    int32
	Parser       Parser // defaults to IdentityParser if nil
}

// AgentResponse is the result of one Agent.Execute call.
type AgentResponse struct {
	AgentName    string
	FunctionID   string
	RawOutput    string
	ParsedOutput interface{}
	Success      bool
	Err          error
	Attempts     int
	Duration     time.Duration
}

// Agent is a named unit that renders a prompt from an input map, calls its
// configured function through a FunctionRouter, and parses the result.
type Agent interface {
	Name() string
	Config() AgentConfig
	Execute(ctx context.Context, input map[string]interface{}) (AgentResponse, error)
}

// NewAgent builds an Agent that routes calls through router.
func NewAgent(config AgentConfig, router *FunctionRouter) Agent {
	if config.Parser == nil {
		config.Parser = IdentityParser
	}
	return &routedAgent{config: config, router: router}
}

type routedAgent struct {
	config AgentConfig
	router *FunctionRouter
}

func (a *routedAgent) Name() string { return a.config.Name }

func (a *routedAgent) Config() AgentConfig { return a.config }

// Execute renders the agent's template against input, checking for missing
// template variables before any model call is made, then invokes the
// configured function with bounded retry on transient failure kinds only.
func (a *routedAgent) Execute(ctx context.Context, input map[string]interface{}) (AgentResponse, error) {
	start := time.Now()
	resp := AgentResponse{AgentName: a.config.Name, FunctionID: a.config.Function}

	prompt, err := renderTemplate(a.config.Name, a.config.Template, input)
	if err != nil {
		resp.Err = &EngineError{Kind: KindBadInput, Op: "Agent.Execute", Err: err}
		resp.Duration = time.Since(start)
		return resp, resp.Err
	}

	policy := DefaultRetryPolicy()
	policy.MaxRetries = a.config.RetryCount

	var raw string
	var callErr error
	handler := NewRetryHandler(policy)
	callErr = handler.ExecuteWithRetry(ctx, func() error {
		resp.Attempts++
		raw, callErr = a.router.Call(ctx, a.config.Function, GenerateParams{
			System:      a.config.SystemPrompt,
			Prompt:      prompt,
			Temperature: a.config.Temperature,
			MaxTokens:   a.config.MaxTokens,
			Timeout:     a.config.Timeout,
		})
		return callErr
	})

	resp.Duration = time.Since(start)

	if callErr != nil {
		resp.Err = callErr
		return resp, callErr
	}

	resp.RawOutput = raw
	parsed, parseErr := a.config.Parser.Parse(raw)
	if parseErr != nil {
		resp.Err = &EngineError{Kind: KindParseFailed, Op: "Agent.Execute", Err: parseErr}
		return resp, resp.Err
	}

	resp.ParsedOutput = parsed
	resp.Success = true
	return resp, nil
}

// renderTemplate renders body against data, failing closed on any variable
// body references that data does not supply.
func renderTemplate(name, body string, data map[string]interface{}) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("missing template input: %w", err)
	}
	return buf.String(), nil
}
