// Package core provides public mock implementations for testing.
package core

import (
	"context"
	"sync"
)

// MockCall records one Generate invocation against a MockModelProvider.
type MockCall struct {
	Params GenerateParams
}

// MockModelProvider is a ModelProvider test double with configurable, queued
// responses and a call history. Tests assert fallback-exclusivity (P7) and
// retry-bound (P8) behavior by inspecting Calls() after exercising the router
// or agent under test.
type MockModelProvider struct {
	mu sync.Mutex

	name      string
	kind      string
	available bool

	responses []mockResponse
	nextIndex int
	calls     []MockCall
}

type mockResponse struct {
	text string
	err  error
}

// NewMockModelProvider returns a MockModelProvider that is Available by default.
func NewMockModelProvider(name string) *MockModelProvider {
	return &MockModelProvider{name: name, kind: "mock", available: true}
}

// WithKind overrides the ProviderKind string this mock reports.
func (m *MockModelProvider) WithKind(kind string) *MockModelProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kind = kind
	return m
}

// SetAvailable controls what Available() returns.
func (m *MockModelProvider) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// QueueResponse appends a successful response to be returned by the next Generate call.
func (m *MockModelProvider) QueueResponse(text string) *MockModelProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{text: text})
	return m
}

// QueueError appends a failing response of the given Kind to be returned by
// the next Generate call.
func (m *MockModelProvider) QueueError(kind Kind, err error) *MockModelProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{err: &EngineError{Kind: kind, Op: "MockModelProvider.Generate", Err: err}})
	return m
}

// Generate implements ModelProvider, returning the next queued response. Once
// the queue is exhausted, the last queued response repeats indefinitely. A
// mock with no queued responses returns KindNoProvider.
func (m *MockModelProvider) Generate(ctx context.Context, params GenerateParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Params: params})

	if len(m.responses) == 0 {
		return "", &EngineError{Kind: KindNoProvider, Op: "MockModelProvider.Generate", Err: errNoMockResponsesQueued}
	}

	idx := m.nextIndex
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	} else {
		m.nextIndex++
	}

	resp := m.responses[idx]
	if resp.err != nil {
		return "", resp.err
	}
	return resp.text, nil
}

func (m *MockModelProvider) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *MockModelProvider) ProviderKind() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kind
}

// Calls returns a copy of every Generate invocation recorded so far, in order.
func (m *MockModelProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Generate has been invoked.
func (m *MockModelProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var errNoMockResponsesQueued = mockError("no responses queued on mock provider")

type mockError string

func (e mockError) Error() string { return string(e) }
