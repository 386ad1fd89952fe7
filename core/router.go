package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FunctionMapping names the primary provider a logical function routes to,
// and the optional fallback tried exactly once when the primary reports
// content blocking.
type FunctionMapping struct {
	FunctionID string
	Primary    string // ProviderConfig.Name
	Fallback   string // ProviderConfig.Name, empty if no fallback configured
}

// RoutingStats accumulates per-function usage recorded by FunctionRouter.Call.
type RoutingStats struct {
	CallCount    int
	TotalLatency time.Duration
	ErrorCount   int
	LastUsed     time.Time
}

// FunctionRouter maps logical function ids onto configured providers and
// records per-function usage statistics. Selection follows a fixed rule:
// primary if available, else fallback if available, else some other available
// registered provider; NoProvider if none are available. Providers are held
// in a map, so when several others are available, which one is picked is not
// fixed.
type FunctionRouter struct {
	mu        sync.RWMutex
	mappings  map[string]FunctionMapping
	providers map[string]ModelProvider
	stats     map[string]*RoutingStats
	breakers  map[string]*CircuitBreaker
}

// NewFunctionRouter constructs an empty router. Register providers and
// mappings with RegisterProvider and RegisterFunction before calling Call.
func NewFunctionRouter() *FunctionRouter {
	return &FunctionRouter{
		mappings:  make(map[string]FunctionMapping),
		providers: make(map[string]ModelProvider),
		stats:     make(map[string]*RoutingStats),
		breakers:  make(map[string]*CircuitBreaker),
	}
}

// breakerFor returns the per-provider circuit breaker, creating one on first
// use. A provider that keeps failing trips its breaker open, so the router
// stops hammering a provider stuck in a bad state between timeouts.
func (r *FunctionRouter) breakerFor(providerName string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[providerName]
	if !ok {
		cb = NewCircuitBreaker(nil)
		r.breakers[providerName] = cb
	}
	return cb
}

// callProvider invokes provider.Generate through its circuit breaker. A
// breaker rejection (provider recently failed past the threshold) surfaces
// as KindProviderError, not KindTransient - the router does not retry here,
// the agent layer's retry policy decides whether to try again later.
func (r *FunctionRouter) callProvider(ctx context.Context, providerName string, provider ModelProvider, params GenerateParams) (string, error) {
	var text string
	cbErr := r.breakerFor(providerName).Call(func() error {
		var err error
		text, err = provider.Generate(ctx, params)
		return err
	})
	if cbErr != nil {
		var engineErr *EngineError
		if asEngineError(cbErr, &engineErr) {
			return "", engineErr
		}
		return "", &EngineError{Kind: KindProviderError, Op: "FunctionRouter.Call", Err: cbErr}
	}
	return text, nil
}

// RegisterProvider makes a named, constructed ModelProvider available for
// functions to route to.
func (r *FunctionRouter) RegisterProvider(name string, provider ModelProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
}

// RegisterFunction installs the primary/fallback mapping for a function id.
func (r *FunctionRouter) RegisterFunction(mapping FunctionMapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[mapping.FunctionID] = mapping
}

// selectProvider applies the router's selection rule under the read lock
// already held by the caller.
func (r *FunctionRouter) selectProvider(functionID string) (string, ModelProvider, error) {
	mapping, ok := r.mappings[functionID]
	if !ok {
		return "", nil, &EngineError{Kind: KindBadConfiguration, Op: "FunctionRouter.Select", Err: fmt.Errorf("no function mapping registered for %q", functionID)}
	}

	if p, ok := r.providers[mapping.Primary]; ok && p.Available() {
		return mapping.Primary, p, nil
	}
	if mapping.Fallback != "" {
		if p, ok := r.providers[mapping.Fallback]; ok && p.Available() {
			return mapping.Fallback, p, nil
		}
	}
	for name, p := range r.providers {
		if p.Available() {
			return name, p, nil
		}
	}

	return "", nil, &EngineError{Kind: KindNoProvider, Op: "FunctionRouter.Select", Err: fmt.Errorf("no available provider for function %q", functionID)}
}

// Call routes functionID to its primary provider and invokes Generate. If the
// primary call fails with KindContentBlocked and a fallback is configured for
// a different provider than the one that blocked, the fallback is tried
// exactly once. Every other failure kind is returned as-is; the router never
// retries on Timeout, RateLimit, or generic provider errors - that is the
// agent layer's job.
func (r *FunctionRouter) Call(ctx context.Context, functionID string, params GenerateParams) (string, error) {
	r.mu.RLock()
	primaryName, provider, err := r.selectProvider(functionID)
	mapping := r.mappings[functionID]
	r.mu.RUnlock()
	if err != nil {
		return "", err
	}

	start := time.Now()
	text, callErr := r.callProvider(ctx, primaryName, provider, params)
	r.recordStats(functionID, time.Since(start), callErr)

	if callErr == nil {
		return text, nil
	}

	kind := ErrorKind(callErr)
	if kind != KindContentBlocked || mapping.Fallback == "" || mapping.Fallback == primaryName {
		return "", callErr
	}

	r.mu.RLock()
	fallbackProvider, ok := r.providers[mapping.Fallback]
	r.mu.RUnlock()
	if !ok || !fallbackProvider.Available() {
		return "", callErr
	}

	start = time.Now()
	text, fallbackErr := r.callProvider(ctx, mapping.Fallback, fallbackProvider, params)
	r.recordStats(functionID, time.Since(start), fallbackErr)
	if fallbackErr != nil {
		return "", fallbackErr
	}
	return text, nil
}

func (r *FunctionRouter) recordStats(functionID string, latency time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[functionID]
	if !ok {
		s = &RoutingStats{}
		r.stats[functionID] = s
	}
	s.CallCount++
	s.TotalLatency += latency
	s.LastUsed = time.Now()
	if err != nil {
		s.ErrorCount++
	}
}

// Stats returns a copy of the accumulated statistics for functionID, or the
// zero value if the function has never been called.
func (r *FunctionRouter) Stats(functionID string) RoutingStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.stats[functionID]; ok {
		return *s
	}
	return RoutingStats{}
}
