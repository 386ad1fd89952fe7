package core

import "fmt"

// ValidationError represents a single configuration validation problem.
type ValidationError struct {
	Field      string
	Message    string
	Suggestion string
}

func (e ValidationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s. Suggestion: %s", e.Field, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// knownAdapterKinds lists the adapter kinds NewModelProvider accepts.
var knownAdapterKinds = map[string]bool{
	"openai": true, "azure": true, "ollama": true, "openrouter": true,
	"anthropic": true, "google": true, "xai": true,
}

// ValidateConfig checks a loaded Config for the invariants the engine
// depends on: every function's primary/fallback names a real provider, every
// agent names a real function, and every provider declares a known adapter kind.
func ValidateConfig(cfg *Config) []ValidationError {
	var errs []ValidationError

	for name, pc := range cfg.Providers {
		if !knownAdapterKinds[pc.AdapterKind] {
			errs = append(errs, ValidationError{
				Field: fmt.Sprintf("providers.%s.adapter_kind", name),
				Message: fmt.Sprintf("unknown adapter kind %q", pc.AdapterKind),
				Suggestion: "use one of: openai, azure, ollama, openrouter, anthropic, google, xai",
			})
		}
		if pc.Model == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("providers.%s.model", name), Message: "model is required"})
		}
	}

	for functionID, fm := range cfg.Functions {
		if fm.Primary == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("functions.%s.primary", functionID), Message: "primary provider is required"})
			continue
		}
		if _, ok := cfg.Providers[fm.Primary]; !ok {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("functions.%s.primary", functionID), Message: fmt.Sprintf("references undefined provider %q", fm.Primary)})
		}
		if fm.Fallback != "" {
			if _, ok := cfg.Providers[fm.Fallback]; !ok {
				errs = append(errs, ValidationError{Field: fmt.Sprintf("functions.%s.fallback", functionID), Message: fmt.Sprintf("references undefined provider %q", fm.Fallback)})
			}
		}
	}

	for name, ac := range cfg.Agents {
		if ac.Function == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("agents.%s.function", name), Message: "function is required"})
			continue
		}
		if _, ok := cfg.Functions[ac.Function]; !ok {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("agents.%s.function", name), Message: fmt.Sprintf("references undefined function %q", ac.Function)})
		}
		if ac.Template == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("agents.%s.template", name), Message: "template is required"})
		}
		if ac.RetryCount < 0 {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("agents.%s.retry_count", name), Message: "retry_count cannot be negative"})
		}
	}

	return errs
}
