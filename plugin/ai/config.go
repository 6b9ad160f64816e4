package ai

import (
	"github.com/wsu2059q/qvqchat/internal/errors"
	"github.com/wsu2059q/qvqchat/internal/profile"
)

// CapabilityScope identifies a functional role of the model stack. Each
// scope is independently configurable but shares credentials with the
// dialogue scope by default.
type CapabilityScope string

const (
	ScopeDialogue CapabilityScope = "dialogue"
	ScopeMemory   CapabilityScope = "memory"
	ScopeIntent   CapabilityScope = "intent"
	ScopeVision   CapabilityScope = "vision"
	ScopeVoice    CapabilityScope = "voice"
)

// CapabilityConfig is a fully resolved model configuration for one scope.
type CapabilityConfig struct {
	Scope       CapabilityScope
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Built-in sampling defaults, applied when neither the capability nor
// the environment specifies a value.
const (
	DefaultTemperature float32 = 0.7
	DefaultMaxTokens           = 2048
)

// defaultModels maps each scope to its hardcoded fallback model. Model
// is never inherited from the dialogue scope: a capability either names
// its own model or gets its scope default.
var defaultModels = map[CapabilityScope]string{
	ScopeDialogue: "deepseek-chat",
	ScopeIntent:   "Qwen/Qwen2.5-7B-Instruct",
	ScopeMemory:   "Qwen/Qwen2.5-7B-Instruct",
	ScopeVision:   "Qwen/Qwen2.5-VL-7B-Instruct",
	ScopeVoice:    "FunAudioLLM/CosyVoice2-0.5B",
}

// Resolve merges a capability-specific partial config against the base
// dialogue config. Resolution order per field:
//
//  1. the capability's own explicit value, if non-empty;
//  2. for APIKey and BaseURL only, the base (dialogue) value;
//  3. a built-in default for sampling parameters and the model.
//
// Resolve has no side effects and fails only on malformed input.
func Resolve(scope CapabilityScope, capability profile.CapabilityProfile, base profile.CapabilityProfile) (CapabilityConfig, error) {
	if _, ok := defaultModels[scope]; !ok {
		return CapabilityConfig{}, errors.ConfigInvalid("unknown capability scope: " + string(scope))
	}
	if capability.MaxTokens < 0 {
		return CapabilityConfig{}, errors.ConfigInvalid("max_tokens must not be negative").WithContext("scope", string(scope))
	}
	if capability.Temperature < 0 || capability.Temperature > 2 {
		return CapabilityConfig{}, errors.ConfigInvalid("temperature must be within [0,2]").WithContext("scope", string(scope))
	}

	cfg := CapabilityConfig{
		Scope:       scope,
		BaseURL:     capability.BaseURL,
		APIKey:      capability.APIKey,
		Model:       capability.Model,
		Temperature: capability.Temperature,
		MaxTokens:   capability.MaxTokens,
	}

	// Credentials inherit from the dialogue scope; nothing else does.
	if cfg.BaseURL == "" {
		cfg.BaseURL = base.BaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = base.APIKey
	}
	if cfg.Model == "" {
		cfg.Model = defaultModels[scope]
	}
	// Zero means unset for both sampling fields, so a capability cannot
	// pin temperature 0.0 through config; structured calls (ChatJSON)
	// force 0 themselves.
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	return cfg, nil
}

// Capabilities holds the resolved configs for every scope.
type Capabilities struct {
	Dialogue CapabilityConfig
	Intent   CapabilityConfig
	Memory   CapabilityConfig
	Vision   CapabilityConfig
	Voice    CapabilityConfig
}

// ResolveAll resolves every capability against the profile's dialogue
// config. Called once at startup; resolution failures are fatal.
func ResolveAll(p *profile.Profile) (*Capabilities, error) {
	caps := &Capabilities{}
	var err error

	if caps.Dialogue, err = Resolve(ScopeDialogue, p.Dialogue, p.Dialogue); err != nil {
		return nil, err
	}
	if caps.Intent, err = Resolve(ScopeIntent, p.Intent, p.Dialogue); err != nil {
		return nil, err
	}
	if caps.Memory, err = Resolve(ScopeMemory, p.Memory, p.Dialogue); err != nil {
		return nil, err
	}
	if caps.Vision, err = Resolve(ScopeVision, p.Vision, p.Dialogue); err != nil {
		return nil, err
	}
	if caps.Voice, err = Resolve(ScopeVoice, p.Voice, p.Dialogue); err != nil {
		return nil, err
	}

	return caps, nil
}
