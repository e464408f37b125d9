// Package config holds the engine's session configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rand/rlm/internal/llm"
)

// Variant selects the prompt dialect for the root model.
type Variant string

const (
	// VariantGPT is the default dialect.
	VariantGPT Variant = "gpt"

	// VariantQwen adds guidance against issuing large sub-call batches,
	// which Qwen-family models are prone to.
	VariantQwen Variant = "qwen"
)

// Config controls one engine session. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// RootModel drives the orchestration loop.
	RootModel string

	// SubModel answers llm_query sub-calls.
	SubModel string

	// MaxIterations bounds orchestration turns before the session is
	// declared exhausted.
	MaxIterations int

	// MaxOutputTokens caps each root-model completion.
	MaxOutputTokens int

	// MaxContextDisplay bounds output shown on display surfaces. The
	// model always receives untruncated output.
	MaxContextDisplay int

	// MaxRecursionDepth bounds llm_query nesting.
	MaxRecursionDepth int

	// AllowSubcalls exposes llm_query in the sandbox. Disabling it is
	// the no-subcalls ablation.
	AllowSubcalls bool

	// Variant selects the prompt dialect.
	Variant Variant

	// ExecTimeout is the wall-clock ceiling per instruction block.
	ExecTimeout time.Duration
}

// DefaultConfig returns the standard session configuration. RLM_ROOT_MODEL
// and RLM_SUB_MODEL environment variables override the model ids.
func DefaultConfig() Config {
	cfg := Config{
		RootModel:         "openai/gpt-4o",
		SubModel:          "openai/gpt-4o-mini",
		MaxIterations:     50,
		MaxOutputTokens:   16384,
		MaxContextDisplay: 5000,
		MaxRecursionDepth: 1,
		AllowSubcalls:     true,
		Variant:           VariantGPT,
		ExecTimeout:       30 * time.Second,
	}
	if v := os.Getenv("RLM_ROOT_MODEL"); v != "" {
		cfg.RootModel = v
	}
	if v := os.Getenv("RLM_SUB_MODEL"); v != "" {
		cfg.SubModel = v
	}
	return cfg
}

// Backfill replaces zero-valued limits with their defaults. Model ids are
// not backfilled; Validate rejects empty ones.
func (c *Config) Backfill() {
	def := DefaultConfig()
	if c.MaxIterations == 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = def.MaxOutputTokens
	}
	if c.MaxContextDisplay == 0 {
		c.MaxContextDisplay = def.MaxContextDisplay
	}
	if c.MaxRecursionDepth == 0 {
		c.MaxRecursionDepth = def.MaxRecursionDepth
	}
	if c.Variant == "" {
		c.Variant = def.Variant
	}
	if c.ExecTimeout == 0 {
		c.ExecTimeout = def.ExecTimeout
	}
}

// Validate checks the configuration against the given price table.
// Sessions never start with a model whose cost cannot be accounted.
func (c Config) Validate(prices llm.PriceTable) error {
	if c.RootModel == "" {
		return fmt.Errorf("root model not set")
	}
	if !prices.Has(c.RootModel) {
		return fmt.Errorf("root model %q: %w", c.RootModel, llm.ErrUnknownModel)
	}
	if c.AllowSubcalls {
		if c.SubModel == "" {
			return fmt.Errorf("sub model not set")
		}
		if !prices.Has(c.SubModel) {
			return fmt.Errorf("sub model %q: %w", c.SubModel, llm.ErrUnknownModel)
		}
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if c.MaxRecursionDepth < 0 {
		return fmt.Errorf("max recursion depth must be non-negative, got %d", c.MaxRecursionDepth)
	}
	switch c.Variant {
	case VariantGPT, VariantQwen:
	default:
		return fmt.Errorf("unknown prompt variant %q", c.Variant)
	}
	return nil
}
