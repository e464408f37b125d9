package llm

import (
	"fmt"
	"sort"
)

// ModelPrice holds per-million-token prices in USD for one model.
type ModelPrice struct {
	Input  float64
	Output float64
}

// PriceTable maps model ids to their prices. It is read-only, process-wide
// configuration shared across sessions.
type PriceTable map[string]ModelPrice

// DefaultPrices returns the built-in price table.
// Prices are per million tokens, from OpenRouter as of January 2026.
func DefaultPrices() PriceTable {
	return PriceTable{
		// OpenAI
		"openai/gpt-4o":      {Input: 2.50, Output: 10.00},
		"openai/gpt-4o-mini": {Input: 0.15, Output: 0.60},
		"openai/gpt-5.2":     {Input: 1.75, Output: 14.00},
		"openai/gpt-5-mini":  {Input: 0.30, Output: 1.20},

		// Anthropic
		"anthropic/claude-opus-4.5":   {Input: 5.00, Output: 25.00},
		"anthropic/claude-sonnet-4.5": {Input: 3.00, Output: 15.00},
		"anthropic/claude-haiku-4.5":  {Input: 1.00, Output: 5.00},

		// Google
		"google/gemini-2.5-pro":        {Input: 1.25, Output: 10.00},
		"google/gemini-2.5-flash":      {Input: 0.30, Output: 2.50},
		"google/gemini-2.5-flash-lite": {Input: 0.10, Output: 0.40},

		// Qwen
		"qwen/qwen3-max": {Input: 1.20, Output: 6.00},
		"qwen/qwen3-8b":  {Input: 0.035, Output: 0.138},

		// DeepSeek
		"deepseek/deepseek-r1-0528": {Input: 0.40, Output: 1.75},
	}
}

// Cost computes the USD cost for a call against the given model.
// Unknown model ids fail closed rather than silently costing zero.
func (t PriceTable) Cost(model string, promptTokens, completionTokens int64) (float64, error) {
	p, ok := t[model]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return float64(promptTokens)/1_000_000*p.Input +
		float64(completionTokens)/1_000_000*p.Output, nil
}

// Has reports whether the table prices the given model.
func (t PriceTable) Has(model string) bool {
	_, ok := t[model]
	return ok
}

// Models returns the priced model ids in sorted order.
func (t PriceTable) Models() []string {
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
