package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostKnownModel(t *testing.T) {
	prices := DefaultPrices()

	// gpt-4o: $2.50/M input, $10.00/M output.
	cost, err := prices.Cost("openai/gpt-4o", 1_000_000, 1_000_000)
	require.NoError(t, err)
	assert.InDelta(t, 12.50, cost, 1e-9)

	cost, err = prices.Cost("openai/gpt-4o", 100_000, 50_000)
	require.NoError(t, err)
	assert.InDelta(t, 0.25+0.50, cost, 1e-9)
}

func TestCostUnknownModelFailsClosed(t *testing.T) {
	prices := DefaultPrices()

	_, err := prices.Cost("acme/mystery-model", 100, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestCostZeroTokens(t *testing.T) {
	cost, err := DefaultPrices().Cost("openai/gpt-4o-mini", 0, 0)
	require.NoError(t, err)
	assert.Zero(t, cost)
}

func TestHasAndModels(t *testing.T) {
	prices := DefaultPrices()
	assert.True(t, prices.Has("openai/gpt-4o"))
	assert.False(t, prices.Has("nope"))

	models := prices.Models()
	assert.NotEmpty(t, models)
	assert.IsIncreasing(t, models)
}
