package trajectory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderPreservesOrder(t *testing.T) {
	rec := NewRecorder()
	rec.AddStep(Step{Iteration: 1, Type: StepExecution, Code: "a = 1"})
	rec.AddStep(Step{Iteration: 2, Type: StepResponse, Response: "thinking"})
	rec.AddStep(Step{Iteration: 3, Type: StepFinal, Output: "done"})

	steps := rec.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, StepExecution, steps[0].Type)
	assert.Equal(t, StepResponse, steps[1].Type)
	assert.Equal(t, StepFinal, steps[2].Type)
	for _, s := range steps {
		assert.False(t, s.Timestamp.IsZero())
	}
}

func TestStepsReturnsCopy(t *testing.T) {
	rec := NewRecorder()
	rec.AddStep(Step{Iteration: 1, Type: StepExecution})

	steps := rec.Steps()
	steps[0].Iteration = 99

	assert.Equal(t, 1, rec.Steps()[0].Iteration)
}

func TestCostIsMonotonic(t *testing.T) {
	rec := NewRecorder()
	var last float64
	for i := 0; i < 10; i++ {
		rec.AddUsage(UsageRecord{Model: "m", PromptTokens: 10, CompletionTokens: 5, Cost: 0.001})
		cur := rec.TotalCost()
		assert.GreaterOrEqual(t, cur, last)
		last = cur
	}
	assert.InDelta(t, 0.01, rec.TotalCost(), 1e-9)
}

func TestSummaryGroupsByModel(t *testing.T) {
	rec := NewRecorder()
	rec.AddUsage(UsageRecord{Model: "openai/gpt-4o", PromptTokens: 100, CompletionTokens: 50, Cost: 0.01})
	rec.AddUsage(UsageRecord{Model: "openai/gpt-4o-mini", PromptTokens: 40, CompletionTokens: 20, Cost: 0.001})
	rec.AddUsage(UsageRecord{Model: "openai/gpt-4o", PromptTokens: 200, CompletionTokens: 100, Cost: 0.02})

	s := rec.Summary()
	assert.Contains(t, s, "Token Usage Summary:")
	assert.Contains(t, s, "openai/gpt-4o: 300 in / 150 out")
	assert.Contains(t, s, "openai/gpt-4o-mini: 40 in / 20 out")
	assert.Contains(t, s, "Total: $0.0310")
}
