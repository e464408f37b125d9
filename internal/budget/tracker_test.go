package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddUsageWithinCeilings(t *testing.T) {
	tr := NewTracker(DefaultLimits())

	require.NoError(t, tr.AddUsage(1000, 200, 0.01))
	require.NoError(t, tr.AddUsage(2000, 400, 0.02))

	st := tr.State()
	assert.Equal(t, int64(3000), st.InputTokens)
	assert.Equal(t, int64(600), st.OutputTokens)
	assert.InDelta(t, 0.03, st.TotalCost, 1e-9)
}

func TestCostCeilingIsHard(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxTotalCost = 0.05

	tr := NewTracker(limits)
	require.NoError(t, tr.AddUsage(100, 100, 0.03))

	err := tr.AddUsage(100, 100, 0.03)
	require.Error(t, err)
	var v Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "total_cost", v.Metric)
	assert.True(t, v.Hard)
}

func TestCostWarningThreshold(t *testing.T) {
	limits := Limits{MaxTotalCost: 1.00, CostWarningThreshold: 0.80}
	tr := NewTracker(limits)

	var notified []Violation
	tr.SetNotify(func(v Violation) { notified = append(notified, v) })

	// Warnings notify but do not error.
	require.NoError(t, tr.AddUsage(0, 0, 0.85))
	require.Len(t, notified, 1)
	assert.True(t, notified[0].Warning)
	assert.False(t, notified[0].Hard)
}

func TestSubCallCeiling(t *testing.T) {
	limits := Limits{MaxSubCalls: 2}
	tr := NewTracker(limits)

	require.NoError(t, tr.AddSubCall())
	err := tr.AddSubCall()
	require.Error(t, err)
	var v Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "sub_calls", v.Metric)
}

func TestSessionTimeCeiling(t *testing.T) {
	limits := Limits{MaxSessionTime: time.Nanosecond}
	tr := NewTracker(limits)
	time.Sleep(time.Millisecond)

	violations := tr.Check()
	hard, ok := FirstHard(violations)
	require.True(t, ok)
	assert.Equal(t, "session_time", hard.Metric)
}

func TestZeroLimitsDisableCeilings(t *testing.T) {
	tr := NewTracker(Limits{})

	require.NoError(t, tr.AddUsage(1<<40, 1<<40, 1e9))
	require.NoError(t, tr.AddSubCall())
	assert.Empty(t, tr.Check())
}
