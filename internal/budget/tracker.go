package budget

import (
	"sync"
	"time"
)

// State is a snapshot of a session's resource consumption.
type State struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
	SubCalls     int     `json:"sub_calls"`
	Executions   int     `json:"executions"`

	SessionStart time.Time `json:"session_start"`
}

// SessionDuration returns the time elapsed since the session began.
func (s State) SessionDuration() time.Duration {
	if s.SessionStart.IsZero() {
		return 0
	}
	return time.Since(s.SessionStart)
}

// Tracker accumulates consumption for one session and checks it against
// the configured ceilings after every update.
type Tracker struct {
	mu       sync.RWMutex
	state    State
	limits   Limits
	onNotify func(Violation)
}

// NewTracker starts a tracker with the given ceilings.
func NewTracker(limits Limits) *Tracker {
	return &Tracker{
		state:  State{SessionStart: time.Now()},
		limits: limits,
	}
}

// SetNotify registers a callback invoked for every violation, warnings
// included.
func (t *Tracker) SetNotify(fn func(Violation)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onNotify = fn
}

// State returns a snapshot of current consumption.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Limits returns the configured ceilings.
func (t *Tracker) Limits() Limits {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.limits
}

// AddUsage folds one model call's tokens and cost into the session total.
// Returns the first hard violation the update caused, if any.
func (t *Tracker) AddUsage(inputTokens, outputTokens int64, cost float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.InputTokens += inputTokens
	t.state.OutputTokens += outputTokens
	t.state.TotalCost += cost
	return t.checkLocked()
}

// AddSubCall counts one llm_query invocation.
func (t *Tracker) AddSubCall() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.SubCalls++
	return t.checkLocked()
}

// AddExecution counts one instruction block run.
func (t *Tracker) AddExecution() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Executions++
}

// Check evaluates the current state against the ceilings.
func (t *Tracker) Check() []Violation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.limits.Check(t.state)
}

func (t *Tracker) checkLocked() error {
	violations := t.limits.Check(t.state)
	if len(violations) == 0 {
		return nil
	}
	if t.onNotify != nil {
		for _, v := range violations {
			t.onNotify(v)
		}
	}
	if hard, ok := FirstHard(violations); ok {
		return hard
	}
	return nil
}
