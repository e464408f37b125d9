// Package trajectory records the ordered steps and model usage of one
// engine session.
package trajectory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// StepType categorizes a recorded step.
type StepType string

const (
	// StepResponse is a root-model turn that produced no executable code
	// (narrative or informational text).
	StepResponse StepType = "response"

	// StepExecution is an instruction block run in the sandbox.
	StepExecution StepType = "execution"

	// StepFinal is the turn that carried the termination marker.
	StepFinal StepType = "final"
)

// Step is one immutable entry in a session's trajectory.
type Step struct {
	Iteration int       `json:"iteration"`
	Type      StepType  `json:"type"`
	Response  string    `json:"response,omitempty"`
	Code      string    `json:"code,omitempty"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UsageRecord captures the tokens and cost of one model invocation.
type UsageRecord struct {
	Model            string  `json:"model"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
}

// Recorder accumulates steps and usage records in arrival order.
// Steps are never reordered or dropped, including failed executions.
// The running cost total is monotonically non-decreasing.
type Recorder struct {
	mu      sync.RWMutex
	steps   []Step
	records []UsageRecord
	cost    float64
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// AddStep appends a step to the trajectory.
func (r *Recorder) AddStep(s Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	r.steps = append(r.steps, s)
}

// AddUsage appends a usage record and folds its cost into the total.
func (r *Recorder) AddUsage(u UsageRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, u)
	r.cost += u.Cost
}

// Steps returns a copy of the recorded steps in order.
func (r *Recorder) Steps() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Usage returns a copy of the usage records in order.
func (r *Recorder) Usage() []UsageRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]UsageRecord, len(r.records))
	copy(out, r.records)
	return out
}

// TotalCost returns the cumulative USD cost across all recorded calls.
func (r *Recorder) TotalCost() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cost
}

// Summary renders a per-model token and cost breakdown.
func (r *Recorder) Summary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type agg struct {
		prompt, completion int64
		cost               float64
	}
	byModel := make(map[string]*agg)
	var order []string
	for _, u := range r.records {
		a, ok := byModel[u.Model]
		if !ok {
			a = &agg{}
			byModel[u.Model] = a
			order = append(order, u.Model)
		}
		a.prompt += u.PromptTokens
		a.completion += u.CompletionTokens
		a.cost += u.Cost
	}

	var sb strings.Builder
	sb.WriteString("Token Usage Summary:")
	for _, model := range order {
		a := byModel[model]
		fmt.Fprintf(&sb, "\n  %s: %d in / %d out ($%.4f)", model, a.prompt, a.completion, a.cost)
	}
	fmt.Fprintf(&sb, "\n  Total: $%.4f", r.cost)
	return sb.String()
}
