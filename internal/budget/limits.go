// Package budget enforces per-session resource ceilings: spend, tokens,
// sub-calls, and wall-clock time. The orchestrator consults the tracker
// between turns; a hard violation ends the session.
package budget

import (
	"fmt"
	"time"
)

// Limits defines the ceilings for one session. Zero disables a ceiling.
type Limits struct {
	MaxInputTokens  int64 `json:"max_input_tokens"`
	MaxOutputTokens int64 `json:"max_output_tokens"`

	// MaxTotalCost is the USD spend ceiling.
	MaxTotalCost float64 `json:"max_total_cost"`

	// MaxSubCalls bounds llm_query invocations per session.
	MaxSubCalls int `json:"max_sub_calls"`

	MaxSessionTime time.Duration `json:"max_session_time"`

	// Warning thresholds as fractions of the ceiling (0-1).
	CostWarningThreshold  float64 `json:"cost_warning_threshold"`
	TokenWarningThreshold float64 `json:"token_warning_threshold"`
}

// DefaultLimits returns the standard session ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxInputTokens:        2_000_000,
		MaxOutputTokens:       500_000,
		MaxTotalCost:          10.00,
		MaxSubCalls:           100,
		MaxSessionTime:        time.Hour,
		CostWarningThreshold:  0.80,
		TokenWarningThreshold: 0.75,
	}
}

// Violation reports a ceiling that is exceeded or approaching.
type Violation struct {
	Metric  string  `json:"metric"`
	Current float64 `json:"current"`
	Limit   float64 `json:"limit"`
	Percent float64 `json:"percent"`
	Hard    bool    `json:"hard"`
	Warning bool    `json:"warning"`
	Message string  `json:"message"`
}

func (v Violation) Error() string {
	return v.Message
}

// Check evaluates the state against the ceilings.
func (l Limits) Check(state State) []Violation {
	var out []Violation

	out = appendTokenCheck(out, "input_tokens", state.InputTokens, l.MaxInputTokens, l.TokenWarningThreshold)
	out = appendTokenCheck(out, "output_tokens", state.OutputTokens, l.MaxOutputTokens, l.TokenWarningThreshold)

	if l.MaxTotalCost > 0 {
		percent := state.TotalCost / l.MaxTotalCost
		switch {
		case percent >= 1.0:
			out = append(out, Violation{
				Metric:  "total_cost",
				Current: state.TotalCost,
				Limit:   l.MaxTotalCost,
				Percent: percent * 100,
				Hard:    true,
				Message: fmt.Sprintf("cost ceiling exceeded: $%.4f/$%.2f", state.TotalCost, l.MaxTotalCost),
			})
		case l.CostWarningThreshold > 0 && percent >= l.CostWarningThreshold:
			out = append(out, Violation{
				Metric:  "total_cost",
				Current: state.TotalCost,
				Limit:   l.MaxTotalCost,
				Percent: percent * 100,
				Warning: true,
				Message: fmt.Sprintf("cost at %.0f%% of ceiling ($%.4f/$%.2f)", percent*100, state.TotalCost, l.MaxTotalCost),
			})
		}
	}

	if l.MaxSubCalls > 0 && state.SubCalls >= l.MaxSubCalls {
		out = append(out, Violation{
			Metric:  "sub_calls",
			Current: float64(state.SubCalls),
			Limit:   float64(l.MaxSubCalls),
			Percent: float64(state.SubCalls) / float64(l.MaxSubCalls) * 100,
			Hard:    true,
			Message: fmt.Sprintf("sub-call ceiling reached: %d/%d", state.SubCalls, l.MaxSubCalls),
		})
	}

	if l.MaxSessionTime > 0 {
		d := state.SessionDuration()
		if d >= l.MaxSessionTime {
			out = append(out, Violation{
				Metric:  "session_time",
				Current: float64(d),
				Limit:   float64(l.MaxSessionTime),
				Percent: float64(d) / float64(l.MaxSessionTime) * 100,
				Hard:    true,
				Message: fmt.Sprintf("session time ceiling exceeded: %v/%v", d.Round(time.Second), l.MaxSessionTime),
			})
		}
	}

	return out
}

func appendTokenCheck(out []Violation, metric string, current, limit int64, warnAt float64) []Violation {
	if limit <= 0 {
		return out
	}
	percent := float64(current) / float64(limit)
	switch {
	case percent >= 1.0:
		out = append(out, Violation{
			Metric:  metric,
			Current: float64(current),
			Limit:   float64(limit),
			Percent: percent * 100,
			Hard:    true,
			Message: fmt.Sprintf("%s ceiling exceeded: %d/%d", metric, current, limit),
		})
	case warnAt > 0 && percent >= warnAt:
		out = append(out, Violation{
			Metric:  metric,
			Current: float64(current),
			Limit:   float64(limit),
			Percent: percent * 100,
			Warning: true,
			Message: fmt.Sprintf("%s at %.0f%% of ceiling", metric, percent*100),
		})
	}
	return out
}

// FirstHard returns the first hard violation, if any.
func FirstHard(violations []Violation) (Violation, bool) {
	for _, v := range violations {
		if v.Hard {
			return v, true
		}
	}
	return Violation{}, false
}
