// Package rlm implements the recursive language model orchestration
// engine.
//
// A session externalizes a large context into a sandboxed execution
// environment and drives a root model through an iterative loop: the
// model emits instruction blocks that examine the context, the engine
// executes them and feeds the output back, until the model produces a
// termination marker or the iteration cap is reached. Sub-queries issued
// from inside the sandbox run against a cheaper model tier, bounded by a
// recursion-depth limit.
package rlm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rand/rlm/internal/budget"
	"github.com/rand/rlm/internal/config"
	"github.com/rand/rlm/internal/llm"
	"github.com/rand/rlm/internal/repl"
	"github.com/rand/rlm/internal/trajectory"

	"go.starlark.net/starlark"
)

// Status is the terminal state of a session.
type Status string

const (
	// StatusTerminated means the model produced a termination marker.
	StatusTerminated Status = "terminated"

	// StatusExhausted means the iteration cap or a budget ceiling was hit
	// before the model terminated.
	StatusExhausted Status = "exhausted"
)

// Result is the outcome of one session.
type Result struct {
	SessionID  string
	Status     Status
	Answer     string
	Success    bool
	Iterations int
	TotalCost  float64

	// Failure carries the exhaustion reason when Success is false.
	Failure string

	Steps        []trajectory.Step
	Usage        []trajectory.UsageRecord
	UsageSummary string
}

// Engine runs sessions. It is safe for concurrent use; each session gets
// its own execution environment and trajectory.
type Engine struct {
	client       llm.Client
	cfg          config.Config
	prices       llm.PriceTable
	limits       budget.Limits
	store        *trajectory.Store
	tools        map[string]repl.Tool
	logger       *slog.Logger
	maxSubTokens int
}

// Option customizes an engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithPrices overrides the price table used for validation.
func WithPrices(p llm.PriceTable) Option {
	return func(e *Engine) { e.prices = p }
}

// WithLimits sets per-session budget ceilings.
func WithLimits(l budget.Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithStore persists finished sessions.
func WithStore(s *trajectory.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithTools injects extra host functions into the sandbox.
func WithTools(tools map[string]repl.Tool) Option {
	return func(e *Engine) { e.tools = tools }
}

// New creates an engine. The configuration is backfilled and validated
// against the price table before any session can start.
func New(client llm.Client, cfg config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		client:       client,
		cfg:          cfg,
		prices:       llm.DefaultPrices(),
		limits:       budget.DefaultLimits(),
		logger:       slog.Default(),
		maxSubTokens: 2048,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.Backfill()
	if err := e.cfg.Validate(e.prices); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return e, nil
}

// Query answers a query over a single-string context.
func (e *Engine) Query(ctx context.Context, query, contextPayload string) (*Result, error) {
	meta := contextMeta{Kind: "string", TotalChars: len(contextPayload)}
	return e.run(ctx, query, repl.StringContext(contextPayload), meta)
}

// QueryDocuments answers a query over pre-chunked documents. The sandbox
// sees them as a list of strings.
func (e *Engine) QueryDocuments(ctx context.Context, query string, docs []string) (*Result, error) {
	meta := contextMeta{Kind: "list", ChunkChars: make([]int, len(docs))}
	for i, d := range docs {
		meta.ChunkChars[i] = len(d)
		meta.TotalChars += len(d)
	}
	return e.run(ctx, query, repl.ListContext(docs), meta)
}

func (e *Engine) run(ctx context.Context, query string, ctxVal starlark.Value, meta contextMeta) (*Result, error) {
	rec := trajectory.NewRecorder()
	tracker := budget.NewTracker(e.limits)
	tracker.SetNotify(func(v budget.Violation) {
		if v.Warning {
			e.logger.Warn("budget threshold", "metric", v.Metric, "message", v.Message)
		}
	})

	var subQuery repl.SubQueryFunc
	if e.cfg.AllowSubcalls {
		subQuery = func(ctx context.Context, prompt string) (string, error) {
			return e.subQuery(ctx, rec, tracker, prompt)
		}
	}
	env := repl.NewEnvironment(repl.Options{
		Context:           ctxVal,
		SubQuery:          subQuery,
		MaxRecursionDepth: e.cfg.MaxRecursionDepth,
		Timeout:           e.cfg.ExecTimeout,
		Tools:             e.tools,
	})

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(e.cfg, meta)},
		{Role: llm.RoleUser, Content: query},
	}

	var lastResponse string
	for iter := 1; iter <= e.cfg.MaxIterations; iter++ {
		resp, err := e.client.Invoke(ctx, e.cfg.RootModel, messages, e.cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("root model turn %d: %w", iter, err)
		}
		rec.AddUsage(trajectory.UsageRecord{
			Model:            e.cfg.RootModel,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			Cost:             resp.Cost,
		})
		budgetErr := tracker.AddUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Cost)

		lastResponse = resp.Text
		parsed := parseResponse(resp.Text)
		e.logger.Debug("root turn",
			"iteration", iter,
			"blocks", len(parsed.Blocks),
			"final", parsed.HasFinal,
			"cost", rec.TotalCost())

		switch {
		case len(parsed.Blocks) > 0:
			// An instruction block wins over a termination marker in the
			// same turn; the marker may refer to results not yet computed.
			feedback := e.executeBlocks(ctx, env, rec, tracker, iter, parsed.Blocks)
			messages = append(messages,
				llm.Message{Role: llm.RoleAssistant, Content: resp.Text},
				llm.Message{Role: llm.RoleUser, Content: feedback},
			)

		case parsed.HasFinal:
			answer, resolveErr := e.resolveFinal(env, parsed)
			if resolveErr != "" {
				rec.AddStep(trajectory.Step{
					Iteration: iter,
					Type:      trajectory.StepResponse,
					Response:  resp.Text,
					Error:     resolveErr,
				})
				messages = append(messages,
					llm.Message{Role: llm.RoleAssistant, Content: resp.Text},
					llm.Message{Role: llm.RoleUser, Content: resolveErr},
				)
				break
			}
			rec.AddStep(trajectory.Step{
				Iteration: iter,
				Type:      trajectory.StepFinal,
				Response:  resp.Text,
				Output:    answer,
			})
			return e.finish(ctx, query, Result{
				Status:     StatusTerminated,
				Answer:     answer,
				Success:    true,
				Iterations: iter,
			}, rec)

		default:
			rec.AddStep(trajectory.Step{
				Iteration: iter,
				Type:      trajectory.StepResponse,
				Response:  resp.Text,
			})
			messages = append(messages,
				llm.Message{Role: llm.RoleAssistant, Content: resp.Text},
				llm.Message{Role: llm.RoleUser, Content: nudgeMessage},
			)
		}

		if budgetErr != nil {
			return e.finish(ctx, query, Result{
				Status:     StatusExhausted,
				Answer:     strings.TrimSpace(lastResponse),
				Iterations: iter,
				Failure:    budgetErr.Error(),
			}, rec)
		}
	}

	return e.finish(ctx, query, Result{
		Status:     StatusExhausted,
		Answer:     strings.TrimSpace(lastResponse),
		Iterations: e.cfg.MaxIterations,
		Failure:    fmt.Sprintf("no termination marker after %d iterations", e.cfg.MaxIterations),
	}, rec)
}

// executeBlocks runs each block in order and renders the combined
// feedback for the next turn. Execution faults become feedback, never
// session failures.
func (e *Engine) executeBlocks(ctx context.Context, env *repl.Environment, rec *trajectory.Recorder, tracker *budget.Tracker, iter int, blocks []string) string {
	var sb strings.Builder
	for i, block := range blocks {
		res := env.Execute(ctx, block)
		tracker.AddExecution()
		rec.AddStep(trajectory.Step{
			Iteration: iter,
			Type:      trajectory.StepExecution,
			Code:      block,
			Output:    res.Output,
			Error:     res.Err,
		})

		if i > 0 {
			sb.WriteString("\n")
		}
		if len(blocks) > 1 {
			fmt.Fprintf(&sb, "Block %d:\n", i+1)
		}
		sb.WriteString("REPL Output:\n")
		sb.WriteString(res.Output)
		if res.Err != "" {
			if res.Output != "" && !strings.HasSuffix(res.Output, "\n") {
				sb.WriteString("\n")
			}
			sb.WriteString("Error: ")
			sb.WriteString(res.Err)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// resolveFinal turns a termination marker into the session answer. A
// FINAL_VAR naming an unbound variable is a recoverable fault fed back to
// the model.
func (e *Engine) resolveFinal(env *repl.Environment, parsed Parsed) (answer, fault string) {
	if parsed.FinalVar == "" {
		return parsed.FinalText, ""
	}
	val, ok := env.Lookup(parsed.FinalVar)
	if !ok {
		return "", fmt.Sprintf("Error: FINAL_VAR(%s) refers to a variable that is not defined in the environment. Assign it in a repl block first, or use FINAL(...) with the answer inline.", parsed.FinalVar)
	}
	return val, ""
}

// subQuery serves one llm_query invocation from inside the sandbox.
func (e *Engine) subQuery(ctx context.Context, rec *trajectory.Recorder, tracker *budget.Tracker, prompt string) (string, error) {
	if err := tracker.AddSubCall(); err != nil {
		return "", err
	}
	resp, err := e.client.Invoke(ctx, e.cfg.SubModel, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}, e.maxSubTokens)
	if err != nil {
		return "", err
	}
	rec.AddUsage(trajectory.UsageRecord{
		Model:            e.cfg.SubModel,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Cost:             resp.Cost,
	})
	tracker.AddUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Cost)
	e.logger.Debug("sub-call", "model", e.cfg.SubModel, "prompt_chars", len(prompt))
	return resp.Text, nil
}

// finish snapshots the trajectory into the result and persists it when a
// store is configured.
func (e *Engine) finish(ctx context.Context, query string, res Result, rec *trajectory.Recorder) (*Result, error) {
	res.Steps = rec.Steps()
	res.Usage = rec.Usage()
	res.TotalCost = rec.TotalCost()
	res.UsageSummary = rec.Summary()

	if e.store != nil {
		id, err := e.store.Save(ctx, trajectory.SessionRecord{
			Query:      query,
			Answer:     res.Answer,
			Success:    res.Success,
			Iterations: res.Iterations,
			TotalCost:  res.TotalCost,
			Steps:      res.Steps,
			Usage:      res.Usage,
		})
		if err != nil {
			// Persistence is best-effort; the session outcome stands.
			e.logger.Error("persist session", "error", err)
		} else {
			res.SessionID = id
		}
	}

	e.logger.Info("session finished",
		"status", string(res.Status),
		"success", res.Success,
		"iterations", res.Iterations,
		"cost", res.TotalCost)
	return &res, nil
}
