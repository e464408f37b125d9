// Package repl provides the sandboxed execution environment for the RLM
// engine.
//
// Instructions run in an embedded Starlark interpreter against a namespace
// that persists for the lifetime of one session. The namespace is seeded
// with a 'context' binding and exposes a single intrinsic beyond the
// language's builtins: llm_query, which issues a recursive query against
// the sub model tier, subject to the recursion-depth limit.
//
// Every fault raised during execution, including intrinsic rejections, is
// caught here and returned as error text so the orchestrator can feed it
// back to the generating model. Nothing propagates past this boundary.
//
// Starlark freezes module globals after each execution, so instructions
// may rebind any name in a later block but cannot mutate values created by
// an earlier one; attempting to do so raises an ordinary caught error.
package repl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Result is the outcome of executing one instruction block.
// Output carries the full captured text; use TruncateMiddle for display.
type Result struct {
	Output string
	Err    string
}

// Success reports whether the block ran without a fault.
func (r Result) Success() bool {
	return r.Err == ""
}

// SubQueryFunc issues a recursive query against the sub model tier.
type SubQueryFunc func(ctx context.Context, prompt string) (string, error)

// Tool is a host function injected into the namespace. Arguments arrive as
// strings in positional order.
type Tool func(args []string) (string, error)

// Options configures an execution environment.
type Options struct {
	// Context is the value bound under the reserved 'context' name.
	// Build it with StringContext or ListContext.
	Context starlark.Value

	// SubQuery backs the llm_query intrinsic. Nil disables sub-calls
	// entirely (the intrinsic is not declared).
	SubQuery SubQueryFunc

	// Depth is this environment's recursion depth (0 for the root).
	Depth int

	// MaxRecursionDepth bounds sub-call nesting (default 1).
	MaxRecursionDepth int

	// MaxSteps caps Starlark execution steps per block (default 10M).
	// Bounds runaway generated loops that the iteration cap cannot.
	MaxSteps uint64

	// Timeout is the wall-clock ceiling per block (default 30s).
	Timeout time.Duration

	// Tools are extra host functions exposed in the namespace.
	Tools map[string]Tool
}

// Environment is a sandboxed Starlark interpreter with a persistent
// namespace. It is owned by exactly one session and used sequentially.
type Environment struct {
	mu          sync.Mutex
	opts        Options
	predeclared starlark.StringDict
	globals     starlark.StringDict
	fileOpts    *syntax.FileOptions
	printBuf    *strings.Builder
	execCtx     context.Context
	blockCount  int
}

// StringContext wraps a single document as the context value.
func StringContext(s string) starlark.Value {
	return starlark.String(s)
}

// ListContext wraps pre-chunked documents as the context value.
func ListContext(chunks []string) starlark.Value {
	elems := make([]starlark.Value, len(chunks))
	for i, c := range chunks {
		elems[i] = starlark.String(c)
	}
	l := starlark.NewList(elems)
	l.Freeze()
	return l
}

// NewEnvironment creates an environment seeded with the given context.
func NewEnvironment(opts Options) *Environment {
	if opts.MaxRecursionDepth == 0 {
		opts.MaxRecursionDepth = 1
	}
	if opts.MaxSteps == 0 {
		opts.MaxSteps = 10_000_000
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Context == nil {
		opts.Context = starlark.String("")
	}
	opts.Context.Freeze()

	env := &Environment{
		opts:     opts,
		globals:  make(starlark.StringDict),
		printBuf: &strings.Builder{},
		fileOpts: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       true,
		},
	}

	pre := starlark.StringDict{
		"context": opts.Context,
		"json":    json.Module,
		"math":    math.Module,
	}
	if opts.SubQuery != nil {
		pre["llm_query"] = starlark.NewBuiltin("llm_query", env.llmQuery)
	}
	for name, tool := range opts.Tools {
		pre[name] = newToolBuiltin(name, tool)
	}
	env.predeclared = pre

	return env
}

// Execute runs one instruction block against the persistent namespace.
// Bindings created or reassigned by the block persist for subsequent
// calls within the same session. Faults are returned in Result.Err, never
// as a Go error.
func (e *Environment) Execute(ctx context.Context, code string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.printBuf.Reset()
	e.execCtx = ctx
	defer func() { e.execCtx = nil }()

	e.blockCount++
	thread := &starlark.Thread{
		Name: fmt.Sprintf("block-%d", e.blockCount),
		Print: func(_ *starlark.Thread, msg string) {
			e.printBuf.WriteString(msg)
			e.printBuf.WriteString("\n")
		},
	}
	thread.SetMaxExecutionSteps(e.opts.MaxSteps)

	timer := time.AfterFunc(e.opts.Timeout, func() {
		thread.Cancel("wall-clock limit exceeded")
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel("context canceled")
	})
	defer stop()

	globals, err := starlark.ExecFileOptions(e.fileOpts, thread, thread.Name+".star", code, e.resolve())
	// Merge surviving bindings even when the block failed part-way:
	// assignments before the fault have already taken effect, matching
	// interpreter semantics the generating model expects.
	for name, v := range globals {
		e.globals[name] = v
	}

	out := e.printBuf.String()
	if err != nil {
		return Result{Output: out, Err: faultText(err)}
	}
	return Result{Output: out}
}

// resolve builds the name environment for the next block: intrinsics and
// context first, then user bindings, which shadow on collision.
func (e *Environment) resolve() starlark.StringDict {
	d := make(starlark.StringDict, len(e.predeclared)+len(e.globals))
	for name, v := range e.predeclared {
		d[name] = v
	}
	for name, v := range e.globals {
		d[name] = v
	}
	return d
}

// Lookup returns the display form of a namespace binding, for FINAL_VAR.
func (e *Environment) Lookup(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.globals[name]
	if !ok {
		return "", false
	}
	if s, ok := starlark.AsString(v); ok {
		return s, true
	}
	return v.String(), true
}

// Vars returns the names bound by executed instructions, for diagnostics.
func (e *Environment) Vars() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.globals))
	for name := range e.globals {
		names = append(names, name)
	}
	return names
}

// faultText renders an execution fault with its backtrace when available.
func faultText(err error) string {
	var evalErr *starlark.EvalError
	if ok := asEvalError(err, &evalErr); ok {
		return evalErr.Backtrace()
	}
	return err.Error()
}

func asEvalError(err error, target **starlark.EvalError) bool {
	if ee, ok := err.(*starlark.EvalError); ok {
		*target = ee
		return true
	}
	return false
}

// TruncateMiddle elides the middle of long output for presentation.
// The engine always feeds the full text back to the model; this is for
// display surfaces only.
func TruncateMiddle(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	half := max / 2
	return s[:half] +
		fmt.Sprintf("\n\n... [truncated %d chars] ...\n\n", len(s)-max) +
		s[len(s)-half:]
}
