package repl

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
)

// llmQuery implements the llm_query intrinsic.
//
// llm_query(prompt) issues one query against the sub model tier and
// returns its answer as a string. The call is rejected when it would
// exceed the recursion-depth limit; the rejection surfaces as an ordinary
// caught error inside the executing block.
func (e *Environment) llmQuery(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var prompt string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &prompt); err != nil {
		return nil, err
	}

	if e.opts.Depth+1 > e.opts.MaxRecursionDepth {
		return nil, fmt.Errorf("llm_query: recursion depth limit reached (max %d)", e.opts.MaxRecursionDepth)
	}

	ctx := e.execCtx
	if ctx == nil {
		ctx = context.Background()
	}
	answer, err := e.opts.SubQuery(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm_query: %w", err)
	}
	return starlark.String(answer), nil
}

// newToolBuiltin adapts a host Tool into a Starlark callable. Positional
// arguments are coerced to strings; keyword arguments are rejected.
func newToolBuiltin(name string, tool Tool) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
		}
		strArgs := make([]string, len(args))
		for i, a := range args {
			if s, ok := starlark.AsString(a); ok {
				strArgs[i] = s
				continue
			}
			strArgs[i] = a.String()
		}
		out, err := tool(strArgs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.String(out), nil
	})
}
