package rlm

import (
	"fmt"
	"strings"

	"github.com/rand/rlm/internal/config"
)

// contextMeta describes the seeded context for prompt interpolation. The
// prompt tells the model what shape 'context' has without inlining it.
type contextMeta struct {
	// Kind is "string" or "list".
	Kind string

	// TotalChars is the combined character length.
	TotalChars int

	// ChunkChars holds per-chunk lengths for list contexts.
	ChunkChars []int
}

const maxChunkPreview = 20

func (m contextMeta) describe() string {
	if m.Kind == "list" {
		var sb strings.Builder
		fmt.Fprintf(&sb, "a list of %d string chunks (%d chars total)", len(m.ChunkChars), m.TotalChars)
		if n := len(m.ChunkChars); n > 0 {
			shown := m.ChunkChars
			if n > maxChunkPreview {
				shown = shown[:maxChunkPreview]
			}
			parts := make([]string, len(shown))
			for i, c := range shown {
				parts[i] = fmt.Sprintf("%d", c)
			}
			fmt.Fprintf(&sb, "; chunk lengths: [%s", strings.Join(parts, ", "))
			if n > maxChunkPreview {
				fmt.Fprintf(&sb, ", ... %d more", n-maxChunkPreview)
			}
			sb.WriteString("]")
		}
		return sb.String()
	}
	return fmt.Sprintf("a single string of %d chars", m.TotalChars)
}

const promptHeader = `You are tasked with answering a query using a large context that does NOT fit in your window. The context lives in an interactive Starlark environment where you run code to examine it.

The environment persists between your turns. Variables you assign in one turn are available in the next. You cannot mutate a value created in an earlier turn, but you can rebind any name to a new value.

To run code, emit a fenced block tagged repl:

` + "```repl" + `
first_chunk = context[0]
print(len(first_chunk))
` + "```" + `

Whatever you print comes back to you as REPL output on the next turn. You may emit several blocks in one turn; they run in order.

Available in the environment:
- context: the data to analyze
- json, math: standard modules
- print(...): send results back to yourself`

const promptSubcalls = `- llm_query(prompt): ask a smaller model a focused question about text you pass it. Use it to summarize or extract from pieces of the context that are too large to print. It returns the model's answer as a string.`

const promptQwenBatchWarning = `
Issue llm_query calls one at a time and inspect each result before the next. Do not generate loops that fire off dozens of sub-queries in a single block.`

const promptFooter = `
Work iteratively: peek at the context's structure first, then drill into the relevant parts. Keep printed output small; extract what matters into variables.

When you know the answer, finish with exactly one of:
- FINAL(your answer here)
- FINAL_VAR(variable_name) to answer with the value of a variable you assigned

A turn that contains a repl block is an exploration turn; its FINAL is ignored until a turn with no code.`

// systemPrompt renders the orchestration prompt for the given dialect.
func systemPrompt(cfg config.Config, meta contextMeta) string {
	var sb strings.Builder
	sb.WriteString(promptHeader)
	if cfg.AllowSubcalls {
		sb.WriteString("\n")
		sb.WriteString(promptSubcalls)
		if cfg.Variant == config.VariantQwen {
			sb.WriteString("\n")
			sb.WriteString(promptQwenBatchWarning)
		}
	}
	sb.WriteString("\n")
	sb.WriteString(promptFooter)
	fmt.Fprintf(&sb, "\n\nThe context is %s.", meta.describe())
	return sb.String()
}

// nudgeMessage is fed back when a response carries neither an instruction
// block nor a termination marker.
const nudgeMessage = `Your response contained no repl code block and no FINAL marker. Either explore the context with a ` + "```repl" + ` block or answer with FINAL(...) / FINAL_VAR(...).`
