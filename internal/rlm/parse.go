package rlm

import (
	"regexp"
	"strings"
)

var (
	codeBlockRe = regexp.MustCompile("(?s)```repl\\s*\n(.*?)```")
	finalVarRe  = regexp.MustCompile(`FINAL_VAR\s*\(\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\)`)
	finalRe     = regexp.MustCompile(`(?s)FINAL\s*\((.*?)\)\s*(?:\n|$)`)
)

// Parsed is the structured reading of one root-model response.
type Parsed struct {
	// Blocks are the instruction blocks, in order of appearance.
	Blocks []string

	// FinalVar names a namespace variable holding the answer.
	FinalVar string

	// FinalText is an inline answer.
	FinalText string

	// HasFinal reports whether a termination marker was present.
	HasFinal bool
}

// parseResponse extracts instruction blocks and termination markers from a
// model response. A response can carry both; the orchestrator resolves
// that tie in favor of the instruction blocks.
func parseResponse(text string) Parsed {
	var p Parsed

	for _, m := range codeBlockRe.FindAllStringSubmatch(text, -1) {
		block := strings.TrimRight(m[1], "\n") + "\n"
		if strings.TrimSpace(block) == "" {
			continue
		}
		p.Blocks = append(p.Blocks, block)
	}

	// FINAL_VAR is checked first: its text also starts with "FINAL" but
	// never matches the inline form.
	if m := finalVarRe.FindStringSubmatch(text); m != nil {
		p.FinalVar = m[1]
		p.HasFinal = true
		return p
	}
	if m := finalRe.FindStringSubmatch(text); m != nil {
		p.FinalText = strings.TrimSpace(m[1])
		p.HasFinal = true
	}
	return p
}
