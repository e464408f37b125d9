package rlm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleBlock(t *testing.T) {
	p := parseResponse("Let me look at the context.\n```repl\nprint(len(context))\n```\n")
	require.Len(t, p.Blocks, 1)
	assert.Equal(t, "print(len(context))\n", p.Blocks[0])
	assert.False(t, p.HasFinal)
}

func TestParseMultipleBlocksInOrder(t *testing.T) {
	p := parseResponse("```repl\na = 1\n```\nthen\n```repl\nb = 2\n```\n")
	require.Len(t, p.Blocks, 2)
	assert.Equal(t, "a = 1\n", p.Blocks[0])
	assert.Equal(t, "b = 2\n", p.Blocks[1])
}

func TestParseIgnoresOtherFences(t *testing.T) {
	p := parseResponse("```python\nprint('no')\n```\nsome prose\n")
	assert.Empty(t, p.Blocks)
	assert.False(t, p.HasFinal)
}

func TestParseEmptyBlockSkipped(t *testing.T) {
	p := parseResponse("```repl\n\n```\n")
	assert.Empty(t, p.Blocks)
}

func TestParseFinalInline(t *testing.T) {
	p := parseResponse("I have it.\nFINAL(the answer is 42)\n")
	assert.True(t, p.HasFinal)
	assert.Equal(t, "the answer is 42", p.FinalText)
	assert.Empty(t, p.FinalVar)
}

func TestParseFinalMultiline(t *testing.T) {
	p := parseResponse("FINAL(line one\nline two)\n")
	assert.True(t, p.HasFinal)
	assert.Equal(t, "line one\nline two", p.FinalText)
}

func TestParseFinalVar(t *testing.T) {
	p := parseResponse("Done.\nFINAL_VAR(answer)\n")
	assert.True(t, p.HasFinal)
	assert.Equal(t, "answer", p.FinalVar)
	assert.Empty(t, p.FinalText)
}

func TestParseFinalVarTakesPrecedenceOverFinal(t *testing.T) {
	p := parseResponse("FINAL_VAR(result)\nFINAL(ignored)\n")
	assert.Equal(t, "result", p.FinalVar)
	assert.Empty(t, p.FinalText)
}

func TestParseBlockAndFinalTogether(t *testing.T) {
	p := parseResponse("```repl\nanswer = compute()\n```\nFINAL_VAR(answer)\n")
	require.Len(t, p.Blocks, 1)
	assert.True(t, p.HasFinal)
	assert.Equal(t, "answer", p.FinalVar)
}

func TestParseNeitherIsMiss(t *testing.T) {
	p := parseResponse("I am thinking about how to approach this.")
	assert.Empty(t, p.Blocks)
	assert.False(t, p.HasFinal)
}
