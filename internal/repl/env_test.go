package repl

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutePrintCapture(t *testing.T) {
	env := NewEnvironment(Options{Context: StringContext("hello world")})

	res := env.Execute(context.Background(), `print(len(context))`)
	require.True(t, res.Success(), "unexpected fault: %s", res.Err)
	assert.Equal(t, "11\n", res.Output)
}

func TestNamespacePersistsAcrossBlocks(t *testing.T) {
	env := NewEnvironment(Options{Context: StringContext("abc")})

	res := env.Execute(context.Background(), `x = 40`)
	require.True(t, res.Success(), res.Err)

	res = env.Execute(context.Background(), "answer = x + 2\nprint(answer)")
	require.True(t, res.Success(), res.Err)
	assert.Equal(t, "42\n", res.Output)

	val, ok := env.Lookup("answer")
	require.True(t, ok)
	assert.Equal(t, "42", val)
}

func TestRebindingAllowedAcrossBlocks(t *testing.T) {
	env := NewEnvironment(Options{})

	res := env.Execute(context.Background(), `x = 1`)
	require.True(t, res.Success(), res.Err)

	res = env.Execute(context.Background(), `x = 2`)
	require.True(t, res.Success(), res.Err)

	val, ok := env.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, "2", val)
}

func TestFrozenMutationIsCaught(t *testing.T) {
	env := NewEnvironment(Options{})

	res := env.Execute(context.Background(), `items = [1, 2]`)
	require.True(t, res.Success(), res.Err)

	res = env.Execute(context.Background(), `items.append(3)`)
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "frozen")
}

func TestFaultIsCaughtNotPropagated(t *testing.T) {
	env := NewEnvironment(Options{})

	res := env.Execute(context.Background(), `y = undefined_name + 1`)
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "undefined_name")
}

func TestBindingsBeforeFaultSurvive(t *testing.T) {
	env := NewEnvironment(Options{})

	res := env.Execute(context.Background(), "a = 7\nb = a + undefined_name")
	require.False(t, res.Success())

	val, ok := env.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "7", val)
}

func TestContextIsSeeded(t *testing.T) {
	env := NewEnvironment(Options{Context: ListContext([]string{"doc one", "doc two"})})

	res := env.Execute(context.Background(), `print(context[1])`)
	require.True(t, res.Success(), res.Err)
	assert.Equal(t, "doc two\n", res.Output)
}

func TestContextIsReadOnly(t *testing.T) {
	env := NewEnvironment(Options{Context: ListContext([]string{"a"})})

	res := env.Execute(context.Background(), `context.append("b")`)
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "frozen")
}

func TestLLMQueryCallsSubTier(t *testing.T) {
	var gotPrompt string
	env := NewEnvironment(Options{
		SubQuery: func(_ context.Context, prompt string) (string, error) {
			gotPrompt = prompt
			return "sub answer", nil
		},
	})

	res := env.Execute(context.Background(), `r = llm_query("summarize this")`)
	require.True(t, res.Success(), res.Err)
	assert.Equal(t, "summarize this", gotPrompt)

	val, ok := env.Lookup("r")
	require.True(t, ok)
	assert.Equal(t, "sub answer", val)
}

func TestLLMQueryDepthLimit(t *testing.T) {
	env := NewEnvironment(Options{
		Depth:             1,
		MaxRecursionDepth: 1,
		SubQuery: func(_ context.Context, _ string) (string, error) {
			t.Fatal("sub-call must not be issued past the depth limit")
			return "", nil
		},
	})

	res := env.Execute(context.Background(), `r = llm_query("too deep")`)
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "recursion depth limit")

	_, ok := env.Lookup("r")
	assert.False(t, ok, "failed call must not bind a value")
}

func TestLLMQueryAbsentWhenDisabled(t *testing.T) {
	env := NewEnvironment(Options{})

	res := env.Execute(context.Background(), `r = llm_query("x")`)
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "llm_query")
}

func TestToolInjection(t *testing.T) {
	env := NewEnvironment(Options{
		Tools: map[string]Tool{
			"read_file": func(args []string) (string, error) {
				return "contents of " + args[0], nil
			},
		},
	})

	res := env.Execute(context.Background(), `print(read_file("notes.txt"))`)
	require.True(t, res.Success(), res.Err)
	assert.Equal(t, "contents of notes.txt\n", res.Output)
}

func TestStepLimitBoundsRunawayLoops(t *testing.T) {
	env := NewEnvironment(Options{MaxSteps: 1000})

	res := env.Execute(context.Background(), "i = 0\nwhile True:\n    i += 1\n")
	assert.False(t, res.Success())
	assert.NotEmpty(t, res.Err)
}

func TestWallClockLimit(t *testing.T) {
	env := NewEnvironment(Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	res := env.Execute(context.Background(), "i = 0\nwhile True:\n    i += 1\n")
	assert.False(t, res.Success())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestJSONModuleAvailable(t *testing.T) {
	env := NewEnvironment(Options{Context: StringContext(`{"k": "v"}`)})

	res := env.Execute(context.Background(), "d = json.decode(context)\nprint(d[\"k\"])")
	require.True(t, res.Success(), res.Err)
	assert.Equal(t, "v\n", res.Output)
}

func TestTruncateMiddle(t *testing.T) {
	long := strings.Repeat("a", 600) + strings.Repeat("b", 600)

	got := TruncateMiddle(long, 200)
	assert.Contains(t, got, "[truncated 1000 chars]")
	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", 100)))
	assert.True(t, strings.HasSuffix(got, strings.Repeat("b", 100)))

	short := "short"
	assert.Equal(t, short, TruncateMiddle(short, 200))
	assert.Equal(t, long, TruncateMiddle(long, 0))
}
