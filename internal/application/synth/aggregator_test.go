package synth

import (
	"testing"

	"github.com/synthloom/core/internal/domain"

	"github.com/stretchr/testify/assert"
)

type fakeTools map[string]*domain.ToolSchema

func (f fakeTools) Schema(name string) (*domain.ToolSchema, bool) {
	s, ok := f[name]
	return s, ok
}

func newTask(description string) *domain.Task {
	return domain.NewTask("t-1", description, domain.CategoryGeneral, 1, nil)
}

func TestAggregator_Select_EmptyResponsesReturnsPlaceholder(t *testing.T) {
	a := NewAggregator(nil)
	result := a.Select(nil, newTask("reverse a string"))

	assert.True(t, result.FallbackUsed)
	assert.Equal(t, -1, result.Winner.WorkerIndex)
	assert.False(t, result.Winner.Verified)
}

func TestAggregator_Select_VerifiedWinnerPrefersFewestAttempts(t *testing.T) {
	a := NewAggregator(nil)
	responses := []domain.WorkerResponse{
		{WorkerIndex: 0, Verified: true, Attempts: 3},
		{WorkerIndex: 1, Verified: true, Attempts: 1},
		{WorkerIndex: 2, Verified: false, Attempts: 1},
	}

	result := a.Select(responses, newTask("task"))

	assert.Equal(t, 1, result.Winner.WorkerIndex)
	assert.True(t, result.Winner.Verified)
}

func TestAggregator_Select_HeuristicScoringWithoutVerifiedCandidates(t *testing.T) {
	a := NewAggregator(nil)
	responses := []domain.WorkerResponse{
		{WorkerIndex: 0, RawText: "this failed with an error", Attempts: 2},
		{WorkerIndex: 1, RawText: "```python\ndef solve(x):\n    return x\n```", Attempts: 1},
	}

	result := a.Select(responses, newTask("solve"))

	assert.Equal(t, 1, result.Winner.WorkerIndex, "the clean, python-block response should outscore the error-mentioning one")
}

func TestAggregator_Select_PruneByGapKeepsOnlyTopWhenGapIsWide(t *testing.T) {
	a := NewAggregator(nil)
	responses := []domain.WorkerResponse{
		{WorkerIndex: 0, RawText: "```python\ndef solve(x):\n    return x\n```", Attempts: 1},
		{WorkerIndex: 1, RawText: "error failed error failed", Attempts: 5},
	}

	result := a.Select(responses, newTask("solve"))
	assert.Len(t, result.Pruned, 1)
}

func TestAggregator_Select_PruneByGapKeepsTopTwoWhenClose(t *testing.T) {
	a := NewAggregator(nil)
	responses := []domain.WorkerResponse{
		{WorkerIndex: 0, RawText: "```python\ndef solve(x):\n    return x\n```", Attempts: 1},
		{WorkerIndex: 1, RawText: "```python\ndef solve(x):\n    return x * 2\n```", Attempts: 1},
	}

	result := a.Select(responses, newTask("solve"))
	assert.Len(t, result.Pruned, 2)
}

func TestAggregator_Select_UnknownToolRemappedToPythonExec(t *testing.T) {
	tools := fakeTools{}
	a := NewAggregator(tools)
	responses := []domain.WorkerResponse{
		{
			WorkerIndex: 0,
			RawText:     "```python\ndef solve(x):\n    return x\n```",
			ToolCall:    &domain.ToolCall{Tool: "hallucinated_tool", Params: map[string]any{}},
			Attempts:    1,
		},
	}

	result := a.Select(responses, newTask("solve"))

	assert.Equal(t, pythonExec, result.Winner.ToolCall.Tool)
	code, _ := result.Winner.ToolCall.Params["code"].(string)
	assert.Contains(t, code, "def solve(x):")
}

func TestAggregator_Select_KnownToolCallIsNotRemapped(t *testing.T) {
	tools := fakeTools{"read_file": domain.NewToolSchema("read_file", "reads a file", "io", nil)}
	a := NewAggregator(tools)
	responses := []domain.WorkerResponse{
		{
			WorkerIndex: 0,
			RawText:     "```python\ndef solve(x):\n    return x\n```",
			ToolCall:    &domain.ToolCall{Tool: "read_file", Params: map[string]any{"path": "a.txt"}},
			Attempts:    1,
		},
	}

	result := a.Select(responses, newTask("solve"))
	assert.Equal(t, "read_file", result.Winner.ToolCall.Tool)
}

func TestAggregator_Select_UnknownToolWithNoPythonBlockGetsDiagnosticStub(t *testing.T) {
	tools := fakeTools{}
	a := NewAggregator(tools)
	responses := []domain.WorkerResponse{
		{
			WorkerIndex: 0,
			RawText:     "no code here",
			ToolCall:    &domain.ToolCall{Tool: "mystery_tool", Params: map[string]any{}},
			Attempts:    1,
		},
	}

	result := a.Select(responses, newTask("solve"))

	code, _ := result.Winner.ToolCall.Params["code"].(string)
	assert.Contains(t, code, "mystery_tool")
}

func TestAggregator_Select_FallbackUsedBelowScoreFive(t *testing.T) {
	a := NewAggregator(nil)
	responses := []domain.WorkerResponse{
		{WorkerIndex: 0, RawText: "error failed", Attempts: 2},
	}

	result := a.Select(responses, newTask("solve"))
	assert.True(t, result.Winner.FallbackUsed)
	assert.True(t, result.FallbackUsed)
}
