package synth

import (
	"testing"

	"github.com/synthloom/core/internal/domain"
	"github.com/synthloom/core/internal/knowledge"

	"github.com/stretchr/testify/assert"
)

func TestMemoryContextString_JoinsLessonsBeforeTips(t *testing.T) {
	ctx := knowledge.Context{
		Memories: []domain.Lesson{{LessonText: "watch off-by-one errors"}, {LessonText: "dedupe before sorting"}},
		Tips:     "prefer list comprehensions",
	}
	out := memoryContextString(ctx)
	assert.Contains(t, out, "watch off-by-one errors")
	assert.Contains(t, out, "dedupe before sorting")
	assert.Contains(t, out, "prefer list comprehensions")
}

func TestMemoryContextString_FallsBackToTipsWhenNoMemories(t *testing.T) {
	ctx := knowledge.Context{Tips: "only tips here"}
	assert.Equal(t, "only tips here", memoryContextString(ctx))
}

func TestToolNames_DedupsPreservingFirstOccurrenceOrder(t *testing.T) {
	responses := []domain.WorkerResponse{
		{ToolCall: &domain.ToolCall{Tool: "python_exec"}},
		{ToolCall: &domain.ToolCall{Tool: "read_file"}},
		{ToolCall: &domain.ToolCall{Tool: "python_exec"}},
		{},
	}
	names := toolNames(responses)
	assert.Equal(t, []string{"python_exec", "read_file"}, names)
}

func TestToolNames_NoToolCallsReturnsNil(t *testing.T) {
	responses := []domain.WorkerResponse{{}, {}}
	assert.Nil(t, toolNames(responses))
}

func TestAnyToolFailed_TrueOnClassifiedToolError(t *testing.T) {
	responses := []domain.WorkerResponse{
		{ToolCall: &domain.ToolCall{Tool: "python_exec"}, Verified: false, ExecutionResult: "SyntaxError: invalid syntax"},
	}
	assert.True(t, anyToolFailed(responses))
}

func TestAnyToolFailed_FalseWhenVerified(t *testing.T) {
	responses := []domain.WorkerResponse{
		{ToolCall: &domain.ToolCall{Tool: "python_exec"}, Verified: true, ExecutionResult: "ALL_TESTS_PASSED"},
	}
	assert.False(t, anyToolFailed(responses))
}

func TestAnyToolFailed_FalseWithoutToolCall(t *testing.T) {
	responses := []domain.WorkerResponse{
		{Verified: false, ExecutionResult: "SyntaxError: invalid syntax"},
	}
	assert.False(t, anyToolFailed(responses))
}
