package synth

import (
	"testing"

	"github.com/synthloom/core/internal/domain"

	"github.com/stretchr/testify/assert"
)

func (f fakeTools) AllNames() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	return names
}

func TestIsInvalidResponse_EmptyAndWhitespaceOnly(t *testing.T) {
	assert.True(t, isInvalidResponse(""))
	assert.True(t, isInvalidResponse("   \n\t  "))
}

func TestIsInvalidResponse_SystemTagsOnly(t *testing.T) {
	assert.True(t, isInvalidResponse("[INST] [/INST]"))
	assert.True(t, isInvalidResponse("<<SYS>>\n<</SYS>>"))
}

func TestIsInvalidResponse_RealContentIsValid(t *testing.T) {
	assert.False(t, isInvalidResponse("```python\ndef solve(): pass\n```"))
}

func TestExtractCandidate_FindsPythonBlock(t *testing.T) {
	text := "here you go\n```python\ndef add(a, b):\n    return a + b\n```\nthanks"
	code, ok := extractCandidate(text)
	assert.True(t, ok)
	assert.Equal(t, "def add(a, b):\n    return a + b", code)
}

func TestExtractCandidate_NoBlockReturnsFalse(t *testing.T) {
	_, ok := extractCandidate("just prose, no code")
	assert.False(t, ok)
}

func TestExtractToolCall_ParsesNameAndParams(t *testing.T) {
	call := extractToolCall(`TOOL_CALL: read_file(path="a.txt", mode='r')`)
	assert.NotNil(t, call)
	assert.Equal(t, "read_file", call.Tool)
	assert.Equal(t, "a.txt", call.Params["path"])
	assert.Equal(t, "r", call.Params["mode"])
}

func TestExtractToolCall_NoMatchReturnsNil(t *testing.T) {
	assert.Nil(t, extractToolCall("no tool call in here"))
}

func TestParseToolParams_SkipsMalformedEntries(t *testing.T) {
	params := parseToolParams(`path="a.txt", garbage, key2=value2`)
	assert.Equal(t, "a.txt", params["path"])
	assert.Equal(t, "value2", params["key2"])
	assert.Len(t, params, 2)
}

func TestBuildTaskPrompt_IncludesExampleBehavior(t *testing.T) {
	task := domain.NewTask("t-1", "reverse a string", domain.CategoryStringManipulation, 1, []domain.TestCase{
		{Input: "abc", Expected: "cba"},
	})
	prompt := buildTaskPrompt(task)
	assert.Contains(t, prompt, "reverse a string")
	assert.Contains(t, prompt, "Example behavior:")
	assert.Contains(t, prompt, "'abc' -> 'cba'")
}

func TestBuildTaskPrompt_OmitsExampleSectionWithoutTestCases(t *testing.T) {
	task := newTask("do something")
	prompt := buildTaskPrompt(task)
	assert.NotContains(t, prompt, "Example behavior:")
}

func TestBuildFixPrompt_IncludesFailingCodeAndHint(t *testing.T) {
	task := newTask("add numbers")
	hint := ErrorHint{Problem: "off by one", Hint: "check the loop bound"}
	prompt := buildFixPrompt(task, "def add(a, b): return a", hint)
	assert.Contains(t, prompt, "def add(a, b): return a")
	assert.Contains(t, prompt, "off by one")
	assert.Contains(t, prompt, "check the loop bound")
}

func TestWorker_BuildSystemPrompt_PrefersSuggestedToolsAsFullSchema(t *testing.T) {
	tools := fakeTools{
		"python_exec": domain.NewToolSchema("python_exec", "run python", "exec", nil),
		"read_file":   domain.NewToolSchema("read_file", "read a file", "fs", nil),
	}
	w := NewWorker(0, 0.7, "past lesson", []string{"python_exec"}, nil, tools, nil, nil, 1)

	prompt := w.buildSystemPrompt(newTask("do something"))
	assert.Contains(t, prompt, "(full schema)")
	assert.Contains(t, prompt, "past lesson")
}

func TestWorker_BuildSystemPrompt_IncludesHarvestedSkills(t *testing.T) {
	tools := fakeTools{}
	skill := domain.Skill{Name: "add", Parameters: []string{"a", "b"}, Doc: "adds two numbers"}
	w := NewWorker(0, 0.7, "", nil, nil, tools, []domain.Skill{skill}, nil, 1)

	prompt := w.buildSystemPrompt(newTask("do something"))
	assert.Contains(t, prompt, "Harvested skills:")
}

func TestWorker_BuildSystemPrompt_TemplatesMemoryContextAgainstTaskVariables(t *testing.T) {
	tools := fakeTools{}
	w := NewWorker(0, 0.7, "stay consistent with {{task.category}} conventions", nil, nil, tools, nil, nil, 1)

	prompt := w.buildSystemPrompt(newTask("do something"))
	assert.Contains(t, prompt, "stay consistent with general conventions")
}
