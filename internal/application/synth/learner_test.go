package synth

import (
	"context"
	"testing"

	"github.com/synthloom/core/internal/domain"
	"github.com/synthloom/core/internal/infrastructure/storage"
	"github.com/synthloom/core/internal/knowledge"

	"github.com/stretchr/testify/assert"
)

func newTestLearner() (*Learner, *knowledge.Store) {
	store := knowledge.NewStore(storage.NewMemoryStore())
	return NewLearner(store), store
}

func TestLearner_LearnFromSession_FirstPassSuccess(t *testing.T) {
	learner, store := newTestLearner()
	task := newTask("reverse a string")

	err := learner.LearnFromSession(context.Background(), task, 0, 20, 0, nil)
	assert.NoError(t, err)

	lessons, err := store.Backend().ListLessons(context.Background())
	assert.NoError(t, err)
	assert.Len(t, lessons, 1)
	assert.Equal(t, domain.SourceTypeVerifiedSuccess, lessons[0].SourceType)
}

func TestLearner_LearnFromSession_RefinementImprovedScore(t *testing.T) {
	learner, store := newTestLearner()
	task := newTask("reverse a string")

	err := learner.LearnFromSession(context.Background(), task, 5, 18, 2, nil)
	assert.NoError(t, err)

	lessons, err := store.Backend().ListLessons(context.Background())
	assert.NoError(t, err)
	assert.Len(t, lessons, 1)
	assert.Equal(t, domain.SourceTypeRefinement, lessons[0].SourceType)
}

func TestLearner_LearnFromSession_FailureTagsDominantErrorAndTools(t *testing.T) {
	learner, store := newTestLearner()
	task := newTask("reverse a string")

	responses := []domain.WorkerResponse{
		{Verified: false, ExecutionResult: "SyntaxError: invalid syntax", ToolCall: &domain.ToolCall{Tool: "python_exec"}},
		{Verified: false, ExecutionResult: "SyntaxError: invalid syntax"},
		{Verified: true, ExecutionResult: "ALL_TESTS_PASSED"},
	}

	err := learner.LearnFromSession(context.Background(), task, 10, 8, 3, responses)
	assert.NoError(t, err)

	lessons, err := store.Backend().ListLessons(context.Background())
	assert.NoError(t, err)
	assert.Len(t, lessons, 1)
	assert.Equal(t, domain.SourceTypeFailure, lessons[0].SourceType)
	assert.Contains(t, lessons[0].Tools, "python_exec")
}

func TestLearner_HarvestSkill_SkipsUnverified(t *testing.T) {
	learner, store := newTestLearner()
	response := domain.WorkerResponse{Verified: false, RawText: "```python\ndef solve(x):\n    return x\n```"}

	assert.NoError(t, learner.HarvestSkill(context.Background(), response))

	skills, err := store.Backend().ListSkills(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, skills)
}

func TestLearner_HarvestSkill_ExtractsNameAndParams(t *testing.T) {
	learner, store := newTestLearner()
	response := domain.WorkerResponse{
		Verified: true,
		RawText:  "```python\ndef add(a, b):\n    \"\"\"adds two numbers\"\"\"\n    return a + b\n```",
	}

	assert.NoError(t, learner.HarvestSkill(context.Background(), response))

	skills, err := store.Backend().ListSkills(context.Background())
	assert.NoError(t, err)
	assert.Len(t, skills, 1)
	assert.Equal(t, "add", skills[0].Name)
	assert.Equal(t, []string{"a", "b"}, skills[0].Parameters)
	assert.Equal(t, "adds two numbers", skills[0].Doc)
}

func TestLearner_HarvestSkill_NoPythonBlockIsNoop(t *testing.T) {
	learner, store := newTestLearner()
	response := domain.WorkerResponse{Verified: true, RawText: "no code block here"}

	assert.NoError(t, learner.HarvestSkill(context.Background(), response))

	skills, err := store.Backend().ListSkills(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, skills)
}

func TestLearner_LearnTestPattern_RecordsFirstCase(t *testing.T) {
	learner, store := newTestLearner()
	task := domain.NewTask("t-1", "add two numbers", domain.CategoryMath, 1, []domain.TestCase{
		{Input: []any{float64(1), float64(2)}, Expected: float64(3)},
	})

	assert.NoError(t, learner.LearnTestPattern(context.Background(), task))

	patterns, err := store.Backend().ListTestPatterns(context.Background())
	assert.NoError(t, err)
	assert.Len(t, patterns, 1)
	assert.Equal(t, domain.CategoryMath, patterns[0].Category)
}

func TestLearner_LearnTestPattern_NoTestCasesIsNoop(t *testing.T) {
	learner, store := newTestLearner()
	task := newTask("no test cases")

	assert.NoError(t, learner.LearnTestPattern(context.Background(), task))

	patterns, err := store.Backend().ListTestPatterns(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, patterns)
}
