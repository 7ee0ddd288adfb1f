package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTask_AccessorsReflectConstructorArgs(t *testing.T) {
	cases := []TestCase{{Input: int64(2), Expected: int64(4)}}
	task := NewTask("t-1", "double a number", CategoryMath, 2, cases)

	assert.Equal(t, "t-1", task.ID())
	assert.Equal(t, "double a number", task.Description())
	assert.Equal(t, CategoryMath, task.Category())
	assert.Equal(t, 2, task.Difficulty())
	assert.Equal(t, cases, task.TestCases())
	assert.False(t, task.CreatedAt().IsZero())
}

func TestNewTask_CopiesTestCasesDefensively(t *testing.T) {
	cases := []TestCase{{Input: int64(1), Expected: int64(1)}}
	task := NewTask("t-1", "identity", CategoryMath, 1, cases)

	cases[0].Input = int64(99)
	assert.Equal(t, int64(1), task.TestCases()[0].Input)
}

func TestTask_TestCases_ReturnsCopyNotSharedSlice(t *testing.T) {
	task := NewTask("t-1", "identity", CategoryMath, 1, []TestCase{{Input: int64(1), Expected: int64(1)}})

	got := task.TestCases()
	got[0].Input = int64(42)

	assert.Equal(t, int64(1), task.TestCases()[0].Input)
}

func TestCategory_IsValid_AcceptsKnownCategories(t *testing.T) {
	assert.True(t, CategoryMath.IsValid())
	assert.True(t, CategoryGeneral.IsValid())
	assert.True(t, CategoryToolError.IsValid())
}

func TestCategory_IsValid_RejectsUnknownCategory(t *testing.T) {
	assert.False(t, Category("not-a-real-category").IsValid())
}
