package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewToolSchema_StartsAtVersionOneWithEmptyHints(t *testing.T) {
	s := NewToolSchema("python_exec", "run python code", "code_exec", nil)
	assert.Equal(t, 1, s.Version)
	assert.Empty(t, s.ErrorHints)
}

func TestOneLineCatalog_OmitsPitfallNoteWithoutHints(t *testing.T) {
	s := NewToolSchema("python_exec", "run python code", "code_exec", nil)
	assert.Equal(t, "python_exec: run python code", s.OneLineCatalog())
}

func TestOneLineCatalog_NotesPitfallsWhenHintsExist(t *testing.T) {
	s := NewToolSchema("python_exec", "run python code", "code_exec", nil)
	s.SetErrorHint("SyntaxError", "check indentation")
	assert.Contains(t, s.OneLineCatalog(), "known pitfalls tracked")
}

func TestSetErrorHint_AddsHintAndBumpsVersion(t *testing.T) {
	s := NewToolSchema("python_exec", "run python code", "code_exec", nil)
	s.SetErrorHint("SyntaxError", "check indentation")

	assert.Equal(t, "check indentation", s.ErrorHints["SyntaxError"])
	assert.Equal(t, 2, s.Version)
}

func TestSetErrorHint_DoesNotOverwriteExistingHint(t *testing.T) {
	s := NewToolSchema("python_exec", "run python code", "code_exec", nil)
	s.SetErrorHint("SyntaxError", "first lesson")
	s.SetErrorHint("SyntaxError", "second lesson")

	assert.Equal(t, "first lesson", s.ErrorHints["SyntaxError"])
	assert.Equal(t, 2, s.Version)
}
