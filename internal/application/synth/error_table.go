package synth

import "strings"

// ErrorHint is a short "problem + fix hint" pair produced by the
// semantic error translator (spec §4.7).
type ErrorHint struct {
	ErrorType string
	Problem   string
	Hint      string
}

// errorHints is the closed translation table shared by the refiner's
// fix-prompt builder and the reflection buffer's per-iteration lesson
// (spec §4.7, §4.9 — "same closed set").
var errorHints = map[string]ErrorHint{
	"IndexError":          {"IndexError", "an index was out of range", "check list/string bounds before indexing, or use a safer lookup."},
	"KeyError":            {"KeyError", "a dict key was missing", "use .get() with a default, or verify the key exists first."},
	"TypeError":           {"TypeError", "an operation received the wrong type", "check argument types before the operation; convert explicitly if needed."},
	"ModuleNotFoundError": {"ModuleNotFoundError", "an import could not be resolved", "remove the unavailable import and rely on built-ins instead."},
	"ImportError":         {"ImportError", "an import failed", "remove the unavailable import and rely on built-ins instead."},
	"AttributeError":      {"AttributeError", "an attribute or method does not exist on that object", "verify the object's type and available methods before calling."},
	"ValueError":          {"ValueError", "a value was invalid for the operation", "validate input values before the operation, or catch the conversion case."},
	"NameError":           {"NameError", "a name was used before being defined", "define the variable or function before first use."},
	"SyntaxError":         {"SyntaxError", "the code did not parse", "rewrite the block from scratch with correct Python syntax."},
	"RecursionError":      {"RecursionError", "recursion exceeded the depth limit", "add or fix the base case, or switch to an iterative approach."},
	"FileNotFoundError":   {"FileNotFoundError", "a referenced file does not exist", "create the file first, or confirm the path matches the task's contract."},
	"ZeroDivisionError":   {"ZeroDivisionError", "a division by zero occurred", "guard the divisor and handle the zero case explicitly."},
}

const genericErrorType = "Unknown"

var genericHint = ErrorHint{
	ErrorType: genericErrorType,
	Problem:   "an unexpected error occurred",
	Hint:      "review the traceback and fix the reported line.",
}

// genericLesson is the reflection buffer's fallback for unrecognized
// error types (spec §4.9).
const genericLesson = "review and fix"

// ClassifyErrorType extracts the Python exception type name from a raw
// message of the form "ExceptionType: detail", falling back to the
// generic bucket when no known prefix matches.
func ClassifyErrorType(rawMessage string) string {
	for errType := range errorHints {
		if strings.HasPrefix(rawMessage, errType) {
			return errType
		}
		if strings.Contains(rawMessage, errType+":") {
			return errType
		}
	}
	return genericErrorType
}

// TranslateError maps a raw exception message through the closed table,
// preserving the original message under a separate field for debugging
// (spec §4.7: "the original message is preserved under a separate key").
func TranslateError(rawMessage string) (hint ErrorHint, original string) {
	errType := ClassifyErrorType(rawMessage)
	if h, ok := errorHints[errType]; ok {
		return h, rawMessage
	}
	return genericHint, rawMessage
}

// LessonForError returns the closed-table advice string for an error
// type, or the generic lesson for unknown types (spec §4.9).
func LessonForError(errType string) string {
	if h, ok := errorHints[errType]; ok {
		return h.Hint
	}
	return genericLesson
}
