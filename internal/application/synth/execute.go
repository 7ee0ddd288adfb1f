package synth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/synthloom/core/internal/domain"
	synthErrors "github.com/synthloom/core/internal/domain/errors"
)

// AllTestsPassed is printed by the injected verification block once
// every assertion has passed (spec §4.2).
const AllTestsPassed = "ALL_TESTS_PASSED"

// VerificationFailedPrefix prefixes the message printed (and re-raised)
// by the injected verification block on the first failing assertion.
const VerificationFailedPrefix = "VERIFICATION_FAILED: "

var topLevelFuncPattern = regexp.MustCompile(`(?m)^def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// ExecutionResult is the executor collaborator's verdict on one run.
type ExecutionResult struct {
	OK     bool
	Stdout string
	Stderr string
	Err    error
}

// Verified reports whether ok held and stdout carries the success
// sentinel (spec §4.2: "A candidate is verified iff the executor returns
// ok and stdout contains the success sentinel").
func (r ExecutionResult) Verified() bool {
	return r.OK && strings.Contains(r.Stdout, AllTestsPassed)
}

// FailureMessage extracts the semantic failure text from stdout, if any,
// for use in a refiner fix prompt (spec §4.7).
func (r ExecutionResult) FailureMessage() string {
	if idx := strings.Index(r.Stdout, VerificationFailedPrefix); idx >= 0 {
		msg := r.Stdout[idx+len(VerificationFailedPrefix):]
		if nl := strings.IndexByte(msg, '\n'); nl >= 0 {
			msg = msg[:nl]
		}
		return strings.TrimSpace(msg)
	}
	if r.Stderr != "" {
		return strings.TrimSpace(r.Stderr)
	}
	return strings.TrimSpace(r.Stdout)
}

// Executor runs assertion-injected candidate code through an external
// interpreter. It does not itself sandbox the candidate — spec §4.2
// makes that the collaborator's responsibility; this type only shells
// out and captures the result.
type Executor struct {
	interpreterPath string
	timeout         time.Duration
}

// NewExecutor creates an Executor invoking interpreterPath (e.g.
// "python3") with a per-run timeout.
func NewExecutor(interpreterPath string, timeout time.Duration) *Executor {
	if interpreterPath == "" {
		interpreterPath = "python3"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{interpreterPath: interpreterPath, timeout: timeout}
}

// InjectAssertions finds the first top-level function definition in
// code and appends a verification block asserting funcName(input) ==
// expected for every test case, using repr-formatted literals so
// strings, tuples, lists, and dicts round-trip (spec §4.2, steps 1-3).
func InjectAssertions(code string, tests []domain.TestCase) (string, error) {
	match := topLevelFuncPattern.FindStringSubmatch(code)
	if match == nil {
		return "", synthErrors.NewVerificationError("", "no top-level function definition found in candidate", nil)
	}
	funcName := match[1]

	var block strings.Builder
	block.WriteString("\n\ntry:\n")
	for _, tc := range tests {
		block.WriteString(fmt.Sprintf(
			"    assert %s(%s) == %s, %s\n",
			funcName,
			reprLiteral(tc.Input),
			reprLiteral(tc.Expected),
			pyStringLiteral(fmt.Sprintf("%s(%s) != %s", funcName, reprLiteral(tc.Input), reprLiteral(tc.Expected))),
		))
	}
	block.WriteString(fmt.Sprintf("    print(%q)\n", AllTestsPassed))
	block.WriteString("except Exception as e:\n")
	block.WriteString(fmt.Sprintf("    print(%q + str(e))\n", VerificationFailedPrefix))
	block.WriteString("    raise\n")

	return code + block.String(), nil
}

// Execute runs code (already assertion-injected) under the configured
// interpreter and reports the raw result; callers use Verified() /
// FailureMessage() to interpret it.
func (e *Executor) Execute(ctx context.Context, code string) ExecutionResult {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.interpreterPath, "-c", code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return ExecutionResult{
		OK:     err == nil,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Err:    err,
	}
}

// reprLiteral renders a decoded JSON value as a Python literal
// (spec §4.2: "repr-formatted literals... so string, tuple, list, and
// dict inputs round-trip correctly").
func reprLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case string:
		return pyStringLiteral(val)
	case float64:
		return formatPyNumber(val)
	case int:
		return strconv.Itoa(val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = reprLiteral(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case domain.Tuple:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = reprLiteral(item)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case map[string]any:
		parts := make([]string, 0, len(val))
		for k, item := range val {
			parts = append(parts, fmt.Sprintf("%s: %s", pyStringLiteral(k), reprLiteral(item)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func pyStringLiteral(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func formatPyNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
