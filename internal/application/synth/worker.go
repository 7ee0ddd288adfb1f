package synth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/synthloom/core/internal/application/inference"
	"github.com/synthloom/core/internal/domain"
)

var pythonBlockPattern = regexp.MustCompile("(?s)```python\\s*\\n(.*?)```")

var toolCallPattern = regexp.MustCompile(`(?i)TOOL_CALL:\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\((.*)\)`)

var systemTagOnlyPattern = regexp.MustCompile(`^(\s*(\[INST\]|\[/INST\]|<<SYS>>|<</SYS>>|</s>)\s*)+$`)

// ToolCatalog looks up full schemas for suggested tools and a one-line
// catalog for the rest (spec §4.5 step 1).
type ToolCatalog interface {
	Schema(name string) (*domain.ToolSchema, bool)
	AllNames() []string
}

// Worker runs exactly one generate->verify->self-fix micro-loop pinned
// to one backend slot (spec §4.5).
type Worker struct {
	index       int
	temperature float64
	memoryCtx   string // frozen at task start
	suggested   []string

	client    *inference.Client
	tools     ToolCatalog
	skills    []domain.Skill
	executor  *Executor
	templates *TemplateProcessor
	retries   int // R, default 2
}

// NewWorker constructs a Worker pinned to index (and therefore backend
// slot index, per spec §4.5's slot-affinity rule).
func NewWorker(index int, temperature float64, memoryCtx string, suggested []string, client *inference.Client, tools ToolCatalog, skills []domain.Skill, executor *Executor, retries int) *Worker {
	if retries <= 0 {
		retries = 2
	}
	return &Worker{
		index:       index,
		temperature: temperature,
		memoryCtx:   memoryCtx,
		suggested:   suggested,
		client:      client,
		tools:       tools,
		skills:      skills,
		executor:    executor,
		templates:   NewTemplateProcessor(NewConditionEvaluator(true)),
		retries:     retries,
	}
}

// Run executes the worker's micro-loop against task and returns its
// immutable WorkerResponse.
func (w *Worker) Run(ctx context.Context, task *domain.Task) domain.WorkerResponse {
	start := time.Now()

	systemPrompt := w.buildSystemPrompt(task)
	userPrompt := buildTaskPrompt(task)

	result := w.client.GenerateWithRetry(ctx, inference.GenerateRequest{
		Messages: []inference.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: w.temperature,
		MaxTokens:   1024,
		SlotID:      w.index,
		CachePrompt: true,
	})

	if isInvalidResponse(result.Content) {
		return domain.WorkerResponse{
			WorkerIndex:     w.index,
			Temperature:     w.temperature,
			RawText:         result.Content,
			Verified:        false,
			ExecutionResult: "invalid response: empty, whitespace-only, or system-tags-only",
			Attempts:        0,
			Duration:        time.Since(start),
			CreatedAt:       time.Now(),
		}
	}

	candidate, ok := extractCandidate(result.Content)
	toolCall := extractToolCall(result.Content)

	if !ok {
		return domain.WorkerResponse{
			WorkerIndex:     w.index,
			Temperature:     w.temperature,
			RawText:         result.Content,
			ToolCall:        toolCall,
			Verified:        false,
			ExecutionResult: "no python code block found",
			Attempts:        0,
			Duration:        time.Since(start),
			CreatedAt:       time.Now(),
		}
	}

	verified, execResult, attempts, finalText := w.verifyWithFixLoop(ctx, candidate, task, result.Content)

	return domain.WorkerResponse{
		WorkerIndex:     w.index,
		Temperature:     w.temperature,
		RawText:         finalText,
		ToolCall:        toolCall,
		Verified:        verified,
		ExecutionResult: execResult,
		Attempts:        attempts,
		Duration:        time.Since(start),
		CreatedAt:       time.Now(),
	}
}

// verifyWithFixLoop implements spec §4.5 step 5: up to R retries,
// re-asking the same slot/temperature for a corrected block on failure.
func (w *Worker) verifyWithFixLoop(ctx context.Context, candidate string, task *domain.Task, rawText string) (bool, string, int, string) {
	current := candidate
	text := rawText

	for attempt := 0; attempt <= w.retries; attempt++ {
		injected, err := InjectAssertions(current, task.TestCases())
		if err != nil {
			return false, err.Error(), attempt + 1, text
		}

		result := w.executor.Execute(ctx, injected)
		if result.Verified() {
			return true, AllTestsPassed, attempt + 1, text
		}

		if attempt == w.retries {
			return false, result.FailureMessage(), attempt + 1, text
		}

		hint, _ := TranslateError(result.FailureMessage())
		fixPrompt := buildFixPrompt(task, current, hint)

		fixResult := w.client.GenerateWithRetry(ctx, inference.GenerateRequest{
			Prompt:      fixPrompt,
			Temperature: w.temperature,
			MaxTokens:   1024,
			SlotID:      w.index,
			CachePrompt: true,
		})

		if fixResult.Content == inference.NoContentSentinel {
			return false, "backend unavailable during fix loop", attempt + 1, text
		}

		fixed, ok := extractCandidate(fixResult.Content)
		if !ok {
			return false, "no code could be extracted from fix attempt", attempt + 1, text
		}
		current = fixed
		text = fixResult.Content
	}

	return false, "fix loop exhausted", w.retries + 1, text
}

// buildSystemPrompt assembles the tool/skill/memory catalog, then runs
// the result through the template processor so a {{task.category}} or
// ${expression} reference left inside a harvested skill doc or a
// retrieved lesson's text (both learned content, not hand-written by
// us) still resolves against this task's variables instead of leaking
// through to the backend verbatim (spec §4.5 step 1).
func (w *Worker) buildSystemPrompt(task *domain.Task) string {
	var b strings.Builder
	b.WriteString("You are a focused code-synthesis worker. Respond with a single ```python code block.\n\n")

	b.WriteString("Tools:\n")
	seen := make(map[string]struct{}, len(w.suggested))
	for _, name := range w.suggested {
		if schema, ok := w.tools.Schema(name); ok {
			b.WriteString(schema.OneLineCatalog())
			b.WriteString(" (full schema)\n")
			seen[name] = struct{}{}
		}
	}
	for _, name := range w.tools.AllNames() {
		if _, skip := seen[name]; skip {
			continue
		}
		if schema, ok := w.tools.Schema(name); ok {
			b.WriteString(schema.OneLineCatalog())
			b.WriteString("\n")
		}
	}

	if len(w.skills) > 0 {
		b.WriteString("\nHarvested skills:\n")
		for _, skill := range w.skills {
			b.WriteString(skill.OneLineCatalog())
			b.WriteString("\n")
		}
	}

	if w.memoryCtx != "" {
		b.WriteString("\nRelevant memory:\n")
		b.WriteString(w.memoryCtx)
		b.WriteString("\n")
	}

	vars := map[string]any{
		"task": map[string]any{
			"category":   string(task.Category()),
			"difficulty": task.Difficulty(),
		},
		"worker": map[string]any{
			"index":       w.index,
			"temperature": w.temperature,
		},
	}

	rendered, err := w.templates.Process(b.String(), vars, TemplateConfig{StrictMode: false})
	if err != nil {
		return b.String()
	}
	text, ok := rendered.(string)
	if !ok {
		return b.String()
	}
	return text
}

func buildTaskPrompt(task *domain.Task) string {
	var b strings.Builder
	b.WriteString(task.Description())
	if cases := task.TestCases(); len(cases) > 0 {
		b.WriteString("\n\nExample behavior:\n")
		for _, tc := range cases {
			b.WriteString(reprLiteral(tc.Input))
			b.WriteString(" -> ")
			b.WriteString(reprLiteral(tc.Expected))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func buildFixPrompt(task *domain.Task, failing string, hint ErrorHint) string {
	var b strings.Builder
	b.WriteString("The following code failed verification.\n\n")
	b.WriteString(failing)
	b.WriteString("\n\nProblem: ")
	b.WriteString(hint.Problem)
	b.WriteString("\nFix: ")
	b.WriteString(hint.Hint)
	b.WriteString("\n\nReturn a corrected ```python code block only.")
	return b.String()
}

func isInvalidResponse(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	return systemTagOnlyPattern.MatchString(trimmed)
}

func extractCandidate(text string) (string, bool) {
	match := pythonBlockPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return strings.TrimSpace(match[1]), true
}

func extractToolCall(text string) *domain.ToolCall {
	match := toolCallPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	return &domain.ToolCall{
		Tool:   match[1],
		Params: parseToolParams(match[2]),
	}
}

func parseToolParams(raw string) map[string]any {
	params := make(map[string]any)
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.Trim(strings.TrimSpace(kv[1]), `"'`)
		if key != "" {
			params[key] = value
		}
	}
	return params
}
