package synth

import (
	"context"
	"regexp"
	"strings"

	"github.com/synthloom/core/internal/domain"
	"github.com/synthloom/core/internal/knowledge"
)

// funcSignaturePattern captures a top-level def's name and parameter
// list for skill harvesting.
var funcSignaturePattern = regexp.MustCompile(`(?m)^def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(([^)]*)\)`)

// Learner is the session-scoped and cross-session extractor of lessons,
// skills, and test patterns from the stream of completed tasks (spec
// §4, overview: "Reflection / Skill / Pattern learners").
type Learner struct {
	store *knowledge.Store
}

// NewLearner creates a Learner writing into store.
func NewLearner(store *knowledge.Store) *Learner {
	return &Learner{store: store}
}

// LearnFromSession folds one completed task's outcome into the
// knowledge store: a verified_success lesson when the score reaches 15
// with no refine iterations, a refinement lesson when refine improved
// the score, and a failure lesson (tagged with the dominant error type)
// otherwise. The runner calls it on its own goroutine and waits for it
// to finish before recording memory feedback.
func (l *Learner) LearnFromSession(ctx context.Context, task *domain.Task, preScore, finalScore, iterations int, responses []domain.WorkerResponse) error {
	switch {
	case finalScore >= 15 && iterations == 0:
		_, err := l.store.Add(ctx, knowledge.AddLessonParams{
			LessonText: "Task succeeded on first pass: " + summarize(task.Description()),
			Category:   task.Category(),
			SourceType: domain.SourceTypeVerifiedSuccess,
			Importance: 7,
		})
		return err

	case finalScore > preScore:
		_, err := l.store.Add(ctx, knowledge.AddLessonParams{
			LessonText: "Refinement improved the response for: " + summarize(task.Description()),
			Category:   task.Category(),
			SourceType: domain.SourceTypeRefinement,
			Importance: 6,
		})
		return err

	default:
		errType, tools := dominantFailure(responses)
		_, err := l.store.Add(ctx, knowledge.AddLessonParams{
			LessonText: LessonForError(errType) + " (" + summarize(task.Description()) + ")",
			Category:   domain.CategoryCodeLogic,
			SourceType: domain.SourceTypeFailure,
			Tools:      tools,
			ErrorType:  errType,
			Importance: 4,
		})
		return err
	}
}

// dominantFailure picks the most common classified error type across a
// set of unverified responses, plus the distinct tool names involved.
func dominantFailure(responses []domain.WorkerResponse) (string, []string) {
	counts := make(map[string]int)
	toolSet := make(map[string]struct{})

	for _, r := range responses {
		if r.Verified {
			continue
		}
		errType := ClassifyErrorType(r.ExecutionResult)
		counts[errType]++
		if r.ToolCall != nil {
			toolSet[r.ToolCall.Tool] = struct{}{}
		}
	}

	best := genericErrorType
	bestCount := 0
	for errType, count := range counts {
		if count > bestCount {
			bestCount = count
			best = errType
		}
	}

	tools := make([]string, 0, len(toolSet))
	for t := range toolSet {
		tools = append(tools, t)
	}
	return best, tools
}

// HarvestSkill extracts a verified response's top-level function as a
// reusable Skill (spec §3: "a verified callable harvested from
// successful code"). Names are deduplicated by the store's SkillStore,
// so re-harvesting the same function is a no-op (spec: "writes after
// first occurrence are silently ignored").
func (l *Learner) HarvestSkill(ctx context.Context, response domain.WorkerResponse) error {
	if !response.Verified {
		return nil
	}
	candidate, ok := extractCandidate(response.RawText)
	if !ok {
		return nil
	}
	match := funcSignaturePattern.FindStringSubmatch(candidate)
	if match == nil {
		return nil
	}

	name := match[1]
	params := splitParams(match[2])
	doc := firstDocLine(candidate)

	skill := domain.NewSkill(name, params, candidate, doc)
	return l.store.Backend().AddSkill(ctx, skill)
}

// LearnTestPattern records a (category, input-type, output-type)
// exemplar from a verified task's first test case, deduplicated by
// TestPattern.Key (spec §3).
func (l *Learner) LearnTestPattern(ctx context.Context, task *domain.Task) error {
	cases := task.TestCases()
	if len(cases) == 0 {
		return nil
	}
	first := cases[0]
	pattern := domain.TestPattern{
		Category:   task.Category(),
		InputType:  string(domain.InferType(first.Input)),
		OutputType: string(domain.InferType(first.Expected)),
		ExampleIn:  first.Input,
		ExampleOut: first.Expected,
		TaskHint:   summarize(task.Description()),
	}
	return l.store.Backend().AddTestPattern(ctx, pattern)
}

func splitParams(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstDocLine(code string) string {
	lines := strings.Split(code, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, `"""`) || strings.HasPrefix(trimmed, `'''`) {
			doc := strings.Trim(trimmed, `"'`)
			return strings.TrimSpace(doc)
		}
	}
	return ""
}

func summarize(description string) string {
	const max = 80
	description = strings.TrimSpace(description)
	if len(description) <= max {
		return description
	}
	return description[:max] + "..."
}
