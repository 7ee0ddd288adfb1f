package synth

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/synthloom/core/internal/application/inference"
	"github.com/synthloom/core/internal/domain"
)

// MaxRefinerScore is the evaluator's scoring ceiling (spec §4.7: "score
// the current response 0-25").
const MaxRefinerScore = 25

var (
	totalScorePattern    = regexp.MustCompile(`(?i)TOTAL_SCORE:\s*(\d+)\s*/\s*25`)
	bareScorePattern     = regexp.MustCompile(`(\d+)\s*/\s*25`)
	dimensionScorePattern = regexp.MustCompile(`(\d+)\s*/\s*5`)
)

var positiveKeywords = []string{"correct", "works", "passes", "good", "complete", "handles"}
var negativeKeywords = []string{"wrong", "fails", "missing", "incorrect", "broken", "incomplete"}

// Evaluation is the evaluator's verdict on one refiner iteration.
type Evaluation struct {
	Score    int
	Feedback string
}

// Evaluator scores a candidate response against a task on the
// management slot at low temperature (spec §4.7 step 1).
type Evaluator struct {
	client         *inference.Client
	managementSlot int
}

// NewEvaluator creates an Evaluator dedicated to slot managementSlot,
// which must be distinct from every worker slot (spec §5).
func NewEvaluator(client *inference.Client, managementSlot int) *Evaluator {
	return &Evaluator{client: client, managementSlot: managementSlot}
}

// Evaluate scores response against task and the tools it actually used.
// A required tool declared but not used is a hard 0 (spec §4.7 step 1).
func (e *Evaluator) Evaluate(ctx context.Context, task *domain.Task, response string, toolsUsed []string, requiredTool string) Evaluation {
	if requiredTool != "" && !containsString(toolsUsed, requiredTool) {
		return Evaluation{Score: 0, Feedback: "required tool " + requiredTool + " was declared but never used"}
	}

	prompt := buildEvaluationPrompt(task, response, toolsUsed)
	result := e.client.GenerateWithRetry(ctx, inference.GenerateRequest{
		Prompt:      prompt,
		Temperature: 0.1,
		MaxTokens:   512,
		SlotID:      e.managementSlot,
		CachePrompt: false, // management slot: spec §4.1 hard policy
	})

	if result.Content == inference.NoContentSentinel {
		return Evaluation{Score: 0, Feedback: "evaluator backend unavailable"}
	}

	return Evaluation{Score: ParseScore(result.Content), Feedback: result.Content}
}

// QuickScore is the runner's pre-refine heuristic gate (spec §4.8:
// "pre_score = Evaluator.quick_score(winner, task)") — a cheap proxy
// reusing the aggregator's heuristic rather than a second LLM round
// trip, since the runner only needs to decide whether to skip refine
// entirely.
func (e *Evaluator) QuickScore(response domain.WorkerResponse, task *domain.Task) int {
	score := heuristicScore(response, task)
	if response.Verified {
		score += 5
	}
	if score > MaxRefinerScore {
		score = MaxRefinerScore
	}
	return score
}

func buildEvaluationPrompt(task *domain.Task, response string, toolsUsed []string) string {
	var b strings.Builder
	b.WriteString("Score the following response against the task on a 0-25 scale.\n\n")
	b.WriteString("Task: ")
	b.WriteString(task.Description())
	b.WriteString("\n\nTools used: ")
	b.WriteString(strings.Join(toolsUsed, ", "))
	b.WriteString("\n\nResponse:\n")
	b.WriteString(response)
	b.WriteString("\n\nRespond with a line \"TOTAL_SCORE: n/25\" followed by brief feedback.")
	return b.String()
}

// ParseScore implements §4.7's regex-precedence score parser:
// TOTAL_SCORE: n/25 -> n/25 -> sum of five n/5 dimension scores ->
// heuristic positive/negative keyword tally.
func ParseScore(feedback string) int {
	if m := totalScorePattern.FindStringSubmatch(feedback); m != nil {
		return clampScore(atoi(m[1]))
	}
	if m := bareScorePattern.FindStringSubmatch(feedback); m != nil {
		return clampScore(atoi(m[1]))
	}
	if dims := dimensionScorePattern.FindAllStringSubmatch(feedback, -1); len(dims) > 0 {
		sum := 0
		for _, d := range dims {
			sum += atoi(d[1])
		}
		return clampScore(sum)
	}
	return keywordTally(feedback)
}

// keywordTally is the last-resort heuristic: a positive/negative
// keyword count mapped onto the 0-25 scale around a neutral midpoint.
func keywordTally(feedback string) int {
	lower := strings.ToLower(feedback)
	score := 12
	for _, kw := range positiveKeywords {
		if strings.Contains(lower, kw) {
			score += 2
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			score -= 3
		}
	}
	return clampScore(score)
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRefinerScore {
		return MaxRefinerScore
	}
	return n
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
