package synth

import (
	"context"
	"strings"
	"time"

	"github.com/synthloom/core/internal/application/inference"
	"github.com/synthloom/core/internal/domain"
)

// RefinerConfig governs the outer self-refine loop (spec §4.7). Both
// bounds are configuration knobs, not hard-coded constants — spec §9's
// Open Question on the 15-vs-23 threshold inconsistency is resolved by
// exposing ScoreThreshold rather than picking one.
type RefinerConfig struct {
	MaxIterations  int
	ScoreThreshold int
	ManagementSlot int
	Temperature    float64 // low temperature for refine requests

	// StopCondition is an expr-lang boolean expression evaluated against
	// score, threshold, test_count, and verified each iteration (spec
	// §4.6, §4.8: stop conditions are configurable, not hard-coded).
	// Empty uses defaultStopCondition.
	StopCondition string
}

// defaultStopCondition reproduces spec §4.7 step 4's literal rule: score
// at or above threshold, and either no test cases were supplied or
// verification passed.
const defaultStopCondition = "score >= threshold && (test_count == 0 || verified)"

// DefaultRefinerConfig matches the spec's suggested defaults.
func DefaultRefinerConfig() RefinerConfig {
	return RefinerConfig{
		MaxIterations:  3,
		ScoreThreshold: 15,
		Temperature:    0.3,
	}
}

// Candidate is one iteration's state in the refine loop.
type Candidate struct {
	Response             string
	Score                int
	Iteration            int
	Verified             bool
	VerificationFeedback string
}

// RefineResult is the Refiner's return value: the best candidate seen,
// never the last one evaluated (spec §4.7: "return the best (not
// current)").
type RefineResult struct {
	Best          Candidate
	ScoreDelta    int
	Iterations    int
	Duration      time.Duration
}

// Refiner runs the outer evaluate-verify-refine loop over an
// aggregated winner (spec §4.7).
type Refiner struct {
	client     *inference.Client
	evaluator  *Evaluator
	executor   *Executor
	curator    ErrorStatsSource
	reflection *ReflectionBuffer
	conditions *ConditionEvaluator
	cfg        RefinerConfig
}

// ErrorStatsSource supplies the curator's short error-pattern summary
// that's spliced into every refine prompt (spec §4.7 step 5).
type ErrorStatsSource interface {
	TopErrors(n int) []domain.ErrorPatternKey
}

// NewRefiner creates a Refiner. reflection must be reset by the caller
// at the start of every task (spec §4.9, §8 invariant 7).
func NewRefiner(client *inference.Client, evaluator *Evaluator, executor *Executor, curator ErrorStatsSource, reflection *ReflectionBuffer, cfg RefinerConfig) *Refiner {
	return &Refiner{
		client:     client,
		evaluator:  evaluator,
		executor:   executor,
		curator:    curator,
		reflection: reflection,
		conditions: NewConditionEvaluator(true),
		cfg:        cfg,
	}
}

// Refine runs the outer loop over winner until score >= threshold (with
// verification passing, if test cases are supplied) or MaxIterations is
// reached, returning the best candidate seen (spec §4.7, §8 invariants
// 5 & 13).
func (r *Refiner) Refine(ctx context.Context, task *domain.Task, winner domain.WorkerResponse, toolsUsed []string, requiredTool string) RefineResult {
	start := time.Now()

	current := Candidate{Response: winner.RawText, Iteration: 0, Verified: winner.Verified}
	best := current

	if r.cfg.MaxIterations <= 0 {
		return RefineResult{Best: best, Iterations: 0, Duration: time.Since(start)}
	}

	tests := task.TestCases()
	iteration := 0

	r.conditions.ClearResultCache()

	for iteration < r.cfg.MaxIterations {
		iteration++

		eval := r.evaluator.Evaluate(ctx, task, current.Response, toolsUsed, requiredTool)
		current.Score = eval.Score
		feedback := eval.Feedback

		if len(tests) > 0 {
			if candidate, ok := extractCandidate(current.Response); ok {
				injected, err := InjectAssertions(candidate, tests)
				if err == nil {
					result := r.executor.Execute(ctx, injected)
					current.Verified = result.Verified()
					if !current.Verified {
						current.VerificationFeedback = result.FailureMessage()
						feedback += "\n\nVerification: " + current.VerificationFeedback
					}
				}
			}
		}
		current.Iteration = iteration

		if beatsBest(current, best) {
			best = current
		}

		if r.stopConditionMet(current, len(tests)) {
			break
		}

		if iteration == r.cfg.MaxIterations {
			break
		}

		if current.VerificationFeedback != "" {
			r.reflection.Record(iteration, current.VerificationFeedback)
		}

		refinePrompt := r.buildRefinePrompt(task, current.Response, feedback, current.VerificationFeedback)
		result := r.client.GenerateWithRetry(ctx, inference.GenerateRequest{
			Prompt:      refinePrompt,
			Temperature: r.cfg.Temperature,
			MaxTokens:   1024,
			SlotID:      r.cfg.ManagementSlot,
			CachePrompt: false,
		})
		if result.Content == inference.NoContentSentinel {
			break
		}
		current = Candidate{Response: result.Content}
	}

	return RefineResult{
		Best:       best,
		ScoreDelta: best.Score - winner.HeuristicScore,
		Iterations: iteration,
		Duration:   time.Since(start),
	}
}

// stopConditionMet evaluates cfg.StopCondition (or defaultStopCondition)
// against the current iteration's state, falling back to the literal
// comparison if the expression fails to evaluate.
func (r *Refiner) stopConditionMet(current Candidate, testCount int) bool {
	cond := r.cfg.StopCondition
	if cond == "" {
		cond = defaultStopCondition
	}

	vars := map[string]any{
		"score":      current.Score,
		"threshold":  r.cfg.ScoreThreshold,
		"test_count": testCount,
		"verified":   current.Verified,
	}

	met, err := r.conditions.Evaluate(cond, vars)
	if err != nil {
		return current.Score >= r.cfg.ScoreThreshold && (testCount == 0 || current.Verified)
	}
	return met
}

// beatsBest implements step 3's tie-break: strictly higher score, or an
// equal score where current is verified and best is not.
func beatsBest(current, best Candidate) bool {
	if current.Score > best.Score {
		return true
	}
	return current.Score == best.Score && current.Verified && !best.Verified
}

// buildRefinePrompt assembles the task, evaluator feedback, verification
// failure, a short error-pattern summary from the curator, and this
// session's reflection bullets (spec §4.7 step 5).
func (r *Refiner) buildRefinePrompt(task *domain.Task, current, feedback, verificationFailure string) string {
	var b strings.Builder
	b.WriteString("Improve the following response for this task.\n\n")
	b.WriteString("Task: ")
	b.WriteString(task.Description())
	b.WriteString("\n\nCurrent response:\n")
	b.WriteString(current)
	b.WriteString("\n\nEvaluator feedback:\n")
	b.WriteString(feedback)

	if verificationFailure != "" {
		hint, _ := TranslateError(verificationFailure)
		b.WriteString("\n\nVerification failure: ")
		b.WriteString(verificationFailure)
		b.WriteString("\nProblem: ")
		b.WriteString(hint.Problem)
		b.WriteString("\nFix: ")
		b.WriteString(hint.Hint)
	}

	if r.curator != nil {
		if top := r.curator.TopErrors(3); len(top) > 0 {
			b.WriteString("\n\nFrequent error patterns observed:\n")
			for _, e := range top {
				b.WriteString("- ")
				b.WriteString(e.Tool)
				b.WriteString(": ")
				b.WriteString(e.ErrorType)
				b.WriteString("\n")
			}
		}
	}

	if bullets := r.reflection.Bullets(); len(bullets) > 0 {
		b.WriteString("\n\nLessons from this session, do not repeat:\n")
		for _, bullet := range bullets {
			b.WriteString("- ")
			b.WriteString(bullet)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n\nReturn a corrected ```python code block only.")
	return b.String()
}
