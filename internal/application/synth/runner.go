package synth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/synthloom/core/internal/application/inference"
	"github.com/synthloom/core/internal/domain"
	"github.com/synthloom/core/internal/knowledge"
)

// ToolRunner executes a runnable tool call produced by a worker or the
// aggregator's salvage path (spec §6's executor collaborator:
// `execute_tool(name, params) -> {success, result|error}`). The core
// never sandboxes tool execution itself; it trusts this collaborator.
type ToolRunner interface {
	RunTool(ctx context.Context, call domain.ToolCall) (string, error)
}

// RunnerConfig sizes the per-task pipeline (spec §4.8, §5: "per-task
// parallelism is exactly W").
type RunnerConfig struct {
	WorkerCount  int
	Temperatures []float64
	ManagementSlot int
}

// TaskResult is the per-task pipeline's return value (spec §4.8).
type TaskResult struct {
	Final      string
	Score      int
	Iterations int
	ToolsUsed  []string
	Timings    map[string]time.Duration
}

// Runner wires retrieval, the worker pool, the aggregator, the refiner,
// the executor, and the learner into one per-task pipeline (spec §4.8).
type Runner struct {
	orchestrator *knowledge.Orchestrator
	aggregator   *Aggregator
	evaluator    *Evaluator
	executor     *Executor
	curator      ErrorStatsSource
	learner      *Learner
	toolRunner   ToolRunner
	client       *inference.Client
	tools        ToolCatalog
	events       domain.EventStore
	cfg          RunnerConfig
}

// NewRunner assembles a Runner from its collaborators. toolRunner may be
// nil, in which case any produced tool call is left unexecuted and the
// refined response text is returned as-is. events may be nil, in which
// case no supervisory events are emitted.
func NewRunner(orchestrator *knowledge.Orchestrator, aggregator *Aggregator, evaluator *Evaluator, executor *Executor, curator ErrorStatsSource, learner *Learner, toolRunner ToolRunner, client *inference.Client, tools ToolCatalog, events domain.EventStore, cfg RunnerConfig) *Runner {
	return &Runner{
		orchestrator: orchestrator,
		aggregator:   aggregator,
		evaluator:    evaluator,
		executor:     executor,
		curator:      curator,
		learner:      learner,
		toolRunner:   toolRunner,
		client:       client,
		tools:        tools,
		events:       events,
		cfg:          cfg,
	}
}

// emit appends an event to the configured event store, swallowing the
// error — event emission is best-effort observability, never a reason
// to fail a task (spec §6: rendering the stream is out of scope; only
// its emission shape is specified).
func (rn *Runner) emit(ctx context.Context, t domain.EventType, taskID, message string) {
	if rn.events == nil {
		return
	}
	event := domain.NewExecutionEvent(t, taskID, taskID)
	event.Message = message
	_ = rn.events.AppendEvent(ctx, event)
}

// Run executes the full §4.8 pipeline for one task:
//
//	ctx   = Orchestrator.get_context(task)
//	resps = run_workers_in_parallel(W, ctx)
//	winner = Aggregator.select(resps, task)
//	pre_score = Evaluator.quick_score(winner, task)
//	if winner.verified AND pre_score >= 15: skip refine
//	else: refined = Refiner.refine(winner, task, test_cases)
//	...
func (rn *Runner) Run(ctx context.Context, task *domain.Task, skills []domain.Skill) (TaskResult, error) {
	timings := make(map[string]time.Duration)
	totalStart := time.Now()
	rn.emit(ctx, domain.EventTypeTaskStarted, task.ID(), task.Description())

	retrievalStart := time.Now()
	taskCtx, err := rn.orchestrator.GetContext(ctx, task)
	if err != nil {
		rn.emit(ctx, domain.EventTypeTaskFailed, task.ID(), err.Error())
		return TaskResult{}, fmt.Errorf("retrieval orchestrator: %w", err)
	}
	timings["retrieval"] = time.Since(retrievalStart)

	workersStart := time.Now()
	responses := rn.runWorkersInParallel(ctx, task, taskCtx, skills)
	timings["workers"] = time.Since(workersStart)

	aggregated := rn.aggregator.Select(responses, task)
	winner := aggregated.Winner

	preScore := rn.evaluator.QuickScore(winner, task)

	toolsUsed := toolNames(responses)
	requiredTool := ""
	if len(taskCtx.SuggestedTools) > 0 {
		requiredTool = taskCtx.SuggestedTools[0]
	}

	var finalScore, iterations int
	var refinedText string

	if winner.Verified && preScore >= 15 {
		finalScore, iterations, refinedText = preScore, 0, winner.RawText
	} else {
		reflection := NewReflectionBuffer()
		refiner := NewRefiner(rn.client, rn.evaluator, rn.executor, rn.curator, reflection,
			RefinerConfig{MaxIterations: 3, ScoreThreshold: 15, ManagementSlot: rn.cfg.ManagementSlot, Temperature: 0.3})

		refineStart := time.Now()
		result := refiner.Refine(ctx, task, winner, toolsUsed, requiredTool)
		timings["refine"] = time.Since(refineStart)

		finalScore = result.Best.Score
		iterations = result.Iterations
		refinedText = result.Best.Response
	}

	final := refinedText
	if winner.ToolCall != nil && rn.toolRunner != nil {
		toolResult, err := rn.toolRunner.RunTool(ctx, *winner.ToolCall)
		if err == nil {
			final = rn.summarize(ctx, task, refinedText, toolResult)
		}
	}

	success := finalScore >= 15 && !anyToolFailed(responses)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = rn.learner.LearnFromSession(ctx, task, preScore, finalScore, iterations, responses)
		if success {
			_ = rn.learner.HarvestSkill(ctx, winner)
			_ = rn.learner.LearnTestPattern(ctx, task)
		}
	}()
	wg.Wait() // serialized learner phase: spec §5, "must not interleave across tasks"

	if err := rn.orchestrator.MarkMemoriesFeedback(ctx, taskCtx.MemoryIDs, success); err != nil {
		return TaskResult{}, fmt.Errorf("mark memory feedback: %w", err)
	}
	if _, err := rn.orchestrator.RunMaintenance(ctx); err != nil {
		return TaskResult{}, fmt.Errorf("run maintenance: %w", err)
	}

	timings["total"] = time.Since(totalStart)

	if success {
		rn.emit(ctx, domain.EventTypeTaskCompleted, task.ID(), fmt.Sprintf("score=%d iterations=%d", finalScore, iterations))
	} else {
		rn.emit(ctx, domain.EventTypeTaskFailed, task.ID(), fmt.Sprintf("score=%d iterations=%d", finalScore, iterations))
	}

	return TaskResult{
		Final:      final,
		Score:      finalScore,
		Iterations: iterations,
		ToolsUsed:  toolsUsed,
		Timings:    timings,
	}, nil
}

// runWorkersInParallel fans out exactly W workers, one per backend
// slot, and joins on all of them before returning (spec §5: "The runner
// joins on all workers before the aggregator runs").
func (rn *Runner) runWorkersInParallel(ctx context.Context, task *domain.Task, taskCtx knowledge.Context, skills []domain.Skill) []domain.WorkerResponse {
	n := rn.cfg.WorkerCount
	responses := make([]domain.WorkerResponse, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			temp := 0.7
			if idx < len(rn.cfg.Temperatures) {
				temp = rn.cfg.Temperatures[idx]
			}
			worker := NewWorker(idx, temp, memoryContextString(taskCtx), taskCtx.SuggestedTools, rn.client, rn.tools, skills, rn.executor, 2)
			responses[idx] = worker.Run(ctx, task)
		}(i)
	}
	wg.Wait()

	return responses
}

// summarize asks the inference backend to summarize a tool execution
// result in light of the task and refined response (spec §4.8:
// "final = LLM.summarize(task, refined.response, tool_result)").
func (rn *Runner) summarize(ctx context.Context, task *domain.Task, response, toolResult string) string {
	prompt := "Task: " + task.Description() + "\n\nResponse:\n" + response +
		"\n\nTool execution result:\n" + toolResult + "\n\nSummarize the outcome in a few sentences."

	result := rn.client.GenerateWithRetry(ctx, inference.GenerateRequest{
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   256,
		SlotID:      rn.cfg.ManagementSlot,
		CachePrompt: false,
	})
	if result.Content == inference.NoContentSentinel {
		return response
	}
	return result.Content
}

func memoryContextString(ctx knowledge.Context) string {
	if len(ctx.Memories) == 0 {
		return ctx.Tips
	}
	var out string
	for _, m := range ctx.Memories {
		out += "- " + m.LessonText + "\n"
	}
	if ctx.Tips != "" {
		out += ctx.Tips
	}
	return out
}

func toolNames(responses []domain.WorkerResponse) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range responses {
		if r.ToolCall == nil {
			continue
		}
		if _, ok := seen[r.ToolCall.Tool]; ok {
			continue
		}
		seen[r.ToolCall.Tool] = struct{}{}
		out = append(out, r.ToolCall.Tool)
	}
	return out
}

func anyToolFailed(responses []domain.WorkerResponse) bool {
	for _, r := range responses {
		if r.ToolCall != nil && !r.Verified && r.ExecutionResult != "" {
			if ClassifyErrorType(r.ExecutionResult) != genericErrorType {
				return true
			}
		}
	}
	return false
}
