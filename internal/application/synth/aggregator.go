package synth

import (
	"sort"
	"strings"

	"github.com/synthloom/core/internal/domain"
)

// pythonExec is the fallback tool name an unrecognized tool call is
// remapped to (spec §4.6).
const pythonExec = "python_exec"

// AggregatedResult is the Aggregator's verdict: the chosen winner plus
// the bookkeeping the Refiner needs to decide whether it is starting
// from a weak base.
type AggregatedResult struct {
	Winner       domain.WorkerResponse
	Pruned       []domain.WorkerResponse // the responses kept after pruning, winner included
	FallbackUsed bool
}

// KnownTools validates tool names referenced by worker tool calls
// against the registered catalog (spec §4.6's "tool-name validation").
type KnownTools interface {
	Schema(name string) (*domain.ToolSchema, bool)
}

// Aggregator selects or prunes among a task's worker responses
// (spec §4.6).
type Aggregator struct {
	tools KnownTools
}

// NewAggregator creates an Aggregator validating tool names against tools.
func NewAggregator(tools KnownTools) *Aggregator {
	return &Aggregator{tools: tools}
}

// Select implements the full §4.6 algorithm: verified-first selection,
// heuristic scoring, gap-based pruning, and tool-name salvage.
func (a *Aggregator) Select(responses []domain.WorkerResponse, task *domain.Task) AggregatedResult {
	if len(responses) == 0 {
		return AggregatedResult{Winner: placeholderResponse(), FallbackUsed: true}
	}

	if verified := verifiedWinner(responses); verified != nil {
		return AggregatedResult{Winner: *verified, Pruned: []domain.WorkerResponse{*verified}}
	}

	scored := make([]domain.WorkerResponse, len(responses))
	copy(scored, responses)
	for i := range scored {
		scored[i].HeuristicScore = heuristicScore(scored[i], task)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].HeuristicScore != scored[j].HeuristicScore {
			return scored[i].HeuristicScore > scored[j].HeuristicScore
		}
		return scored[i].WorkerIndex < scored[j].WorkerIndex
	})

	pruned := pruneByGap(scored)
	winner := pruned[0]

	fallbackUsed := winner.HeuristicScore < 5
	winner.FallbackUsed = fallbackUsed

	winner = a.validateToolCall(winner, responses)

	return AggregatedResult{Winner: winner, Pruned: pruned, FallbackUsed: fallbackUsed}
}

// verifiedWinner implements step 1: among verified responses, the one
// with the smallest Attempts ("cleanest path").
func verifiedWinner(responses []domain.WorkerResponse) *domain.WorkerResponse {
	var best *domain.WorkerResponse
	for i := range responses {
		r := &responses[i]
		if !r.Verified {
			continue
		}
		if best == nil || r.Attempts < best.Attempts {
			best = r
		}
	}
	return best
}

// heuristicScore implements step 2's fast, LLM-free heuristic, clipped
// to [0, 25].
func heuristicScore(r domain.WorkerResponse, task *domain.Task) int {
	score := 5

	if r.ToolCall != nil {
		score += 5
		if toolMatchesKeywords(r.ToolCall.Tool, task.Description()) {
			score += 3
		}
	}
	if containsPythonBlock(r.RawText) {
		score += 3
	}
	if n := len(r.RawText); n > 200 && n < 2000 {
		score += 2
	}
	if r.Attempts == 1 {
		score += 2
	}
	lower := strings.ToLower(r.RawText)
	if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
		score -= 3
	}

	if score < 0 {
		score = 0
	}
	if score > 25 {
		score = 25
	}
	return score
}

func toolMatchesKeywords(tool, description string) bool {
	lower := strings.ToLower(description)
	for _, word := range strings.Fields(strings.ToLower(tool)) {
		if len(word) >= 3 && strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func containsPythonBlock(text string) bool {
	return pythonBlockPattern.MatchString(text)
}

// pruneByGap implements step 3: keep only the top response when the
// gap between the top two scores is >= 4, else keep the top two.
func pruneByGap(scored []domain.WorkerResponse) []domain.WorkerResponse {
	if len(scored) == 1 {
		return scored
	}
	gap := scored[0].HeuristicScore - scored[1].HeuristicScore
	if gap >= 4 {
		return scored[:1]
	}
	return scored[:2]
}

// validateToolCall implements the tool-hallucination remap: an unknown
// tool name is replaced with python_exec and its parameters with the
// longest python code block recoverable across the worker set, or a
// diagnostic stub if none exists.
func (a *Aggregator) validateToolCall(winner domain.WorkerResponse, all []domain.WorkerResponse) domain.WorkerResponse {
	if winner.ToolCall == nil {
		return winner
	}
	if a.tools != nil {
		if _, ok := a.tools.Schema(winner.ToolCall.Tool); ok {
			return winner
		}
	}

	code := longestPythonBlock(all)
	if code == "" {
		code = diagnosticStub(winner.ToolCall.Tool)
	}

	winner.ToolCall = &domain.ToolCall{
		Tool:   pythonExec,
		Params: map[string]any{"code": code},
	}
	return winner
}

func longestPythonBlock(responses []domain.WorkerResponse) string {
	var longest string
	for _, r := range responses {
		if candidate, ok := extractCandidate(r.RawText); ok && len(candidate) > len(longest) {
			longest = candidate
		}
	}
	return longest
}

func diagnosticStub(hallucinatedTool string) string {
	return "def solve(input):\n    print('unknown tool requested: " + hallucinatedTool + "')\n    return None\n"
}

// placeholderResponse is returned when zero workers produced any
// response at all, so the runner never panics with an empty slice
// (spec §8 boundary: "with zero workers returning code, the runner
// still produces a final response").
func placeholderResponse() domain.WorkerResponse {
	return domain.WorkerResponse{
		WorkerIndex:     -1,
		Verified:        false,
		ExecutionResult: "no worker responses available",
		Attempts:        1,
		FallbackUsed:    true,
		RawText:         diagnosticStub("none"),
	}
}
