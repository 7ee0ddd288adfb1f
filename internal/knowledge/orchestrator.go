package knowledge

import (
	"context"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/synthloom/core/internal/domain"
)

// categoryKeywords is the closed keyword set driving §4.4's category
// detector; confidence is the fraction of a category's keywords that
// appear in the task description.
var categoryKeywords = map[domain.RetrievalCategory][]string{
	domain.RetrievalCategoryFileCreate: {"create", "write", "save", "generate file", "new file"},
	domain.RetrievalCategoryFileRead:   {"read", "load", "open", "parse file", "contents of"},
	domain.RetrievalCategoryFileList:   {"list", "directory", "folder", "glob", "enumerate"},
	domain.RetrievalCategoryCodeExec:   {"run", "execute", "call", "invoke", "compute"},
	domain.RetrievalCategoryAnalysis:   {"analyze", "inspect", "count", "summarize", "report"},
}

// categoryTools maps a detected retrieval category to suggested tools.
var categoryTools = map[domain.RetrievalCategory][]string{
	domain.RetrievalCategoryFileCreate: {"write_file", "python_exec"},
	domain.RetrievalCategoryFileRead:   {"read_file", "python_exec"},
	domain.RetrievalCategoryFileList:   {"list_dir", "python_exec"},
	domain.RetrievalCategoryCodeExec:   {"python_exec"},
	domain.RetrievalCategoryAnalysis:   {"python_exec", "read_file"},
	domain.RetrievalCategoryGeneral:    {"python_exec"},
}

// mathKeywords and listOpsKeywords back detectCategory's co-occurrence
// rule: a description mentioning both a computation term and a
// collection-operation term reads as analysis even when neither keyword
// set alone clears categoryKeywords' containment bar for that category.
var mathKeywords = []string{"sum", "average", "mean", "count", "total", "compute", "calculate"}
var listOpsKeywords = []string{"list", "array", "sort", "filter", "map", "sequence"}

// coOccurrenceCondition is evaluated with expr-lang against the
// has_math/has_list_ops flags detectCategory derives from the
// description (spec §4.4).
const coOccurrenceCondition = "has_math && has_list_ops"

// categoryTips is short static per-category advice ("In-Context Vectors").
var categoryTips = map[domain.RetrievalCategory]string{
	domain.RetrievalCategoryFileCreate: "Write the full file contents in one call; verify the path is relative.",
	domain.RetrievalCategoryFileRead:   "Read the whole file before parsing; handle missing files explicitly.",
	domain.RetrievalCategoryFileList:   "Sort listings for deterministic output; filter hidden entries if unspecified.",
	domain.RetrievalCategoryCodeExec:   "Keep the function pure; avoid side effects not requested by the task.",
	domain.RetrievalCategoryAnalysis:   "State assumptions about input shape before computing the summary.",
	domain.RetrievalCategoryGeneral:    "Re-read the task description once before committing to an approach.",
}

// Context is the retrieval orchestrator's single output, handed to every
// worker at task start (spec §4.4).
type Context struct {
	Memories        []domain.Lesson
	Category        domain.RetrievalCategory
	SuggestedTools  []string
	Tips            string
	ProjectFiles    []string
	PatternHints    []domain.TestPattern
	MemoryIDs       []int64
}

// Orchestrator is the single facade over the knowledge Store that
// workers, the refiner, and the autonomous loop all consult (spec §4.4).
type Orchestrator struct {
	store *Store
	cache *QueryCache
}

// NewOrchestrator wraps a Store with the retrieval facade and a bounded
// query cache in front of it (spec §3, §8 invariant 8).
func NewOrchestrator(store *Store) *Orchestrator {
	return &Orchestrator{store: store, cache: NewQueryCache()}
}

// getRelevantCached checks the query cache before falling through to
// store.GetRelevant, caching the result on a miss.
func (o *Orchestrator) getRelevantCached(ctx context.Context, words []string, n int) ([]domain.Lesson, error) {
	if cached, ok := o.cache.Get(words, n); ok {
		return cached, nil
	}
	memories, err := o.store.GetRelevant(ctx, words, n)
	if err != nil {
		return nil, err
	}
	o.cache.Put(words, n, memories)
	return memories, nil
}

// GetContext assembles the frozen-at-task-start context for a task.
func (o *Orchestrator) GetContext(ctx context.Context, task *domain.Task) (Context, error) {
	category := detectCategory(task.Description())
	words := ExtractKeywords(task.Description(), 20)

	memories, err := o.getRelevantCached(ctx, words, 8)
	if err != nil {
		return Context{}, err
	}

	patterns, err := o.store.Backend().ListTestPatterns(ctx)
	if err != nil {
		return Context{}, err
	}
	hints := matchingPatterns(patterns, task.Category(), 3)

	ids := make([]int64, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}

	return Context{
		Memories:       memories,
		Category:       category,
		SuggestedTools: categoryTools[category],
		Tips:           categoryTips[category],
		PatternHints:   hints,
		MemoryIDs:      ids,
	}, nil
}

// GetRefineContext reruns retrieval with the refiner's extra signal
// (current response, error text, tools tried) fused into the query.
func (o *Orchestrator) GetRefineContext(ctx context.Context, task *domain.Task, currentResponse, refineErrors string, toolsTried []string) (Context, error) {
	fused := strings.Join([]string{task.Description(), currentResponse, refineErrors, strings.Join(toolsTried, " ")}, " ")
	category := detectCategory(task.Description())
	words := ExtractKeywords(fused, 24)

	memories, err := o.getRelevantCached(ctx, words, 8)
	if err != nil {
		return Context{}, err
	}

	ids := make([]int64, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}

	return Context{
		Memories:       memories,
		Category:       category,
		SuggestedTools: categoryTools[category],
		Tips:           categoryTips[category],
		MemoryIDs:      ids,
	}, nil
}

// MarkMemoriesFeedback applies success/failure to every memory id used
// by a completed task (spec §4.4, invoked by the runner).
func (o *Orchestrator) MarkMemoriesFeedback(ctx context.Context, ids []int64, success bool) error {
	for _, id := range ids {
		var err error
		if success {
			err = o.store.MarkSuccess(ctx, id)
		} else {
			err = o.store.MarkFailure(ctx, id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// MaintenanceReport summarizes one run_maintenance pass.
type MaintenanceReport struct {
	LessonsDecayed int
}

// RunMaintenance applies one decay pass over the knowledge store.
func (o *Orchestrator) RunMaintenance(ctx context.Context) (MaintenanceReport, error) {
	changed, err := o.store.Decay(ctx)
	if err != nil {
		return MaintenanceReport{}, err
	}
	return MaintenanceReport{LessonsDecayed: changed}, nil
}

// detectCategory implements §4.4's keyword-based category detector,
// picking the category with the highest keyword-match fraction; a tie
// goes to the category that sorts first, and zero matches fall back to
// general. Before falling back to pure
// containment counting, it runs an expr-lang rule for the one category
// whose match criteria is a co-occurrence rather than simple keyword
// containment: analysis, when the description mentions both a math term
// and a list-operation term.
func detectCategory(description string) domain.RetrievalCategory {
	lower := strings.ToLower(description)

	out, err := expr.Eval(coOccurrenceCondition, map[string]any{
		"has_math":     containsAny(lower, mathKeywords),
		"has_list_ops": containsAny(lower, listOpsKeywords),
	})
	if coOccurs, ok := out.(bool); err == nil && ok && coOccurs {
		return domain.RetrievalCategoryAnalysis
	}

	best := domain.RetrievalCategoryGeneral
	bestConfidence := 0.0

	// Sorted for deterministic tie-breaking across map iteration.
	keys := make([]domain.RetrievalCategory, 0, len(categoryKeywords))
	for k := range categoryKeywords {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, cat := range keys {
		keywords := categoryKeywords[cat]
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		confidence := float64(matches) / float64(len(keywords))
		if confidence > bestConfidence {
			bestConfidence = confidence
			best = cat
		}
	}

	return best
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func matchingPatterns(patterns []domain.TestPattern, category domain.Category, limit int) []domain.TestPattern {
	var matched []domain.TestPattern
	for _, p := range patterns {
		if p.Category == category {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UseCount > matched[j].UseCount })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}
