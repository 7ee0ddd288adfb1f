package knowledge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/synthloom/core/internal/domain"
)

// CuratorStats are the cumulative counters reported on the status
// surface (spec §4.10).
type CuratorStats struct {
	Runs             int
	HintsAdded       int
	MergedCandidates int
	LinksDecayed     int
	LowValueLessons  int
	LastRun          time.Time
}

// ToolSchemaRegistry is the subset of tool-schema persistence the
// curator needs to promote learned error hints into a schema's
// error_hints table (spec §4.10 duty 1).
type ToolSchemaRegistry interface {
	GetToolSchema(ctx context.Context, name string) (*domain.ToolSchema, error)
	SaveToolSchema(ctx context.Context, schema *domain.ToolSchema) error
}

// PendingLesson is a learned (tool, error_type) -> lesson mapping queued
// for promotion by the curator.
type PendingLesson struct {
	Tool      string
	ErrorType string
	Lesson    string
}

// Curator runs the maintenance pass every N completed tasks. The
// autonomous loop calls Tick synchronously on its own goroutine between
// tasks; it is not run in the background. Tick must not overlap with
// itself; the mutex enforces that even if a caller invokes it
// concurrently (spec §4.10: "must not overlap with itself").
type Curator struct {
	mu sync.Mutex

	store    *Store
	registry ToolSchemaRegistry

	errorCounts map[domain.ErrorPatternKey]int
	pending     map[domain.ErrorPatternKey]string

	stats CuratorStats
}

// NewCurator creates a Curator over store and schema registry.
func NewCurator(store *Store, registry ToolSchemaRegistry) *Curator {
	return &Curator{
		store:       store,
		registry:    registry,
		errorCounts: make(map[domain.ErrorPatternKey]int),
		pending:     make(map[domain.ErrorPatternKey]string),
	}
}

// RecordError increments the (tool, error_type) counter and records the
// candidate lesson text that would be promoted once the count clears the
// threshold (spec §4.10 duty 1 input).
func (c *Curator) RecordError(tool, errorType, lesson string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := domain.ErrorPatternKey{Tool: tool, ErrorType: errorType}
	c.errorCounts[key]++
	if lesson != "" {
		c.pending[key] = lesson
	}
}

// TopErrors returns the top-N most frequent (tool, error_type) counters,
// used to seed the task generator's difficulty/weakness hints.
func (c *Curator) TopErrors(n int) []domain.ErrorPatternKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]domain.ErrorPatternKey, 0, len(c.errorCounts))
	for k := range c.errorCounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return c.errorCounts[keys[i]] > c.errorCounts[keys[j]] })
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Tick runs one maintenance pass: error-hint promotion, duplicate
// census, graph decay, and the low-value sweep (spec §4.10).
func (c *Curator) Tick(ctx context.Context) (CuratorStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hints, err := c.promoteErrorHints(ctx)
	if err != nil {
		return c.stats, err
	}

	duplicates, err := c.duplicateCensus(ctx)
	if err != nil {
		return c.stats, err
	}

	decayed, err := c.decayGraph(ctx)
	if err != nil {
		return c.stats, err
	}

	lowValue, err := c.LowValueCount(ctx)
	if err != nil {
		return c.stats, err
	}

	c.stats.Runs++
	c.stats.HintsAdded += hints
	c.stats.MergedCandidates += duplicates
	c.stats.LinksDecayed += decayed
	c.stats.LowValueLessons = lowValue
	c.stats.LastRun = time.Now()

	return c.stats, nil
}

// promoteErrorHints implements duty 1: for each (tool, error_type) whose
// count >= 2 and whose schema has no existing hint, write the learned
// lesson into the schema, bumping its version.
func (c *Curator) promoteErrorHints(ctx context.Context) (int, error) {
	if c.registry == nil {
		return 0, nil
	}

	promoted := 0
	for key, count := range c.errorCounts {
		if count < 2 {
			continue
		}
		lesson, ok := c.pending[key]
		if !ok {
			continue
		}

		schema, err := c.registry.GetToolSchema(ctx, key.Tool)
		if err != nil || schema == nil {
			continue
		}
		if _, exists := schema.ErrorHints[key.ErrorType]; exists {
			continue
		}

		schema.SetErrorHint(key.ErrorType, lesson)
		if err := c.registry.SaveToolSchema(ctx, schema); err != nil {
			return promoted, err
		}
		promoted++
		delete(c.pending, key)
	}

	return promoted, nil
}

// duplicateCensus implements duty 2: scan the most recent 20 entries and
// count (do not merge) pairs whose keyword overlap fraction >= 50%.
func (c *Curator) duplicateCensus(ctx context.Context) (int, error) {
	recent, err := c.store.recentLessons(ctx, 20)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := 0; i < len(recent); i++ {
		for j := i + 1; j < len(recent); j++ {
			if significantOverlapFraction(recent[i].Keywords, recent[j].Keywords) >= 0.5 {
				count++
			}
		}
	}
	return count, nil
}

// DuplicateCandidates exposes the duplicate-pair scan without mutating
// anything, matching the spec's Open Question decision: the store
// counts but never auto-merges (see DESIGN.md).
func (c *Curator) DuplicateCandidates(ctx context.Context) (int, error) {
	return c.duplicateCensus(ctx)
}

func significantOverlapFraction(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	overlap := wordOverlapCount(a, b)
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(overlap) / float64(smaller)
}

// decayGraph implements duty 3: multiply all relation weights by 0.99,
// dropping any that fall below the persistence threshold.
func (c *Curator) decayGraph(ctx context.Context) (int, error) {
	all, err := c.store.backend.ListLessons(ctx)
	if err != nil {
		return 0, err
	}

	decayed := 0
	for _, l := range all {
		kept := l.Relations[:0:0]
		for _, r := range l.Relations {
			r.Weight *= 0.99
			decayed++
			if r.Weight >= 0.3 {
				kept = append(kept, r)
			}
		}
		l.Relations = kept
		if err := c.store.backend.UpdateLesson(ctx, l); err != nil {
			return decayed, err
		}
	}
	return decayed, nil
}

// LowValueCount implements duty 4: entries with importance <= 2 and zero
// accesses are counted, never deleted (spec §4.10: conservative sweep).
func (c *Curator) LowValueCount(ctx context.Context) (int, error) {
	all, err := c.store.backend.ListLessons(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, l := range all {
		if l.Importance <= 2 && l.AccessCount == 0 {
			count++
		}
	}
	return count, nil
}

// Stats returns the cumulative counters.
func (c *Curator) Stats() CuratorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
