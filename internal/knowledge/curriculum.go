package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/synthloom/core/internal/domain"
)

// minSamplesForAdjustment is the spec §4.12 floor before a difficulty
// adjustment is considered ("after at least 3 samples").
const minSamplesForAdjustment = 3

// raiseThreshold / lowerThreshold are the success-rate bounds gating a
// difficulty step (spec §4.12).
const (
	raiseThreshold = 0.75
	lowerThreshold = 0.40
)

// minWeaknessSamples / weaknessThreshold gate the weakness list (spec
// §4.12: "categories with >= 3 samples and success rate < 0.5").
const (
	minWeaknessSamples = 3
	weaknessThreshold  = 0.5
)

// Curriculum adapts global difficulty and tracks per-category weakness
// from completed task outcomes (spec §4.12).
type Curriculum struct {
	store *Store
}

// NewCurriculum wraps a Store's curriculum persistence.
func NewCurriculum(store *Store) *Curriculum {
	return &Curriculum{store: store}
}

// RecordOutcome folds one completed task's result into the curriculum
// state: bumps the (category, difficulty) counters, appends history,
// and adjusts global difficulty when enough samples have accumulated at
// the current level.
func (c *Curriculum) RecordOutcome(ctx context.Context, category domain.Category, difficulty int, success bool, score float64) (*domain.CurriculumState, error) {
	state, err := c.store.Backend().LoadCurriculum(ctx)
	if err != nil {
		return nil, err
	}

	key := bucketKey(category, difficulty)
	counters, ok := state.Counters[key]
	if !ok {
		counters = &domain.DifficultyCounters{}
		state.Counters[key] = counters
	}
	counters.Total++
	if success {
		counters.Success++
	}
	counters.ScoreSamples = append(counters.ScoreSamples, score)
	if len(counters.ScoreSamples) > domain.MaxScoreSamples {
		counters.ScoreSamples = counters.ScoreSamples[len(counters.ScoreSamples)-domain.MaxScoreSamples:]
	}

	state.History = append(state.History, domain.HistorySample{
		Category:   category,
		Difficulty: difficulty,
		Success:    success,
		Score:      score,
	})
	if len(state.History) > domain.MaxCurriculumHistory {
		state.History = state.History[len(state.History)-domain.MaxCurriculumHistory:]
	}

	c.maybeAdjustDifficulty(state, category, difficulty)

	if err := c.store.Backend().SaveCurriculum(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *Curriculum) maybeAdjustDifficulty(state *domain.CurriculumState, category domain.Category, difficulty int) {
	if difficulty != state.CurrentDifficulty {
		return
	}

	key := bucketKey(category, difficulty)
	counters, ok := state.Counters[key]
	if !ok || counters.Total < minSamplesForAdjustment {
		return
	}

	rate := counters.SuccessRate()
	switch {
	case rate >= raiseThreshold && state.CurrentDifficulty < 5:
		state.CurrentDifficulty++
	case rate < lowerThreshold && state.CurrentDifficulty > 1:
		state.CurrentDifficulty--
	}
}

// CurrentDifficulty returns the curriculum's current global difficulty,
// used by the task generator to pick how hard the next task should be
// (spec §4.12).
func (c *Curriculum) CurrentDifficulty(ctx context.Context) (int, error) {
	state, err := c.store.Backend().LoadCurriculum(ctx)
	if err != nil {
		return 0, err
	}
	return state.CurrentDifficulty, nil
}

// Weaknesses recomputes the global weakness list, worst-first, top 5
// (spec §4.12).
func (c *Curriculum) Weaknesses(ctx context.Context) ([]domain.WeaknessEntry, error) {
	state, err := c.store.Backend().LoadCurriculum(ctx)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[domain.Category]*domain.DifficultyCounters)
	for key, counters := range state.Counters {
		cat, _ := splitBucketKey(key)
		agg, ok := byCategory[cat]
		if !ok {
			agg = &domain.DifficultyCounters{}
			byCategory[cat] = agg
		}
		agg.Total += counters.Total
		agg.Success += counters.Success
	}

	var weaknesses []domain.WeaknessEntry
	for cat, agg := range byCategory {
		if agg.Total < minWeaknessSamples {
			continue
		}
		rate := agg.SuccessRate()
		if rate < weaknessThreshold {
			weaknesses = append(weaknesses, domain.WeaknessEntry{
				Category:    cat,
				SuccessRate: rate,
				Samples:     agg.Total,
			})
		}
	}

	sort.Slice(weaknesses, func(i, j int) bool { return weaknesses[i].SuccessRate < weaknesses[j].SuccessRate })
	if len(weaknesses) > domain.MaxWeaknesses {
		weaknesses = weaknesses[:domain.MaxWeaknesses]
	}
	return weaknesses, nil
}

func bucketKey(category domain.Category, difficulty int) string {
	return fmt.Sprintf("%s|%d", category, difficulty)
}

func splitBucketKey(key string) (domain.Category, int) {
	var cat string
	var difficulty int
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			cat = key[:i]
			fmt.Sscanf(key[i+1:], "%d", &difficulty)
			break
		}
	}
	return domain.Category(cat), difficulty
}
