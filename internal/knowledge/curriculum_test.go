package knowledge

import (
	"context"
	"testing"

	"github.com/synthloom/core/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestCurriculum_CurrentDifficulty_StartsAtOne(t *testing.T) {
	c := NewCurriculum(newTestStore())
	difficulty, err := c.CurrentDifficulty(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, difficulty)
}

func TestCurriculum_RecordOutcome_AccumulatesBucketCounters(t *testing.T) {
	c := NewCurriculum(newTestStore())
	ctx := context.Background()

	state, err := c.RecordOutcome(ctx, domain.CategoryMath, 1, true, 20)
	assert.NoError(t, err)
	assert.Equal(t, 1, state.Counters["math|1"].Total)
	assert.Equal(t, 1, state.Counters["math|1"].Success)
	assert.Len(t, state.History, 1)
}

func TestCurriculum_RecordOutcome_RaisesDifficultyAboveThreshold(t *testing.T) {
	c := NewCurriculum(newTestStore())
	ctx := context.Background()

	var state *domain.CurriculumState
	var err error
	for i := 0; i < 3; i++ {
		state, err = c.RecordOutcome(ctx, domain.CategoryMath, 1, true, 20)
		assert.NoError(t, err)
	}

	assert.Equal(t, 2, state.CurrentDifficulty)
}

func TestCurriculum_RecordOutcome_LowersDifficultyBelowThreshold(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	seeded, err := store.Backend().LoadCurriculum(ctx)
	assert.NoError(t, err)
	seeded.CurrentDifficulty = 3
	assert.NoError(t, store.Backend().SaveCurriculum(ctx, seeded))

	c := NewCurriculum(store)
	var state *domain.CurriculumState
	for i := 0; i < 3; i++ {
		state, err = c.RecordOutcome(ctx, domain.CategoryMath, 3, false, 2)
		assert.NoError(t, err)
	}

	assert.Equal(t, 2, state.CurrentDifficulty)
}

func TestCurriculum_RecordOutcome_NoAdjustmentBelowMinSamples(t *testing.T) {
	c := NewCurriculum(newTestStore())
	ctx := context.Background()

	state, err := c.RecordOutcome(ctx, domain.CategoryMath, 1, true, 20)
	assert.NoError(t, err)
	assert.Equal(t, 1, state.CurrentDifficulty)
}

func TestCurriculum_RecordOutcome_IgnoresBucketsNotAtCurrentDifficulty(t *testing.T) {
	c := NewCurriculum(newTestStore())
	ctx := context.Background()

	var state *domain.CurriculumState
	var err error
	for i := 0; i < 5; i++ {
		state, err = c.RecordOutcome(ctx, domain.CategoryMath, 4, true, 20)
		assert.NoError(t, err)
	}

	assert.Equal(t, 1, state.CurrentDifficulty)
}

func TestCurriculum_RecordOutcome_DifficultyNeverExceedsFive(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	seeded, err := store.Backend().LoadCurriculum(ctx)
	assert.NoError(t, err)
	seeded.CurrentDifficulty = 5
	assert.NoError(t, store.Backend().SaveCurriculum(ctx, seeded))

	c := NewCurriculum(store)
	var state *domain.CurriculumState
	for i := 0; i < 3; i++ {
		state, err = c.RecordOutcome(ctx, domain.CategoryMath, 5, true, 20)
		assert.NoError(t, err)
	}

	assert.Equal(t, 5, state.CurrentDifficulty)
}

func TestCurriculum_Weaknesses_FlagsLowSuccessRateCategory(t *testing.T) {
	c := NewCurriculum(newTestStore())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := c.RecordOutcome(ctx, domain.CategoryMath, 1, false, 4)
		assert.NoError(t, err)
	}

	weaknesses, err := c.Weaknesses(ctx)
	assert.NoError(t, err)
	assert.Len(t, weaknesses, 1)
	assert.Equal(t, domain.CategoryMath, weaknesses[0].Category)
	assert.Equal(t, 4, weaknesses[0].Samples)
}

func TestCurriculum_Weaknesses_OmitsCategoriesBelowMinSamples(t *testing.T) {
	c := NewCurriculum(newTestStore())
	ctx := context.Background()

	_, err := c.RecordOutcome(ctx, domain.CategoryMath, 1, false, 4)
	assert.NoError(t, err)
	_, err = c.RecordOutcome(ctx, domain.CategoryMath, 1, false, 4)
	assert.NoError(t, err)

	weaknesses, err := c.Weaknesses(ctx)
	assert.NoError(t, err)
	assert.Empty(t, weaknesses)
}

func TestCurriculum_Weaknesses_OmitsCategoriesAboveSuccessThreshold(t *testing.T) {
	c := NewCurriculum(newTestStore())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := c.RecordOutcome(ctx, domain.CategoryMath, 1, true, 20)
		assert.NoError(t, err)
	}

	weaknesses, err := c.Weaknesses(ctx)
	assert.NoError(t, err)
	assert.Empty(t, weaknesses)
}

func TestCurriculum_Weaknesses_SortsWorstFirstAndCapsAtFive(t *testing.T) {
	c := NewCurriculum(newTestStore())
	ctx := context.Background()

	categories := []domain.Category{
		domain.CategoryMath, domain.CategoryListOps, domain.CategoryDictOps,
		domain.CategoryValidation, domain.CategoryParsing, domain.CategoryCodePattern,
	}
	for idx, cat := range categories {
		failures := 3 + idx
		for i := 0; i < failures; i++ {
			_, err := c.RecordOutcome(ctx, cat, 1, false, 2)
			assert.NoError(t, err)
		}
	}

	weaknesses, err := c.Weaknesses(ctx)
	assert.NoError(t, err)
	assert.Len(t, weaknesses, domain.MaxWeaknesses)
	for i := 1; i < len(weaknesses); i++ {
		assert.LessOrEqual(t, weaknesses[i-1].SuccessRate, weaknesses[i].SuccessRate)
	}
}

func TestBucketKey_RoundTripsThroughSplitBucketKey(t *testing.T) {
	key := bucketKey(domain.CategoryMath, 3)
	assert.Equal(t, "math|3", key)

	cat, difficulty := splitBucketKey(key)
	assert.Equal(t, domain.CategoryMath, cat)
	assert.Equal(t, 3, difficulty)
}
