package synth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/synthloom/core/internal/domain"
	"github.com/synthloom/core/internal/infrastructure/storage"
	"github.com/synthloom/core/internal/knowledge"

	"github.com/stretchr/testify/assert"
)

func TestNextTaskID_IsOneIndexed(t *testing.T) {
	assert.Equal(t, "task-1", nextTaskID(0))
	assert.Equal(t, "task-6", nextTaskID(5))
}

func TestItoa_HandlesZeroPositiveAndNegative(t *testing.T) {
	assert.Equal(t, "0", itoa(0))
	assert.Equal(t, "42", itoa(42))
	assert.Equal(t, "-7", itoa(-7))
}

func TestMaxInt_ReturnsLarger(t *testing.T) {
	assert.Equal(t, 5, maxInt(5, 3))
	assert.Equal(t, 5, maxInt(3, 5))
}

func TestAutonomousLoop_StopSignalPresent_FalseWhenUnconfigured(t *testing.T) {
	a := &AutonomousLoop{cfg: AutonomousLoopConfig{}}
	assert.False(t, a.stopSignalPresent())
}

func TestAutonomousLoop_StopSignalPresent_TrueWhenFileExists(t *testing.T) {
	dir := t.TempDir()
	stopFile := filepath.Join(dir, "STOP")
	assert.NoError(t, os.WriteFile(stopFile, []byte("stop"), 0o644))

	a := &AutonomousLoop{cfg: AutonomousLoopConfig{StopSignalFile: stopFile}}
	assert.True(t, a.stopSignalPresent())
}

func TestAutonomousLoop_StopSignalPresent_FalseWhenFileMissing(t *testing.T) {
	a := &AutonomousLoop{cfg: AutonomousLoopConfig{StopSignalFile: filepath.Join(t.TempDir(), "absent")}}
	assert.False(t, a.stopSignalPresent())
}

func TestAutonomousLoop_PickCurriculumTarget_DefaultsToGeneralWithoutWeaknesses(t *testing.T) {
	curriculum := knowledge.NewCurriculum(knowledge.NewStore(storage.NewMemoryStore()))
	a := &AutonomousLoop{curriculum: curriculum, cfg: AutonomousLoopConfig{WeaknessProbability: 1.0}}

	difficulty, category := a.pickCurriculumTarget(context.Background())
	assert.Equal(t, 1, difficulty)
	assert.Equal(t, domain.CategoryGeneral, category)
}

func TestAutonomousLoop_PickCurriculumTarget_TargetsWorstWeaknessWhenProbabilityOne(t *testing.T) {
	store := knowledge.NewStore(storage.NewMemoryStore())
	curriculum := knowledge.NewCurriculum(store)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := curriculum.RecordOutcome(ctx, domain.CategoryMath, 1, false, 4)
		assert.NoError(t, err)
	}

	a := &AutonomousLoop{curriculum: curriculum, cfg: AutonomousLoopConfig{WeaknessProbability: 1.0}}
	_, category := a.pickCurriculumTarget(ctx)
	assert.Equal(t, domain.CategoryMath, category)
}

func TestAutonomousLoop_PickCurriculumTarget_IgnoresWeaknessWhenProbabilityZero(t *testing.T) {
	store := knowledge.NewStore(storage.NewMemoryStore())
	curriculum := knowledge.NewCurriculum(store)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := curriculum.RecordOutcome(ctx, domain.CategoryMath, 1, false, 4)
		assert.NoError(t, err)
	}

	a := &AutonomousLoop{curriculum: curriculum, cfg: AutonomousLoopConfig{WeaknessProbability: 0}}
	_, category := a.pickCurriculumTarget(ctx)
	assert.Equal(t, domain.CategoryGeneral, category)
}
