package synth

import (
	"context"
	"testing"

	"github.com/synthloom/core/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestRefiner_Refine_ZeroIterationsReturnsWinnerUnchanged(t *testing.T) {
	r := NewRefiner(nil, nil, nil, nil, NewReflectionBuffer(), RefinerConfig{MaxIterations: 0})
	winner := domain.WorkerResponse{RawText: "```python\ndef solve(x):\n    return x\n```", Verified: true}

	result := r.Refine(context.Background(), newTask("solve"), winner, nil, "")

	assert.Equal(t, winner.RawText, result.Best.Response)
	assert.Equal(t, 0, result.Iterations)
	assert.True(t, result.Best.Verified)
}

func TestBeatsBest_StrictlyHigherScoreWins(t *testing.T) {
	current := Candidate{Score: 20}
	best := Candidate{Score: 15}
	assert.True(t, beatsBest(current, best))
}

func TestBeatsBest_LowerScoreLoses(t *testing.T) {
	current := Candidate{Score: 10}
	best := Candidate{Score: 15}
	assert.False(t, beatsBest(current, best))
}

func TestBeatsBest_EqualScoreVerifiedBreaksTie(t *testing.T) {
	current := Candidate{Score: 15, Verified: true}
	best := Candidate{Score: 15, Verified: false}
	assert.True(t, beatsBest(current, best))
}

func TestBeatsBest_EqualScoreBothUnverifiedKeepsBest(t *testing.T) {
	current := Candidate{Score: 15, Verified: false}
	best := Candidate{Score: 15, Verified: false}
	assert.False(t, beatsBest(current, best))
}

func TestBeatsBest_EqualScoreBestAlreadyVerified(t *testing.T) {
	current := Candidate{Score: 15, Verified: true}
	best := Candidate{Score: 15, Verified: true}
	assert.False(t, beatsBest(current, best))
}

func TestRefiner_StopConditionMet_DefaultMatchesScoreAndVerification(t *testing.T) {
	r := NewRefiner(nil, nil, nil, nil, NewReflectionBuffer(), RefinerConfig{ScoreThreshold: 15})

	assert.True(t, r.stopConditionMet(Candidate{Score: 15, Verified: true}, 2))
	assert.False(t, r.stopConditionMet(Candidate{Score: 15, Verified: false}, 2))
	assert.True(t, r.stopConditionMet(Candidate{Score: 15, Verified: false}, 0))
	assert.False(t, r.stopConditionMet(Candidate{Score: 10, Verified: true}, 0))
}

func TestRefiner_StopConditionMet_HonorsCustomExpression(t *testing.T) {
	r := NewRefiner(nil, nil, nil, nil, NewReflectionBuffer(), RefinerConfig{
		ScoreThreshold: 15,
		StopCondition:  "score >= threshold",
	})

	assert.True(t, r.stopConditionMet(Candidate{Score: 15, Verified: false}, 3))
}

func TestRefiner_StopConditionMet_FallsBackOnInvalidExpression(t *testing.T) {
	r := NewRefiner(nil, nil, nil, nil, NewReflectionBuffer(), RefinerConfig{
		ScoreThreshold: 15,
		StopCondition:  "not valid expr (((",
	})

	assert.True(t, r.stopConditionMet(Candidate{Score: 20, Verified: true}, 0))
	assert.False(t, r.stopConditionMet(Candidate{Score: 5, Verified: true}, 0))
}
