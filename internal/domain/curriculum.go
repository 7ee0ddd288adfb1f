package domain

// CurriculumState holds the adaptive global difficulty and per-category
// weakness tracking (spec §3, §4.12). Difficulty ranges over [1, 5].
type CurriculumState struct {
	CurrentDifficulty int                            `json:"current_difficulty"`
	Counters          map[string]*DifficultyCounters `json:"counters"` // key: category|difficulty
	History           []HistorySample                `json:"history"`  // bounded <= 100
}

// DifficultyCounters tracks attempts and a bounded sample window of scores
// for one (category, difficulty) pair.
type DifficultyCounters struct {
	Total        int       `json:"total"`
	Success      int       `json:"success"`
	ScoreSamples []float64 `json:"score_samples"` // bounded <= 20
}

// MaxScoreSamples bounds DifficultyCounters.ScoreSamples (spec §3).
const MaxScoreSamples = 20

// MaxCurriculumHistory bounds CurriculumState.History (spec §3).
const MaxCurriculumHistory = 100

// HistorySample is one completed task's contribution to curriculum history.
type HistorySample struct {
	Category   Category `json:"category"`
	Difficulty int      `json:"difficulty"`
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
}

// NewCurriculumState returns a fresh curriculum starting at difficulty 1.
func NewCurriculumState() *CurriculumState {
	return &CurriculumState{
		CurrentDifficulty: 1,
		Counters:          make(map[string]*DifficultyCounters),
	}
}

// SuccessRate returns Success/Total for a counter bucket, or 0 if empty.
func (c *DifficultyCounters) SuccessRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Success) / float64(c.Total)
}

// WeaknessEntry is one category flagged as a curriculum weakness.
type WeaknessEntry struct {
	Category    Category `json:"category"`
	SuccessRate float64  `json:"success_rate"`
	Samples     int      `json:"samples"`
}

// MaxWeaknesses bounds the weakness list returned to the task generator
// (spec §4.12: "sorted worst-first, top 5").
const MaxWeaknesses = 5

// ErrorPatternKey identifies one (tool, error_type) bucket in the
// cumulative error-pattern counters (spec §3).
type ErrorPatternKey struct {
	Tool      string
	ErrorType string
}
