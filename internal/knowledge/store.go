// Package knowledge implements the memory subsystem that mediates
// retrieval, graph linking, temporal decay, and feedback reinforcement
// across the synthesis kernel (spec §4.3, §4.4, §4.10).
package knowledge

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/synthloom/core/internal/domain"
)

// recentWindow bounds how far back add() looks for an exact-text
// duplicate and how many entries a new lesson can link against.
const recentWindow = 50

// maxCandidates bounds get_relevant's candidate pool before ranking
// (spec §4.3: "at most 20 candidates").
const maxCandidates = 20

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "to": {}, "of": {}, "in": {},
	"on": {}, "and": {}, "or": {}, "for": {}, "it": {}, "this": {}, "that": {},
	"with": {}, "was": {}, "be": {}, "by": {}, "as": {}, "at": {}, "from": {},
}

// Store is the knowledge store: lesson CRUD plus the retrieval, linking,
// and decay algorithms layered on top of a domain.KnowledgeStorage
// backend (spec §4.3).
type Store struct {
	backend domain.KnowledgeStorage
}

// NewStore wraps a persistence backend with the knowledge algorithms.
func NewStore(backend domain.KnowledgeStorage) *Store {
	return &Store{backend: backend}
}

// AddLessonParams is the input to Add.
type AddLessonParams struct {
	LessonText string
	Category   domain.Category
	SourceType domain.SourceType
	Tools      []string
	ErrorType  string
	Importance int
}

// Add inserts a lesson, deduplicating by exact normalized-text match
// against the recent window, extracting keywords, and linking it to
// recent entries whose computed weight clears the persistence threshold
// (spec §4.3).
func (s *Store) Add(ctx context.Context, p AddLessonParams) (domain.Lesson, error) {
	normalized := domain.NormalizeLessonText(p.LessonText)

	recent, err := s.recentLessons(ctx, recentWindow)
	if err != nil {
		return domain.Lesson{}, err
	}
	for _, existing := range recent {
		if domain.NormalizeLessonText(existing.LessonText) == normalized {
			return existing, nil
		}
	}

	id, err := s.backend.NextLessonID(ctx)
	if err != nil {
		return domain.Lesson{}, err
	}

	lesson := domain.NewLesson(id, p.LessonText, p.Category, p.SourceType, p.Importance)
	lesson.Tools = p.Tools
	lesson.ErrorType = p.ErrorType
	lesson.Keywords = ExtractKeywords(p.LessonText, 12)

	for _, existing := range recent {
		weight := linkWeight(lesson.Keywords, existing.Keywords, lesson.Category, existing.Category, lesson.Tools, existing.Tools)
		relType := classifyRelation(lesson.Category, existing.Category, lesson.Tools, existing.Tools)
		lesson.AddRelation(domain.NewRelation(existing.ID, weight, relType))
	}

	return s.backend.AddLesson(ctx, *lesson)
}

// linkWeight implements spec §4.3's link-weight rule: base 0, +0.3+0.05*
// overlap if word overlap >= 3, +0.2 same category, +0.3 overlapping
// tool sets, clipped to 1.0.
func linkWeight(aKeywords, bKeywords []string, aCat, bCat domain.Category, aTools, bTools []string) float64 {
	overlap := wordOverlapCount(aKeywords, bKeywords)
	var weight float64
	if overlap >= 3 {
		weight += 0.3 + 0.05*float64(overlap)
	}
	if aCat == bCat {
		weight += 0.2
	}
	if toolSetsOverlap(aTools, bTools) {
		weight += 0.3
	}
	if weight > 1.0 {
		weight = 1.0
	}
	return weight
}

func classifyRelation(aCat, bCat domain.Category, aTools, bTools []string) domain.RelationType {
	sameCategory := aCat == bCat
	toolOverlap := toolSetsOverlap(aTools, bTools)
	switch {
	case sameCategory && toolOverlap:
		return domain.RelationTypeMixed
	case sameCategory:
		return domain.RelationTypeCategory
	case toolOverlap:
		return domain.RelationTypeToolOverlap
	default:
		return domain.RelationTypeWordOverlap
	}
}

func wordOverlapCount(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, w := range b {
		set[w] = struct{}{}
	}
	count := 0
	for _, w := range a {
		if _, ok := set[w]; ok {
			count++
		}
	}
	return count
}

func toolSetsOverlap(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	for _, t := range a {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// ExtractKeywords is the stop-word-filtered fallback keyword extractor
// (spec §4.3: "LLM-based extraction is an optimization; the fallback is
// a stop-word-filtered word split bounded in length").
func ExtractKeywords(text string, max int) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, max)
	seen := make(map[string]struct{}, max)

	for _, f := range fields {
		word := strings.Trim(f, ".,!?;:()[]{}\"'")
		if len(word) < 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
		if len(out) >= max {
			break
		}
	}
	return out
}

func (s *Store) recentLessons(ctx context.Context, window int) ([]domain.Lesson, error) {
	all, err := s.backend.ListLessons(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) > window {
		all = all[:window]
	}
	return all, nil
}

// scoredLesson pairs a lesson with its retrieval score for ranking.
type scoredLesson struct {
	lesson domain.Lesson
	score  float64
}

// GetRelevant implements spec §4.3's ranking formula over a candidate
// pool of the maxCandidates most recent entries (see gatherCandidates), then
// touches (bumps access count/last-access) every returned entry.
func (s *Store) GetRelevant(ctx context.Context, queryWords []string, n int) ([]domain.Lesson, error) {
	all, err := s.backend.ListLessons(ctx)
	if err != nil {
		return nil, err
	}

	candidates := gatherCandidates(all, maxCandidates)
	now := time.Now()

	// pagerank_centrality approximated by in-degree share across the
	// candidate pool: how many other candidates point at this one.
	inDegree := computeInDegree(candidates)
	maxInDegree := 1
	for _, d := range inDegree {
		if d > maxInDegree {
			maxInDegree = d
		}
	}

	scored := make([]scoredLesson, 0, len(candidates))
	for _, l := range candidates {
		semantic := tokenOverlapFraction(queryWords, l.Keywords)
		normImportance := float64(l.Importance) / 10.0
		accessScore := logScale(l.AccessCount)
		decayFactor := l.DecayFactor(now)
		successRate := l.SuccessRate()
		centrality := float64(inDegree[l.ID]) / float64(maxInDegree)

		score := 0.30*semantic +
			0.20*normImportance +
			0.10*accessScore +
			0.10*decayFactor +
			0.15*successRate +
			0.15*centrality

		scored = append(scored, scoredLesson{lesson: l, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].lesson.ID < scored[j].lesson.ID
	})

	if n > len(scored) {
		n = len(scored)
	}

	out := make([]domain.Lesson, 0, n)
	for i := 0; i < n; i++ {
		l := scored[i].lesson
		l.Touch()
		if err := s.backend.UpdateLesson(ctx, l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// gatherCandidates returns up to max entries, newest first (spec §4.3
// candidate gathering). The importance-ordered pass only runs when fewer
// than max lessons exist, and by then every lesson is already in the
// pool, so an older high-importance entry outside the max newest is not
// a candidate.
func gatherCandidates(all []domain.Lesson, max int) []domain.Lesson {
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	seen := make(map[int64]struct{}, max)
	var out []domain.Lesson

	add := func(l domain.Lesson) bool {
		if _, ok := seen[l.ID]; ok {
			return false
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
		return len(out) >= max
	}

	for _, l := range all {
		if add(l) {
			return out
		}
	}

	byImportance := make([]domain.Lesson, len(all))
	copy(byImportance, all)
	sort.Slice(byImportance, func(i, j int) bool { return byImportance[i].Importance > byImportance[j].Importance })
	for _, l := range byImportance {
		if add(l) {
			return out
		}
	}

	return out
}

func computeInDegree(lessons []domain.Lesson) map[int64]int {
	inDegree := make(map[int64]int, len(lessons))
	for _, l := range lessons {
		for _, r := range l.Relations {
			inDegree[r.ToID]++
		}
	}
	return inDegree
}

func tokenOverlapFraction(query, keywords []string) float64 {
	if len(query) == 0 || len(keywords) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		set[k] = struct{}{}
	}
	matched := 0
	for _, q := range query {
		if _, ok := set[strings.ToLower(q)]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

func logScale(accessCount int) float64 {
	if accessCount <= 0 {
		return 0
	}
	// log-normalized against a generous saturation point so frequently
	// accessed entries plateau near 1.0 instead of growing unbounded.
	v := math.Log(float64(accessCount)+1) / math.Log(101)
	if v > 1.0 {
		v = 1.0
	}
	return v
}

// MarkSuccess nudges a lesson's importance up and recomputes success rate.
func (s *Store) MarkSuccess(ctx context.Context, id int64) error {
	lesson, err := s.backend.GetLesson(ctx, id)
	if err != nil {
		return err
	}
	lesson.MarkSuccess()
	return s.backend.UpdateLesson(ctx, lesson)
}

// MarkFailure nudges a lesson's importance down and recomputes success rate.
func (s *Store) MarkFailure(ctx context.Context, id int64) error {
	lesson, err := s.backend.GetLesson(ctx, id)
	if err != nil {
		return err
	}
	lesson.MarkFailure()
	return s.backend.UpdateLesson(ctx, lesson)
}

// Decay recomputes every lesson's importance from its decay curve. It is
// idempotent per day and safe to run on every boot (spec §4.3).
func (s *Store) Decay(ctx context.Context) (int, error) {
	all, err := s.backend.ListLessons(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	changed := 0
	for _, l := range all {
		newImportance := l.DecayedImportance(now)
		if newImportance != l.Importance {
			l.Importance = newImportance
			if err := s.backend.UpdateLesson(ctx, l); err != nil {
				return changed, err
			}
			changed++
		}
	}
	return changed, nil
}

// Backend exposes the underlying storage for callers (orchestrator,
// curator) that need direct access beyond the Store's own operations.
func (s *Store) Backend() domain.KnowledgeStorage { return s.backend }
