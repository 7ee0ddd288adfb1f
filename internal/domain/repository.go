package domain

import "context"

// LessonStore persists the lesson corpus that backs retrieval (spec §4.1,
// §4.3). Implementations (in-memory with JSON snapshot, Postgres via bun)
// store the lesson as given; exact-text deduplication is done by
// knowledge.Store.Add before it reaches AddLesson.
type LessonStore interface {
	AddLesson(ctx context.Context, lesson Lesson) (Lesson, error)
	GetLesson(ctx context.Context, id int64) (Lesson, error)
	ListLessons(ctx context.Context) ([]Lesson, error)
	UpdateLesson(ctx context.Context, lesson Lesson) error
	DeleteLesson(ctx context.Context, id int64) error
	NextLessonID(ctx context.Context) (int64, error)
}

// SkillStore persists harvested callables, deduplicated by name.
type SkillStore interface {
	AddSkill(ctx context.Context, skill Skill) error
	ListSkills(ctx context.Context) ([]Skill, error)
}

// TestPatternStore persists learned (category, input-type, output-type)
// exemplars, deduplicated by TestPattern.Key.
type TestPatternStore interface {
	AddTestPattern(ctx context.Context, pattern TestPattern) error
	ListTestPatterns(ctx context.Context) ([]TestPattern, error)
}

// CurriculumStore persists the single global CurriculumState document.
type CurriculumStore interface {
	LoadCurriculum(ctx context.Context) (*CurriculumState, error)
	SaveCurriculum(ctx context.Context, state *CurriculumState) error
}

// CheckpointStore persists the resume marker the autonomous loop writes
// every CheckpointEveryN completed tasks (spec §6).
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	LoadCheckpoint(ctx context.Context) (*Checkpoint, error)
}

// EventStore is the append-only sink for ExecutionEvent, read by the
// websocket hub and REST status surface (spec §6).
type EventStore interface {
	AppendEvent(ctx context.Context, event ExecutionEvent) error
	GetEventsForTask(ctx context.Context, taskID string) ([]ExecutionEvent, error)
	GetRecentEvents(ctx context.Context, limit int) ([]ExecutionEvent, error)
}

// SessionStore persists per-task worker sessions for audit and replay.
type SessionStore interface {
	SaveSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessionsForTask(ctx context.Context, taskID string) ([]*Session, error)
}

// KnowledgeStorage is the unified persistence surface the knowledge
// package depends on. The in-memory store and the bun-backed Postgres
// store both satisfy it (spec §9: storage is swappable behind one seam).
type KnowledgeStorage interface {
	LessonStore
	SkillStore
	TestPatternStore
	CurriculumStore
	CheckpointStore
	EventStore
	SessionStore

	Ping(ctx context.Context) error
	Close() error
}

// Persistable is optionally satisfied by a KnowledgeStorage backend that
// snapshots its state to disk on a cadence rather than being durable on
// every write (spec §3, §6). Callers type-assert for it rather than
// requiring it on KnowledgeStorage, since the Postgres-backed store is
// already durable per-write and has nothing to snapshot.
type Persistable interface {
	Snapshot(ctx context.Context) error
}

// QueryOptions constrains a lesson retrieval query (spec §4.3's relevance
// query: category match, word overlap, importance threshold).
type QueryOptions struct {
	Category       Category
	MinImportance  int
	Limit          int
	QueryWords     []string
	HarvestedTools []string
}
