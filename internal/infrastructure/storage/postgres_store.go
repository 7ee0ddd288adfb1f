package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/synthloom/core/internal/domain"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PostgresStore is the relational implementation of
// domain.KnowledgeStorage (spec §4.3 persistence: "periodic snapshot of
// the entry list and the graph to two files... the store re-reads from
// disk on explicit reload()"). Selected in place of the JSON-file
// MemoryStore+snapshot pair when Config.DatabaseDSN is set,
// following the teacher's bun/pgdialect/pgdriver wiring (bun_store.go).
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresStore opens a bun.DB against dsn without connecting yet —
// the first query establishes the connection lazily, matching the
// teacher's NewBunStore.
func NewPostgresStore(dsn string) *PostgresStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &PostgresStore{db: db}
}

// InitSchema creates every table this store needs, idempotently.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	models := []interface{}{
		(*LessonModel)(nil),
		(*RelationModel)(nil),
		(*SkillModel)(nil),
		(*TestPatternModel)(nil),
		(*CurriculumModel)(nil),
		(*CheckpointModel)(nil),
		(*EventModelV2)(nil),
		(*SessionModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// LessonModel is the relational shape of domain.Lesson; its Relations
// are stored in the separate RelationModel table and reconciled on
// load, matching spec §3's "stored redundantly... eventual consistency
// within one process, reconciled on load" for the graph.
type LessonModel struct {
	bun.BaseModel `bun:"table:lessons,alias:l"`

	ID             int64     `bun:"id,pk"`
	LessonText     string    `bun:"lesson_text"`
	Category       string    `bun:"category"`
	Keywords       []string  `bun:"keywords,array"`
	SourceType     string    `bun:"source_type"`
	Tools          []string  `bun:"tools,array"`
	ErrorType      string    `bun:"error_type"`
	BaseImportance int       `bun:"base_importance"`
	Importance     int       `bun:"importance"`
	AccessCount    int       `bun:"access_count"`
	SuccessCount   int       `bun:"success_count"`
	FailCount      int       `bun:"fail_count"`
	CreatedAt      time.Time `bun:"created_at"`
	LastAccess     time.Time `bun:"last_access"`
}

// RelationModel is one outgoing edge of a lesson's relation graph
// (spec §3's "Relation Graph", stored redundantly with the entry's own
// link array — here the link array IS this table, queried per-lesson).
type RelationModel struct {
	bun.BaseModel `bun:"table:lesson_relations,alias:r"`

	FromID int64   `bun:"from_id,pk"`
	ToID   int64   `bun:"to_id,pk"`
	Weight float64 `bun:"weight"`
	Type   string  `bun:"type"`
}

func lessonToModel(l domain.Lesson) *LessonModel {
	return &LessonModel{
		ID:             l.ID,
		LessonText:     l.LessonText,
		Category:       string(l.Category),
		Keywords:       l.Keywords,
		SourceType:     string(l.SourceType),
		Tools:          l.Tools,
		ErrorType:      l.ErrorType,
		BaseImportance: l.BaseImportance,
		Importance:     l.Importance,
		AccessCount:    l.AccessCount,
		SuccessCount:   l.SuccessCount,
		FailCount:      l.FailCount,
		CreatedAt:      l.CreatedAt,
		LastAccess:     l.LastAccess,
	}
}

func (m *LessonModel) toDomain(relations []domain.Relation) domain.Lesson {
	return domain.Lesson{
		ID:             m.ID,
		LessonText:     m.LessonText,
		Category:       domain.Category(m.Category),
		Keywords:       m.Keywords,
		SourceType:     domain.SourceType(m.SourceType),
		Tools:          m.Tools,
		ErrorType:      m.ErrorType,
		BaseImportance: m.BaseImportance,
		Importance:     m.Importance,
		AccessCount:    m.AccessCount,
		SuccessCount:   m.SuccessCount,
		FailCount:      m.FailCount,
		CreatedAt:      m.CreatedAt,
		LastAccess:     m.LastAccess,
		Relations:      relations,
	}
}

func (s *PostgresStore) NextLessonID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	if err := s.db.NewSelect().Model((*LessonModel)(nil)).ColumnExpr("MAX(id)").Scan(ctx, &maxID); err != nil {
		return 0, err
	}
	return maxID.Int64 + 1, nil
}

func (s *PostgresStore) AddLesson(ctx context.Context, lesson domain.Lesson) (domain.Lesson, error) {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(lessonToModel(lesson)).Exec(ctx); err != nil {
			return err
		}
		return insertRelations(ctx, tx, lesson.ID, lesson.Relations)
	})
	return lesson, err
}

func insertRelations(ctx context.Context, tx bun.Tx, fromID int64, relations []domain.Relation) error {
	if len(relations) == 0 {
		return nil
	}
	models := make([]*RelationModel, len(relations))
	for i, r := range relations {
		models[i] = &RelationModel{FromID: fromID, ToID: r.ToID, Weight: r.Weight, Type: string(r.Type)}
	}
	_, err := tx.NewInsert().Model(&models).Exec(ctx)
	return err
}

func (s *PostgresStore) GetLesson(ctx context.Context, id int64) (domain.Lesson, error) {
	var model LessonModel
	if err := s.db.NewSelect().Model(&model).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Lesson{}, err
	}
	relations, err := s.relationsFor(ctx, id)
	if err != nil {
		return domain.Lesson{}, err
	}
	return model.toDomain(relations), nil
}

func (s *PostgresStore) relationsFor(ctx context.Context, fromID int64) ([]domain.Relation, error) {
	var models []RelationModel
	if err := s.db.NewSelect().Model(&models).Where("from_id = ?", fromID).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Relation, len(models))
	for i, m := range models {
		out[i] = domain.Relation{ToID: m.ToID, Weight: m.Weight, Type: domain.RelationType(m.Type)}
	}
	return out, nil
}

func (s *PostgresStore) ListLessons(ctx context.Context) ([]domain.Lesson, error) {
	var models []LessonModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, err
	}
	var allRelations []RelationModel
	if err := s.db.NewSelect().Model(&allRelations).Scan(ctx); err != nil {
		return nil, err
	}
	byFrom := make(map[int64][]domain.Relation)
	for _, r := range allRelations {
		byFrom[r.FromID] = append(byFrom[r.FromID], domain.Relation{ToID: r.ToID, Weight: r.Weight, Type: domain.RelationType(r.Type)})
	}
	out := make([]domain.Lesson, len(models))
	for i, m := range models {
		out[i] = m.toDomain(byFrom[m.ID])
	}
	return out, nil
}

func (s *PostgresStore) UpdateLesson(ctx context.Context, lesson domain.Lesson) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().Model(lessonToModel(lesson)).WherePK().Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*RelationModel)(nil)).Where("from_id = ?", lesson.ID).Exec(ctx); err != nil {
			return err
		}
		return insertRelations(ctx, tx, lesson.ID, lesson.Relations)
	})
}

func (s *PostgresStore) DeleteLesson(ctx context.Context, id int64) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*RelationModel)(nil)).Where("from_id = ? OR to_id = ?", id, id).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*LessonModel)(nil)).Where("id = ?", id).Exec(ctx)
		return err
	})
}

// SkillModel is the relational shape of domain.Skill; Name is unique,
// matching the store's "writes after first occurrence are silently
// ignored" invariant.
type SkillModel struct {
	bun.BaseModel `bun:"table:skills,alias:sk"`

	Name        string    `bun:"name,pk"`
	Parameters  []string  `bun:"parameters,array"`
	Source      string    `bun:"source"`
	Doc         string    `bun:"doc"`
	HarvestedAt time.Time `bun:"harvested_at"`
}

func (s *PostgresStore) AddSkill(ctx context.Context, skill domain.Skill) error {
	_, err := s.db.NewInsert().Model(&SkillModel{
		Name: skill.Name, Parameters: skill.Parameters, Source: skill.Source,
		Doc: skill.Doc, HarvestedAt: skill.HarvestedAt,
	}).On("CONFLICT (name) DO NOTHING").Exec(ctx)
	return err
}

func (s *PostgresStore) ListSkills(ctx context.Context) ([]domain.Skill, error) {
	var models []SkillModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Skill, len(models))
	for i, m := range models {
		out[i] = domain.Skill{Name: m.Name, Parameters: m.Parameters, Source: m.Source, Doc: m.Doc, HarvestedAt: m.HarvestedAt}
	}
	return out, nil
}

// TestPatternModel is the relational shape of domain.TestPattern,
// deduplicated by its (category, input_type, output_type) key.
type TestPatternModel struct {
	bun.BaseModel `bun:"table:test_patterns,alias:tp"`

	Key        string    `bun:"pattern_key,pk"`
	Category   string    `bun:"category"`
	InputType  string    `bun:"input_type"`
	OutputType string    `bun:"output_type"`
	ExampleIn  string    `bun:"example_in,type:jsonb"`
	ExampleOut string    `bun:"example_out,type:jsonb"`
	TaskHint   string    `bun:"task_hint"`
	LearnedAt  time.Time `bun:"learned_at"`
	UseCount   int       `bun:"use_count"`
}

func (s *PostgresStore) AddTestPattern(ctx context.Context, pattern domain.TestPattern) error {
	inJSON, outJSON := marshalJSONOrEmpty(pattern.ExampleIn), marshalJSONOrEmpty(pattern.ExampleOut)
	_, err := s.db.NewInsert().Model(&TestPatternModel{
		Key: pattern.Key(), Category: string(pattern.Category), InputType: pattern.InputType,
		OutputType: pattern.OutputType, ExampleIn: inJSON, ExampleOut: outJSON,
		TaskHint: pattern.TaskHint, LearnedAt: time.Now(), UseCount: 1,
	}).On("CONFLICT (pattern_key) DO UPDATE").Set("use_count = test_patterns.use_count + 1").Exec(ctx)
	return err
}

func (s *PostgresStore) ListTestPatterns(ctx context.Context) ([]domain.TestPattern, error) {
	var models []TestPatternModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.TestPattern, len(models))
	for i, m := range models {
		out[i] = domain.TestPattern{
			Category: domain.Category(m.Category), InputType: m.InputType, OutputType: m.OutputType,
			ExampleIn: unmarshalJSONOrNil(m.ExampleIn), ExampleOut: unmarshalJSONOrNil(m.ExampleOut),
			TaskHint: m.TaskHint, LearnedAt: m.LearnedAt, UseCount: m.UseCount,
		}
	}
	return out, nil
}

// CurriculumModel holds the single global curriculum document as a
// JSONB blob, since its shape (nested bounded counters/history) doesn't
// benefit from relational decomposition (spec §3).
type CurriculumModel struct {
	bun.BaseModel `bun:"table:curriculum,alias:c"`

	ID    int    `bun:"id,pk"`
	State string `bun:"state,type:jsonb"`
}

func (s *PostgresStore) LoadCurriculum(ctx context.Context) (*domain.CurriculumState, error) {
	var model CurriculumModel
	err := s.db.NewSelect().Model(&model).Where("id = 1").Scan(ctx)
	if err == sql.ErrNoRows {
		return domain.NewCurriculumState(), nil
	}
	if err != nil {
		return nil, err
	}
	state := domain.NewCurriculumState()
	if err := json.Unmarshal([]byte(model.State), state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *PostgresStore) SaveCurriculum(ctx context.Context, state *domain.CurriculumState) error {
	payload := marshalJSONOrEmpty(state)
	_, err := s.db.NewInsert().Model(&CurriculumModel{ID: 1, State: payload}).
		On("CONFLICT (id) DO UPDATE").Set("state = EXCLUDED.state").Exec(ctx)
	return err
}

// CheckpointModel holds the single resume marker (spec §3, §6).
type CheckpointModel struct {
	bun.BaseModel `bun:"table:checkpoints,alias:cp"`

	ID        int       `bun:"id,pk"`
	TaskCount int       `bun:"task_count"`
	LastTask  string    `bun:"last_task"`
	Timestamp time.Time `bun:"timestamp"`
	ProcessID int       `bun:"process_id"`
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp domain.Checkpoint) error {
	_, err := s.db.NewInsert().Model(&CheckpointModel{
		ID: 1, TaskCount: cp.TaskCount, LastTask: cp.LastTask, Timestamp: cp.Timestamp, ProcessID: cp.ProcessID,
	}).On("CONFLICT (id) DO UPDATE").
		Set("task_count = EXCLUDED.task_count").
		Set("last_task = EXCLUDED.last_task").
		Set("timestamp = EXCLUDED.timestamp").
		Set("process_id = EXCLUDED.process_id").
		Exec(ctx)
	return err
}

func (s *PostgresStore) LoadCheckpoint(ctx context.Context) (*domain.Checkpoint, error) {
	var model CheckpointModel
	if err := s.db.NewSelect().Model(&model).Where("id = 1").Scan(ctx); err != nil {
		return nil, err
	}
	return &domain.Checkpoint{TaskCount: model.TaskCount, LastTask: model.LastTask, Timestamp: model.Timestamp, ProcessID: model.ProcessID}, nil
}

// EventModelV2 is the relational shape of domain.ExecutionEvent.
type EventModelV2 struct {
	bun.BaseModel `bun:"table:synth_events,alias:ev"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Type        string    `bun:"type"`
	SessionID   string    `bun:"session_id"`
	TaskID      string    `bun:"task_id"`
	Timestamp   time.Time `bun:"timestamp"`
	WorkerIndex int       `bun:"worker_index"`
	Iteration   int       `bun:"iteration"`
	Status      string    `bun:"status"`
	Message     string    `bun:"message"`
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event domain.ExecutionEvent) error {
	_, err := s.db.NewInsert().Model(&EventModelV2{
		Type: string(event.Type), SessionID: event.SessionID, TaskID: event.TaskID,
		Timestamp: event.Timestamp, WorkerIndex: event.WorkerIndex, Iteration: event.Iteration,
		Status: event.Status, Message: event.Message,
	}).Exec(ctx)
	return err
}

func (s *PostgresStore) GetEventsForTask(ctx context.Context, taskID string) ([]domain.ExecutionEvent, error) {
	var models []EventModelV2
	if err := s.db.NewSelect().Model(&models).Where("task_id = ?", taskID).Order("timestamp ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return eventModelsToDomain(models), nil
}

func (s *PostgresStore) GetRecentEvents(ctx context.Context, limit int) ([]domain.ExecutionEvent, error) {
	var models []EventModelV2
	if err := s.db.NewSelect().Model(&models).Order("timestamp DESC").Limit(limit).Scan(ctx); err != nil {
		return nil, err
	}
	return eventModelsToDomain(models), nil
}

func eventModelsToDomain(models []EventModelV2) []domain.ExecutionEvent {
	out := make([]domain.ExecutionEvent, len(models))
	for i, m := range models {
		out[i] = domain.ExecutionEvent{
			Type: domain.EventType(m.Type), SessionID: m.SessionID, TaskID: m.TaskID,
			Timestamp: m.Timestamp, WorkerIndex: m.WorkerIndex, Iteration: m.Iteration,
			Status: m.Status, Message: m.Message,
		}
	}
	return out
}

// SessionModel persists domain.Session for audit/replay (spec §4.8's
// runner unit), storing the worker responses as a JSONB blob. GetSession
// and ListSessionsForTask restore the id, task ID and status only; the
// stored responses are not read back.
type SessionModel struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID        string    `bun:"id,pk"`
	TaskID    string    `bun:"task_id"`
	Status    string    `bun:"status"`
	Responses string    `bun:"responses,type:jsonb"`
	StartedAt time.Time `bun:"started_at"`
}

func (s *PostgresStore) SaveSession(ctx context.Context, session *domain.Session) error {
	payload := marshalJSONOrEmpty(session.Responses())
	_, err := s.db.NewInsert().Model(&SessionModel{
		ID: session.ID(), TaskID: session.TaskID(), Status: string(session.Status()), Responses: payload,
	}).On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("responses = EXCLUDED.responses").
		Exec(ctx)
	return err
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var model SessionModel
	if err := s.db.NewSelect().Model(&model).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	session := domain.NewSession(model.ID, model.TaskID)
	session.Finish(domain.SessionStatus(model.Status))
	return session, nil
}

func (s *PostgresStore) ListSessionsForTask(ctx context.Context, taskID string) ([]*domain.Session, error) {
	var models []SessionModel
	if err := s.db.NewSelect().Model(&models).Where("task_id = ?", taskID).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Session, len(models))
	for i, m := range models {
		session := domain.NewSession(m.ID, m.TaskID)
		session.Finish(domain.SessionStatus(m.Status))
		out[i] = session
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// marshalJSONOrEmpty serializes v for a jsonb column, falling back to "null"
// rather than propagating a marshal error — the values passed through here
// (curriculum state, test-pattern examples) are always plain Go data built
// from decoded literals, never cyclic or channel-bearing.
func marshalJSONOrEmpty(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// unmarshalJSONOrNil decodes a jsonb column back into an `any`, returning
// nil on an empty or malformed payload rather than erroring the whole row.
func unmarshalJSONOrNil(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	return v
}
