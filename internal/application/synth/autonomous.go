package synth

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/synthloom/core/internal/application/inference"
	"github.com/synthloom/core/internal/domain"
	"github.com/synthloom/core/internal/knowledge"
)

// TaskGenerator is the external task-generation front-end's interface
// to the core (spec §1 Out of scope: "its prompt engineering is not"
// specified, only its wire contract in spec §6). Text is the raw
// generator output parsed by ParseGeneratedTask.
type TaskGenerator interface {
	GenerateTask(ctx context.Context, difficulty int, targetCategory domain.Category) (text string, err error)
}

// AutonomousLoopConfig governs the outer driver (spec §4.11).
type AutonomousLoopConfig struct {
	StopSignalFile      string
	HealthCheckEveryN   int
	CircuitBreakerMax   int
	ContainerizedMode   bool
	CheckpointEveryN    int
	LoopSleep           time.Duration
	HealthBlockedSleep  time.Duration
	RestartFailSleep    time.Duration
	WeaknessProbability float64
}

// AutonomousLoop is the infinite outer driver (spec §4.11): health-gate,
// generate task, run the per-task pipeline, checkpoint.
type AutonomousLoop struct {
	cfg        AutonomousLoopConfig
	client     *inference.Client
	runner     *Runner
	taskGen    TaskGenerator
	curriculum *knowledge.Curriculum
	curator    *knowledge.Curator
	checkpoint domain.CheckpointStore
	skills     domain.SkillStore
	breaker    *CircuitBreaker
	log        zerolog.Logger

	taskCount            int
	sinceLastHealthCheck int
	sinceLastCheckpoint  int
	sinceLastCuratorTick int
	curatorTickEveryN    int
}

// NewAutonomousLoop assembles the outer driver from its collaborators.
func NewAutonomousLoop(cfg AutonomousLoopConfig, client *inference.Client, runner *Runner, taskGen TaskGenerator, curriculum *knowledge.Curriculum, curator *knowledge.Curator, checkpoint domain.CheckpointStore, skills domain.SkillStore, curatorTickEveryN int, log zerolog.Logger) *AutonomousLoop {
	return &AutonomousLoop{
		cfg:               cfg,
		client:            client,
		runner:            runner,
		taskGen:           taskGen,
		curriculum:        curriculum,
		curator:           curator,
		checkpoint:        checkpoint,
		skills:            skills,
		breaker:           NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: maxInt(cfg.CircuitBreakerMax, 1), SuccessThreshold: 2, Timeout: 60 * time.Second, MaxConcurrentRequests: 1}),
		log:               log,
		curatorTickEveryN: maxInt(curatorTickEveryN, 1),
	}
}

// Run executes the infinite loop until the stop signal file appears or
// ctx is cancelled (spec §4.11).
func (a *AutonomousLoop) Run(ctx context.Context) error {
	for {
		if a.stopSignalPresent() {
			a.log.Info().Msg("stop signal present, exiting autonomous loop")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !a.blockOnHealth(ctx) {
			continue
		}

		if err := a.tick(ctx); err != nil {
			a.log.Error().Err(err).Msg("task pipeline failed")
		}

		time.Sleep(a.cfg.LoopSleep)
	}
}

// stopSignalPresent checks for the sentinel file (spec §6).
func (a *AutonomousLoop) stopSignalPresent() bool {
	if a.cfg.StopSignalFile == "" {
		return false
	}
	_, err := os.Stat(a.cfg.StopSignalFile)
	return err == nil
}

// blockOnHealth polls backend health and sleeps without counting
// failures while blocked, so the system never "learns" from an
// unavailable-backend error (spec §4.11 step 2). Returns false when the
// caller should loop back to the top without running a task.
func (a *AutonomousLoop) blockOnHealth(ctx context.Context) bool {
	a.sinceLastHealthCheck++
	if a.sinceLastHealthCheck < a.cfg.HealthCheckEveryN && a.taskCount > 0 {
		return true
	}
	a.sinceLastHealthCheck = 0

	health := a.client.CheckHealth(ctx)
	if health.Reachable {
		return true
	}

	a.log.Warn().Msg("inference backend unreachable, blocking on health")
	time.Sleep(a.cfg.HealthBlockedSleep)
	return false
}

// tick runs one full iteration: circuit-breaker-gated task generation
// and pipeline execution, curriculum update, curator tick, and
// periodic checkpointing (spec §4.11 steps 3-8).
func (a *AutonomousLoop) tick(ctx context.Context) error {
	err := a.breaker.Execute(ctx, func() error {
		difficulty, category := a.pickCurriculumTarget(ctx)

		text, err := a.taskGen.GenerateTask(ctx, difficulty, category)
		if err != nil {
			return err
		}

		task := ParseGeneratedTask(nextTaskID(a.taskCount), text)

		skills, _ := a.skills.ListSkills(ctx)
		result, err := a.runner.Run(ctx, task, skills)
		if err != nil {
			return err
		}

		success := result.Score >= 15
		if _, err := a.curriculum.RecordOutcome(ctx, task.Category(), task.Difficulty(), success, float64(result.Score)); err != nil {
			a.log.Error().Err(err).Msg("curriculum update failed")
		}

		a.sinceLastCuratorTick++
		if a.sinceLastCuratorTick >= a.curatorTickEveryN {
			a.sinceLastCuratorTick = 0
			if _, err := a.curator.Tick(ctx); err != nil {
				a.log.Error().Err(err).Msg("curator tick failed")
			}
		}

		a.taskCount++
		a.sinceLastCheckpoint++
		if a.sinceLastCheckpoint >= a.cfg.CheckpointEveryN {
			a.sinceLastCheckpoint = 0
			cp := domain.NewCheckpoint(a.taskCount, task.ID(), os.Getpid())
			if err := a.checkpoint.SaveCheckpoint(ctx, cp); err != nil {
				a.log.Error().Err(err).Msg("checkpoint write failed")
			}
			if persistable, ok := a.checkpoint.(domain.Persistable); ok {
				if err := persistable.Snapshot(ctx); err != nil {
					a.log.Error().Err(err).Msg("memory store snapshot failed")
				}
			}
		}

		return nil
	})
	if err != nil {
		a.onCircuitFailure(ctx)
	}
	return err
}

// onCircuitFailure implements step 4's circuit breaker. tick calls it
// after every failed or rejected iteration; it acts only once the
// breaker itself has tripped (tracked via consecutive failures inside
// CircuitBreaker): containerized mode just resets and continues
// (external restart policy handles recovery); local mode re-checks
// backend health, resetting when the backend answers and sleeping
// RestartFailSleep when it does not. It never restarts the backend.
func (a *AutonomousLoop) onCircuitFailure(ctx context.Context) {
	if a.breaker.State() != StateOpen {
		return
	}
	if a.cfg.ContainerizedMode {
		a.breaker.Reset()
		return
	}
	health := a.client.CheckHealth(ctx)
	if health.Reachable {
		a.breaker.Reset()
		return
	}
	time.Sleep(a.cfg.RestartFailSleep)
}

// pickCurriculumTarget reads the current curriculum state and, with
// WeaknessProbability, targets the worst weakness category instead of
// the default general category (spec §4.12).
func (a *AutonomousLoop) pickCurriculumTarget(ctx context.Context) (int, domain.Category) {
	difficulty, err := a.curriculum.CurrentDifficulty(ctx)
	if err != nil || difficulty < 1 {
		difficulty = 1
	}

	weaknesses, err := a.curriculum.Weaknesses(ctx)
	if err != nil || len(weaknesses) == 0 || rand.Float64() >= a.cfg.WeaknessProbability {
		return difficulty, domain.CategoryGeneral
	}
	return difficulty, weaknesses[0].Category
}

func nextTaskID(count int) string {
	return "task-" + itoa(count+1)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
