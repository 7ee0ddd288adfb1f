// Command synthloop runs the autonomous code-synthesis loop: generate a
// task, fan it out across the worker pool, aggregate and refine the
// result, verify it by execution, and fold the outcome back into the
// persistent knowledge store (spec §1, §4.11).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/synthloom/core/internal/application/inference"
	"github.com/synthloom/core/internal/application/synth"
	"github.com/synthloom/core/internal/config"
	"github.com/synthloom/core/internal/domain"
	"github.com/synthloom/core/internal/infrastructure/api/status"
	"github.com/synthloom/core/internal/infrastructure/logger"
	"github.com/synthloom/core/internal/infrastructure/storage"
	"github.com/synthloom/core/internal/infrastructure/websocket"
	"github.com/synthloom/core/internal/knowledge"
)

func main() {
	pretty := flag.Bool("pretty", false, "pretty-print logs for interactive runs")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, *pretty)

	backend := openBackend(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := backend.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("storage backend not reachable at startup, continuing")
	}

	store := knowledge.NewStore(backend)
	orchestrator := knowledge.NewOrchestrator(store)
	curriculum := knowledge.NewCurriculum(store)
	registry := knowledge.NewToolRegistry()
	curator := knowledge.NewCurator(store, registry)
	learner := synth.NewLearner(store)

	client := inference.NewClient(inference.Config{
		BaseURL:        cfg.Inference.BaseURL,
		APIKey:         cfg.Inference.APIKey,
		ChatModel:      cfg.Inference.ChatModel,
		RequestTimeout: cfg.Inference.RequestTimeout,
	})

	executor := synth.NewExecutor("python3", cfg.WorkerPool.ExecutorTimeout)
	aggregator := synth.NewAggregator(registry)
	evaluator := synth.NewEvaluator(client, cfg.Inference.ManagementSlot)
	toolRunner := synth.NewFileToolRunner(cfg.DataDir, executor, cfg.WorkerPool.ExecutorTimeout)

	var events domain.EventStore = backend
	var hub *websocket.Hub
	if cfg.REST.Enabled {
		wsLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
		hub = websocket.NewHub(wsLogger)
		go hub.Run()
		events = websocket.NewBroadcastingEventStore(backend, hub)

		auth := authenticatorFor(cfg.REST.JWTSecret)
		statusServer := status.NewServer(backend, hub, auth, wsLogger)
		go func() {
			if err := status.Serve(ctx, ":"+cfg.REST.Port, statusServer, wsLogger); err != nil {
				log.Error().Err(err).Msg("status server exited with error")
			}
		}()
	}

	runner := synth.NewRunner(orchestrator, aggregator, evaluator, executor, curator, learner, toolRunner, client, registry, events, synth.RunnerConfig{
		WorkerCount:    cfg.WorkerPool.WorkerCount,
		Temperatures:   cfg.WorkerPool.Temperatures,
		ManagementSlot: cfg.Inference.ManagementSlot,
	})

	taskGen := synth.NewInferenceTaskGenerator(client, cfg.Inference.TaskGenSlot)

	loop := synth.NewAutonomousLoop(synth.AutonomousLoopConfig{
		StopSignalFile:      cfg.Autonomous.StopSignalFile,
		HealthCheckEveryN:   cfg.Autonomous.HealthCheckEveryN,
		CircuitBreakerMax:   cfg.Autonomous.CircuitBreakerMax,
		ContainerizedMode:   cfg.Autonomous.ContainerizedMode,
		CheckpointEveryN:    cfg.Autonomous.CheckpointEveryN,
		LoopSleep:           cfg.Autonomous.LoopSleep,
		HealthBlockedSleep:  cfg.Autonomous.HealthBlockedSleep,
		RestartFailSleep:    cfg.Autonomous.RestartFailSleep,
		WeaknessProbability: cfg.Curriculum.WeaknessProbability,
	}, client, runner, taskGen, curriculum, curator, backend, backend, cfg.Curator.TickEveryNTasks, log)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	log.Info().
		Str("inference_base_url", cfg.Inference.BaseURL).
		Int("worker_count", cfg.WorkerPool.WorkerCount).
		Str("database_dsn_set", presence(cfg.DatabaseDSN)).
		Msg("synthloop starting")

	if err := loop.Run(ctx); err != nil {
		log.Error().Err(err).Msg("autonomous loop exited with error")
		os.Exit(1)
	}
	log.Info().Msg("synthloop exited cleanly")
}

// openBackend selects the Postgres-backed store when a DSN is
// configured, else the JSON-file-backed in-memory store (spec §9:
// storage is swappable behind one seam).
func openBackend(cfg *config.Config) domain.KnowledgeStorage {
	if cfg.DatabaseDSN != "" {
		pg := storage.NewPostgresStore(cfg.DatabaseDSN)
		if err := pg.InitSchema(context.Background()); err != nil {
			panic("failed to initialize postgres schema: " + err.Error())
		}
		return pg
	}
	mem, err := storage.NewMemoryStoreFromSnapshot(cfg.Memory.SnapshotPath)
	if err != nil {
		panic("failed to load memory store snapshot: " + err.Error())
	}
	return mem
}

func presence(s string) string {
	if s == "" {
		return "no"
	}
	return "yes"
}

// authenticatorFor selects JWT auth when a secret is configured, else
// allows unauthenticated connections (spec §6: the status surface's
// auth is optional, off by default in single-operator deployments).
func authenticatorFor(secret string) websocket.Authenticator {
	if secret == "" {
		return websocket.NewNoAuth()
	}
	return websocket.NewJWTAuth(secret)
}
