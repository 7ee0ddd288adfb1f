// Package config loads the synthesis kernel's configuration from the
// environment (spec §2 ambient stack), with one nested struct per
// concern so each component constructor takes only the slice it needs.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the root configuration document for cmd/synthloop.
type Config struct {
	LogLevel    string
	DataDir     string
	DatabaseDSN string // optional; empty means use the JSON-file store

	Inference   InferenceConfig
	WorkerPool  WorkerPoolConfig
	Memory      MemoryConfig
	Curator     CuratorConfig
	Curriculum  CurriculumConfig
	Autonomous  AutonomousLoopConfig
	REST        RESTConfig
}

// InferenceConfig configures the backend conduit (spec §4.1, §6).
type InferenceConfig struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	RequestTimeout time.Duration
	ManagementSlot int // evaluator/memory-linking slot M
	TaskGenSlot    int // task-generation slot T
}

// WorkerPoolConfig sizes the fixed worker pool (spec §5: W == backend
// slot count).
type WorkerPoolConfig struct {
	WorkerCount     int
	Temperatures    []float64
	RefineRetries   int // R, default 2
	MaxIterations   int // refiner max_iterations, default 2-5
	ScoreThreshold  int // refiner score_threshold, default 15-23
	ExecutorTimeout time.Duration
}

// MemoryConfig tunes the knowledge store. SnapshotPath is where the
// in-memory backend periodically persists lessons/skills/test
// patterns/curriculum/checkpoint (spec §3, §6); empty disables
// persistence. Unused when DatabaseDSN selects the Postgres backend.
type MemoryConfig struct {
	RecentWindow int
	SnapshotPath string
}

// CuratorConfig sets the background maintenance cadence (spec §4.10).
type CuratorConfig struct {
	TickEveryNTasks int
}

// CurriculumConfig seeds curriculum behavior (spec §4.12).
type CurriculumConfig struct {
	WeaknessProbability float64 // 30% per spec
}

// AutonomousLoopConfig governs the outer driver (spec §4.11).
type AutonomousLoopConfig struct {
	StopSignalFile     string
	HealthCheckEveryN  int
	CircuitBreakerMax  int
	ContainerizedMode  bool
	CheckpointEveryN   int
	LoopSleep          time.Duration
	HealthBlockedSleep time.Duration
	RestartFailSleep   time.Duration
}

// RESTConfig configures the optional status/control surface (spec §6).
type RESTConfig struct {
	Enabled bool
	Port    string
	JWTSecret string
}

// Load reads Config from the environment, applying the defaults spec §6
// and §9 call out explicitly.
func Load() *Config {
	return &Config{
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DataDir:     getEnv("DATA_DIR", "./data"),
		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		Inference: InferenceConfig{
			BaseURL:        getEnv("INFERENCE_BASE_URL", "http://localhost:8081"),
			APIKey:         getEnv("INFERENCE_API_KEY", ""),
			ChatModel:      getEnv("INFERENCE_CHAT_MODEL", "default"),
			RequestTimeout: getDuration("INFERENCE_REQUEST_TIMEOUT", 300*time.Second),
			ManagementSlot: getInt("INFERENCE_MANAGEMENT_SLOT", 90),
			TaskGenSlot:    getInt("INFERENCE_TASKGEN_SLOT", 91),
		},
		WorkerPool: WorkerPoolConfig{
			WorkerCount:     getInt("WORKER_COUNT", 4),
			Temperatures:    []float64{0.2, 0.5, 0.8, 1.0},
			RefineRetries:   getInt("WORKER_REFINE_RETRIES", 2),
			MaxIterations:   getInt("REFINER_MAX_ITERATIONS", 3),
			ScoreThreshold:  getInt("REFINER_SCORE_THRESHOLD", 15),
			ExecutorTimeout: getDuration("EXECUTOR_TIMEOUT", 10*time.Second),
		},
		Memory: MemoryConfig{
			RecentWindow: getInt("MEMORY_RECENT_WINDOW", 50),
			SnapshotPath: getEnv("MEMORY_SNAPSHOT_PATH", "./data/agent_memory.json"),
		},
		Curator: CuratorConfig{
			TickEveryNTasks: getInt("CURATOR_TICK_EVERY_N", 5),
		},
		Curriculum: CurriculumConfig{
			WeaknessProbability: getFloat("CURRICULUM_WEAKNESS_PROBABILITY", 0.3),
		},
		Autonomous: AutonomousLoopConfig{
			StopSignalFile:     getEnv("STOP_SIGNAL_FILE", "./data/STOP"),
			HealthCheckEveryN:  getInt("HEALTH_CHECK_EVERY_N", 10),
			CircuitBreakerMax:  getInt("CIRCUIT_BREAKER_MAX_FAILURES", 5),
			ContainerizedMode:  getBool("CONTAINERIZED_MODE", true),
			CheckpointEveryN:   getInt("CHECKPOINT_EVERY_N", 5),
			LoopSleep:          getDuration("LOOP_SLEEP", 2*time.Second),
			HealthBlockedSleep: getDuration("HEALTH_BLOCKED_SLEEP", 10*time.Second),
			RestartFailSleep:   getDuration("RESTART_FAIL_SLEEP", 60*time.Second),
		},
		REST: RESTConfig{
			Enabled:   getBool("REST_ENABLED", true),
			Port:      getEnv("REST_PORT", "8080"),
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
