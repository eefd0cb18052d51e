// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aristath/disentangle/internal/archive"
	"github.com/aristath/disentangle/internal/modules/environment"
	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the run store (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Defaults for new sessions.
	Qubits    int
	BatchSize int
	Policy    string
	ObsFn     string
	MaxSteps  int // 0 selects the per-size default
	Seed      uint64

	Tolerances quantum.Tolerances

	MaxSessions int
	SessionTTL  time.Duration

	SelfCheckSchedule string // cron spec with seconds; empty disables the job
	SelfCheckTrials   int
	Workers           int

	Archive archive.Config
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("QDE_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	tol := quantum.DefaultTolerances()
	tol.EntanglementThreshold = getEnvAsFloat("QDE_ENTANGLEMENT_THRESHOLD", tol.EntanglementThreshold)
	tol.NormTolerance = getEnvAsFloat("QDE_NORM_TOLERANCE", tol.NormTolerance)

	cfg := &Config{
		DataDir:           absDataDir,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnvAsInt("QDE_PORT", 8010),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		Qubits:            getEnvAsInt("QDE_QUBITS", 4),
		BatchSize:         getEnvAsInt("QDE_BATCH_SIZE", 1),
		Policy:            getEnv("QDE_POLICY", policy.Greedy),
		ObsFn:             getEnv("QDE_OBS_FN", environment.DefaultObsFnName),
		MaxSteps:          getEnvAsInt("QDE_MAX_STEPS", 0),
		Seed:              uint64(getEnvAsInt("QDE_SEED", 0)),
		Tolerances:        tol,
		MaxSessions:       getEnvAsInt("QDE_MAX_SESSIONS", 64),
		SessionTTL:        time.Duration(getEnvAsInt("QDE_SESSION_TTL_MINUTES", 30)) * time.Minute,
		SelfCheckSchedule: getEnv("QDE_SELF_CHECK_SCHEDULE", "0 0 3 * * *"),
		SelfCheckTrials:   getEnvAsInt("QDE_SELF_CHECK_TRIALS", 100),
		Workers:           getEnvAsInt("QDE_WORKERS", 4),
		Archive: archive.Config{
			Bucket:          getEnv("QDE_S3_BUCKET", ""),
			Region:          getEnv("QDE_S3_REGION", ""),
			Endpoint:        getEnv("QDE_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("QDE_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("QDE_S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("QDE_S3_PREFIX", "runs"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the simulator cannot run.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if err := quantum.ValidateQubits(c.Qubits); err != nil {
		return fmt.Errorf("QDE_QUBITS: %w", err)
	}
	if c.BatchSize < 1 || c.BatchSize > environment.MaxBatchSize {
		return fmt.Errorf("QDE_BATCH_SIZE must be in 1..%d, got %d", environment.MaxBatchSize, c.BatchSize)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("QDE_MAX_STEPS must not be negative, got %d", c.MaxSteps)
	}
	if _, err := environment.LookupObservation(c.ObsFn); err != nil {
		return fmt.Errorf("QDE_OBS_FN: %w", err)
	}
	if c.Policy != policy.Greedy && c.Policy != policy.Random {
		return fmt.Errorf("QDE_POLICY: %w: unknown policy %q", quantum.ErrUnsupportedConfiguration, c.Policy)
	}
	if c.Tolerances.EntanglementThreshold <= 0 {
		return fmt.Errorf("QDE_ENTANGLEMENT_THRESHOLD must be positive")
	}
	if c.Tolerances.NormTolerance <= 0 {
		return fmt.Errorf("QDE_NORM_TOLERANCE must be positive")
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("QDE_MAX_SESSIONS must be positive, got %d", c.MaxSessions)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("QDE_SESSION_TTL_MINUTES must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("QDE_WORKERS must be positive, got %d", c.Workers)
	}
	if c.SelfCheckSchedule != "" {
		if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(c.SelfCheckSchedule); err != nil {
			return fmt.Errorf("QDE_SELF_CHECK_SCHEDULE: %w", err)
		}
		if c.SelfCheckTrials < 1 {
			return fmt.Errorf("QDE_SELF_CHECK_TRIALS must be positive, got %d", c.SelfCheckTrials)
		}
	}
	if c.Archive.Enabled() && (c.Archive.AccessKeyID == "") != (c.Archive.SecretAccessKey == "") {
		return fmt.Errorf("QDE_S3_ACCESS_KEY_ID and QDE_S3_SECRET_ACCESS_KEY must be set together")
	}
	return nil
}

// DatabasePath returns the run store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "runs.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
