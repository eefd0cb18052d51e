package di

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/disentangle/internal/archive"
	"github.com/aristath/disentangle/internal/config"
	"github.com/aristath/disentangle/internal/modules/environment"
	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum/handlers"
	"github.com/aristath/disentangle/internal/modules/rollout"
	"github.com/aristath/disentangle/internal/reliability"
	"github.com/aristath/disentangle/internal/runstore"
	"github.com/aristath/disentangle/internal/scheduler"
)

// InitializeServices creates repositories and services on top of the
// container's databases.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.RunsDB == nil {
		return fmt.Errorf("container has no run store")
	}

	container.RunRepo = runstore.NewRepository(container.RunsDB.Conn())

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	container.Policies = policy.DefaultRegistry(rand.New(rand.NewPCG(seed, seed>>1|1)))

	container.Suite = rollout.NewSuite(container.Policies, cfg.Workers, log)
	container.Suite.SetTolerances(cfg.Tolerances)

	if cfg.Archive.Enabled() {
		uploader, err := archive.NewS3Uploader(ctx, cfg.Archive)
		if err != nil {
			return fmt.Errorf("failed to create archive uploader: %w", err)
		}
		container.Archiver = archive.NewArchiver(uploader, cfg.Archive.Prefix, log)
		container.Backups = reliability.NewBackupService(container.RunsDB, uploader, cfg.Archive.Prefix, "", log)
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Run archiving enabled")
	}

	container.Sessions = handlers.NewSessionStore(cfg.MaxSessions, log)
	container.QuantumHandler = handlers.NewHandler(
		container.Sessions,
		container.Policies,
		container.Suite,
		container.RunRepo,
		environment.Config{
			Qubits:     cfg.Qubits,
			BatchSize:  cfg.BatchSize,
			MaxSteps:   cfg.MaxSteps,
			ObsFn:      cfg.ObsFn,
			Seed:       cfg.Seed,
			Tolerances: cfg.Tolerances,
		},
		log,
	)
	container.QuantumHandler.SetDefaultPolicy(cfg.Policy)

	container.Scheduler = scheduler.New(log)
	return nil
}
