package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/disentangle/internal/config"
	"github.com/aristath/disentangle/internal/reliability"
	"github.com/aristath/disentangle/internal/runstore"
	"github.com/aristath/disentangle/internal/scheduler"
)

const (
	runCleanupSchedule     = "0 30 4 * * *"
	walCheckpointsSchedule = "0 */30 * * * *"
	maintenanceSchedule    = "0 0 2 * * *"
	backupSchedule         = "0 0 5 * * 0"
)

// RegisterJobs creates the background jobs and schedules them.
// Returns JobInstances for manual triggering via API
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}
	instances := &JobInstances{}

	// A nil *Archiver must not become a non-nil interface.
	var archiver scheduler.RunArchiver
	if container.Archiver != nil {
		archiver = container.Archiver
	}
	selfCheck := scheduler.NewSelfCheckJob(container.Suite, container.RunRepo, archiver, cfg.SelfCheckTrials)
	selfCheck.SetLogger(log)
	instances.SelfCheck = selfCheck
	if cfg.SelfCheckSchedule != "" {
		if err := container.Scheduler.AddJob(cfg.SelfCheckSchedule, selfCheck); err != nil {
			return nil, fmt.Errorf("failed to schedule self-check: %w", err)
		}
	}

	cleanup := runstore.NewCleanupJob(container.RunRepo, runstore.RetentionSelfCheck, log)
	instances.RunCleanup = cleanup
	if err := container.Scheduler.AddJob(runCleanupSchedule, cleanup); err != nil {
		return nil, fmt.Errorf("failed to schedule run cleanup: %w", err)
	}

	wal := scheduler.NewCheckWALCheckpointsJob(container.RunsDB)
	wal.SetLogger(log)
	instances.WALCheckpoints = wal
	if err := container.Scheduler.AddJob(walCheckpointsSchedule, wal); err != nil {
		return nil, fmt.Errorf("failed to schedule WAL checkpoints: %w", err)
	}

	maintenance := reliability.NewMaintenanceJob(container.RunsDB, cfg.DataDir, log)
	instances.Maintenance = maintenance
	if err := container.Scheduler.AddJob(maintenanceSchedule, maintenance); err != nil {
		return nil, fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	if container.Backups != nil {
		backup := reliability.NewBackupJob(container.Backups)
		instances.Backup = backup
		if err := container.Scheduler.AddJob(backupSchedule, backup); err != nil {
			return nil, fmt.Errorf("failed to schedule backup: %w", err)
		}
	}

	log.Info().Int("scheduled", container.Scheduler.Entries()).Msg("Jobs registered")
	return instances, nil
}
