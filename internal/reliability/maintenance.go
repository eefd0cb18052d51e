package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/disentangle/internal/database"
)

// Free space thresholds for the data directory.
const (
	criticalFreeBytes = 500 << 20
	warnFreeBytes     = 5 << 30
)

// MaintenanceJob checks integrity, reclaims space and watches disk usage of
// the run store.
type MaintenanceJob struct {
	db      *database.DB
	dataDir string
	log     zerolog.Logger
	usage   func(path string) (*disk.UsageStat, error)
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:      db,
		dataDir: dataDir,
		log:     log.With().Str("job", "run_store_maintenance").Logger(),
		usage:   disk.Usage,
	}
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting run store maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("CRITICAL: Run store failed integrity check")
		return fmt.Errorf("integrity check: %w", err)
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if err := j.vacuum(); err != nil {
		j.log.Error().Err(err).Msg("VACUUM failed")
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Run store maintenance completed successfully")
	return nil
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "run_store_maintenance"
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := j.usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}
	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	switch {
	case usage.Free < criticalFreeBytes:
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("CRITICAL: only %.2f GB free", availableGB)
	case usage.Free < warnFreeBytes:
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}
	return nil
}

func (j *MaintenanceJob) vacuum() error {
	before, err := j.db.GetStats()
	if err != nil {
		return err
	}
	if _, err := j.db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}
	after, err := j.db.GetStats()
	if err != nil {
		return err
	}

	j.log.Info().
		Int64("pages_before", before.PageCount).
		Int64("pages_after", after.PageCount).
		Int64("reclaimed_bytes", (before.PageCount-after.PageCount)*before.PageSize).
		Msg("VACUUM completed")
	return nil
}
