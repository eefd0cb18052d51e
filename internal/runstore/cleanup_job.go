package runstore

import (
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob removes runs older than the retention period.
// It should be scheduled to run daily.
type CleanupJob struct {
	repo      *Repository
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewCleanupJob creates a cleanup job. Retentions below MinRetention are
// raised to it.
func NewCleanupJob(repo *Repository, retention time.Duration, log zerolog.Logger) *CleanupJob {
	if retention < MinRetention {
		retention = MinRetention
	}
	return &CleanupJob{
		repo:      repo,
		retention: retention,
		now:       time.Now,
		log:       log.With().Str("job", "run_cleanup").Logger(),
	}
}

// Run deletes expired runs.
func (j *CleanupJob) Run() error {
	cutoff := j.now().Add(-j.retention)
	deleted, err := j.repo.DeleteOlderThan(cutoff)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired runs")
		return err
	}
	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Run cleanup completed")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "run_cleanup"
}
