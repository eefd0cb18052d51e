package runstore

import "time"

// Retention periods. Runs older than these are removed by CleanupJob.
const (
	// Scheduled self-check runs.
	RetentionSelfCheck = 30 * 24 * time.Hour
	// Minimum accepted retention.
	MinRetention = time.Hour
)
