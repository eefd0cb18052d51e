// Package di provides dependency injection type definitions.
package di

import (
	"github.com/aristath/disentangle/internal/archive"
	"github.com/aristath/disentangle/internal/database"
	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum/handlers"
	"github.com/aristath/disentangle/internal/modules/rollout"
	"github.com/aristath/disentangle/internal/reliability"
	"github.com/aristath/disentangle/internal/runstore"
	"github.com/aristath/disentangle/internal/scheduler"
)

// Container holds every long-lived dependency of the server.
type Container struct {
	// Databases
	RunsDB *database.DB

	// Repositories
	RunRepo *runstore.Repository

	// Services
	Policies       *policy.Registry
	Suite          *rollout.Suite
	Archiver       *archive.Archiver          // nil when archiving is disabled
	Backups        *reliability.BackupService // nil when archiving is disabled
	Sessions       *handlers.SessionStore
	QuantumHandler *handlers.Handler
	Scheduler      *scheduler.Scheduler
}

// JobInstances holds job references for manual triggering via API
type JobInstances struct {
	SelfCheck      scheduler.Job
	RunCleanup     scheduler.Job
	WALCheckpoints scheduler.Job
	Maintenance    scheduler.Job
	Backup         scheduler.Job // nil when archiving is disabled
}

// All returns every job instance.
func (j *JobInstances) All() []scheduler.Job {
	jobs := []scheduler.Job{j.SelfCheck, j.RunCleanup, j.WALCheckpoints, j.Maintenance}
	if j.Backup != nil {
		jobs = append(jobs, j.Backup)
	}
	return jobs
}

// Close releases the container's resources.
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.RunsDB != nil {
		return c.RunsDB.Close()
	}
	return nil
}
