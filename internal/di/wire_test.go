package di

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/disentangle/internal/config"
	"github.com/aristath/disentangle/internal/modules/environment"
	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir:           t.TempDir(),
		Port:              8010,
		Qubits:            4,
		BatchSize:         1,
		Policy:            policy.Greedy,
		ObsFn:             environment.DefaultObsFnName,
		Seed:              1,
		Tolerances:        quantum.DefaultTolerances(),
		MaxSessions:       4,
		SessionTTL:        time.Minute,
		SelfCheckSchedule: "0 0 3 * * *",
		SelfCheckTrials:   1,
		Workers:           2,
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.RunsDB)
	assert.NotNil(t, container.RunRepo)
	assert.NotNil(t, container.Suite)
	assert.NotNil(t, container.QuantumHandler)
	assert.Nil(t, container.Archiver)
	assert.Nil(t, container.Backups)
	assert.Equal(t, 4, container.Scheduler.Entries())

	require.Len(t, jobs.All(), 4)
	assert.Equal(t, "self_check", jobs.SelfCheck.Name())
	assert.Equal(t, "run_cleanup", jobs.RunCleanup.Name())
	assert.Equal(t, "check_wal_checkpoints", jobs.WALCheckpoints.Name())
	assert.Equal(t, "run_store_maintenance", jobs.Maintenance.Name())
	assert.Nil(t, jobs.Backup)

	_, err = container.Policies.Lookup(policy.Greedy, 6)
	assert.NoError(t, err)
}

func TestWire_SelfCheckDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.SelfCheckSchedule = ""

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.Equal(t, 3, container.Scheduler.Entries())
	assert.NotNil(t, jobs.SelfCheck)
}

func TestWire_ArchiveEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Bucket = "runs"
	cfg.Archive.Endpoint = "http://localhost:9000"
	cfg.Archive.AccessKeyID = "id"
	cfg.Archive.SecretAccessKey = "secret"

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })
	assert.NotNil(t, container.Archiver)
	assert.NotNil(t, container.Backups)
	require.NotNil(t, jobs.Backup)
	assert.Equal(t, "run_store_backup", jobs.Backup.Name())
	assert.Len(t, jobs.All(), 5)
}

func TestRegisterJobs_NilContainer(t *testing.T) {
	_, err := RegisterJobs(nil, testConfig(t), zerolog.Nop())
	assert.Error(t, err)
}
