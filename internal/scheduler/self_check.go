package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/disentangle/internal/modules/rollout"
)

// SelfCheckJob re-runs the equivalence and noise suites and stores the
// reports. A suite below the pass rate is a regression.
type SelfCheckJob struct {
	log      zerolog.Logger
	suites   SuiteRunner
	store    ReportStore
	archiver RunArchiver
	trials   int
	timeout  time.Duration
	seed     func() uint64
}

// NewSelfCheckJob creates a self-check job. archiver may be nil.
func NewSelfCheckJob(suites SuiteRunner, store ReportStore, archiver RunArchiver, trials int) *SelfCheckJob {
	return &SelfCheckJob{
		log:      zerolog.Nop(),
		suites:   suites,
		store:    store,
		archiver: archiver,
		trials:   trials,
		timeout:  30 * time.Minute,
		seed:     func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// SetLogger sets the logger for the job
func (j *SelfCheckJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *SelfCheckJob) Name() string {
	return "self_check"
}

// Run executes every suite. All suites run even when one regresses; the
// returned error lists the regressions.
func (j *SelfCheckJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	seed := j.seed()
	var regressions []string

	for _, numQubits := range rollout.SuiteQubits {
		rep, err := j.suites.RunEquivalence(ctx, numQubits, rollout.ScaledTrials(numQubits, j.trials), seed)
		if err != nil {
			return fmt.Errorf("equivalence suite for %d qubits: %w", numQubits, err)
		}
		if !j.record(ctx, rep) {
			regressions = append(regressions, fmt.Sprintf("%s/%dq", rep.Kind, rep.Qubits))
		}
	}

	rep, err := j.suites.RunNoise(ctx, rollout.DefaultNoiseLevels, rollout.DefaultNoiseSteps, seed)
	if err != nil {
		return fmt.Errorf("noise suite: %w", err)
	}
	if !j.record(ctx, rep) {
		regressions = append(regressions, rep.Kind)
	}

	if len(regressions) > 0 {
		return fmt.Errorf("self-check regressions: %v", regressions)
	}
	j.log.Info().Uint64("seed", seed).Msg("Self-check passed")
	return nil
}

// record stores and archives a report and reports whether it passed. Storage
// failures are logged and do not count as regressions.
func (j *SelfCheckJob) record(ctx context.Context, rep rollout.Report) bool {
	if err := j.store.SaveReport(rep); err != nil {
		j.log.Error().Err(err).Str("run_id", rep.ID).Msg("Failed to store report")
	} else if j.archiver != nil {
		key, err := j.archiver.ArchiveRun(ctx, rep)
		if err != nil {
			j.log.Warn().Err(err).Str("run_id", rep.ID).Msg("Failed to archive report")
		} else if err := j.store.SetArchiveKey(rep.ID, key); err != nil {
			j.log.Warn().Err(err).Str("run_id", rep.ID).Msg("Failed to record archive key")
		}
	}

	if !rep.Passed(rollout.MinPassRate) {
		j.log.Error().
			Str("run_id", rep.ID).
			Str("kind", rep.Kind).
			Int("qubits", rep.Qubits).
			Float64("pass_rate", rep.PassRate).
			Msg("Self-check regression")
		return false
	}
	return true
}
