package scheduler

import (
	"context"

	"github.com/aristath/disentangle/internal/modules/rollout"
)

// SuiteRunner runs the validation suites.
// Used by the self-check job to enable testing with mocks
type SuiteRunner interface {
	RunEquivalence(ctx context.Context, numQubits, trials int, seed uint64) (rollout.Report, error)
	RunNoise(ctx context.Context, levels []float64, steps int, seed uint64) (rollout.Report, error)
}

// ReportStore persists suite reports.
type ReportStore interface {
	SaveReport(rep rollout.Report) error
	SetArchiveKey(id, key string) error
}

// RunArchiver uploads suite reports. May be nil when archiving is disabled.
type RunArchiver interface {
	ArchiveRun(ctx context.Context, rep rollout.Report) (string, error)
}
