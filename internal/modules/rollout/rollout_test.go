package rollout

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/disentangle/internal/modules/oracle"
	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum"
)

func testRegistry() *policy.Registry {
	return policy.DefaultRegistry(rand.New(rand.NewPCG(7, 7)))
}

func greedy(t *testing.T, numQubits int) policy.Policy {
	t.Helper()
	p, err := policy.NewGreedy(numQubits)
	require.NoError(t, err)
	return p
}

func TestSimulatorRollout_BellBell(t *testing.T) {
	psi := quantum.Kron(quantum.BellPair(), quantum.BellPair())

	tr, err := SimulatorRollout(psi, greedy(t, 4), MaxSteps(4), zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, tr.Done)
	assert.Equal(t, []int{0, 5}, tr.Actions)
	assert.Equal(t, 2, tr.Steps())
	assert.Len(t, tr.States, 3)
	assert.Len(t, tr.Entanglements, 3)
	assert.Len(t, tr.Unitaries, 2)
	assert.True(t, quantum.IsDisentangled(tr.Entanglements[2], quantum.DefaultEntanglementThreshold))
}

func TestSimulatorRollout_AlreadyDisentangled(t *testing.T) {
	tr, err := SimulatorRollout(quantum.BasisState(4, 3), greedy(t, 4), MaxSteps(4), zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, tr.Done)
	assert.Zero(t, tr.Steps())
	assert.Len(t, tr.States, 1)
}

func TestSimulatorRollout_RespectsStepCap(t *testing.T) {
	psi := quantum.RandomState(5, rand.New(rand.NewPCG(1, 2)))
	tr, err := SimulatorRollout(psi, greedy(t, 5), 1, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Steps())
	assert.Len(t, tr.States, 2)
}

func TestOracleRollout_MatchesSimulator(t *testing.T) {
	reg := testRegistry()
	rng := rand.New(rand.NewPCG(11, 12))
	for _, l := range []int{4, 5} {
		o, err := oracle.New(l, reg)
		require.NoError(t, err)
		p, err := reg.Lookup(policy.Greedy, l)
		require.NoError(t, err)

		for trial := 0; trial < 5; trial++ {
			psi := quantum.PhaseNorm(quantum.RandomState(l, rng))
			simT, err := SimulatorRollout(psi, p, MaxSteps(l), zerolog.Nop())
			require.NoError(t, err)
			oraT, err := OracleRollout(o, psi, policy.Greedy, MaxSteps(l), quantum.DefaultEntanglementThreshold)
			require.NoError(t, err)

			cmp := Compare(simT, oraT, quantum.DefaultFidelityTolerance)
			if cmp.SameActions {
				assert.True(t, cmp.Passed, "L=%d trial %d min fidelity %f", l, trial, cmp.MinFidelity)
				assert.Equal(t, simT.Preswaps, oraT.Preswaps)
				assert.Equal(t, simT.Postswaps, oraT.Postswaps)
			}
		}
	}
}

func TestOracleRollout_UnknownPolicy(t *testing.T) {
	o, err := oracle.New(4, testRegistry())
	require.NoError(t, err)
	psi := quantum.Kron(quantum.BellPair(), quantum.BellPair())
	_, err = OracleRollout(o, psi, "transformer", 10, quantum.DefaultEntanglementThreshold)
	assert.ErrorIs(t, err, quantum.ErrUnsupportedConfiguration)
}

func TestCompare(t *testing.T) {
	a := Trajectory{
		States:  [][]complex128{quantum.BasisState(3, 0), quantum.BasisState(3, 1)},
		Actions: []int{1},
	}
	c := Compare(a, a, 1e-2)
	assert.True(t, c.SameActions)
	assert.True(t, c.Passed)
	assert.Equal(t, []float64{1, 1}, c.Fidelities)

	b := a
	b.Actions = []int{2}
	c = Compare(a, b, 1e-2)
	assert.False(t, c.SameActions)
	assert.False(t, c.Passed)

	b = a
	b.States = [][]complex128{quantum.BasisState(3, 0), quantum.BasisState(3, 2)}
	c = Compare(a, b, 1e-2)
	assert.True(t, c.SameActions)
	assert.False(t, c.Passed)
	assert.InDelta(t, 0, c.MinFidelity, 1e-12)

	c = Compare(Trajectory{}, Trajectory{}, 1e-2)
	assert.False(t, c.Passed)
}

func TestMarshalTrajectory(t *testing.T) {
	psi := quantum.Kron(quantum.BellPair(), quantum.BellPair())
	tr, err := SimulatorRollout(psi, greedy(t, 4), MaxSteps(4), zerolog.Nop())
	require.NoError(t, err)

	data, err := MarshalTrajectory(tr)
	require.NoError(t, err)
	got, err := UnmarshalTrajectory(data)
	require.NoError(t, err)
	assert.Equal(t, tr, got)

	_, err = UnmarshalTrajectory([]byte{0xc1})
	assert.Error(t, err)
}

func TestRunEquivalence(t *testing.T) {
	cases := []struct {
		qubits int
		trials int
	}{
		{4, 100},
		{5, 25},
		{6, 10},
	}
	suite := NewSuite(testRegistry(), 4, zerolog.Nop())
	for _, tc := range cases {
		report, err := suite.RunEquivalence(context.Background(), tc.qubits, tc.trials, uint64(tc.qubits))
		require.NoError(t, err)
		assert.Equal(t, tc.trials, report.Trials)
		assert.Len(t, report.Results, tc.trials)
		assert.NotEmpty(t, report.ID)
		assert.True(t, report.Passed(MinPassRate), "%d qubits: pass rate %.2f", tc.qubits, report.PassRate)
	}
}

func TestRunEquivalence_Deterministic(t *testing.T) {
	a, err := NewSuite(testRegistry(), 1, zerolog.Nop()).RunEquivalence(context.Background(), 4, 8, 3)
	require.NoError(t, err)
	b, err := NewSuite(testRegistry(), 4, zerolog.Nop()).RunEquivalence(context.Background(), 4, 8, 3)
	require.NoError(t, err)
	for k := range a.Results {
		assert.Equal(t, a.Results[k].Simulator.Actions, b.Results[k].Simulator.Actions)
	}
}

func TestRunEquivalence_UnsupportedQubits(t *testing.T) {
	_, err := NewSuite(testRegistry(), 2, zerolog.Nop()).RunEquivalence(context.Background(), 7, 1, 1)
	assert.ErrorIs(t, err, quantum.ErrUnsupportedConfiguration)
}

func TestRunAgreement(t *testing.T) {
	report, err := NewSuite(testRegistry(), 4, zerolog.Nop()).RunAgreement(context.Background(), 4, 100, 6, 44)
	require.NoError(t, err)
	assert.Equal(t, 100, report.Trials)
	assert.Equal(t, 0, report.Failed, "first failure: %+v", firstFailure(report))
	assert.InDelta(t, 1.0, report.MinFidelity, 1e-6)
	for _, r := range report.Results {
		assert.Equal(t, 6, r.Simulator.Steps())
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSuite(testRegistry(), 2, zerolog.Nop()).RunEquivalence(ctx, 4, 10, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewReport_Statistics(t *testing.T) {
	r := newReport(KindAgreement, 4, policy.Random, []TrialResult{
		{Passed: true, MinFidelity: 1},
		{Passed: true, MinFidelity: 0.9},
		{Passed: false, MinFidelity: 0.5},
		{Passed: true, MinFidelity: 0.8},
	})
	assert.Equal(t, 4, r.Trials)
	assert.Equal(t, 1, r.Failed)
	assert.InDelta(t, 0.75, r.PassRate, 1e-12)
	assert.InDelta(t, 0.8, r.MeanFidelity, 1e-12)
	assert.InDelta(t, 0.5, r.MinFidelity, 1e-12)
	assert.False(t, r.Passed(MinPassRate))
	assert.True(t, r.Passed(0.75))

	empty := newReport(KindAgreement, 4, policy.Random, nil)
	assert.False(t, empty.Passed(0))
}

func firstFailure(r Report) TrialResult {
	for _, res := range r.Results {
		if !res.Passed {
			return TrialResult{Index: res.Index, Reason: res.Reason}
		}
	}
	return TrialResult{}
}

func TestScaledTrials(t *testing.T) {
	assert.Equal(t, 100, ScaledTrials(4, 100))
	assert.Equal(t, 25, ScaledTrials(5, 100))
	assert.Equal(t, 10, ScaledTrials(6, 100))
	assert.Equal(t, 1, ScaledTrials(6, 4))
	assert.Equal(t, 1, ScaledTrials(5, 0))
}
