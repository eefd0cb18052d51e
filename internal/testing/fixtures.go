package testing

import (
	"time"

	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum"
	"github.com/aristath/disentangle/internal/modules/rollout"
)

// BellBellState returns two Bell pairs on qubits (0,1) and (2,3).
func BellBellState() []complex128 {
	return quantum.Kron(quantum.BellPair(), quantum.BellPair())
}

// NewTrajectoryFixture returns a short three-qubit trajectory with one
// preswapped step.
func NewTrajectoryFixture() rollout.Trajectory {
	return rollout.Trajectory{
		Qubits:        3,
		Policy:        policy.Greedy,
		States:        [][]complex128{quantum.BasisState(3, 0), quantum.BasisState(3, 5)},
		Actions:       []int{2},
		Entanglements: [][]float64{{0.5, 0, 0}, {0, 0, 0}},
		Unitaries:     []quantum.Mat4{quantum.SwapGate()},
		Preswaps:      []bool{true},
		Postswaps:     []bool{false},
		Done:          true,
	}
}

// NewReportFixture returns an equivalence report with one passing and one
// failing trial.
func NewReportFixture(id string, createdAt time.Time) rollout.Report {
	return rollout.Report{
		ID:           id,
		Kind:         rollout.KindEquivalence,
		Qubits:       3,
		Policy:       policy.Greedy,
		Trials:       2,
		Failed:       1,
		PassRate:     0.5,
		MeanFidelity: 0.9,
		MinFidelity:  0.8,
		CreatedAt:    createdAt,
		Results: []rollout.TrialResult{
			{Index: 0, Passed: true, MinFidelity: 1, Simulator: NewTrajectoryFixture()},
			{Index: 1, Passed: false, MinFidelity: 0.8, Reason: "action sequences differ", Simulator: NewTrajectoryFixture()},
		},
	}
}
