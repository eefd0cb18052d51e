package quantum

// Named tolerances. Tests and configuration override them through Tolerances.
const (
	// DefaultEntanglementThreshold is the pair entropy below which a pair counts
	// as disentangled.
	DefaultEntanglementThreshold = 1e-3

	// DefaultNormTolerance bounds |‖ψ‖ - 1| before a drift warning is logged.
	DefaultNormTolerance = 1e-5

	// DefaultTraceTolerance bounds |tr ρ - 1| for pair RDMs before a drift warning.
	DefaultTraceTolerance = 1e-5

	// DefaultFidelityTolerance is the largest accepted 1 - F between two evolution
	// paths of the same trajectory.
	DefaultFidelityTolerance = 1e-2

	// DefaultUnitaryTolerance is the element-wise tolerance for comparing gates.
	DefaultUnitaryTolerance = 1e-7

	// DefaultEntropyTolerance is the element-wise tolerance for comparing
	// entanglement scores produced by different evolution paths.
	DefaultEntropyTolerance = 1e-5

	// PhaseCutoff is the smallest amplitude modulus used as the phase reference.
	PhaseCutoff = 1e-7

	// MinQubits and MaxQubits bound the supported register sizes.
	MinQubits = 3
	MaxQubits = 16

	// eigenFloor drops eigenvalues this small from entropy sums.
	eigenFloor = 1e-12
)

// Tolerances groups every numeric tolerance used by the simulator.
type Tolerances struct {
	EntanglementThreshold float64
	NormTolerance         float64
	TraceTolerance        float64
	FidelityTolerance     float64
	UnitaryTolerance      float64
	EntropyTolerance      float64
}

// DefaultTolerances returns the package defaults.
func DefaultTolerances() Tolerances {
	return Tolerances{
		EntanglementThreshold: DefaultEntanglementThreshold,
		NormTolerance:         DefaultNormTolerance,
		TraceTolerance:        DefaultTraceTolerance,
		FidelityTolerance:     DefaultFidelityTolerance,
		UnitaryTolerance:      DefaultUnitaryTolerance,
		EntropyTolerance:      DefaultEntropyTolerance,
	}
}
