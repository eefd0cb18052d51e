package environment

import (
	"fmt"
	"sort"

	"github.com/aristath/disentangle/internal/modules/quantum"
)

// Observation encoding names.
const (
	ObsPhaseNorm     = "phase_norm"
	ObsRDMReal       = "rdm_2q_real"
	ObsRDMMeanReal   = "rdm_2q_mean_real"
	DefaultObsFnName = ObsRDMMeanReal
)

// ObservationFunc encodes one state as a flat real vector. Implementations
// must return fresh slices.
type ObservationFunc func(psi []complex128, numQubits int) []float64

var observations = map[string]ObservationFunc{
	ObsPhaseNorm:   phaseNormObservation,
	ObsRDMReal:     rdmObservation(false),
	ObsRDMMeanReal: rdmObservation(true),
}

// LookupObservation returns the encoding registered under name.
func LookupObservation(name string) (ObservationFunc, error) {
	fn, ok := observations[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown observation encoding %q", quantum.ErrUnsupportedConfiguration, name)
	}
	return fn, nil
}

// ObservationNames lists the registered encodings, sorted.
func ObservationNames() []string {
	names := make([]string, 0, len(observations))
	for name := range observations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ObservationSize returns the length of an encoded observation.
func ObservationSize(name string, numQubits int) (int, error) {
	if _, err := LookupObservation(name); err != nil {
		return 0, err
	}
	if name == ObsPhaseNorm {
		return 2 * quantum.Dim(numQubits), nil
	}
	return 32 * numQubits * (numQubits - 1) / 2, nil
}

// phaseNormObservation returns the real parts of the phase-normalized
// amplitudes followed by their imaginary parts.
func phaseNormObservation(psi []complex128, numQubits int) []float64 {
	s := quantum.PhaseNorm(psi)
	out := make([]float64, 2*len(s))
	for k, a := range s {
		out[k] = real(a)
		out[len(s)+k] = imag(a)
	}
	return out
}

// rdmObservation encodes every pair RDM as 16 real parts followed by 16
// imaginary parts, in action order. With symmetric set each RDM is replaced by
// (ρ + PρP)/2, which does not depend on the order of the pair.
func rdmObservation(symmetric bool) ObservationFunc {
	p := quantum.SwapGate()
	return func(psi []complex128, numQubits int) []float64 {
		rdms, err := quantum.RDMs(psi, numQubits)
		if err != nil {
			return nil
		}
		out := make([]float64, 0, 32*len(rdms))
		for _, rho := range rdms {
			if symmetric {
				swapped := rho.Conjugate(p)
				for k := range rho {
					rho[k] = (rho[k] + swapped[k]) / 2
				}
			}
			for _, v := range rho {
				out = append(out, real(v))
			}
			for _, v := range rho {
				out = append(out, imag(v))
			}
		}
		return out
	}
}
