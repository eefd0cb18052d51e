package rollout

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/combin"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum"
)

// DefaultNoiseLevels are the standard deviations swept by RunNoise.
var DefaultNoiseLevels = []float64{0, 1e-10, 1e-8, 1e-7, 1e-6, 1e-5, 1e-4, 1e-3, 1e-2}

// MaxRequiredNoise is the largest noise level at which every episode must
// still finish. Failures above it are reported but tolerated.
const MaxRequiredNoise = 1e-4

// DefaultNoiseSteps caps each noisy episode.
const DefaultNoiseSteps = 5

// NoiseResult is the outcome of one noisy episode.
type NoiseResult struct {
	Level         float64   `json:"level"`
	Steps         int       `json:"steps"`
	Done          bool      `json:"done"`
	Entanglements []float64 `json:"entanglements"`
}

// addNoise perturbs every entry of every RDM with independent Gaussian noise
// on the real and imaginary parts.
func addNoise(rdms []quantum.Mat4, normal distuv.Normal) []quantum.Mat4 {
	out := make([]quantum.Mat4, len(rdms))
	for k, rho := range rdms {
		for e := range rho {
			out[k][e] = rho[e] + complex(normal.Rand(), normal.Rand())
		}
	}
	return out
}

// NoiseSweep evolves psi once per noise level. At every step the policy and
// the disentangling unitary see the pair RDMs with Gaussian noise of the
// level's standard deviation added, while the state itself evolves exactly.
// Each episode stops once the state is disentangled or after steps steps.
func NoiseSweep(psi []complex128, p policy.Policy, levels []float64, steps int, rng *rand.Rand) ([]NoiseResult, error) {
	numQubits, err := quantum.QubitsFor(psi)
	if err != nil {
		return nil, err
	}
	if p.NumQubits() != numQubits {
		return nil, fmt.Errorf("%w: policy %s is for %d qubits, state has %d", quantum.ErrUnsupportedConfiguration, p.Name(), p.NumQubits(), numQubits)
	}
	as, err := quantum.NewActionSpace(numQubits)
	if err != nil {
		return nil, err
	}

	out := make([]NoiseResult, 0, len(levels))
	for _, level := range levels {
		normal := distuv.Normal{Mu: 0, Sigma: level, Src: rng}
		s := quantum.CloneState(psi)
		res := NoiseResult{Level: level}
		res.Entanglements, err = quantum.PairEntropies(s, numQubits)
		if err != nil {
			return nil, err
		}
		res.Done = quantum.IsDisentangled(res.Entanglements, quantum.DefaultEntanglementThreshold)

		for !res.Done && res.Steps < steps {
			rdms, err := quantum.RDMs(s, numQubits)
			if err != nil {
				return nil, err
			}
			noisy := addNoise(rdms, normal)
			a, err := p.SelectAction(noisy)
			if err != nil {
				return nil, fmt.Errorf("failed to select action: %w", err)
			}
			i, j, err := as.Decode(a)
			if err != nil {
				return nil, err
			}
			dec, err := quantum.DecideSwaps(numQubits, i, j)
			if err != nil {
				return nil, err
			}
			g := quantum.GateMatrix(quantum.DisentanglingUnitary(noisy[a]), dec)
			peek, err := quantum.Peek(s, numQubits, g, i, j)
			if err != nil {
				return nil, err
			}
			s = peek.State
			res.Steps++
			res.Entanglements = peek.Entanglements
			res.Done = quantum.IsDisentangled(res.Entanglements, quantum.DefaultEntanglementThreshold)
		}
		out = append(out, res)
	}
	return out, nil
}

// BellPermutations returns |Φ+⟩⊗|Φ+⟩ under every relabelling of its four
// qubits, together with the permutations.
func BellPermutations() ([][]complex128, [][]int) {
	base := quantum.Kron(quantum.BellPair(), quantum.BellPair())
	perms := combin.Permutations(4, 4)
	states := make([][]complex128, len(perms))
	for k, perm := range perms {
		states[k], _ = quantum.TransposeQubits(base, 4, perm)
	}
	return states, perms
}

// RunNoise sweeps levels over every qubit permutation of |Φ+⟩⊗|Φ+⟩ with the
// greedy policy. A trial fails when an episode at a level up to
// MaxRequiredNoise does not finish within steps steps.
func (s *Suite) RunNoise(ctx context.Context, levels []float64, steps int, seed uint64) (Report, error) {
	p, err := s.policies.Lookup(policy.Greedy, 4)
	if err != nil {
		return Report{}, err
	}
	states, perms := BellPermutations()

	results, err := s.run(ctx, len(states), func(k int) TrialResult {
		rng := rand.New(rand.NewPCG(seed, uint64(k)))
		sweep, err := NoiseSweep(states[k], p, levels, steps, rng)
		if err != nil {
			return TrialResult{Reason: err.Error()}
		}
		res := TrialResult{Passed: true, MinFidelity: 1, Noise: sweep}
		for _, r := range sweep {
			if !r.Done && r.Level <= MaxRequiredNoise {
				res.Passed = false
				res.Reason = fmt.Sprintf("permutation %v did not finish at noise %g", perms[k], r.Level)
				break
			}
		}
		return res
	})
	if err != nil {
		return Report{}, err
	}
	report := newReport(KindNoise, 4, policy.Greedy, results)
	s.logReport(report)
	return report, nil
}
