package rollout

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/disentangle/internal/modules/environment"
	"github.com/aristath/disentangle/internal/modules/oracle"
	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum"
)

// Report kinds.
const (
	KindEquivalence = "equivalence"
	KindAgreement   = "agreement"
	KindNoise       = "noise"
)

// MinPassRate is the share of trajectories that must pass a suite.
const MinPassRate = 0.95

// SuiteQubits are the register sizes with trained policies, which the
// equivalence suite covers.
var SuiteQubits = []int{4, 5, 6}

// ScaledTrials returns the number of trials run at numQubits for a base
// count: all of them at 4 qubits, a quarter at 5 and a tenth beyond. At
// least one trial always runs.
func ScaledTrials(numQubits, trials int) int {
	share := 0.1
	switch {
	case numQubits <= 4:
		share = 1
	case numQubits == 5:
		share = 0.25
	}
	n := int(float64(trials) * share)
	if n < 1 {
		n = 1
	}
	return n
}

// MaxSteps returns the step cap used for rollouts of numQubits qubits.
func MaxSteps(numQubits int) int {
	return environment.DefaultMaxSteps(numQubits)
}

// TrialResult is the outcome of one trajectory of a suite.
type TrialResult struct {
	Index       int           `json:"index"`
	Passed      bool          `json:"passed"`
	MinFidelity float64       `json:"min_fidelity"`
	Reason      string        `json:"reason,omitempty"`
	Simulator   Trajectory    `json:"simulator"`
	Oracle      *Trajectory   `json:"oracle,omitempty"`
	Noise       []NoiseResult `json:"noise,omitempty"`
}

// Report aggregates a suite run.
type Report struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	Qubits       int           `json:"qubits"`
	Policy       string        `json:"policy"`
	Trials       int           `json:"trials"`
	Failed       int           `json:"failed"`
	PassRate     float64       `json:"pass_rate"`
	MeanFidelity float64       `json:"mean_fidelity"`
	MinFidelity  float64       `json:"min_fidelity"`
	CreatedAt    time.Time     `json:"created_at"`
	Results      []TrialResult `json:"-"`
}

// Passed reports whether the pass rate reaches min.
func (r Report) Passed(min float64) bool {
	return r.Trials > 0 && r.PassRate >= min
}

func newReport(kind string, numQubits int, policyName string, results []TrialResult) Report {
	r := Report{
		ID:        uuid.New().String(),
		Kind:      kind,
		Qubits:    numQubits,
		Policy:    policyName,
		Trials:    len(results),
		CreatedAt: time.Now().UTC(),
		Results:   results,
	}
	fids := make([]float64, 0, len(results))
	for _, res := range results {
		if !res.Passed {
			r.Failed++
		}
		fids = append(fids, res.MinFidelity)
	}
	if len(results) > 0 {
		r.PassRate = float64(r.Trials-r.Failed) / float64(r.Trials)
		r.MeanFidelity = stat.Mean(fids, nil)
		r.MinFidelity = floats.Min(fids)
	}
	return r
}

// Suite runs validation suites in parallel.
type Suite struct {
	policies *policy.Registry
	workers  int
	tol      quantum.Tolerances
	log      zerolog.Logger
}

// NewSuite creates a suite. workers bounds the number of trajectories
// evolved concurrently.
func NewSuite(policies *policy.Registry, workers int, log zerolog.Logger) *Suite {
	if workers < 1 {
		workers = 1
	}
	return &Suite{
		policies: policies,
		workers:  workers,
		tol:      quantum.DefaultTolerances(),
		log:      log.With().Str("component", "rollout_suite").Logger(),
	}
}

// SetTolerances replaces the comparison tolerances.
func (s *Suite) SetTolerances(t quantum.Tolerances) { s.tol = t }

// initialStates draws the suite's random states up front so results do not
// depend on scheduling.
func initialStates(numQubits, trials int, seed uint64) [][]complex128 {
	rng := rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5))
	out := make([][]complex128, trials)
	for k := range out {
		out[k] = quantum.PhaseNorm(quantum.RandomState(numQubits, rng))
	}
	return out
}

// run evaluates fn for every trial on the worker pool.
func (s *Suite) run(ctx context.Context, trials int, fn func(k int) TrialResult) ([]TrialResult, error) {
	results := make([]TrialResult, trials)
	p := pool.New().WithMaxGoroutines(s.workers)
	for k := 0; k < trials; k++ {
		k := k
		p.Go(func() {
			if ctx.Err() != nil {
				results[k] = TrialResult{Index: k, Reason: "cancelled"}
				return
			}
			results[k] = fn(k)
			results[k].Index = k
		})
	}
	p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunEquivalence evolves trials random states through the simulator and the
// oracle with the greedy policy and compares the trajectories.
func (s *Suite) RunEquivalence(ctx context.Context, numQubits, trials int, seed uint64) (Report, error) {
	return s.RunEquivalenceWith(ctx, policy.Greedy, numQubits, trials, seed)
}

// RunEquivalenceWith is RunEquivalence with a named deterministic policy.
func (s *Suite) RunEquivalenceWith(ctx context.Context, policyName string, numQubits, trials int, seed uint64) (Report, error) {
	p, err := s.policies.Lookup(policyName, numQubits)
	if err != nil {
		return Report{}, err
	}
	o, err := oracle.New(numQubits, s.policies)
	if err != nil {
		return Report{}, err
	}
	states := initialStates(numQubits, trials, seed)
	maxSteps := MaxSteps(numQubits)

	results, err := s.run(ctx, trials, func(k int) TrialResult {
		simT, err := SimulatorRollout(states[k], p, maxSteps, s.log)
		if err != nil {
			return TrialResult{Reason: err.Error()}
		}
		oraT, err := OracleRollout(o, states[k], policyName, maxSteps, s.tol.EntanglementThreshold)
		if err != nil {
			return TrialResult{Simulator: simT, Reason: err.Error()}
		}
		cmp := Compare(simT, oraT, s.tol.FidelityTolerance)
		res := TrialResult{Passed: cmp.Passed, MinFidelity: cmp.MinFidelity, Simulator: simT, Oracle: &oraT}
		switch {
		case !cmp.SameActions:
			res.Reason = "action sequences differ"
		case !cmp.Passed:
			res.Reason = fmt.Sprintf("fidelity %.6f below tolerance", cmp.MinFidelity)
		}
		return res
	})
	if err != nil {
		return Report{}, err
	}
	report := newReport(KindEquivalence, numQubits, policyName, results)
	s.logReport(report)
	return report, nil
}

// RunAgreement drives trials random states with uniformly random actions for
// steps steps and checks at every step that the oracle reproduces the
// simulator's swap flags, unitary and next state.
func (s *Suite) RunAgreement(ctx context.Context, numQubits, trials, steps int, seed uint64) (Report, error) {
	o, err := oracle.New(numQubits, s.policies)
	if err != nil {
		return Report{}, err
	}
	as, err := quantum.NewActionSpace(numQubits)
	if err != nil {
		return Report{}, err
	}
	states := initialStates(numQubits, trials, seed)
	actions := make([][]int, trials)
	rng := rand.New(rand.NewPCG(seed^0x2545f4914f6cdd1d, seed))
	for k := range actions {
		actions[k] = make([]int, steps)
		for n := range actions[k] {
			actions[k][n] = rng.IntN(as.NumActions())
		}
	}

	results, err := s.run(ctx, trials, func(k int) TrialResult {
		return s.agreementTrial(o, states[k], actions[k])
	})
	if err != nil {
		return Report{}, err
	}
	report := newReport(KindAgreement, numQubits, policy.Random, results)
	s.logReport(report)
	return report, nil
}

func (s *Suite) agreementTrial(o *oracle.Oracle, psi []complex128, actions []int) TrialResult {
	numQubits := o.NumQubits()
	sim, err := quantum.NewSimulator(numQubits, 1, s.log)
	if err != nil {
		return TrialResult{Reason: err.Error()}
	}
	sim.SetTolerances(s.tol)
	if err := sim.SetStates([][]complex128{psi}); err != nil {
		return TrialResult{Reason: err.Error()}
	}
	swap := quantum.SwapGate()
	t := Trajectory{Qubits: numQubits, Policy: policy.Random}
	res := TrialResult{Passed: true, MinFidelity: 1}
	fail := func(step int, what string) {
		if res.Passed {
			res.Passed = false
			res.Reason = fmt.Sprintf("step %d: %s", step, what)
		}
	}

	for n, a := range actions {
		cur := sim.State(0)
		t.States = append(t.States, cur)
		t.Entanglements = append(t.Entanglements, sim.Entanglements()[0])

		rdms, err := o.ObserveRDMs(cur)
		if err != nil {
			return TrialResult{Reason: err.Error()}
		}
		i, j, err := sim.ActionSpace().Decode(a)
		if err != nil {
			return TrialResult{Reason: err.Error()}
		}
		if err := sim.Apply([]int{a}); err != nil {
			return TrialResult{Reason: err.Error()}
		}
		t.Actions = append(t.Actions, a)
		t.Unitaries = append(t.Unitaries, sim.Unitaries()[0])
		t.Preswaps = append(t.Preswaps, sim.Preswaps()[0])
		t.Postswaps = append(t.Postswaps, sim.Postswaps()[0])

		pre, _ := o.GetPreswapGate(rdms, i, j)
		post, _ := o.GetPostswapGate(rdms, i, j)
		us, _ := o.GetU(rdms, i, j, true, false)
		g, _ := o.GetU(rdms, i, j, true, true)
		next, ent, _, err := o.PeekNext4Q(cur, g, i, j)
		if err != nil {
			return TrialResult{Reason: err.Error()}
		}

		if (pre == swap) != sim.Preswaps()[0] {
			fail(n, "preswap differs")
		}
		if (post == swap) != sim.Postswaps()[0] {
			fail(n, "postswap differs")
		}
		if d := us.MaxAbsDiff(sim.Unitaries()[0]); d > s.tol.UnitaryTolerance {
			fail(n, fmt.Sprintf("unitary differs by %.3g", d))
		}
		f := quantum.Fidelity(next, sim.State(0))
		res.MinFidelity = min(res.MinFidelity, f)
		if f < 1-s.tol.FidelityTolerance {
			fail(n, fmt.Sprintf("peek fidelity %.6f", f))
		}
		simEnt := sim.Entanglements()[0]
		for k := range ent {
			if d := ent[k] - simEnt[k]; d > s.tol.EntropyTolerance || d < -s.tol.EntropyTolerance {
				fail(n, "peek entanglement differs")
				break
			}
		}
	}
	t.States = append(t.States, sim.State(0))
	t.Entanglements = append(t.Entanglements, sim.Entanglements()[0])
	t.Done = sim.Done(0)
	res.Simulator = t
	return res
}

func (s *Suite) logReport(r Report) {
	ev := s.log.Info()
	if !r.Passed(MinPassRate) {
		ev = s.log.Error()
	}
	ev.Str("run_id", r.ID).
		Str("kind", r.Kind).
		Int("qubits", r.Qubits).
		Int("trials", r.Trials).
		Int("failed", r.Failed).
		Float64("pass_rate", r.PassRate).
		Float64("min_fidelity", r.MinFidelity).
		Msg("Rollout suite finished")
}
