package quantum

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"

	"github.com/rs/zerolog"
)

// Simulator evolves a batch of independent L-qubit states under pair actions.
// Every slot starts in |0...0⟩. Getters return copies, so callers never alias
// the internal buffers. A Simulator must not be mutated concurrently.
type Simulator struct {
	numQubits int
	actions   *ActionSpace
	tol       Tolerances
	log       zerolog.Logger

	states    [][]complex128
	scores    [][]float64
	unitaries []Mat4
	preswaps  []bool
	postswaps []bool
	lastPairs [][2]int
	drift     int
}

// NewSimulator creates a simulator with batch slots of numQubits qubits.
func NewSimulator(numQubits, batch int, log zerolog.Logger) (*Simulator, error) {
	actions, err := NewActionSpace(numQubits)
	if err != nil {
		return nil, err
	}
	if batch < 1 {
		return nil, fmt.Errorf("%w: batch size %d", ErrUnsupportedConfiguration, batch)
	}
	s := &Simulator{
		numQubits: numQubits,
		actions:   actions,
		tol:       DefaultTolerances(),
		log:       log.With().Str("component", "simulator").Int("qubits", numQubits).Logger(),
		states:    make([][]complex128, batch),
		scores:    make([][]float64, batch),
		unitaries: make([]Mat4, batch),
		preswaps:  make([]bool, batch),
		postswaps: make([]bool, batch),
		lastPairs: make([][2]int, batch),
	}
	for b := range s.states {
		s.load(b, BasisState(numQubits, 0))
	}
	return s, nil
}

// SetTolerances replaces the tolerances used for termination and drift checks.
func (s *Simulator) SetTolerances(t Tolerances) { s.tol = t }

// Tolerances returns the active tolerances.
func (s *Simulator) Tolerances() Tolerances { return s.tol }

// NumQubits returns L.
func (s *Simulator) NumQubits() int { return s.numQubits }

// BatchSize returns the number of slots.
func (s *Simulator) BatchSize() int { return len(s.states) }

// ActionSpace returns the pair table shared by all slots.
func (s *Simulator) ActionSpace() *ActionSpace { return s.actions }

// SetRandomStates replaces every slot with a fresh Haar-random state.
func (s *Simulator) SetRandomStates(rng *rand.Rand) {
	for b := range s.states {
		s.SetRandomState(b, rng)
	}
}

// SetRandomState replaces slot b with a fresh Haar-random state.
func (s *Simulator) SetRandomState(b int, rng *rand.Rand) {
	s.load(b, RandomState(s.numQubits, rng))
}

// SetStates replaces every slot. States are normalized and phase normalized
// on the way in; the caller's slices are not retained.
func (s *Simulator) SetStates(states [][]complex128) error {
	if len(states) != len(s.states) {
		return fmt.Errorf("%w: %d states for batch of %d", ErrInvalidState, len(states), len(s.states))
	}
	normalized := make([][]complex128, len(states))
	for b, psi := range states {
		if err := ValidateState(psi, s.numQubits); err != nil {
			return fmt.Errorf("slot %d: %w", b, err)
		}
		n, err := Normalize(psi)
		if err != nil {
			return fmt.Errorf("slot %d: %w", b, err)
		}
		normalized[b] = n
	}
	for b, psi := range normalized {
		s.load(b, psi)
	}
	return nil
}

// SetState replaces slot b.
func (s *Simulator) SetState(b int, psi []complex128) error {
	if err := s.checkSlot(b); err != nil {
		return err
	}
	if err := ValidateState(psi, s.numQubits); err != nil {
		return err
	}
	n, err := Normalize(psi)
	if err != nil {
		return err
	}
	s.load(b, n)
	return nil
}

func (s *Simulator) load(b int, psi []complex128) {
	s.states[b] = PhaseNorm(psi)
	s.scores[b] = Entropies(allRDMs(s.states[b], s.numQubits))
	s.unitaries[b] = Identity4()
	s.preswaps[b] = false
	s.postswaps[b] = false
	s.lastPairs[b] = [2]int{-1, -1}
}

func (s *Simulator) checkSlot(b int) error {
	if b < 0 || b >= len(s.states) {
		return fmt.Errorf("%w: slot %d outside batch of %d", ErrInvalidState, b, len(s.states))
	}
	return nil
}

// Apply performs one step on every slot, actions[b] acting on slot b. All
// actions are validated before any slot is touched.
func (s *Simulator) Apply(actions []int) error {
	if len(actions) != len(s.states) {
		return fmt.Errorf("%w: %d actions for batch of %d", ErrInvalidAction, len(actions), len(s.states))
	}
	for _, a := range actions {
		if _, _, err := s.actions.Decode(a); err != nil {
			return err
		}
	}
	for b, a := range actions {
		s.step(b, a)
	}
	return nil
}

// ApplySlot performs one step on slot b only.
func (s *Simulator) ApplySlot(b, action int) error {
	if err := s.checkSlot(b); err != nil {
		return err
	}
	if _, _, err := s.actions.Decode(action); err != nil {
		return err
	}
	s.step(b, action)
	return nil
}

func (s *Simulator) step(b, action int) {
	i, j, _ := s.actions.Decode(action)
	psi := s.states[b]

	u := DisentanglingUnitary(pairRDM(psi, s.numQubits, i, j))
	dec := decideSwaps(s.numQubits, i, j)
	g := GateMatrix(u, dec)

	next := PhaseNorm(applyOnAxes(psi, s.numQubits, g[:], []int{dec.First, dec.Second}))
	rdms := allRDMs(next, s.numQubits)

	s.states[b] = next
	s.scores[b] = Entropies(rdms)
	s.unitaries[b] = CanonicalUnitary(u, dec)
	s.preswaps[b] = dec.Preswap
	s.postswaps[b] = dec.Postswap
	s.lastPairs[b] = [2]int{i, j}

	s.checkDrift(b, next, rdms)
}

// checkDrift logs and counts norm or trace deviations. Drift is never fatal.
func (s *Simulator) checkDrift(b int, psi []complex128, rdms []Mat4) {
	if d := math.Abs(Norm(psi) - 1); d > s.tol.NormTolerance {
		s.drift++
		s.log.Warn().Int("slot", b).Float64("deviation", d).Msg("State norm drifted")
	}
	for k, r := range rdms {
		if d := cmplx.Abs(r.Trace() - 1); d > s.tol.TraceTolerance {
			s.drift++
			s.log.Warn().Int("slot", b).Int("action", k).Float64("deviation", d).Msg("RDM trace drifted")
			return
		}
	}
}

// DriftEvents returns the number of drift warnings raised so far.
func (s *Simulator) DriftEvents() int { return s.drift }

// States returns copies of every slot.
func (s *Simulator) States() [][]complex128 {
	out := make([][]complex128, len(s.states))
	for b, psi := range s.states {
		out[b] = CloneState(psi)
	}
	return out
}

// State returns a copy of slot b.
func (s *Simulator) State(b int) []complex128 {
	return CloneState(s.states[b])
}

// Entanglements returns the pair scores of every slot.
func (s *Simulator) Entanglements() [][]float64 {
	out := make([][]float64, len(s.scores))
	for b, sc := range s.scores {
		out[b] = append([]float64(nil), sc...)
	}
	return out
}

// RDMs returns the current pair RDMs of slot b.
func (s *Simulator) RDMs(b int) []Mat4 {
	return allRDMs(s.states[b], s.numQubits)
}

// Unitaries returns the last unitary of every slot in the gate frame
// (CanonicalUnitary). Slots that have not stepped hold the identity.
func (s *Simulator) Unitaries() []Mat4 {
	return append([]Mat4(nil), s.unitaries...)
}

// Preswaps returns the preswap flag of the last step of every slot.
func (s *Simulator) Preswaps() []bool {
	return append([]bool(nil), s.preswaps...)
}

// Postswaps returns the postswap flag of the last step of every slot.
func (s *Simulator) Postswaps() []bool {
	return append([]bool(nil), s.postswaps...)
}

// LastPairs returns the pair acted on by the last step of every slot, or
// (-1, -1) for slots that have not stepped.
func (s *Simulator) LastPairs() [][2]int {
	return append([][2]int(nil), s.lastPairs...)
}

// Done reports whether every pair score of slot b is below the threshold.
func (s *Simulator) Done(b int) bool {
	return IsDisentangled(s.scores[b], s.tol.EntanglementThreshold)
}
