// Package rollout drives trajectories through the simulator and the reference
// oracle, compares them and aggregates the results into reports.
package rollout

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/disentangle/internal/modules/quantum"
)

// Trajectory records one episode. States has one more entry than Actions:
// the initial state followed by the state after every step.
type Trajectory struct {
	Qubits        int            `json:"qubits"`
	Policy        string         `json:"policy"`
	States        [][]complex128 `json:"-"`
	Actions       []int          `json:"actions"`
	Entanglements [][]float64    `json:"entanglements"`
	Unitaries     []quantum.Mat4 `json:"-"`
	Preswaps      []bool         `json:"preswaps"`
	Postswaps     []bool         `json:"postswaps"`
	Done          bool           `json:"done"`
}

// Steps returns the number of actions taken.
func (t Trajectory) Steps() int { return len(t.Actions) }

// trajectoryWire is the msgpack layout. msgpack has no complex type, so
// complex values travel as interleaved real and imaginary parts.
type trajectoryWire struct {
	Qubits        int         `msgpack:"qubits"`
	Policy        string      `msgpack:"policy"`
	States        [][]float64 `msgpack:"states"`
	Actions       []int       `msgpack:"actions"`
	Entanglements [][]float64 `msgpack:"entanglements"`
	Unitaries     [][]float64 `msgpack:"unitaries"`
	Preswaps      []bool      `msgpack:"preswaps"`
	Postswaps     []bool      `msgpack:"postswaps"`
	Done          bool        `msgpack:"done"`
}

func interleave(v []complex128) []float64 {
	out := make([]float64, 2*len(v))
	for k, c := range v {
		out[2*k], out[2*k+1] = real(c), imag(c)
	}
	return out
}

func deinterleave(v []float64) []complex128 {
	out := make([]complex128, len(v)/2)
	for k := range out {
		out[k] = complex(v[2*k], v[2*k+1])
	}
	return out
}

// MarshalTrajectory encodes a trajectory with msgpack.
func MarshalTrajectory(t Trajectory) ([]byte, error) {
	w := trajectoryWire{
		Qubits:        t.Qubits,
		Policy:        t.Policy,
		Actions:       t.Actions,
		Entanglements: t.Entanglements,
		Preswaps:      t.Preswaps,
		Postswaps:     t.Postswaps,
		Done:          t.Done,
	}
	for _, s := range t.States {
		w.States = append(w.States, interleave(s))
	}
	for _, u := range t.Unitaries {
		w.Unitaries = append(w.Unitaries, interleave(u[:]))
	}
	data, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trajectory: %w", err)
	}
	return data, nil
}

// UnmarshalTrajectory decodes a trajectory written by MarshalTrajectory.
func UnmarshalTrajectory(data []byte) (Trajectory, error) {
	var w trajectoryWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Trajectory{}, fmt.Errorf("failed to unmarshal trajectory: %w", err)
	}
	t := Trajectory{
		Qubits:        w.Qubits,
		Policy:        w.Policy,
		Actions:       w.Actions,
		Entanglements: w.Entanglements,
		Preswaps:      w.Preswaps,
		Postswaps:     w.Postswaps,
		Done:          w.Done,
	}
	for _, s := range w.States {
		t.States = append(t.States, deinterleave(s))
	}
	for _, u := range w.Unitaries {
		if len(u) != 32 {
			return Trajectory{}, fmt.Errorf("failed to unmarshal trajectory: unitary with %d values", len(u))
		}
		var m quantum.Mat4
		copy(m[:], deinterleave(u))
		t.Unitaries = append(t.Unitaries, m)
	}
	return t, nil
}

// Comparison is the step-by-step comparison of two trajectories of the same
// initial state.
type Comparison struct {
	SameActions bool      `json:"same_actions"`
	Fidelities  []float64 `json:"fidelities"`
	MinFidelity float64   `json:"min_fidelity"`
	Passed      bool      `json:"passed"`
}

// Compare checks that a and b took the same actions and that their states
// stay within fidelity tolerance of each other at every step.
func Compare(a, b Trajectory, fidelityTolerance float64) Comparison {
	c := Comparison{SameActions: len(a.Actions) == len(b.Actions), MinFidelity: 1}
	if c.SameActions {
		for k := range a.Actions {
			if a.Actions[k] != b.Actions[k] {
				c.SameActions = false
				break
			}
		}
	}
	n := len(a.States)
	if len(b.States) < n {
		n = len(b.States)
	}
	for k := 0; k < n; k++ {
		f := quantum.Fidelity(a.States[k], b.States[k])
		c.Fidelities = append(c.Fidelities, f)
		if f < c.MinFidelity {
			c.MinFidelity = f
		}
	}
	if n == 0 {
		c.MinFidelity = 0
	}
	c.Passed = c.SameActions && c.MinFidelity >= 1-fidelityTolerance
	return c
}
