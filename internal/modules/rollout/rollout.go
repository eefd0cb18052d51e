package rollout

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/disentangle/internal/modules/environment"
	"github.com/aristath/disentangle/internal/modules/oracle"
	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum"
)

// SimulatorRollout runs psi through the environment, choosing actions with p
// from the pair RDMs, until the state is disentangled or maxSteps is reached.
func SimulatorRollout(psi []complex128, p policy.Policy, maxSteps int, log zerolog.Logger) (Trajectory, error) {
	numQubits, err := quantum.QubitsFor(psi)
	if err != nil {
		return Trajectory{}, err
	}
	env, err := environment.New(environment.Config{Qubits: numQubits, MaxSteps: maxSteps}, log)
	if err != nil {
		return Trajectory{}, err
	}
	if _, err := env.ResetWith([][]complex128{psi}); err != nil {
		return Trajectory{}, fmt.Errorf("failed to load initial state: %w", err)
	}
	sim := env.Simulator()

	t := Trajectory{Qubits: numQubits, Policy: p.Name()}
	done := sim.Done(0)
	for n := 0; !done && n < maxSteps; n++ {
		t.States = append(t.States, sim.State(0))
		t.Entanglements = append(t.Entanglements, sim.Entanglements()[0])

		a, err := p.SelectAction(env.RDMs(0))
		if err != nil {
			return Trajectory{}, fmt.Errorf("failed to select action: %w", err)
		}
		res, err := env.Step([]int{a}, false)
		if err != nil {
			return Trajectory{}, err
		}
		t.Actions = append(t.Actions, a)
		t.Unitaries = append(t.Unitaries, sim.Unitaries()[0])
		t.Preswaps = append(t.Preswaps, sim.Preswaps()[0])
		t.Postswaps = append(t.Postswaps, sim.Postswaps()[0])
		done = res.Done[0]
	}
	t.States = append(t.States, sim.State(0))
	t.Entanglements = append(t.Entanglements, sim.Entanglements()[0])
	t.Done = done
	return t, nil
}

// OracleRollout runs psi through the oracle: actions come from
// GetAction4Q, states advance with PeekNext4Q and are phase normalized.
func OracleRollout(o *oracle.Oracle, psi []complex128, policyName string, maxSteps int, threshold float64) (Trajectory, error) {
	s, err := quantum.Normalize(psi)
	if err != nil {
		return Trajectory{}, err
	}
	p := quantum.SwapGate()
	t := Trajectory{Qubits: o.NumQubits(), Policy: policyName}

	ent, err := o.GetEntanglements(s)
	if err != nil {
		return Trajectory{}, err
	}
	done := quantum.IsDisentangled(ent, threshold)
	for n := 0; !done && n < maxSteps; n++ {
		t.States = append(t.States, quantum.CloneState(s))
		t.Entanglements = append(t.Entanglements, ent)

		rdms, err := o.ObserveRDMs(s)
		if err != nil {
			return Trajectory{}, err
		}
		u, i, j, err := o.GetAction4Q(rdms, policyName)
		if err != nil {
			return Trajectory{}, err
		}
		pre, _ := o.GetPreswapGate(rdms, i, j)
		post, _ := o.GetPostswapGate(rdms, i, j)
		a, err := o.GetActionIndexFromIJ(rdms, i, j)
		if err != nil {
			return Trajectory{}, err
		}
		us, err := o.GetU(rdms, i, j, true, false)
		if err != nil {
			return Trajectory{}, err
		}

		next, nextEnt, _, err := o.PeekNext4Q(s, u, i, j)
		if err != nil {
			return Trajectory{}, err
		}
		t.Actions = append(t.Actions, a)
		t.Unitaries = append(t.Unitaries, us)
		t.Preswaps = append(t.Preswaps, pre == p)
		t.Postswaps = append(t.Postswaps, post == p)

		s, ent = quantum.PhaseNorm(next), nextEnt
		done = quantum.IsDisentangled(ent, threshold)
	}
	t.States = append(t.States, s)
	t.Entanglements = append(t.Entanglements, ent)
	t.Done = done
	return t, nil
}
