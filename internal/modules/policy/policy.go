// Package policy provides action selection strategies for the disentangling
// environment and a registry keyed by qubit count.
package policy

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/aristath/disentangle/internal/modules/quantum"
)

// Policy names.
const (
	Greedy = "greedy"
	Random = "random"
)

// greedyTieTolerance treats gains this close as equal.
const greedyTieTolerance = 1e-9

// Policy maps the pair RDMs of a state (in action order) to an action index.
type Policy interface {
	Name() string
	NumQubits() int
	SelectAction(rdms []quantum.Mat4) (int, error)
}

func checkRDMs(as *quantum.ActionSpace, rdms []quantum.Mat4) error {
	if len(rdms) != as.NumActions() {
		return fmt.Errorf("%w: %d RDMs for %d qubits, want %d", quantum.ErrInvalidState, len(rdms), as.NumQubits(), as.NumActions())
	}
	return nil
}

// GreedyPolicy picks the pair whose disentangling unitary removes the most
// single-qubit entropy, S(i) + S(j) before minus after diagonalizing the pair
// RDM. The gain is computed from the RDM alone.
type GreedyPolicy struct {
	actions *quantum.ActionSpace
}

// NewGreedy creates a greedy policy for numQubits qubits.
func NewGreedy(numQubits int) (*GreedyPolicy, error) {
	as, err := quantum.NewActionSpace(numQubits)
	if err != nil {
		return nil, err
	}
	return &GreedyPolicy{actions: as}, nil
}

func (p *GreedyPolicy) Name() string   { return Greedy }
func (p *GreedyPolicy) NumQubits() int { return p.actions.NumQubits() }

// SelectAction returns the action with the largest gain; near ties go to the
// lowest index.
func (p *GreedyPolicy) SelectAction(rdms []quantum.Mat4) (int, error) {
	if err := checkRDMs(p.actions, rdms); err != nil {
		return 0, err
	}
	best, bestGain := 0, math.Inf(-1)
	for a, rho := range rdms {
		g := Gain(rho)
		if g > bestGain+greedyTieTolerance {
			best, bestGain = a, g
		}
	}
	return best, nil
}

// Gain returns S(i) + S(j) of the pair marginals minus the same sum after the
// disentangling unitary, which leaves the pair RDM diagonal with descending
// weights on |00⟩, |01⟩, |10⟩, |11⟩.
func Gain(rho quantum.Mat4) float64 {
	first, second := rho.Hermitize().QubitMarginals()
	before := quantum.QubitEntropy(first) + quantum.QubitEntropy(second)

	vals, _ := quantum.EigenHermitian(rho)
	after := binaryEntropy(vals[0]+vals[1]) + binaryEntropy(vals[0]+vals[2])
	return before - after
}

func binaryEntropy(p float64) float64 {
	var s float64
	for _, x := range []float64{p, 1 - p} {
		if x > 1e-12 {
			s -= x * math.Log(x)
		}
	}
	return s
}

// RandomPolicy draws actions uniformly from a seeded generator. It is safe for
// concurrent use.
type RandomPolicy struct {
	actions *quantum.ActionSpace
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewRandom creates a uniform policy.
func NewRandom(numQubits int, rng *rand.Rand) (*RandomPolicy, error) {
	as, err := quantum.NewActionSpace(numQubits)
	if err != nil {
		return nil, err
	}
	return &RandomPolicy{actions: as, rng: rng}, nil
}

func (p *RandomPolicy) Name() string   { return Random }
func (p *RandomPolicy) NumQubits() int { return p.actions.NumQubits() }

func (p *RandomPolicy) SelectAction(rdms []quantum.Mat4) (int, error) {
	if err := checkRDMs(p.actions, rdms); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.IntN(p.actions.NumActions()), nil
}

// Registry maps policy name and qubit count to a Policy.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]map[int]Policy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]map[int]Policy)}
}

// DefaultQubits are the register sizes the default registry serves.
var DefaultQubits = []int{4, 5, 6}

// DefaultRegistry registers the greedy and random policies for DefaultQubits.
func DefaultRegistry(rng *rand.Rand) *Registry {
	r := NewRegistry()
	for _, l := range DefaultQubits {
		g, _ := NewGreedy(l)
		r.Register(g)
		rp, _ := NewRandom(l, rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64())))
		r.Register(rp)
	}
	return r
}

// Register adds p under its name and qubit count, replacing any previous entry.
func (r *Registry) Register(p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byQubits, ok := r.policies[p.Name()]
	if !ok {
		byQubits = make(map[int]Policy)
		r.policies[p.Name()] = byQubits
	}
	byQubits[p.NumQubits()] = p
}

// Lookup returns the policy registered for name and numQubits.
func (r *Registry) Lookup(name string, numQubits int) (Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byQubits, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown policy %q", quantum.ErrUnsupportedConfiguration, name)
	}
	p, ok := byQubits[numQubits]
	if !ok {
		return nil, fmt.Errorf("%w: no policy available for %d qubits", quantum.ErrUnsupportedConfiguration, numQubits)
	}
	return p, nil
}

// Validate fails fast when name has no policy for numQubits.
func (r *Registry) Validate(name string, numQubits int) error {
	_, err := r.Lookup(name, numQubits)
	return err
}

// Names lists the registered policy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Qubits lists the register sizes served by name, sorted.
func (r *Registry) Qubits(name string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.policies[name]))
	for l := range r.policies[name] {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}
