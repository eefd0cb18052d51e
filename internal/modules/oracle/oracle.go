// Package oracle is an independent reference for the disentangling
// simulator. It recomputes RDMs with explicit partial traces, walks the qubit
// ring explicitly to route gates and applies peeks through a dense operator
// on the full register. Only the 4x4 matrix type, the Hermitian eigensolver
// and the phase convention are shared with the simulator.
package oracle

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/aristath/disentangle/internal/modules/policy"
	"github.com/aristath/disentangle/internal/modules/quantum"
)

// MaxDenseQubits bounds the register size for dense peeks.
const MaxDenseQubits = 10

// Oracle answers reference queries for one register size.
type Oracle struct {
	numQubits int
	pairs     [][2]int
	policies  *policy.Registry
}

// New creates an oracle for numQubits qubits. policies backs GetAction4Q.
func New(numQubits int, policies *policy.Registry) (*Oracle, error) {
	if numQubits < quantum.MinQubits || numQubits > MaxDenseQubits {
		return nil, fmt.Errorf("%w: oracle supports %d..%d qubits, got %d", quantum.ErrUnsupportedConfiguration, quantum.MinQubits, MaxDenseQubits, numQubits)
	}
	o := &Oracle{numQubits: numQubits, policies: policies}
	for i := 0; i < numQubits-1; i++ {
		for j := i + 1; j < numQubits; j++ {
			o.pairs = append(o.pairs, [2]int{i, j})
		}
	}
	return o, nil
}

// NumQubits returns L.
func (o *Oracle) NumQubits() int { return o.numQubits }

func (o *Oracle) bit(s, q int) int {
	return (s >> (o.numQubits - 1 - q)) & 1
}

func (o *Oracle) checkState(psi []complex128) error {
	if len(psi) != 1<<o.numQubits {
		return fmt.Errorf("%w: length %d for %d qubits", quantum.ErrInvalidState, len(psi), o.numQubits)
	}
	return nil
}

func (o *Oracle) checkPair(i, j int) error {
	if i < 0 || j < 0 || i >= o.numQubits || j >= o.numQubits || i == j {
		return fmt.Errorf("%w: pair (%d, %d) on %d qubits", quantum.ErrInvalidAction, i, j, o.numQubits)
	}
	return nil
}

func (o *Oracle) checkRDMs(rdms []quantum.Mat4) error {
	if len(rdms) != len(o.pairs) {
		return fmt.Errorf("%w: %d RDMs, want %d", quantum.ErrInvalidState, len(rdms), len(o.pairs))
	}
	return nil
}

// ObserveRDMs returns the pair RDMs of psi for every pair i < j, computed as
// explicit sums of |ψ⟩⟨ψ| over the traced-out basis states.
func (o *Oracle) ObserveRDMs(psi []complex128) ([]quantum.Mat4, error) {
	if err := o.checkState(psi); err != nil {
		return nil, err
	}
	out := make([]quantum.Mat4, len(o.pairs))
	for k, p := range o.pairs {
		out[k] = o.partialTrace(psi, p[0], p[1])
	}
	return out, nil
}

func (o *Oracle) partialTrace(psi []complex128, i, j int) quantum.Mat4 {
	var rho quantum.Mat4
	mask := 1<<(o.numQubits-1-i) | 1<<(o.numQubits-1-j)
	for s := range psi {
		if psi[s] == 0 {
			continue
		}
		r := 2*o.bit(s, i) + o.bit(s, j)
		for bi := 0; bi < 2; bi++ {
			for bj := 0; bj < 2; bj++ {
				t := s &^ mask
				t |= bi << (o.numQubits - 1 - i)
				t |= bj << (o.numQubits - 1 - j)
				rho[4*r+2*bi+bj] += psi[s] * cmplx.Conj(psi[t])
			}
		}
	}
	return rho
}

// GetEntanglements returns the von Neumann entropy of every pair RDM.
func (o *Oracle) GetEntanglements(psi []complex128) ([]float64, error) {
	rdms, err := o.ObserveRDMs(psi)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rdms))
	for k, rho := range rdms {
		vals, _ := quantum.EigenHermitian(rho)
		for _, v := range vals {
			if v > 1e-12 {
				out[k] -= v * math.Log(v)
			}
		}
		out[k] = math.Max(out[k], 0)
	}
	return out, nil
}

// GetActionIndexFromIJ returns the action index of the pair {i, j}.
func (o *Oracle) GetActionIndexFromIJ(rdms []quantum.Mat4, i, j int) (int, error) {
	if err := o.checkRDMs(rdms); err != nil {
		return 0, err
	}
	if err := o.checkPair(i, j); err != nil {
		return 0, err
	}
	for k, p := range o.pairs {
		if (p[0] == i && p[1] == j) || (p[0] == j && p[1] == i) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: pair (%d, %d)", quantum.ErrInvalidAction, i, j)
}

// route walks the ring in both directions between i and j and returns the
// gate-frame order of the pair.
func (o *Oracle) route(i, j int) (first, second int) {
	forward := 0
	for q := i; q != j; q = (q + 1) % o.numQubits {
		forward++
	}
	backward := 0
	for q := j; q != i; q = (q + 1) % o.numQubits {
		backward++
	}
	switch {
	case forward < backward:
		return i, j
	case backward < forward:
		return j, i
	case i < j:
		return i, j
	default:
		return j, i
	}
}

// window returns the ring window [c0, first, second, c1] of a gate on (i, j).
func (o *Oracle) window(i, j int) []int {
	first, second := o.route(i, j)
	used := map[int]bool{first: true, second: true}
	w := []int{}
	q := first
	for n := 0; n < o.numQubits; n++ {
		q = (q - 1 + o.numQubits) % o.numQubits
		if !used[q] {
			w = append(w, q)
			used[q] = true
			break
		}
	}
	w = append(w, first, second)
	q = second
	for n := 0; n < o.numQubits; n++ {
		q = (q + 1) % o.numQubits
		if !used[q] {
			w = append(w, q)
			break
		}
	}
	return w
}

// GetPreswapGate returns the swap gate when the pair must be exchanged into
// gate order before the unitary, and the identity otherwise.
func (o *Oracle) GetPreswapGate(rdms []quantum.Mat4, i, j int) (quantum.Mat4, error) {
	if err := o.checkRDMs(rdms); err != nil {
		return quantum.Mat4{}, err
	}
	if err := o.checkPair(i, j); err != nil {
		return quantum.Mat4{}, err
	}
	if first, _ := o.route(i, j); first != i {
		return quantum.SwapGate(), nil
	}
	return quantum.Identity4(), nil
}

// GetPostswapGate returns the swap gate when the pair is not adjacent in axis
// order, and the identity otherwise.
func (o *Oracle) GetPostswapGate(rdms []quantum.Mat4, i, j int) (quantum.Mat4, error) {
	if err := o.checkRDMs(rdms); err != nil {
		return quantum.Mat4{}, err
	}
	if err := o.checkPair(i, j); err != nil {
		return quantum.Mat4{}, err
	}
	if j != i+1 && i != j+1 {
		return quantum.SwapGate(), nil
	}
	return quantum.Identity4(), nil
}

// GetU returns the disentangling unitary of the pair (i, j). The base unitary
// is V† for the eigenvectors V of the pair RDM in (i, j) order. applyPreswap
// conjugates it with the preswap gate, applyPostswap left-multiplies the
// postswap gate.
func (o *Oracle) GetU(rdms []quantum.Mat4, i, j int, applyPreswap, applyPostswap bool) (quantum.Mat4, error) {
	a, err := o.GetActionIndexFromIJ(rdms, i, j)
	if err != nil {
		return quantum.Mat4{}, err
	}
	rho := rdms[a]
	if i > j {
		p := quantum.SwapGate()
		rho = p.Mul(rho).Mul(p)
	}
	_, v := quantum.EigenHermitian(rho)
	u := v.Dagger()

	if applyPreswap {
		pre, err := o.GetPreswapGate(rdms, i, j)
		if err != nil {
			return quantum.Mat4{}, err
		}
		u = pre.Mul(u).Mul(pre)
	}
	if applyPostswap {
		post, err := o.GetPostswapGate(rdms, i, j)
		if err != nil {
			return quantum.Mat4{}, err
		}
		u = post.Mul(u)
	}
	return u, nil
}

// GetAction4Q selects a pair with the named policy and returns the gate to
// pass to PeekNext4Q together with the pair.
func (o *Oracle) GetAction4Q(rdms []quantum.Mat4, policyName string) (quantum.Mat4, int, int, error) {
	if err := o.checkRDMs(rdms); err != nil {
		return quantum.Mat4{}, 0, 0, err
	}
	if o.policies == nil {
		return quantum.Mat4{}, 0, 0, fmt.Errorf("%w: oracle has no policies", quantum.ErrUnsupportedConfiguration)
	}
	p, err := o.policies.Lookup(policyName, o.numQubits)
	if err != nil {
		return quantum.Mat4{}, 0, 0, err
	}
	a, err := p.SelectAction(rdms)
	if err != nil {
		return quantum.Mat4{}, 0, 0, fmt.Errorf("failed to select action: %w", err)
	}
	if a < 0 || a >= len(o.pairs) {
		return quantum.Mat4{}, 0, 0, fmt.Errorf("%w: policy returned %d", quantum.ErrInvalidAction, a)
	}
	i, j := o.pairs[a][0], o.pairs[a][1]
	u, err := o.GetU(rdms, i, j, true, true)
	if err != nil {
		return quantum.Mat4{}, 0, 0, err
	}
	return u, i, j, nil
}

// PeekNext4Q applies the gate u (gate frame) for the pair (i, j) through the
// dense 2^L x 2^L operator I⊗u⊗I built on the pair's window. It returns the
// next state, its pair entropies and its pair RDMs.
func (o *Oracle) PeekNext4Q(psi []complex128, u quantum.Mat4, i, j int) ([]complex128, []float64, []quantum.Mat4, error) {
	if err := o.checkState(psi); err != nil {
		return nil, nil, nil, err
	}
	if err := o.checkPair(i, j); err != nil {
		return nil, nil, nil, err
	}
	op := o.denseOperator(u, o.window(i, j))

	dim := len(psi)
	next := make([]complex128, dim)
	for r := 0; r < dim; r++ {
		var acc complex128
		row := op[r*dim : (r+1)*dim]
		for c, v := range row {
			if v != 0 {
				acc += v * psi[c]
			}
		}
		next[r] = acc
	}

	rdms, _ := o.ObserveRDMs(next)
	ent, _ := o.GetEntanglements(next)
	return next, ent, rdms, nil
}

// denseOperator builds the full-register matrix of u acting on the middle two
// qubits of window; every other qubit, context qubits included, sees identity.
func (o *Oracle) denseOperator(u quantum.Mat4, window []int) []complex128 {
	first, second := window[1], window[2]
	dim := 1 << o.numQubits
	op := make([]complex128, dim*dim)
	for r := 0; r < dim; r++ {
		for c := 0; c < dim; c++ {
			same := true
			for q := 0; q < o.numQubits && same; q++ {
				if q == first || q == second {
					continue
				}
				same = o.bit(r, q) == o.bit(c, q)
			}
			if !same {
				continue
			}
			op[r*dim+c] = u[4*(2*o.bit(r, first)+o.bit(r, second))+2*o.bit(c, first)+o.bit(c, second)]
		}
	}
	return op
}
