package quantum

// DisentanglingUnitary returns U = V† where the columns of V are the
// eigenvectors of the Hermitized RDM in descending eigenvalue order. After U
// the pair RDM is diagonal with the largest weight on |00⟩. U is expressed in
// the natural frame of the pair (basis 2*b_i + b_j).
func DisentanglingUnitary(rdm Mat4) Mat4 {
	_, v := EigenHermitian(rdm)
	return v.Dagger()
}

// CanonicalUnitary expresses U in the gate frame (First, Second).
func CanonicalUnitary(u Mat4, dec SwapDecision) Mat4 {
	if dec.Preswap {
		return u.Conjugate(SwapGate())
	}
	return u
}

// GateMatrix returns the 4x4 gate applied on axes (First, Second): the
// canonical unitary followed by the exchange of outputs when Postswap is set.
func GateMatrix(u Mat4, dec SwapDecision) Mat4 {
	g := CanonicalUnitary(u, dec)
	if dec.Postswap {
		return SwapGate().Mul(g)
	}
	return g
}
