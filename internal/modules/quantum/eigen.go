package quantum

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// eigenClusterTol groups eigenvalues that are treated as degenerate.
const eigenClusterTol = 1e-8

// EigenHermitian decomposes a Hermitian 4x4 matrix. Eigenvalues are returned in
// descending order; column k of the returned matrix is the eigenvector of
// value k, normalized and with canonical phase (see canonicalPhase).
//
// H = A + iB is solved through the real symmetric embedding [[A, -B], [B, A]],
// whose spectrum is the spectrum of H with every value doubled. Complex
// eigenvectors are recovered as x + iy from the real ones [x; y]. Inside a
// degenerate cluster the basis is rebuilt from the projections of the standard
// basis vectors, so the result depends on the eigenspace only and not on the
// particular vectors the solver happened to return.
func EigenHermitian(h Mat4) ([4]float64, Mat4) {
	h = h.Hermitize()

	data := make([]float64, 64)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			a, b := real(h[4*r+c]), imag(h[4*r+c])
			data[8*r+c] = a
			data[8*(r+4)+c+4] = a
			data[8*r+c+4] = -b
			data[8*(r+4)+c] = b
		}
	}

	var es mat.EigenSym
	var vals [4]float64
	if ok := es.Factorize(mat.NewSymDense(8, data), true); !ok {
		// EigenSym does not fail on finite symmetric input; fall back to the
		// diagonal so callers still get a unitary.
		for k := 0; k < 4; k++ {
			vals[k] = real(h[5*k])
		}
		return vals, Identity4()
	}
	realVals := es.Values(nil)
	var realVecs mat.Dense
	es.VectorsTo(&realVecs)

	// realVals is ascending; slot 0 is the largest pair.
	for s := 0; s < 4; s++ {
		vals[s] = (realVals[7-2*s] + realVals[6-2*s]) / 2
	}

	accepted := make([][4]complex128, 0, 4)
	for s0 := 0; s0 < 4; {
		s1 := s0
		for s1+1 < 4 && vals[s1]-vals[s1+1] <= eigenClusterTol {
			s1++
		}
		span := clusterSpan(&realVecs, 6-2*s1, 7-2*s0, s1-s0+1, accepted)
		if len(span) > 1 {
			span = projectedBasis(span, accepted)
		}
		for _, v := range span {
			accepted = append(accepted, canonicalPhase(v))
		}
		s0 = s1 + 1
	}

	var vecs Mat4
	for c, v := range accepted {
		for r := 0; r < 4; r++ {
			vecs[4*r+c] = v[r]
		}
	}
	return vals, vecs
}

// clusterSpan returns k orthonormal complex vectors spanning the eigenspace
// held by real eigenvectors lo..hi, pivoting on the largest residual.
func clusterSpan(realVecs *mat.Dense, lo, hi, k int, accepted [][4]complex128) [][4]complex128 {
	var candidates [][4]complex128
	for r := lo; r <= hi; r++ {
		var v [4]complex128
		for m := 0; m < 4; m++ {
			v[m] = complex(realVecs.At(m, r), realVecs.At(m+4, r))
		}
		candidates = append(candidates, v)
	}

	basis := append([][4]complex128(nil), accepted...)
	span := make([][4]complex128, 0, k)
	for len(span) < k {
		w, n := pivot(candidates, basis)
		if n < eigenClusterTol {
			// Numerically lost direction: complete with the standard basis.
			w, n = pivot(standardBasis(), basis)
		}
		for m := range w {
			w[m] /= complex(n, 0)
		}
		basis = append(basis, w)
		span = append(span, w)
	}
	return span
}

// projectedBasis replaces span by the Gram-Schmidt orthonormalization of the
// standard basis vectors projected onto it.
func projectedBasis(span, accepted [][4]complex128) [][4]complex128 {
	projected := make([][4]complex128, 4)
	for m := range projected {
		for _, u := range span {
			dot := cmplx.Conj(u[m])
			for k := range u {
				projected[m][k] += dot * u[k]
			}
		}
	}

	basis := append([][4]complex128(nil), accepted...)
	out := make([][4]complex128, 0, len(span))
	for len(out) < len(span) {
		w, n := pivot(projected, basis)
		if n < eigenClusterTol {
			return span
		}
		for m := range w {
			w[m] /= complex(n, 0)
		}
		basis = append(basis, w)
		out = append(out, w)
	}
	return out
}

// pivot returns the candidate with the largest residual against basis.
// Near ties go to the earliest candidate.
func pivot(candidates [][4]complex128, basis [][4]complex128) ([4]complex128, float64) {
	var best [4]complex128
	bestNorm := -1.0
	for _, c := range candidates {
		w, n := residual(c, basis)
		if n > bestNorm*(1+1e-9)+1e-12 {
			best, bestNorm = w, n
		}
	}
	return best, bestNorm
}

func standardBasis() [][4]complex128 {
	out := make([][4]complex128, 4)
	for m := range out {
		out[m][m] = 1
	}
	return out
}

// residual removes the components of v along the orthonormal basis vectors.
func residual(v [4]complex128, basis [][4]complex128) ([4]complex128, float64) {
	for pass := 0; pass < 2; pass++ {
		for _, u := range basis {
			var dot complex128
			for k := range u {
				dot += cmplx.Conj(u[k]) * v[k]
			}
			for k := range v {
				v[k] -= dot * u[k]
			}
		}
	}
	n := 0.0
	for _, x := range v {
		n += real(x)*real(x) + imag(x)*imag(x)
	}
	return v, math.Sqrt(n)
}

// canonicalPhase rotates v so that its first component of near-maximal modulus
// is real and positive.
func canonicalPhase(v [4]complex128) [4]complex128 {
	maxAbs := 0.0
	for _, x := range v {
		maxAbs = math.Max(maxAbs, cmplx.Abs(x))
	}
	if maxAbs == 0 {
		return v
	}
	for _, x := range v {
		a := cmplx.Abs(x)
		if a < maxAbs*(1-1e-6) {
			continue
		}
		phase := cmplx.Conj(x) / complex(a, 0)
		for k := range v {
			v[k] *= phase
		}
		return v
	}
	return v
}
