package cycle

import "math"

// solveLeastSquares solves the n×n normal-equations system (XᵀX) β = Xᵀy
// via Cholesky decomposition, adapted from the covariance-inversion
// technique used for baseline anomaly scoring: LLᵀ = A, then forward/back
// substitution. Returns nil if A is singular or not positive-definite.
func solveLeastSquares(A [][]float64, b []float64) []float64 {
	n := len(A)
	L := choleskyDecompose(A)
	if L == nil {
		return nil
	}

	// Solve L·z = b by forward substitution.
	z := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for k := 0; k < i; k++ {
			sum -= L[i][k] * z[k]
		}
		if L[i][i] == 0 {
			return nil
		}
		z[i] = sum / L[i][i]
	}

	// Solve Lᵀ·x = z by back substitution.
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := z[i]
		for k := i + 1; k < n; k++ {
			sum -= L[k][i] * x[k]
		}
		if L[i][i] == 0 {
			return nil
		}
		x[i] = sum / L[i][i]
	}
	return x
}

// choleskyDecompose computes the lower-triangular Cholesky factor L of a
// symmetric positive-definite matrix A, returning nil if A is singular or
// not positive-definite.
func choleskyDecompose(A [][]float64) [][]float64 {
	n := len(A)
	L := make([][]float64, n)
	for i := range L {
		L[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := A[i][j]
			for k := 0; k < j; k++ {
				sum -= L[i][k] * L[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil
				}
				L[i][j] = math.Sqrt(sum)
			} else {
				if L[j][j] == 0 {
					return nil
				}
				L[i][j] = sum / L[j][j]
			}
		}
	}
	return L
}
