// Package vectors holds the small amount of dense-vector math the engines
// share. Embeddings travel as []float32 at the edges and are widened to
// float64 for the numeric routines.
package vectors

import "gonum.org/v1/gonum/floats"

// Widen converts an embedding to float64 for gonum
func Widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Mismatched
// lengths or a zero-norm vector yield 0, which downstream code treats as
// "no embedding signal".
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	wa, wb := Widen(a), Widen(b)
	na := floats.Norm(wa, 2)
	nb := floats.Norm(wb, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(wa, wb) / (na * nb)
}

// Centroid returns the element-wise mean of the rows of vs, skipping rows
// whose length differs from the first non-empty row
func Centroid(vs [][]float32) []float64 {
	var dim int
	for _, v := range vs {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	if dim == 0 {
		return nil
	}
	sum := make([]float64, dim)
	var n int
	for _, v := range vs {
		if len(v) != dim {
			continue
		}
		floats.Add(sum, Widen(v))
		n++
	}
	if n == 0 {
		return nil
	}
	floats.Scale(1/float64(n), sum)
	return sum
}
