package utils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix functions used by the transformer layers.
// Layout: one token per column, so activations are (d x T).

// r = rows of matrix
// c = columns of matrix
// o = output
// m = matrix input number 1
// n = matrix input number 2

func Dot(m, n mat.Matrix) mat.Matrix {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Scale(s float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Scale(s, m)
	return o
}

func Multiply(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

func Add(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

// AddBias adds a (r x 1) bias to every column of m.
func AddBias(m, bias *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	rb, cb := bias.Dims()
	if rb != r || cb != 1 {
		panic("addBias: bias must be (r x 1)")
	}
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			out.Set(i, j, m.At(i, j)+bias.At(i, 0))
		}
	}
	return out
}

// -------- Activations --------

// GeluApply is the exact (erf) GELU used by BERT's "gelu".
func GeluApply(i, j int, x float64) float64 {
	return 0.5 * x * (1.0 + math.Erf(x/math.Sqrt2))
}

// GeluNewApply is the GPT-style tanh approximation.
// gelu(x) = 0.5 * x * (1 + tanh( sqrt(2/pi) * (x + 0.044715*x^3) ))
func GeluNewApply(i, j int, x float64) float64 {
	const k = 0.7978845608028654 // sqrt(2/pi)
	t := k * (x + 0.044715*x*x*x)
	return 0.5 * x * (1.0 + math.Tanh(t))
}

func ReluApply(i, j int, x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func TanhApply(i, j int, x float64) float64 {
	return math.Tanh(x)
}

func SwishApply(i, j int, x float64) float64 {
	return x / (1.0 + math.Exp(-x))
}

// Activation resolves a hidden_act name to an elementwise function.
func Activation(name string) (func(i, j int, v float64) float64, error) {
	switch name {
	case "gelu":
		return GeluApply, nil
	case "gelu_new":
		return GeluNewApply, nil
	case "relu":
		return ReluApply, nil
	case "tanh":
		return TanhApply, nil
	case "swish", "silu":
		return SwishApply, nil
	}
	return nil, fmt.Errorf("unknown activation %q", name)
}

// Masking stuff

// CausalMask returns (T x T) with 0 on and below diagonal, -1e30 above.
func CausalMask(T int) *mat.Dense {
	out := mat.NewDense(T, T, nil)
	negInf := -1e30
	for i := 0; i < T; i++ {
		for j := i + 1; j < T; j++ {
			out.Set(i, j, negInf)
		}
	}
	return out
}

// ---------- Softmax variants ----------

// RowSoftmaxMaskedInPlace writes softmax(m+mask) into dst (r x c) in place.
// A nil mask means no masking.
func RowSoftmaxMaskedInPlace(dst, m, mask *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	if dr, dc := dst.Dims(); dr != r || dc != c {
		panic("RowSoftmaxMaskedInPlace: dst shape mismatch")
	}
	if mask != nil {
		if mr, mc := mask.Dims(); mr != r || mc != c {
			panic("RowSoftmaxMaskedInPlace: mask shape mismatch")
		}
	}
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
			if mask != nil {
				row[j] += mask.At(i, j)
			}
		}
		lse := floats.LogSumExp(row)
		for j := 0; j < c; j++ {
			dst.Set(i, j, math.Exp(row[j]-lse))
		}
	}
	return dst
}

// ColSoftmax applies softmax down each column (one distribution per token).
func ColSoftmax(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		lse := floats.LogSumExp(col)
		for i := 0; i < r; i++ {
			out.Set(i, j, math.Exp(col[i]-lse))
		}
	}
	return out
}

// ---------- Loss ----------

// IgnoreIndex marks label positions excluded from the loss.
const IgnoreIndex = -100

// CrossEntropyColumns returns the mean negative log-likelihood of labels[t]
// under column t of logits (vocab x T), skipping IgnoreIndex labels.
// The second result is the number of counted positions.
func CrossEntropyColumns(logits mat.Matrix, labels []int) (float64, int, error) {
	r, c := logits.Dims()
	if len(labels) != c {
		return 0, 0, fmt.Errorf("cross entropy: %d labels for %d positions", len(labels), c)
	}
	col := make([]float64, r)
	sum := 0.0
	n := 0
	for t, gold := range labels {
		if gold == IgnoreIndex {
			continue
		}
		if gold < 0 || gold >= r {
			return 0, 0, fmt.Errorf("cross entropy: label %d out of range [0,%d)", gold, r)
		}
		mat.Col(col, t, logits)
		sum += floats.LogSumExp(col) - col[gold]
		n++
	}
	if n == 0 {
		return 0, 0, nil
	}
	return sum / float64(n), n, nil
}
