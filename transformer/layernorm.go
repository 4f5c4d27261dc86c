package transformer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/utils"
)

type LayerNorm struct {
	D     int
	Eps   float64
	Gamma *mat.Dense // (d x 1)
	Beta  *mat.Dense // (d x 1)
}

func NewLayerNorm(d int, eps float64) *LayerNorm {
	return &LayerNorm{
		D:     d,
		Eps:   eps,
		Gamma: utils.OnesLike(mat.NewDense(d, 1, nil)),
		Beta:  mat.NewDense(d, 1, nil),
	}
}

// Forward normalizes each column of X (d x T).
func (ln *LayerNorm) Forward(X *mat.Dense) *mat.Dense {
	d, T := X.Dims()
	out := mat.NewDense(d, T, nil)
	for t := 0; t < T; t++ {
		// mean over rows
		mu := 0.0
		for i := 0; i < d; i++ {
			mu += X.At(i, t)
		}
		mu /= float64(d)
		// variance
		var v float64
		for i := 0; i < d; i++ {
			diff := X.At(i, t) - mu
			v += diff * diff
		}
		v /= float64(d)
		istd := 1.0 / math.Sqrt(v+ln.Eps)
		// normalize and affine
		for i := 0; i < d; i++ {
			n := (X.At(i, t) - mu) * istd
			out.Set(i, t, ln.Gamma.At(i, 0)*n+ln.Beta.At(i, 0))
		}
	}
	return out
}
