package utils

import (
	"log"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/manningwu07/itr/params"
)

// NormalArray draws size samples from N(0, std^2).
func NormalArray(size int, std float64, src rand.Source) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: std, Src: src}
	out := make([]float64, size)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// NewSource returns a deterministic PCG source for seed.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

func OnesLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, 1)
		}
	}
	return out
}

// Debugf logs only when params.Debug is set.
func Debugf(format string, args ...any) {
	if params.Debug {
		log.Printf("[debug] "+format, args...)
	}
}

func DebugEnabled() bool { return params.Debug }
