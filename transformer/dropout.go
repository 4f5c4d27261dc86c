package transformer

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/manningwu07/itr/utils"
)

// Dropout zeroes activations with probability P and rescales the rest by
// 1/(1-P). The randomness comes from the caller; a nil source means eval
// mode and Forward returns its input unchanged.
type Dropout struct {
	P float64
}

func (d Dropout) Forward(x *mat.Dense, src rand.Source) *mat.Dense {
	if src == nil || d.P <= 0 {
		return x
	}
	keep := distuv.Bernoulli{P: 1 - d.P, Src: src}
	r, c := x.Dims()
	mask := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			mask.Set(i, j, keep.Rand())
		}
	}
	return utils.ToDense(utils.Scale(1.0/(1.0-d.P), utils.Multiply(x, mask)))
}
