package transformer

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/utils"
)

// NoPadding disables the padding row of an Embedding.
const NoPadding = -1

// Embedding is a (num x dim) lookup table. Row PaddingIdx is created zero and
// never receives gradient.
type Embedding struct {
	Weight     *mat.Dense
	PaddingIdx int
}

// NewEmbedding draws every row from N(0, std^2) and zeroes the padding row.
func NewEmbedding(num, dim, paddingIdx int, std float64, src rand.Source) (*Embedding, error) {
	if num <= 0 || dim <= 0 {
		return nil, fmt.Errorf("%w: embedding %dx%d", ErrShape, num, dim)
	}
	if paddingIdx != NoPadding && (paddingIdx < 0 || paddingIdx >= num) {
		return nil, fmt.Errorf("%w: padding index %d outside %d rows", ErrVocab, paddingIdx, num)
	}
	w := mat.NewDense(num, dim, utils.NormalArray(num*dim, std, src))
	if paddingIdx != NoPadding {
		w.SetRow(paddingIdx, make([]float64, dim))
	}
	return &Embedding{Weight: w, PaddingIdx: paddingIdx}, nil
}

func (e *Embedding) Num() int {
	r, _ := e.Weight.Dims()
	return r
}

func (e *Embedding) Dim() int {
	_, c := e.Weight.Dims()
	return c
}

// Lookup returns the (dim x T) matrix whose column t is row ids[t].
func (e *Embedding) Lookup(ids []int) (*mat.Dense, error) {
	num, dim := e.Weight.Dims()
	out := mat.NewDense(dim, len(ids), nil)
	for t, id := range ids {
		if id < 0 || id >= num {
			return nil, fmt.Errorf("%w: id %d at position %d (vocab %d)", ErrVocab, id, t, num)
		}
		out.SetCol(t, e.Weight.RawRowView(id))
	}
	return out, nil
}

// Backward scatters dOut (dim x T) into a (num x dim) gradient. Positions
// holding the padding id contribute nothing.
func (e *Embedding) Backward(ids []int, dOut *mat.Dense) (*mat.Dense, error) {
	num, dim := e.Weight.Dims()
	r, c := dOut.Dims()
	if r != dim || c != len(ids) {
		return nil, fmt.Errorf("%w: embedding grad %dx%d for %d ids of dim %d", ErrShape, r, c, len(ids), dim)
	}
	grad := mat.NewDense(num, dim, nil)
	for t, id := range ids {
		if id < 0 || id >= num {
			return nil, fmt.Errorf("%w: id %d at position %d (vocab %d)", ErrVocab, id, t, num)
		}
		if id == e.PaddingIdx {
			continue
		}
		row := grad.RawRowView(id)
		for i := range row {
			row[i] += dOut.At(i, t)
		}
	}
	return grad, nil
}
