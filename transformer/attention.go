package transformer

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/utils"
)

// Attention is multi-head scaled dot-product attention. Projection weights
// cover all heads at once; head h owns rows [h*DHead, (h+1)*DHead).
type Attention struct {
	H      int
	DModel int
	DHead  int

	Wquery, Bquery   *mat.Dense // (dModel x dModel), (dModel x 1)
	Wkey, Bkey       *mat.Dense
	Wvalue, Bvalue   *mat.Dense
	Woutput, Boutput *mat.Dense

	Causal bool
	Drop   Dropout // on attention probabilities

	mu        sync.Mutex
	maskCache map[int]*mat.Dense
	parallel  bool // parallelize over heads if true
}

func NewAttention(dModel, nHeads int, std, dropout float64, causal bool, src rand.Source) (*Attention, error) {
	if nHeads <= 0 || dModel%nHeads != 0 {
		return nil, fmt.Errorf("%w: dModel %d must be divisible by nHeads %d", ErrShape, dModel, nHeads)
	}
	dense := func() *mat.Dense {
		return mat.NewDense(dModel, dModel, utils.NormalArray(dModel*dModel, std, src))
	}
	bias := func() *mat.Dense { return mat.NewDense(dModel, 1, nil) }
	return &Attention{
		H:      nHeads,
		DModel: dModel,
		DHead:  dModel / nHeads,

		Wquery: dense(), Bquery: bias(),
		Wkey: dense(), Bkey: bias(),
		Wvalue: dense(), Bvalue: bias(),
		Woutput: dense(), Boutput: bias(),

		Causal:    causal,
		Drop:      Dropout{P: dropout},
		maskCache: make(map[int]*mat.Dense),
		parallel:  os.Getenv("HEAD_PAR") == "1",
	}, nil
}

func (attn *Attention) mask(T int) *mat.Dense {
	attn.mu.Lock()
	defer attn.mu.Unlock()
	if attn.maskCache == nil {
		attn.maskCache = make(map[int]*mat.Dense)
	}
	m, ok := attn.maskCache[T]
	if !ok {
		m = utils.CausalMask(T)
		attn.maskCache[T] = m
	}
	return m
}

// Forward attends from the columns of X (dModel x Tq) over the columns of
// context (dModel x Tk). Self-attention passes X as context. The result is
// the output projection, (dModel x Tq).
func (attn *Attention) Forward(X, context *mat.Dense, src rand.Source) (*mat.Dense, error) {
	dq, Tq := X.Dims()
	dk, Tk := context.Dims()
	if dq != attn.DModel || dk != attn.DModel {
		return nil, fmt.Errorf("%w: attention expects %d rows, got query %d context %d", ErrShape, attn.DModel, dq, dk)
	}

	Q := utils.AddBias(utils.ToDense(utils.Dot(attn.Wquery, X)), attn.Bquery)
	K := utils.AddBias(utils.ToDense(utils.Dot(attn.Wkey, context)), attn.Bkey)
	V := utils.AddBias(utils.ToDense(utils.Dot(attn.Wvalue, context)), attn.Bvalue)

	var mask *mat.Dense
	if attn.Causal && Tq == Tk {
		mask = attn.mask(Tq)
	}

	rescale := 1.0 / math.Sqrt(float64(attn.DHead))
	headsCat := mat.NewDense(attn.DModel, Tq, nil)
	A := make([]*mat.Dense, attn.H)

	scores := func(h int) {
		base := h * attn.DHead
		q := Q.Slice(base, base+attn.DHead, 0, Tq)
		k := K.Slice(base, base+attn.DHead, 0, Tk)
		// S = (Q^T K)/sqrt
		var s mat.Dense
		s.Mul(q.T(), k)
		s.Scale(rescale, &s)
		A[h] = mat.NewDense(Tq, Tk, nil)
		utils.RowSoftmaxMaskedInPlace(A[h], &s, mask)
	}
	mix := func(h int) {
		base := h * attn.DHead
		v := V.Slice(base, base+attn.DHead, 0, Tk)
		// O = V * A^T
		dst := headsCat.Slice(base, base+attn.DHead, 0, Tq).(*mat.Dense)
		dst.Mul(v, A[h].T())
	}

	// Dropout draws from src, so heads only fan out in eval mode.
	if attn.parallel && attn.H > 1 && src == nil {
		var wg sync.WaitGroup
		wg.Add(attn.H)
		for h := 0; h < attn.H; h++ {
			go func() {
				defer wg.Done()
				scores(h)
				mix(h)
			}()
		}
		wg.Wait()
	} else {
		for h := 0; h < attn.H; h++ {
			scores(h)
			A[h] = attn.Drop.Forward(A[h], src)
			mix(h)
		}
	}

	if utils.DebugEnabled() && attn.H > 0 {
		rs := rowSums(A[0])
		mn, mx := rs[0], rs[0]
		for _, v := range rs {
			mn = math.Min(mn, v)
			mx = math.Max(mx, v)
		}
		utils.Debugf("attn: head0 row-sum min/max = %.4f/%.4f (Tq=%d Tk=%d)", mn, mx, Tq, Tk)
	}

	return utils.AddBias(utils.ToDense(utils.Dot(attn.Woutput, headsCat)), attn.Boutput), nil
}

func rowSums(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[i] += m.At(i, j)
		}
	}
	return out
}
