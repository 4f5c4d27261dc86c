package transformer

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/utils"
)

// BertModel is the embedding layer plus the stack of BertLayers.
type BertModel struct {
	Config     BertConfig
	Embeddings *BertEmbeddings
	Layers     []*BertLayer

	// Pooler over the first token; nil for the masked-LM variant.
	PoolerW, PoolerB *mat.Dense
}

// NewBertModel initializes weights from N(0, initializer_range^2) with zero
// biases, unit LayerNorm gains and a zero padding row.
func NewBertModel(cfg BertConfig, withPooler bool, src rand.Source) (*BertModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	emb, err := newBertEmbeddings(cfg, src)
	if err != nil {
		return nil, err
	}
	b := &BertModel{
		Config:     cfg,
		Embeddings: emb,
		Layers:     make([]*BertLayer, cfg.NumHiddenLayers),
	}
	for i := range b.Layers {
		if b.Layers[i], err = newBertLayer(cfg, src); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	if withPooler {
		h := cfg.HiddenSize
		b.PoolerW = mat.NewDense(h, h, utils.NormalArray(h*h, cfg.InitializerRange, src))
		b.PoolerB = mat.NewDense(h, 1, nil)
	}
	return b, nil
}

// Forward returns the final hidden states (hidden x T) and, when the model
// has a pooler, the pooled first-token vector (hidden x 1).
func (b *BertModel) Forward(ids []int, encoderHidden *mat.Dense, src rand.Source) (seq, pooled *mat.Dense, err error) {
	if encoderHidden != nil {
		if r, _ := encoderHidden.Dims(); r != b.Config.HiddenSize {
			return nil, nil, fmt.Errorf("%w: encoder hidden size %d, model hidden size %d", ErrShape, r, b.Config.HiddenSize)
		}
	}
	x, err := b.Embeddings.Forward(ids, src)
	if err != nil {
		return nil, nil, err
	}
	for i, l := range b.Layers {
		if x, err = l.Forward(x, encoderHidden, src); err != nil {
			return nil, nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	if b.PoolerW != nil {
		first := x.Slice(0, b.Config.HiddenSize, 0, 1)
		lin := utils.AddBias(utils.ToDense(utils.Dot(b.PoolerW, first)), b.PoolerB)
		pooled = utils.ToDense(utils.Apply(utils.TanhApply, lin))
	}
	return x, pooled, nil
}
