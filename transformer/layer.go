package transformer

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/utils"
)

// BertLayer is one post-norm block: self-attention, optional cross-attention
// over encoder states, then the feed-forward MLP. Each sub-block is
// LayerNorm(x + dropout(sublayer(x))).
type BertLayer struct {
	Attn      *Attention
	AttnNorm  *LayerNorm
	Cross     *Attention // nil unless add_cross_attention
	CrossNorm *LayerNorm
	Mlp       *MLP
	OutNorm   *LayerNorm
	Drop      Dropout
}

func newBertLayer(cfg BertConfig, src rand.Source) (*BertLayer, error) {
	std := cfg.InitializerRange
	attn, err := NewAttention(cfg.HiddenSize, cfg.NumAttentionHeads, std, cfg.AttentionProbsDropoutProb, cfg.IsDecoder, src)
	if err != nil {
		return nil, err
	}
	mlp, err := NewMLP(cfg.HiddenSize, cfg.IntermediateSize, cfg.HiddenAct, std, src)
	if err != nil {
		return nil, err
	}
	l := &BertLayer{
		Attn:     attn,
		AttnNorm: NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps),
		Mlp:      mlp,
		OutNorm:  NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps),
		Drop:     Dropout{P: cfg.HiddenDropoutProb},
	}
	if cfg.AddCrossAttention {
		l.Cross, err = NewAttention(cfg.HiddenSize, cfg.NumAttentionHeads, std, cfg.AttentionProbsDropoutProb, false, src)
		if err != nil {
			return nil, err
		}
		l.CrossNorm = NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps)
	}
	return l, nil
}

func (l *BertLayer) residual(norm *LayerNorm, x, sub *mat.Dense, src rand.Source) *mat.Dense {
	return norm.Forward(utils.ToDense(utils.Add(x, l.Drop.Forward(sub, src))))
}

// Forward runs the block over X (d x T). encoderHidden may be nil, in which
// case the cross-attention sub-block is skipped.
func (l *BertLayer) Forward(X, encoderHidden *mat.Dense, src rand.Source) (*mat.Dense, error) {
	attnOut, err := l.Attn.Forward(X, X, src)
	if err != nil {
		return nil, err
	}
	x := l.residual(l.AttnNorm, X, attnOut, src)

	if l.Cross != nil && encoderHidden != nil {
		crossOut, err := l.Cross.Forward(x, encoderHidden, src)
		if err != nil {
			return nil, fmt.Errorf("cross-attention: %w", err)
		}
		x = l.residual(l.CrossNorm, x, crossOut, src)
	}

	return l.residual(l.OutNorm, x, l.Mlp.Forward(x), src), nil
}
