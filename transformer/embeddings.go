package transformer

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// BertEmbeddings sums word, position and token-type embeddings, then
// normalizes.
type BertEmbeddings struct {
	Word      *Embedding
	Position  *Embedding
	TokenType *Embedding
	Norm      *LayerNorm
	Drop      Dropout
}

func newBertEmbeddings(cfg BertConfig, src rand.Source) (*BertEmbeddings, error) {
	word, err := NewEmbedding(cfg.VocabSize, cfg.HiddenSize, cfg.PadTokenID, cfg.InitializerRange, src)
	if err != nil {
		return nil, err
	}
	pos, err := NewEmbedding(cfg.MaxPositionEmbeddings, cfg.HiddenSize, NoPadding, cfg.InitializerRange, src)
	if err != nil {
		return nil, err
	}
	typ, err := NewEmbedding(cfg.TypeVocabSize, cfg.HiddenSize, NoPadding, cfg.InitializerRange, src)
	if err != nil {
		return nil, err
	}
	return &BertEmbeddings{
		Word:      word,
		Position:  pos,
		TokenType: typ,
		Norm:      NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps),
		Drop:      Dropout{P: cfg.HiddenDropoutProb},
	}, nil
}

// Forward embeds ids as one segment (token type 0) at positions 0..T-1.
func (e *BertEmbeddings) Forward(ids []int, src rand.Source) (*mat.Dense, error) {
	T := len(ids)
	if T == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrShape)
	}
	if T > e.Position.Num() {
		return nil, fmt.Errorf("%w: sequence of %d exceeds %d positions", ErrShape, T, e.Position.Num())
	}
	x, err := e.Word.Lookup(ids)
	if err != nil {
		return nil, err
	}
	positions := make([]int, T)
	for t := range positions {
		positions[t] = t
	}
	p, err := e.Position.Lookup(positions)
	if err != nil {
		return nil, err
	}
	tt, err := e.TokenType.Lookup(make([]int, T))
	if err != nil {
		return nil, err
	}
	x.Add(x, p)
	x.Add(x, tt)
	return e.Drop.Forward(e.Norm.Forward(x), src), nil
}
