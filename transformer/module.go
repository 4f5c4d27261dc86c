package transformer

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NamedParameter is one weight tensor under its Hugging Face style name.
type NamedParameter struct {
	Name  string
	Value *mat.Dense
}

// Module is what ForPreTraining and ForMaskedLM have in common.
type Module interface {
	Config() BertConfig
	NamedParameters() []NamedParameter
	InputEmbeddings() *Embedding
	SetInputEmbeddings(*Embedding) error
	Train(on bool)
}

// Wrapper is implemented by containers that hold a Module on behalf of
// something else, such as DataParallel.
type Wrapper interface {
	TrainableCore() Module
}

// Unwrap peels Wrapper layers until it reaches the inner Module.
func Unwrap(m Module) Module {
	for {
		w, ok := m.(Wrapper)
		if !ok {
			return m
		}
		m = w.TrainableCore()
	}
}

func (b *BertModel) setInputEmbeddings(e *Embedding) error {
	if e == nil {
		return fmt.Errorf("%w: nil embedding", ErrShape)
	}
	if e.Dim() != b.Config.HiddenSize {
		return fmt.Errorf("%w: embedding dim %d, hidden size %d", ErrShape, e.Dim(), b.Config.HiddenSize)
	}
	if e.Num() != b.Config.VocabSize {
		return fmt.Errorf("%w: embedding has %d rows, vocab_size is %d", ErrVocab, e.Num(), b.Config.VocabSize)
	}
	b.Embeddings.Word = e
	if e.PaddingIdx != NoPadding {
		b.Config.PadTokenID = e.PaddingIdx
	}
	return nil
}

func (b *BertModel) namedParameters(prefix string) []NamedParameter {
	emb := prefix + "embeddings."
	out := []NamedParameter{
		{emb + "word_embeddings.weight", b.Embeddings.Word.Weight},
		{emb + "position_embeddings.weight", b.Embeddings.Position.Weight},
		{emb + "token_type_embeddings.weight", b.Embeddings.TokenType.Weight},
		{emb + "LayerNorm.weight", b.Embeddings.Norm.Gamma},
		{emb + "LayerNorm.bias", b.Embeddings.Norm.Beta},
	}
	for i, l := range b.Layers {
		p := fmt.Sprintf("%sencoder.layer.%d.", prefix, i)
		out = append(out, attentionParameters(p+"attention.", l.Attn, l.AttnNorm)...)
		if l.Cross != nil {
			out = append(out, attentionParameters(p+"crossattention.", l.Cross, l.CrossNorm)...)
		}
		out = append(out,
			NamedParameter{p + "intermediate.dense.weight", l.Mlp.HiddenWeights},
			NamedParameter{p + "intermediate.dense.bias", l.Mlp.HiddenBias},
			NamedParameter{p + "output.dense.weight", l.Mlp.OutputWeights},
			NamedParameter{p + "output.dense.bias", l.Mlp.OutputBias},
			NamedParameter{p + "output.LayerNorm.weight", l.OutNorm.Gamma},
			NamedParameter{p + "output.LayerNorm.bias", l.OutNorm.Beta},
		)
	}
	if b.PoolerW != nil {
		out = append(out,
			NamedParameter{prefix + "pooler.dense.weight", b.PoolerW},
			NamedParameter{prefix + "pooler.dense.bias", b.PoolerB},
		)
	}
	return out
}

func attentionParameters(p string, a *Attention, norm *LayerNorm) []NamedParameter {
	return []NamedParameter{
		{p + "self.query.weight", a.Wquery},
		{p + "self.query.bias", a.Bquery},
		{p + "self.key.weight", a.Wkey},
		{p + "self.key.bias", a.Bkey},
		{p + "self.value.weight", a.Wvalue},
		{p + "self.value.bias", a.Bvalue},
		{p + "output.dense.weight", a.Woutput},
		{p + "output.dense.bias", a.Boutput},
		{p + "output.LayerNorm.weight", norm.Gamma},
		{p + "output.LayerNorm.bias", norm.Beta},
	}
}
