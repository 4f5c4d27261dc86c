package transformer

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/utils"
)

// LMHead maps hidden states to per-token vocabulary logits.
type LMHead struct {
	TransformW, TransformB *mat.Dense // (h x h), (h x 1)
	Norm                   *LayerNorm
	DecoderW               *mat.Dense // (vocab x h)
	Bias                   *mat.Dense // (vocab x 1)

	act func(i, j int, v float64) float64
}

func newLMHead(cfg BertConfig, src rand.Source) (*LMHead, error) {
	act, err := utils.Activation(cfg.HiddenAct)
	if err != nil {
		return nil, err
	}
	h, v := cfg.HiddenSize, cfg.VocabSize
	return &LMHead{
		TransformW: mat.NewDense(h, h, utils.NormalArray(h*h, cfg.InitializerRange, src)),
		TransformB: mat.NewDense(h, 1, nil),
		Norm:       NewLayerNorm(h, cfg.LayerNormEps),
		DecoderW:   mat.NewDense(v, h, utils.NormalArray(v*h, cfg.InitializerRange, src)),
		Bias:       mat.NewDense(v, 1, nil),
		act:        act,
	}, nil
}

// Forward returns logits of shape (vocab x T).
func (head *LMHead) Forward(seq *mat.Dense) *mat.Dense {
	x := utils.AddBias(utils.ToDense(utils.Dot(head.TransformW, seq)), head.TransformB)
	x = head.Norm.Forward(utils.ToDense(utils.Apply(head.act, x)))
	return utils.AddBias(utils.ToDense(utils.Dot(head.DecoderW, x)), head.Bias)
}

func (head *LMHead) namedParameters() []NamedParameter {
	return []NamedParameter{
		{"cls.predictions.transform.dense.weight", head.TransformW},
		{"cls.predictions.transform.dense.bias", head.TransformB},
		{"cls.predictions.transform.LayerNorm.weight", head.Norm.Gamma},
		{"cls.predictions.transform.LayerNorm.bias", head.Norm.Beta},
		{"cls.predictions.decoder.weight", head.DecoderW},
		{"cls.predictions.bias", head.Bias},
	}
}

// ForPreTraining is BERT with the masked-LM and next-sentence heads.
type ForPreTraining struct {
	Bert             *BertModel
	MLM              *LMHead
	SeqRelW, SeqRelB *mat.Dense // (2 x h), (2 x 1)

	training bool
	src      rand.Source
}

// PreTrainingOutput lists the encoder outputs, hidden states first.
type PreTrainingOutput struct {
	SequenceOutput        *mat.Dense // (hidden x T)
	PooledOutput          *mat.Dense // (hidden x 1)
	PredictionLogits      *mat.Dense // (vocab x T)
	SeqRelationshipLogits *mat.Dense // (2 x 1)
}

func NewForPreTraining(cfg BertConfig, src rand.Source) (*ForPreTraining, error) {
	cfg.Architectures = []string{ArchPreTraining}
	bert, err := NewBertModel(cfg, true, src)
	if err != nil {
		return nil, err
	}
	mlm, err := newLMHead(cfg, src)
	if err != nil {
		return nil, err
	}
	h := cfg.HiddenSize
	return &ForPreTraining{
		Bert:    bert,
		MLM:     mlm,
		SeqRelW: mat.NewDense(2, h, utils.NormalArray(2*h, cfg.InitializerRange, src)),
		SeqRelB: mat.NewDense(2, 1, nil),
		src:     src,
	}, nil
}

func (m *ForPreTraining) Forward(ids []int) (PreTrainingOutput, error) {
	seq, pooled, err := m.Bert.Forward(ids, nil, m.dropoutSource())
	if err != nil {
		return PreTrainingOutput{}, err
	}
	rel := utils.AddBias(utils.ToDense(utils.Dot(m.SeqRelW, pooled)), m.SeqRelB)
	return PreTrainingOutput{
		SequenceOutput:        seq,
		PooledOutput:          pooled,
		PredictionLogits:      m.MLM.Forward(seq),
		SeqRelationshipLogits: rel,
	}, nil
}

func (m *ForPreTraining) Config() BertConfig { return m.Bert.Config }

func (m *ForPreTraining) InputEmbeddings() *Embedding { return m.Bert.Embeddings.Word }

func (m *ForPreTraining) SetInputEmbeddings(e *Embedding) error {
	return m.Bert.setInputEmbeddings(e)
}

func (m *ForPreTraining) Train(on bool) { m.training = on }

func (m *ForPreTraining) dropoutSource() rand.Source {
	if m.training {
		return m.src
	}
	return nil
}

// Replica shares every weight with m but draws dropout masks from src.
func (m *ForPreTraining) Replica(src rand.Source) *ForPreTraining {
	cp := *m
	cp.src = src
	return &cp
}

func (m *ForPreTraining) NamedParameters() []NamedParameter {
	out := m.Bert.namedParameters("bert.")
	out = append(out, m.MLM.namedParameters()...)
	return append(out,
		NamedParameter{"cls.seq_relationship.weight", m.SeqRelW},
		NamedParameter{"cls.seq_relationship.bias", m.SeqRelB},
	)
}

// ForMaskedLM is BERT with only the masked-LM head. With add_cross_attention
// set it attends over encoder hidden states.
type ForMaskedLM struct {
	Bert *BertModel
	MLM  *LMHead

	training bool
	src      rand.Source
}

func NewForMaskedLM(cfg BertConfig, src rand.Source) (*ForMaskedLM, error) {
	cfg.Architectures = []string{ArchMaskedLM}
	bert, err := NewBertModel(cfg, false, src)
	if err != nil {
		return nil, err
	}
	mlm, err := newLMHead(cfg, src)
	if err != nil {
		return nil, err
	}
	return &ForMaskedLM{Bert: bert, MLM: mlm, src: src}, nil
}

// Forward returns the mean masked-LM loss against labels (0 when labels is
// nil) and the (vocab x T) logits. Labels equal to utils.IgnoreIndex are
// excluded from the loss.
func (m *ForMaskedLM) Forward(ids []int, encoderHidden *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	seq, _, err := m.Bert.Forward(ids, encoderHidden, m.dropoutSource())
	if err != nil {
		return 0, nil, err
	}
	logits := m.MLM.Forward(seq)
	if labels == nil {
		return 0, logits, nil
	}
	loss, _, err := utils.CrossEntropyColumns(logits, labels)
	if err != nil {
		return 0, nil, fmt.Errorf("masked-lm loss: %w", err)
	}
	return loss, logits, nil
}

func (m *ForMaskedLM) Config() BertConfig { return m.Bert.Config }

func (m *ForMaskedLM) InputEmbeddings() *Embedding { return m.Bert.Embeddings.Word }

func (m *ForMaskedLM) SetInputEmbeddings(e *Embedding) error {
	return m.Bert.setInputEmbeddings(e)
}

func (m *ForMaskedLM) Train(on bool) { m.training = on }

func (m *ForMaskedLM) dropoutSource() rand.Source {
	if m.training {
		return m.src
	}
	return nil
}

func (m *ForMaskedLM) Replica(src rand.Source) *ForMaskedLM {
	cp := *m
	cp.src = src
	return &cp
}

func (m *ForMaskedLM) NamedParameters() []NamedParameter {
	return append(m.Bert.namedParameters("bert."), m.MLM.namedParameters()...)
}
