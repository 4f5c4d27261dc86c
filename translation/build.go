// Package translation assembles the encoder/decoder translation model, runs
// its training forward pass and persists it.
package translation

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/manningwu07/itr/IO"
	"github.com/manningwu07/itr/device"
	"github.com/manningwu07/itr/params"
	"github.com/manningwu07/itr/transformer"
	"github.com/manningwu07/itr/utils"
)

// EmbeddingInitStd is the init scale of the substituted word embeddings,
// the N(0, 1) default of a freshly created embedding table.
const EmbeddingInitStd = 1.0

// EncoderConfig derives the encoder's BERT config from the shared
// hyperparameters and the source tokenizer.
func EncoderConfig(cfg params.Config, src IO.Tokenizer) transformer.BertConfig {
	c := transformer.NewBertConfig(cfg, src.VocabSize(), src.PadID())
	c.Architectures = []string{transformer.ArchPreTraining}
	return c
}

// DecoderConfig is EncoderConfig for the target side, with causal
// self-attention and cross-attention over the encoder states.
func DecoderConfig(cfg params.Config, tgt IO.Tokenizer) transformer.BertConfig {
	c := transformer.NewBertConfig(cfg, tgt.VocabSize(), tgt.PadID())
	c.Architectures = []string{transformer.ArchMaskedLM}
	c.IsDecoder = true
	c.AddCrossAttention = true
	return c
}

// Build loads the source (cased) and target (uncased) tokenizers named in
// cfg and assembles a freshly initialized model around them.
func Build(ctx context.Context, cfg params.Config) (*Model, IO.Tokenizers, error) {
	if err := cfg.Validate(); err != nil {
		return nil, IO.Tokenizers{}, err
	}
	toks, err := LoadTokenizers(ctx, cfg)
	if err != nil {
		return nil, IO.Tokenizers{}, err
	}
	m, err := BuildWith(ctx, cfg, toks)
	if err != nil {
		return nil, IO.Tokenizers{}, err
	}
	return m, toks, nil
}

// LoadTokenizers fetches the tokenizer pair named in cfg and applies the
// target BOS/EOS overrides.
func LoadTokenizers(ctx context.Context, cfg params.Config) (IO.Tokenizers, error) {
	src, err := IO.LoadPretrained(ctx, cfg.SrcTokenizer, false)
	if err != nil {
		return IO.Tokenizers{}, fmt.Errorf("source tokenizer: %w", err)
	}
	tgt, err := IO.LoadPretrained(ctx, cfg.TgtTokenizer, true)
	if err != nil {
		return IO.Tokenizers{}, fmt.Errorf("target tokenizer: %w", err)
	}
	overrideMarkers(tgt, cfg)
	return IO.Tokenizers{Src: src, Tgt: tgt}, nil
}

func overrideMarkers(tgt IO.Tokenizer, cfg params.Config) {
	if cfg.TgtBOS != "" {
		tgt.SetBOS(cfg.TgtBOS)
	}
	if cfg.TgtEOS != "" {
		tgt.SetEOS(cfg.TgtEOS)
	}
}

// BuildWith assembles the model around caller-supplied tokenizers. The target
// tokenizer's BOS/EOS markers are overridden from cfg when set.
func BuildWith(ctx context.Context, cfg params.Config, toks IO.Tokenizers) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if toks.Src == nil || toks.Tgt == nil {
		return nil, fmt.Errorf("build: both tokenizers are required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	overrideMarkers(toks.Tgt, cfg)

	rng := utils.NewSource(cfg.Seed)

	encCfg := EncoderConfig(cfg, toks.Src)
	enc, err := transformer.NewForPreTraining(encCfg, rng)
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	if err := replaceEmbeddings(enc, toks.Src, cfg.HiddenSize, rng); err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}

	decCfg := DecoderConfig(cfg, toks.Tgt)
	dec, err := transformer.NewForMaskedLM(decCfg, rng)
	if err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}
	if err := replaceEmbeddings(dec, toks.Tgt, cfg.HiddenSize, rng); err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}

	m := &Model{Encoder: enc, Decoder: dec, seed: cfg.Seed}
	if err := m.place(cfg.Device); err != nil {
		return nil, err
	}
	utils.Debugf("build: src vocab %d (pad %d), tgt vocab %d (pad %d, bos %d, eos %d), %s",
		toks.Src.VocabSize(), toks.Src.PadID(),
		toks.Tgt.VocabSize(), toks.Tgt.PadID(), toks.Tgt.BOSID(), toks.Tgt.EOSID(), m.Device)
	return m, nil
}

// replaceEmbeddings swaps the constructor's word embeddings for a new table
// sized to the tokenizer, with its pad row as the padding index.
func replaceEmbeddings(m transformer.Module, tok IO.Tokenizer, hidden int, rng rand.Source) error {
	emb, err := transformer.NewEmbedding(tok.VocabSize(), hidden, tok.PadID(), EmbeddingInitStd, rng)
	if err != nil {
		return err
	}
	return m.SetInputEmbeddings(emb)
}

func (m *Model) place(name string) error {
	dev, err := device.Place(name)
	if err != nil {
		return fmt.Errorf("placing model: %w", err)
	}
	m.Device = dev
	return nil
}
