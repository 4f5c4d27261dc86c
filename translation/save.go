package translation

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/manningwu07/itr/IO"
	"github.com/manningwu07/itr/params"
	"github.com/manningwu07/itr/transformer"
)

// Save writes the encoder to dirs.Encoder and the decoder to dirs.Decoder.
// The tokenizers are accepted but not persisted.
func (m *Model) Save(_ IO.Tokenizers, dirs params.OutputDirs) error {
	if err := SaveModel(m.Encoder, dirs.Encoder); err != nil {
		return fmt.Errorf("saving encoder: %w", err)
	}
	if err := SaveModel(m.Decoder, dirs.Decoder); err != nil {
		return fmt.Errorf("saving decoder: %w", err)
	}
	return nil
}

// SaveModel writes the innermost module of m to dir as WeightsName and
// ConfigName. Each file goes to a temp file in dir first and is renamed into
// place, so dir never holds a partial file. dir must already exist.
func SaveModel(m transformer.Module, dir string) error {
	core := transformer.Unwrap(m)
	err := writeAtomic(filepath.Join(dir, transformer.WeightsName), func(w io.Writer) error {
		return transformer.WriteState(w, core)
	})
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, transformer.ConfigName), core.Config().WriteJSON)
}

// LoadModel restores a sub-model written by SaveModel.
func LoadModel(dir string) (transformer.Module, error) {
	return transformer.FromPretrained(dir)
}

// Load restores a full model from the directory pair written by Save and
// places it on cfg.Device. cfg.Seed seeds the dropout replicas.
func Load(dirs params.OutputDirs, cfg params.Config) (*Model, error) {
	encM, err := LoadModel(dirs.Encoder)
	if err != nil {
		return nil, fmt.Errorf("loading encoder: %w", err)
	}
	decM, err := LoadModel(dirs.Decoder)
	if err != nil {
		return nil, fmt.Errorf("loading decoder: %w", err)
	}
	enc, ok := encM.(*transformer.ForPreTraining)
	if !ok {
		return nil, fmt.Errorf("%s: expected %s, got %v", dirs.Encoder, transformer.ArchPreTraining, encM.Config().Architectures)
	}
	dec, ok := decM.(*transformer.ForMaskedLM)
	if !ok {
		return nil, fmt.Errorf("%s: expected %s, got %v", dirs.Decoder, transformer.ArchMaskedLM, decM.Config().Architectures)
	}
	m := &Model{Encoder: enc, Decoder: dec, seed: cfg.Seed}
	if err := m.place(cfg.Device); err != nil {
		return nil, err
	}
	return m, nil
}

// CheckTokenizers reports whether toks fit the model's embedding tables.
// A restored model paired with other tokenizers fails here rather than on
// the first out-of-range id.
func (m *Model) CheckTokenizers(toks IO.Tokenizers) error {
	sides := []struct {
		name string
		cfg  transformer.BertConfig
		tok  IO.Tokenizer
	}{
		{"source", m.Encoder.Config(), toks.Src},
		{"target", m.Decoder.Config(), toks.Tgt},
	}
	for _, s := range sides {
		if s.tok == nil {
			return fmt.Errorf("%s tokenizer is missing", s.name)
		}
		if got := s.tok.VocabSize(); got != s.cfg.VocabSize {
			return fmt.Errorf("%w: %s tokenizer has %d entries, model vocab_size is %d",
				transformer.ErrVocab, s.name, got, s.cfg.VocabSize)
		}
		if got := s.tok.PadID(); got != s.cfg.PadTokenID {
			return fmt.Errorf("%w: %s tokenizer pad id %d, model pad_token_id %d",
				transformer.ErrVocab, s.name, got, s.cfg.PadTokenID)
		}
	}
	return nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
