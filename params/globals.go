package params

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Vocabulary is a token <-> id table, index order 0..N-1.
type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string
}

// ErrInvalidConfig is returned by Validate for out-of-range hyperparameters.
var ErrInvalidConfig = errors.New("invalid config")

// Fixed architecture settings shared by the encoder and decoder sub-configs.
const (
	MaxPositionEmbeddings = 512
	TypeVocabSize         = 2
	InitializerRange      = 0.02
	LayerNormEps          = 1e-12
)

// Activations accepted for HiddenAct.
var Activations = []string{"gelu", "gelu_new", "relu", "tanh", "swish", "silu"}

type Config struct {
	// Core transformer parameters.
	// HiddenSize and IntermediateSize span all attention heads, so
	// HiddenSize must be divisible by NumAttentionHeads.
	HiddenSize        int     `yaml:"hidden_size"`
	NumHiddenLayers   int     `yaml:"num_hidden_layers"`
	NumAttentionHeads int     `yaml:"num_attention_heads"`
	IntermediateSize  int     `yaml:"intermediate_size"`
	HiddenAct         string  `yaml:"hidden_act"`
	DropoutProb       float64 `yaml:"dropout_prob"`

	// Tokenizers: HF model name or local directory holding vocab.txt
	SrcTokenizer string `yaml:"src_tokenizer"`
	TgtTokenizer string `yaml:"tgt_tokenizer"`
	TgtBOS       string `yaml:"tgt_bos"`
	TgtEOS       string `yaml:"tgt_eos"`

	Device string `yaml:"device"` // "cpu", "cuda"
	Seed   uint64 `yaml:"seed"`
	Debug  bool   `yaml:"debug"`
}

// OutputDirs holds one save location per sub-model.
type OutputDirs struct {
	Encoder string `yaml:"encoder"`
	Decoder string `yaml:"decoder"`
}

// File is the on-disk YAML layout read by the CLI.
type File struct {
	Model      Config     `yaml:"model"`
	OutputDirs OutputDirs `yaml:"output_dirs"`
}

// Default returns the BERT-base shaped defaults.
func Default() Config {
	return Config{
		HiddenSize:        768,
		NumHiddenLayers:   12,
		NumAttentionHeads: 12,
		IntermediateSize:  3072,
		HiddenAct:         "gelu",
		DropoutProb:       0.1,

		SrcTokenizer: "bert-base-multilingual-cased",
		TgtTokenizer: "bert-base-uncased",
		TgtBOS:       "<s>",
		TgtEOS:       "</s>",

		Device: "cpu",
		Seed:   42,
	}
}

// Debug toggles utils.Debugf output for the whole process.
var Debug = false

func (c Config) Validate() error {
	switch {
	case c.HiddenSize <= 0:
		return fmt.Errorf("%w: hidden_size must be > 0, got %d", ErrInvalidConfig, c.HiddenSize)
	case c.NumHiddenLayers <= 0:
		return fmt.Errorf("%w: num_hidden_layers must be > 0, got %d", ErrInvalidConfig, c.NumHiddenLayers)
	case c.NumAttentionHeads <= 0:
		return fmt.Errorf("%w: num_attention_heads must be > 0, got %d", ErrInvalidConfig, c.NumAttentionHeads)
	case c.HiddenSize%c.NumAttentionHeads != 0:
		return fmt.Errorf("%w: hidden_size %d not divisible by num_attention_heads %d",
			ErrInvalidConfig, c.HiddenSize, c.NumAttentionHeads)
	case c.IntermediateSize <= 0:
		return fmt.Errorf("%w: intermediate_size must be > 0, got %d", ErrInvalidConfig, c.IntermediateSize)
	case c.DropoutProb < 0 || c.DropoutProb >= 1:
		return fmt.Errorf("%w: dropout_prob must be in [0,1), got %g", ErrInvalidConfig, c.DropoutProb)
	}
	if !KnownActivation(c.HiddenAct) {
		return fmt.Errorf("%w: unknown hidden_act %q", ErrInvalidConfig, c.HiddenAct)
	}
	return nil
}

func KnownActivation(name string) bool {
	return slices.Contains(Activations, name)
}

// LoadFile reads a YAML config. Missing model keys keep their Default() value.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading config file: %w", err)
	}
	f := File{Model: Default()}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := f.Model.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}
