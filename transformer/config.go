package transformer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/manningwu07/itr/params"
)

// File names inside a saved sub-model directory. FromPretrained expects both.
const (
	WeightsName = "model.gob"
	ConfigName  = "config.json"
)

// Architecture names recorded in config.json.
const (
	ArchPreTraining = "BertForPreTraining"
	ArchMaskedLM    = "BertForMaskedLM"
)

var (
	ErrShape = errors.New("shape mismatch")
	ErrVocab = errors.New("token id out of vocabulary")
)

// BertConfig mirrors the Hugging Face BERT config.json layout.
type BertConfig struct {
	Architectures             []string `json:"architectures,omitempty"`
	ModelType                 string   `json:"model_type"`
	VocabSize                 int      `json:"vocab_size"`
	HiddenSize                int      `json:"hidden_size"`
	NumHiddenLayers           int      `json:"num_hidden_layers"`
	NumAttentionHeads         int      `json:"num_attention_heads"`
	IntermediateSize          int      `json:"intermediate_size"`
	HiddenAct                 string   `json:"hidden_act"`
	HiddenDropoutProb         float64  `json:"hidden_dropout_prob"`
	AttentionProbsDropoutProb float64  `json:"attention_probs_dropout_prob"`
	MaxPositionEmbeddings     int      `json:"max_position_embeddings"`
	TypeVocabSize             int      `json:"type_vocab_size"`
	InitializerRange          float64  `json:"initializer_range"`
	LayerNormEps              float64  `json:"layer_norm_eps"`
	PadTokenID                int      `json:"pad_token_id"`
	IsDecoder                 bool     `json:"is_decoder"`
	AddCrossAttention         bool     `json:"add_cross_attention"`
}

// NewBertConfig fills the fixed architecture constants around the shared
// hyperparameters.
func NewBertConfig(hp params.Config, vocabSize, padID int) BertConfig {
	return BertConfig{
		ModelType:                 "bert",
		VocabSize:                 vocabSize,
		HiddenSize:                hp.HiddenSize,
		NumHiddenLayers:           hp.NumHiddenLayers,
		NumAttentionHeads:         hp.NumAttentionHeads,
		IntermediateSize:          hp.IntermediateSize,
		HiddenAct:                 hp.HiddenAct,
		HiddenDropoutProb:         hp.DropoutProb,
		AttentionProbsDropoutProb: hp.DropoutProb,
		MaxPositionEmbeddings:     params.MaxPositionEmbeddings,
		TypeVocabSize:             params.TypeVocabSize,
		InitializerRange:          params.InitializerRange,
		LayerNormEps:              params.LayerNormEps,
		PadTokenID:                padID,
	}
}

func (c BertConfig) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("bert config: vocab_size must be > 0, got %d", c.VocabSize)
	}
	if c.PadTokenID < 0 || c.PadTokenID >= c.VocabSize {
		return fmt.Errorf("bert config: pad_token_id %d outside vocab of %d", c.PadTokenID, c.VocabSize)
	}
	if c.MaxPositionEmbeddings <= 0 || c.TypeVocabSize <= 0 {
		return fmt.Errorf("bert config: max_position_embeddings and type_vocab_size must be > 0")
	}
	hp := params.Config{
		HiddenSize:        c.HiddenSize,
		NumHiddenLayers:   c.NumHiddenLayers,
		NumAttentionHeads: c.NumAttentionHeads,
		IntermediateSize:  c.IntermediateSize,
		HiddenAct:         c.HiddenAct,
		DropoutProb:       c.HiddenDropoutProb,
	}
	if err := hp.Validate(); err != nil {
		return fmt.Errorf("bert config: %w", err)
	}
	if c.AttentionProbsDropoutProb < 0 || c.AttentionProbsDropoutProb >= 1 {
		return fmt.Errorf("bert config: attention_probs_dropout_prob must be in [0,1)")
	}
	return nil
}

// WriteJSON writes the config as indented JSON.
func (c BertConfig) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// LoadConfig reads a config.json written by WriteJSON.
func LoadConfig(path string) (BertConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return BertConfig{}, err
	}
	defer f.Close()
	var c BertConfig
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return BertConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return c, nil
}
