package params

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	good := Default()
	good.HiddenSize, good.NumHiddenLayers, good.NumAttentionHeads = 128, 2, 2
	good.IntermediateSize = 256

	tests := []struct {
		name string
		mod  func(*Config)
		ok   bool
	}{
		{"scenario", func(c *Config) {}, true},
		{"zero hidden", func(c *Config) { c.HiddenSize = 0 }, false},
		{"zero layers", func(c *Config) { c.NumHiddenLayers = 0 }, false},
		{"heads not dividing", func(c *Config) { c.NumAttentionHeads = 3 }, false},
		{"zero intermediate", func(c *Config) { c.IntermediateSize = 0 }, false},
		{"dropout one", func(c *Config) { c.DropoutProb = 1 }, false},
		{"negative dropout", func(c *Config) { c.DropoutProb = -0.1 }, false},
		{"unknown act", func(c *Config) { c.HiddenAct = "softsign" }, false},
		{"relu", func(c *Config) { c.HiddenAct = "relu" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := good
			tt.mod(&c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("want ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "itr.yaml")
	body := `model:
  hidden_size: 128
  num_hidden_layers: 2
  num_attention_heads: 2
  intermediate_size: 256
  hidden_act: gelu
  dropout_prob: 0.1
output_dirs:
  encoder: out/enc
  decoder: out/dec
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.Model.HiddenSize != 128 || f.Model.NumHiddenLayers != 2 || f.Model.IntermediateSize != 256 {
		t.Fatalf("model section not decoded: %+v", f.Model)
	}
	// unspecified keys keep defaults
	if f.Model.SrcTokenizer != "bert-base-multilingual-cased" || f.Model.TgtBOS != "<s>" {
		t.Fatalf("defaults lost: %+v", f.Model)
	}
	if f.OutputDirs.Encoder != "out/enc" || f.OutputDirs.Decoder != "out/dec" {
		t.Fatalf("output dirs = %+v", f.OutputDirs)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("model:\n  hidden_size: 130\n  num_attention_heads: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
