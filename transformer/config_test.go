package transformer

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestConfigJSONRoundTrip(t *testing.T) {
	cfg := tinyConfig(30)
	cfg.Architectures = []string{ArchMaskedLM}
	cfg.IsDecoder = true
	cfg.AddCrossAttention = true

	path := filepath.Join(t.TempDir(), ConfigName)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.WriteJSON(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("got %+v, want %+v", got, cfg)
	}
}

func TestBertConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*BertConfig)
		ok     bool
	}{
		{"valid", func(*BertConfig) {}, true},
		{"zero vocab", func(c *BertConfig) { c.VocabSize = 0 }, false},
		{"pad outside vocab", func(c *BertConfig) { c.PadTokenID = c.VocabSize }, false},
		{"bad heads", func(c *BertConfig) { c.NumAttentionHeads = 3 }, false},
		{"bad act", func(c *BertConfig) { c.HiddenAct = "softplus" }, false},
		{"bad attn dropout", func(c *BertConfig) { c.AttentionProbsDropoutProb = 1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tinyConfig(10)
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, ok want %v", err, tt.ok)
			}
		})
	}
}
