package transformer

import (
	"bytes"
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/params"
	"github.com/manningwu07/itr/utils"
)

func tinyConfig(vocab int) BertConfig {
	hp := params.Config{
		HiddenSize:        8,
		NumHiddenLayers:   2,
		NumAttentionHeads: 2,
		IntermediateSize:  16,
		HiddenAct:         "gelu",
		DropoutProb:       0.1,
	}
	return NewBertConfig(hp, vocab, 0)
}

func TestAttentionCausal(t *testing.T) {
	attn, err := NewAttention(4, 2, 0.5, 0, true, utils.NewSource(3))
	if err != nil {
		t.Fatal(err)
	}
	x := mat.NewDense(4, 3, utils.NormalArray(12, 1.0, utils.NewSource(4)))
	y1, err := attn.Forward(x, x, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Changing the last token must not move earlier outputs.
	x2 := mat.DenseCopyOf(x)
	x2.SetCol(2, []float64{9, -9, 9, -9})
	y2, _ := attn.Forward(x2, x2, nil)
	for t0 := 0; t0 < 2; t0++ {
		if !mat.EqualApprox(y1.ColView(t0), y2.ColView(t0), 1e-12) {
			t.Fatalf("column %d changed after editing a later token", t0)
		}
	}
	if mat.EqualApprox(y1.ColView(2), y2.ColView(2), 1e-12) {
		t.Fatal("last column did not change")
	}
}

func TestAttentionHeadDivisibility(t *testing.T) {
	if _, err := NewAttention(6, 4, 0.02, 0, false, utils.NewSource(1)); !errors.Is(err, ErrShape) {
		t.Fatalf("err = %v, want ErrShape", err)
	}
}

func TestForPreTrainingShapes(t *testing.T) {
	m, err := NewForPreTraining(tinyConfig(20), utils.NewSource(1))
	if err != nil {
		t.Fatal(err)
	}
	out, err := m.Forward([]int{1, 5, 7})
	if err != nil {
		t.Fatal(err)
	}
	check := func(name string, d *mat.Dense, r, c int) {
		t.Helper()
		gr, gc := d.Dims()
		if gr != r || gc != c {
			t.Fatalf("%s dims = %dx%d, want %dx%d", name, gr, gc, r, c)
		}
	}
	check("sequence", out.SequenceOutput, 8, 3)
	check("pooled", out.PooledOutput, 8, 1)
	check("prediction", out.PredictionLogits, 20, 3)
	check("seq relationship", out.SeqRelationshipLogits, 2, 1)
	if got := m.Config().Architectures; len(got) != 1 || got[0] != ArchPreTraining {
		t.Fatalf("architectures = %v", got)
	}
}

func TestForwardInputErrors(t *testing.T) {
	m, _ := NewForPreTraining(tinyConfig(20), utils.NewSource(1))
	if _, err := m.Forward(nil); !errors.Is(err, ErrShape) {
		t.Fatalf("empty: err = %v, want ErrShape", err)
	}
	if _, err := m.Forward([]int{3, 20}); !errors.Is(err, ErrVocab) {
		t.Fatalf("oov: err = %v, want ErrVocab", err)
	}
	long := make([]int, params.MaxPositionEmbeddings+1)
	if _, err := m.Forward(long); !errors.Is(err, ErrShape) {
		t.Fatalf("long: err = %v, want ErrShape", err)
	}
}

func TestForMaskedLMCrossAttention(t *testing.T) {
	cfg := tinyConfig(12)
	cfg.IsDecoder = true
	cfg.AddCrossAttention = true
	m, err := NewForMaskedLM(cfg, utils.NewSource(2))
	if err != nil {
		t.Fatal(err)
	}
	ids := []int{1, 2, 3, 4}
	encA := mat.NewDense(8, 5, utils.NormalArray(40, 1.0, utils.NewSource(10)))
	encB := mat.NewDense(8, 5, utils.NormalArray(40, 1.0, utils.NewSource(11)))

	lossA, logitsA, err := m.Forward(ids, encA, ids)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := logitsA.Dims(); r != 12 || c != 4 {
		t.Fatalf("logits dims = %dx%d, want 12x4", r, c)
	}
	if lossA <= 0 {
		t.Fatalf("loss = %g, want > 0", lossA)
	}
	_, logitsB, _ := m.Forward(ids, encB, ids)
	if mat.EqualApprox(logitsA, logitsB, 1e-12) {
		t.Fatal("decoder output ignores encoder states")
	}

	if _, _, err := m.Forward(ids, mat.NewDense(6, 5, nil), ids); !errors.Is(err, ErrShape) {
		t.Fatalf("err = %v, want ErrShape", err)
	}
	if _, _, err := m.Forward(ids, encA, ids[:2]); err == nil {
		t.Fatal("expected label length error")
	}
}

func TestForMaskedLMIgnoreIndex(t *testing.T) {
	m, _ := NewForMaskedLM(tinyConfig(12), utils.NewSource(2))
	ids := []int{1, 2, 3}
	all := []int{utils.IgnoreIndex, utils.IgnoreIndex, utils.IgnoreIndex}
	loss, _, err := m.Forward(ids, nil, all)
	if err != nil {
		t.Fatal(err)
	}
	if loss != 0 {
		t.Fatalf("loss = %g with every label ignored, want 0", loss)
	}
	loss, _, _ = m.Forward(ids, nil, nil)
	if loss != 0 {
		t.Fatalf("loss = %g without labels, want 0", loss)
	}
}

func TestTrainToggle(t *testing.T) {
	m, _ := NewForMaskedLM(tinyConfig(12), utils.NewSource(5))
	ids := []int{1, 2, 3, 4, 5}

	_, eval1, _ := m.Forward(ids, nil, nil)
	_, eval2, _ := m.Forward(ids, nil, nil)
	if !mat.Equal(eval1, eval2) {
		t.Fatal("eval forward is not deterministic")
	}

	m.Train(true)
	_, train, _ := m.Forward(ids, nil, nil)
	m.Train(false)
	if mat.EqualApprox(eval1, train, 1e-12) {
		t.Fatal("dropout had no effect in training mode")
	}
	_, eval3, _ := m.Forward(ids, nil, nil)
	if !mat.Equal(eval1, eval3) {
		t.Fatal("eval output changed after a training pass")
	}
}

func TestSetInputEmbeddings(t *testing.T) {
	m, _ := NewForMaskedLM(tinyConfig(12), utils.NewSource(5))

	wrongDim, _ := NewEmbedding(12, 4, 0, 1.0, utils.NewSource(1))
	if err := m.SetInputEmbeddings(wrongDim); !errors.Is(err, ErrShape) {
		t.Fatalf("err = %v, want ErrShape", err)
	}
	wrongVocab, _ := NewEmbedding(13, 8, 0, 1.0, utils.NewSource(1))
	if err := m.SetInputEmbeddings(wrongVocab); !errors.Is(err, ErrVocab) {
		t.Fatalf("err = %v, want ErrVocab", err)
	}

	e, _ := NewEmbedding(12, 8, 7, 1.0, utils.NewSource(1))
	if err := m.SetInputEmbeddings(e); err != nil {
		t.Fatal(err)
	}
	if m.InputEmbeddings() != e {
		t.Fatal("embedding not replaced")
	}
	if got := m.Config().PadTokenID; got != 7 {
		t.Fatalf("pad_token_id = %d, want 7", got)
	}
}

func TestNamedParametersUnique(t *testing.T) {
	cfg := tinyConfig(12)
	cfg.IsDecoder = true
	cfg.AddCrossAttention = true
	dec, _ := NewForMaskedLM(cfg, utils.NewSource(1))
	enc, _ := NewForPreTraining(tinyConfig(12), utils.NewSource(1))

	for name, m := range map[string]Module{"decoder": dec, "encoder": enc} {
		seen := map[string]bool{}
		for _, p := range m.NamedParameters() {
			if seen[p.Name] {
				t.Fatalf("%s: duplicate parameter %s", name, p.Name)
			}
			seen[p.Name] = true
		}
		if !seen["bert.embeddings.word_embeddings.weight"] || !seen["cls.predictions.decoder.weight"] {
			t.Fatalf("%s: missing expected parameters", name)
		}
	}

	has := func(m Module, name string) bool {
		for _, p := range m.NamedParameters() {
			if p.Name == name {
				return true
			}
		}
		return false
	}
	if !has(dec, "bert.encoder.layer.1.crossattention.self.key.weight") {
		t.Fatal("decoder is missing cross-attention parameters")
	}
	if has(dec, "bert.pooler.dense.weight") {
		t.Fatal("masked-lm model should have no pooler")
	}
	if !has(enc, "cls.seq_relationship.weight") {
		t.Fatal("pretraining model is missing the next-sentence head")
	}
}

func TestStateRoundTrip(t *testing.T) {
	cfg := tinyConfig(12)
	cfg.IsDecoder = true
	cfg.AddCrossAttention = true
	src, _ := NewForMaskedLM(cfg, utils.NewSource(1))
	dst, _ := NewForMaskedLM(cfg, utils.NewSource(99))

	var buf bytes.Buffer
	if err := WriteState(&buf, src); err != nil {
		t.Fatal(err)
	}
	if err := ReadState(&buf, dst); err != nil {
		t.Fatal(err)
	}
	want, got := src.NamedParameters(), dst.NamedParameters()
	for i := range want {
		if !mat.Equal(want[i].Value, got[i].Value) {
			t.Fatalf("%s differs after round trip", want[i].Name)
		}
	}
}

func TestReadStateArchitectureMismatch(t *testing.T) {
	enc, _ := NewForPreTraining(tinyConfig(12), utils.NewSource(1))
	dec, _ := NewForMaskedLM(tinyConfig(12), utils.NewSource(1))

	var buf bytes.Buffer
	if err := WriteState(&buf, enc); err != nil {
		t.Fatal(err)
	}
	if err := ReadState(&buf, dec); !errors.Is(err, ErrShape) {
		t.Fatalf("err = %v, want ErrShape", err)
	}

	buf.Reset()
	bigger, _ := NewForMaskedLM(tinyConfig(13), utils.NewSource(1))
	if err := WriteState(&buf, bigger); err != nil {
		t.Fatal(err)
	}
	if err := ReadState(&buf, dec); !errors.Is(err, ErrShape) {
		t.Fatalf("err = %v, want ErrShape", err)
	}
}

func TestNewFromConfigUnknownArchitecture(t *testing.T) {
	cfg := tinyConfig(12)
	cfg.Architectures = []string{"GPT2LMHeadModel"}
	if _, err := NewFromConfig(cfg, 0); err == nil {
		t.Fatal("expected error for unknown architecture")
	}
}

func TestDataParallel(t *testing.T) {
	core, _ := NewForMaskedLM(tinyConfig(12), utils.NewSource(1))
	dp := NewDataParallel(core, 3, 7)

	var m Module = dp
	if Unwrap(m) != Module(core) {
		t.Fatal("Unwrap did not reach the core module")
	}
	if len(dp.Replicas()) != 3 {
		t.Fatalf("replicas = %d, want 3", len(dp.Replicas()))
	}

	ids := []int{1, 2, 3}
	_, want, _ := core.Forward(ids, nil, nil)
	for i, r := range dp.Replicas() {
		_, got, err := r.Forward(ids, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !mat.Equal(want, got) {
			t.Fatalf("replica %d disagrees with core in eval mode", i)
		}
	}

	dp.Train(true)
	for i, r := range dp.Replicas() {
		if !r.training {
			t.Fatalf("replica %d not switched to training", i)
		}
	}
}
