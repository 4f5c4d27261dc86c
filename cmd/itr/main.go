package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/IO"
	"github.com/manningwu07/itr/params"
	"github.com/manningwu07/itr/translation"
	"github.com/manningwu07/itr/utils"
)

var (
	configPath   string
	loadFlag     bool
	saveFlag     bool
	sampleSrc    string
	sampleTgt    string
	exportVocab  string
	exportCorpus string
	exportPrefix string
	exportSide   string
	maxShard     int64
	debugFlag    bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "YAML config (model hyperparameters and output_dirs)")
	flag.BoolVar(&loadFlag, "load", false, "Load the model from output_dirs instead of building a fresh one")
	flag.BoolVar(&saveFlag, "save", false, "Save encoder and decoder to output_dirs")
	flag.StringVar(&sampleSrc, "sample-src", "", "Source sentence for a sample forward pass")
	flag.StringVar(&sampleTgt, "sample-tgt", "", "Target sentence for a sample forward pass")
	flag.StringVar(&exportVocab, "export-vocab", "", "Directory to write src_vocab.json and tgt_vocab.json")
	flag.StringVar(&exportCorpus, "export-corpus", "", "Text file to tokenize into binary id shards")
	flag.StringVar(&exportPrefix, "export-prefix", "", "Output prefix for id shards")
	flag.StringVar(&exportSide, "export-side", "src", "Tokenizer used for -export-corpus: src or tgt")
	flag.Int64Var(&maxShard, "max-shard-bytes", 2<<30, "Maximum size of one .bin shard")
	flag.BoolVar(&debugFlag, "debug", false, "Verbose debug logging")
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	file := params.File{
		Model:      params.Default(),
		OutputDirs: params.OutputDirs{Encoder: "out/encoder", Decoder: "out/decoder"},
	}
	if configPath != "" {
		f, err := params.LoadFile(configPath)
		if err != nil {
			return err
		}
		file = f
	}
	cfg := file.Model
	params.Debug = cfg.Debug || debugFlag

	var (
		model *translation.Model
		toks  IO.Tokenizers
		err   error
	)
	if loadFlag {
		fmt.Println("Loading model from", file.OutputDirs.Encoder, "and", file.OutputDirs.Decoder)
		if model, err = translation.Load(file.OutputDirs, cfg); err != nil {
			return err
		}
		if toks, err = translation.LoadTokenizers(ctx, cfg); err != nil {
			return err
		}
		if err := model.CheckTokenizers(toks); err != nil {
			return err
		}
	} else {
		fmt.Printf("Building model (hidden=%d layers=%d heads=%d)...\n",
			cfg.HiddenSize, cfg.NumHiddenLayers, cfg.NumAttentionHeads)
		if model, toks, err = translation.Build(ctx, cfg); err != nil {
			return err
		}
	}
	fmt.Printf("✅ Model ready on %s: src vocab %d, tgt vocab %d\n",
		model.Device, toks.Src.VocabSize(), toks.Tgt.VocabSize())

	if sampleSrc != "" || sampleTgt != "" {
		if err := sample(model, toks); err != nil {
			return err
		}
	}

	if exportVocab != "" {
		if err := os.MkdirAll(exportVocab, 0o755); err != nil {
			return err
		}
		for name, tok := range map[string]IO.Tokenizer{"src_vocab.json": toks.Src, "tgt_vocab.json": toks.Tgt} {
			if err := IO.ExportVocabJSON(filepath.Join(exportVocab, name), tok.Vocabulary()); err != nil {
				return err
			}
		}
		fmt.Println("✅ Exported vocabularies to", exportVocab)
	}

	if exportCorpus != "" {
		if err := exportShards(ctx, toks); err != nil {
			return err
		}
	}

	if saveFlag {
		for _, d := range []string{file.OutputDirs.Encoder, file.OutputDirs.Decoder} {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return err
			}
		}
		if err := model.Save(toks, file.OutputDirs); err != nil {
			return err
		}
		fmt.Println("✅ Saved encoder to", file.OutputDirs.Encoder, "and decoder to", file.OutputDirs.Decoder)
	}
	return nil
}

func sample(model *translation.Model, toks IO.Tokenizers) error {
	enc, err := toks.Src.Encode(sampleSrc)
	if err != nil {
		return err
	}
	dec, err := toks.Tgt.Encode(sampleTgt)
	if err != nil {
		return err
	}
	loss, logits, err := model.Forward(enc, dec)
	if err != nil {
		return err
	}
	r, c := logits.Dims()
	fmt.Printf("Sample: %d src ids, %d tgt ids, loss %.4f, logits %dx%d\n", len(enc), len(dec), loss, r, c)

	// greedy reconstruction of the target from the decoder's distribution
	probs := utils.ColSoftmax(logits)
	pred := make([]int, c)
	gold := 0.0
	for t := 0; t < c; t++ {
		col := mat.Col(nil, t, probs)
		pred[t] = floats.MaxIdx(col)
		gold += col[dec[t]]
	}
	fmt.Printf("Reconstruction: %q (mean gold-token prob %.4f)\n", toks.Tgt.Decode(pred), gold/float64(c))
	return nil
}

func exportShards(ctx context.Context, toks IO.Tokenizers) error {
	if exportPrefix == "" {
		return fmt.Errorf("-export-corpus needs -export-prefix")
	}
	var tok IO.Tokenizer
	switch exportSide {
	case "src":
		tok = toks.Src
	case "tgt":
		tok = toks.Tgt
	default:
		return fmt.Errorf("-export-side must be src or tgt, got %q", exportSide)
	}
	n, err := IO.ExportTokenIDsBinary(ctx, tok, exportCorpus, exportPrefix, maxShard)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Exported %d %s sequences to %s-*.bin\n", n, exportSide, exportPrefix)
	return nil
}
