package IO

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/decoder"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"

	"github.com/manningwu07/itr/params"
	"github.com/manningwu07/itr/utils"
)

// VocabFile is the WordPiece vocabulary inside a pretrained tokenizer
// directory or Hugging Face repo.
const VocabFile = "vocab.txt"

// BERT special tokens.
const (
	UnkToken  = "[UNK]"
	PadToken  = "[PAD]"
	ClsToken  = "[CLS]"
	SepToken  = "[SEP]"
	MaskToken = "[MASK]"
)

// Tokenizer maps text to vocabulary ids and back for one language side.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) string
	VocabSize() int
	PadID() int
	// BOSID and EOSID return -1 when no marker is set.
	BOSID() int
	EOSID() int
	SetBOS(tok string)
	SetEOS(tok string)
	Vocabulary() params.Vocabulary
}

// Tokenizers is the source/target pair returned by the model assembler.
type Tokenizers struct {
	Src Tokenizer
	Tgt Tokenizer
}

// BertTokenizer is a WordPiece tokenizer with BERT normalization and
// [CLS] ... [SEP] post-processing.
type BertTokenizer struct {
	tk       *tokenizer.Tokenizer
	vocab    params.Vocabulary
	bos, eos string
}

// NewBertTokenizer builds a tokenizer from a vocab.txt file. lowercase also
// strips accents, as the uncased BERT checkpoints expect.
func NewBertTokenizer(vocabFile string, lowercase bool) (*BertTokenizer, error) {
	model, err := wordpiece.NewWordPieceFromFile(vocabFile, UnkToken)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", vocabFile, err)
	}
	tk := tokenizer.NewTokenizer(model)
	tk.WithNormalizer(normalizer.NewBertNormalizer(true, lowercase, true, lowercase))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	t := &BertTokenizer{tk: tk}
	t.vocab = vocabularyOf(tk)
	for _, s := range []string{UnkToken, PadToken, ClsToken, SepToken} {
		if _, ok := t.vocab.TokenToID[s]; !ok {
			return nil, fmt.Errorf("%s: vocabulary has no %s token", vocabFile, s)
		}
	}
	sep := processor.PostToken{Id: t.vocab.TokenToID[SepToken], Value: SepToken}
	cls := processor.PostToken{Id: t.vocab.TokenToID[ClsToken], Value: ClsToken}
	tk.WithPostProcessor(processor.NewBertProcessing(sep, cls))

	special := []tokenizer.AddedToken{
		tokenizer.NewAddedToken(PadToken, true),
		tokenizer.NewAddedToken(SepToken, true),
		tokenizer.NewAddedToken(ClsToken, true),
	}
	if _, ok := t.vocab.TokenToID[MaskToken]; ok {
		special = append(special, tokenizer.NewAddedToken(MaskToken, true))
	}
	tk.AddSpecialTokens(special)
	tk.WithDecoder(decoder.NewWordPieceDecoder("##", true))

	utils.Debugf("tokenizer: %s, %d entries, lowercase=%v", vocabFile, len(t.vocab.IDToToken), lowercase)
	return t, nil
}

// LoadPretrained resolves nameOrDir to a vocab.txt, either a local directory
// or a Hugging Face model name fetched through the sugarme cache
// ($GO_TOKENIZER, default ~/.cache/tokenizer).
func LoadPretrained(ctx context.Context, nameOrDir string, lowercase bool) (*BertTokenizer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(nameOrDir, VocabFile)
	if !fileExists(path) {
		p, err := tokenizer.CachedPath(nameOrDir, VocabFile)
		if err != nil {
			return nil, fmt.Errorf("fetching %s tokenizer: %w", nameOrDir, err)
		}
		path = p
	}
	return NewBertTokenizer(path, lowercase)
}

// Encode returns the ids of text wrapped in [CLS] ... [SEP].
func (t *BertTokenizer) Encode(text string) ([]int, error) {
	enc, err := t.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, err
	}
	return append([]int(nil), enc.Ids...), nil
}

// Decode skips special tokens and joins word pieces.
func (t *BertTokenizer) Decode(ids []int) string {
	return t.tk.Decode(ids, true)
}

// VocabSize counts only the WordPiece vocabulary, not added tokens.
func (t *BertTokenizer) VocabSize() int {
	return t.tk.GetVocabSize(false)
}

func (t *BertTokenizer) PadID() int { return VocabLookup(t.vocab, PadToken) }

func (t *BertTokenizer) SetBOS(tok string) { t.bos = tok }

func (t *BertTokenizer) SetEOS(tok string) { t.eos = tok }

func (t *BertTokenizer) BOSID() int { return t.markerID(t.bos) }

func (t *BertTokenizer) EOSID() int { return t.markerID(t.eos) }

// markerID maps an overridden marker to its id. Markers missing from the
// vocabulary resolve to [UNK].
func (t *BertTokenizer) markerID(tok string) int {
	if tok == "" {
		return -1
	}
	return VocabLookup(t.vocab, tok)
}

func (t *BertTokenizer) Vocabulary() params.Vocabulary { return t.vocab }

func vocabularyOf(tk *tokenizer.Tokenizer) params.Vocabulary {
	vocab := tk.GetVocab(false)
	id2tok := make([]string, len(vocab))
	tok2id := make(map[string]int, len(vocab))
	for tok, id := range vocab {
		tok2id[tok] = id
		if id >= 0 && id < len(id2tok) {
			id2tok[id] = tok
		}
	}
	return params.Vocabulary{TokenToID: tok2id, IDToToken: id2tok}
}
