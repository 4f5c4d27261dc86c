package IO

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/manningwu07/itr/params"
)

// VocabLookup returns the id of tok, or the [UNK] id when tok is unknown.
func VocabLookup(v params.Vocabulary, tok string) int {
	if id, ok := v.TokenToID[tok]; ok {
		return id
	}
	return v.TokenToID[UnkToken]
}

// ExportVocabJSON writes v as {"TokenToID": ..., "IDToToken": ...}.
func ExportVocabJSON(path string, v params.Vocabulary) error {
	if len(v.IDToToken) == 0 {
		return fmt.Errorf("export vocab: empty vocabulary")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	data := map[string]any{
		"TokenToID": v.TokenToID,
		"IDToToken": v.IDToToken,
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ImportVocabJSON reads a file written by ExportVocabJSON.
func ImportVocabJSON(path string) (params.Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return params.Vocabulary{}, err
	}
	defer f.Close()
	var data struct {
		TokenToID map[string]int `json:"TokenToID"`
		IDToToken []string       `json:"IDToToken"`
	}
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return params.Vocabulary{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(data.TokenToID) != len(data.IDToToken) {
		return params.Vocabulary{}, fmt.Errorf("%s: %d token ids but %d tokens", path, len(data.TokenToID), len(data.IDToToken))
	}
	return params.Vocabulary{TokenToID: data.TokenToID, IDToToken: data.IDToToken}, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
