package IO

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestExportTokenIDsBinaryRoundTrip(t *testing.T) {
	dir := writeVocab(t)
	tok, err := NewBertTokenizer(filepath.Join(dir, VocabFile), true)
	if err != nil {
		t.Fatal(err)
	}
	corpus := filepath.Join(dir, "corpus.txt")
	if err := os.WriteFile(corpus, []byte("hello world\n\nthe cat\nhello"), 0o644); err != nil {
		t.Fatal(err)
	}
	prefix := filepath.Join(dir, "out")

	// 16 bytes holds exactly one 4-token sequence, so each line gets a shard.
	n, err := ExportTokenIDsBinary(context.Background(), tok, corpus, prefix, 16)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("wrote %d sequences, want 3", n)
	}

	want := [][][]int{
		{{2, 5, 6, 3}},
		{{2, 8, 9, 3}},
		{{2, 5, 3}},
	}
	for shard, w := range want {
		got, err := ReadTokenIDShard(prefix, shard)
		if err != nil {
			t.Fatalf("shard %d: %v", shard, err)
		}
		if !reflect.DeepEqual(got, w) {
			t.Fatalf("shard %d = %v, want %v", shard, got, w)
		}
	}
	if _, err := ReadTokenIDShard(prefix, 3); err == nil {
		t.Fatal("expected error reading a shard that was never written")
	}
}

func TestExportTokenIDsBinarySingleShard(t *testing.T) {
	dir := writeVocab(t)
	tok, _ := NewBertTokenizer(filepath.Join(dir, VocabFile), true)
	corpus := filepath.Join(dir, "corpus.txt")
	os.WriteFile(corpus, []byte("hello\nthe cat\n"), 0o644)
	prefix := filepath.Join(dir, "one")

	if _, err := ExportTokenIDsBinary(context.Background(), tok, corpus, prefix, 1<<20); err != nil {
		t.Fatal(err)
	}
	got, err := ReadTokenIDShard(prefix, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int{{2, 5, 3}, {2, 8, 9, 3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestVocabJSONRoundTrip(t *testing.T) {
	dir := writeVocab(t)
	tok, _ := NewBertTokenizer(filepath.Join(dir, VocabFile), false)
	path := filepath.Join(dir, "vocab.json")
	if err := ExportVocabJSON(path, tok.Vocabulary()); err != nil {
		t.Fatal(err)
	}
	got, err := ImportVocabJSON(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, tok.Vocabulary()) {
		t.Fatalf("vocab changed in round trip")
	}
	if VocabLookup(got, "cat") != 9 || VocabLookup(got, "dog") != 1 {
		t.Fatal("VocabLookup mismatch")
	}
}
