package device

import (
	"errors"
	"slices"
	"testing"
)

func TestPlace(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		wantErr error
		anyErr  bool
	}{
		{"", CPU, nil, false},
		{"cpu", CPU, nil, false},
		{" CPU ", CPU, nil, false},
		{"cuda", "", ErrNoAccelerator, true},
		{"cuda:1", "", ErrNoAccelerator, true},
		{"mps", "", ErrNoAccelerator, true},
		{"tpu", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Place(tt.name)
			if tt.anyErr {
				if err == nil {
					t.Fatalf("Place(%q) succeeded, want error", tt.name)
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Fatalf("Place(%q) = %v, want %v", tt.name, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if d.Kind != tt.kind {
				t.Fatalf("kind = %q, want %q", d.Kind, tt.kind)
			}
			if d.Cores < 1 {
				t.Fatalf("cores = %d, want >= 1", d.Cores)
			}
			if d.BLAS == "" {
				t.Fatal("BLAS backend not reported")
			}
		})
	}
}

func TestDeviceString(t *testing.T) {
	if got := (Device{}).String(); got != "unplaced" {
		t.Fatalf("zero device = %q", got)
	}
	d, _ := Place("cpu")
	if d.String() == "" || d.String() == "unplaced" {
		t.Fatalf("placed device = %q", d.String())
	}
}

func TestHasAVX512MatchesFeatures(t *testing.T) {
	d, err := Place("cpu")
	if err != nil {
		t.Fatal(err)
	}
	want := slices.Contains(d.Features, "AVX512F") && slices.Contains(d.Features, "AVX512DQ")
	if got := d.HasAVX512(); got != want {
		t.Fatalf("HasAVX512() = %v, features %v", got, d.Features)
	}
	if (Device{Kind: CUDA}).HasAVX512() {
		t.Fatal("non-CPU device reports AVX-512")
	}
}
