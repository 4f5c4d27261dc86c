package transformer

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/utils"
)

type tensorData struct {
	Name       string
	Rows, Cols int
	Data       []float64
}

// WriteState gob-encodes m's named parameters in order.
func WriteState(w io.Writer, m Module) error {
	ps := m.NamedParameters()
	data := make([]tensorData, len(ps))
	for i, p := range ps {
		r, c := p.Value.Dims()
		raw := mat.DenseCopyOf(p.Value).RawMatrix()
		data[i] = tensorData{Name: p.Name, Rows: r, Cols: c, Data: raw.Data}
	}
	return gob.NewEncoder(w).Encode(data)
}

// ReadState copies a state written by WriteState into m. Every parameter of m
// must be present with the same shape; extra tensors are an error too.
func ReadState(r io.Reader, m Module) error {
	var data []tensorData
	if err := gob.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("decoding state: %w", err)
	}
	byName := make(map[string]tensorData, len(data))
	for _, d := range data {
		byName[d.Name] = d
	}
	ps := m.NamedParameters()
	if len(ps) != len(byName) {
		return fmt.Errorf("%w: state has %d tensors, model has %d", ErrShape, len(byName), len(ps))
	}
	for _, p := range ps {
		d, ok := byName[p.Name]
		if !ok {
			return fmt.Errorf("%w: state is missing %s", ErrShape, p.Name)
		}
		r, c := p.Value.Dims()
		if d.Rows != r || d.Cols != c || len(d.Data) != r*c {
			return fmt.Errorf("%w: %s is %dx%d in state, %dx%d in model", ErrShape, p.Name, d.Rows, d.Cols, r, c)
		}
		p.Value.Copy(mat.NewDense(r, c, d.Data))
	}
	return nil
}

// NewFromConfig builds an untrained module of the class named by
// cfg.Architectures. An empty list means BertForPreTraining.
func NewFromConfig(cfg BertConfig, seed uint64) (Module, error) {
	arch := ArchPreTraining
	if len(cfg.Architectures) > 0 {
		arch = cfg.Architectures[0]
	}
	src := utils.NewSource(seed)
	switch arch {
	case ArchPreTraining:
		return NewForPreTraining(cfg, src)
	case ArchMaskedLM:
		return NewForMaskedLM(cfg, src)
	default:
		return nil, fmt.Errorf("unknown architecture %q", arch)
	}
}

// FromPretrained rebuilds a module from a directory holding ConfigName and
// WeightsName.
func FromPretrained(dir string) (Module, error) {
	cfg, err := LoadConfig(filepath.Join(dir, ConfigName))
	if err != nil {
		return nil, err
	}
	m, err := NewFromConfig(cfg, 0)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, WeightsName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := ReadState(f, m); err != nil {
		return nil, fmt.Errorf("loading %s: %w", dir, err)
	}
	return m, nil
}
