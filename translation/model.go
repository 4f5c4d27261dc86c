package translation

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/device"
	"github.com/manningwu07/itr/transformer"
	"github.com/manningwu07/itr/utils"
)

// Model pairs the encoder with the decoder. The two share nothing but the
// hidden states handed over in Forward.
type Model struct {
	Encoder *transformer.ForPreTraining
	Decoder *transformer.ForMaskedLM
	Device  device.Device

	seed     uint64
	training bool

	mu     sync.Mutex
	encPar *transformer.DataParallel[*transformer.ForPreTraining]
	decPar *transformer.DataParallel[*transformer.ForMaskedLM]
}

// Forward encodes encIDs, then runs the decoder over decIDs with the
// encoder's final hidden states as cross-attention context and decIDs as the
// masked-LM labels. It returns the loss and the (tgtVocab x T) logits.
func (m *Model) Forward(encIDs, decIDs []int) (float64, *mat.Dense, error) {
	return forward(m.Encoder, m.Decoder, encIDs, decIDs)
}

func forward(enc *transformer.ForPreTraining, dec *transformer.ForMaskedLM, encIDs, decIDs []int) (float64, *mat.Dense, error) {
	out, err := enc.Forward(encIDs)
	if err != nil {
		return 0, nil, fmt.Errorf("encoder: %w", err)
	}
	loss, logits, err := dec.Forward(decIDs, out.SequenceOutput, decIDs)
	if err != nil {
		return 0, nil, fmt.Errorf("decoder: %w", err)
	}
	return loss, logits, nil
}

// Train switches dropout on or off for both sub-models and their replicas.
func (m *Model) Train(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.training = on
	m.Encoder.Train(on)
	m.Decoder.Train(on)
	if m.encPar != nil {
		m.encPar.Train(on)
		m.decPar.Train(on)
	}
}

// Result is one pair's output from ForwardBatch.
type Result struct {
	Loss   float64
	Logits *mat.Dense
}

// ForwardBatch runs every (enc[i], dec[i]) pair through Forward, spreading
// the pairs over one replica per CPU core. It returns per-pair results and
// the mean loss. The first failing pair's error is returned.
//
// ForwardBatch is not safe for concurrent use: the replicas keep one dropout
// source each, and two calls in training mode would draw from them at once.
func (m *Model) ForwardBatch(enc, dec [][]int) ([]Result, float64, error) {
	if len(enc) != len(dec) {
		return nil, 0, fmt.Errorf("%w: %d source and %d target sequences", transformer.ErrShape, len(enc), len(dec))
	}
	if len(enc) == 0 {
		return nil, 0, nil
	}
	encs, decs := m.replicas()
	workers := min(len(encs), len(enc))

	results := make([]Result, len(enc))
	errs := make([]error, len(enc))
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := w; i < len(enc); i += workers {
				loss, logits, err := forward(encs[w], decs[w], enc[i], dec[i])
				results[i] = Result{Loss: loss, Logits: logits}
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	total := 0.0
	for i, err := range errs {
		if err != nil {
			return nil, 0, fmt.Errorf("pair %d: %w", i, err)
		}
		total += results[i].Loss
	}
	utils.Debugf("forward batch: %d pairs on %d workers", len(enc), workers)
	return results, total / float64(len(enc)), nil
}

// replicas lazily builds the data-parallel sets, one replica per core. Each
// replica keeps its own dropout source across calls.
func (m *Model) replicas() ([]*transformer.ForPreTraining, []*transformer.ForMaskedLM) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.encPar == nil {
		n := max(m.Device.Cores, 1)
		m.encPar = transformer.NewDataParallel(m.Encoder, n, m.seed+1)
		m.decPar = transformer.NewDataParallel(m.Decoder, n, m.seed+uint64(n)+1)
		m.encPar.Train(m.training)
		m.decPar.Train(m.training)
	}
	return m.encPar.Replicas(), m.decPar.Replicas()
}
