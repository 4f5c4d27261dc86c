package transformer

import (
	"math/rand/v2"

	"github.com/manningwu07/itr/utils"
)

// Replicator is a Module that can hand out weight-sharing copies.
type Replicator[M any] interface {
	Module
	Replica(src rand.Source) M
}

// DataParallel holds n replicas of one module. Replicas share every weight
// (read-only during forward) but draw dropout masks from private sources, so
// they can run on separate goroutines.
type DataParallel[M Replicator[M]] struct {
	core     M
	replicas []M
}

func NewDataParallel[M Replicator[M]](core M, n int, seed uint64) *DataParallel[M] {
	if n < 1 {
		n = 1
	}
	dp := &DataParallel[M]{core: core, replicas: make([]M, n)}
	for i := range dp.replicas {
		dp.replicas[i] = core.Replica(utils.NewSource(seed + uint64(i)))
	}
	return dp
}

func (dp *DataParallel[M]) TrainableCore() Module { return dp.core }

func (dp *DataParallel[M]) Replicas() []M { return dp.replicas }

func (dp *DataParallel[M]) Config() BertConfig { return dp.core.Config() }

func (dp *DataParallel[M]) NamedParameters() []NamedParameter { return dp.core.NamedParameters() }

func (dp *DataParallel[M]) InputEmbeddings() *Embedding { return dp.core.InputEmbeddings() }

func (dp *DataParallel[M]) SetInputEmbeddings(e *Embedding) error {
	return dp.core.SetInputEmbeddings(e)
}

func (dp *DataParallel[M]) Train(on bool) {
	dp.core.Train(on)
	for _, r := range dp.replicas {
		r.Train(on)
	}
}
