package transformer

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/utils"
)

// MLP is BERT's intermediate + output dense pair.
type MLP struct {
	Inputs, Hiddens, Outputs  int
	HiddenWeights, HiddenBias *mat.Dense // (h x d), (h x 1)
	OutputWeights, OutputBias *mat.Dense // (d x h), (d x 1)

	act func(i, j int, v float64) float64
}

func NewMLP(dModel, hidden int, act string, std float64, src rand.Source) (*MLP, error) {
	fn, err := utils.Activation(act)
	if err != nil {
		return nil, err
	}
	return &MLP{
		Inputs:        dModel,
		Hiddens:       hidden,
		Outputs:       dModel,
		HiddenWeights: mat.NewDense(hidden, dModel, utils.NormalArray(dModel*hidden, std, src)),
		HiddenBias:    mat.NewDense(hidden, 1, nil),
		OutputWeights: mat.NewDense(dModel, hidden, utils.NormalArray(hidden*dModel, std, src)),
		OutputBias:    mat.NewDense(dModel, 1, nil),
		act:           fn,
	}, nil
}

func (mlp *MLP) Forward(X *mat.Dense) *mat.Dense {
	hiddenLin := utils.ToDense(utils.Dot(mlp.HiddenWeights, X))  // (h x T)
	hiddenWithBias := utils.AddBias(hiddenLin, mlp.HiddenBias) // (h x T)
	hiddenOutputs := utils.Apply(mlp.act, hiddenWithBias)
	finalLin := utils.ToDense(utils.Dot(mlp.OutputWeights, hiddenOutputs)) // (d x T)
	return utils.AddBias(finalLin, mlp.OutputBias)
}
