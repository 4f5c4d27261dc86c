package transformer

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/itr/utils"
)

func TestDropout(t *testing.T) {
	x := mat.NewDense(4, 8, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 8; j++ {
			x.Set(i, j, float64(i*8+j+1))
		}
	}
	d := Dropout{P: 0.5}
	if got := d.Forward(x, nil); got != x {
		t.Fatal("eval mode should return the input unchanged")
	}

	out := d.Forward(x, utils.NewSource(1))
	dropped := 0
	for i := 0; i < 4; i++ {
		for j := 0; j < 8; j++ {
			switch v := out.At(i, j); v {
			case 0:
				dropped++
			case 2 * x.At(i, j):
			default:
				t.Fatalf("[%d,%d] = %g, want 0 or %g", i, j, v, 2*x.At(i, j))
			}
		}
	}
	if dropped == 0 || dropped == 32 {
		t.Fatalf("dropped %d of 32 activations", dropped)
	}
}
