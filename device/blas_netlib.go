//go:build netlib || accelerate

package device

import (
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

// Routes gonum's Level 1-3 BLAS through the system CBLAS when built with
// `-tags netlib` (or `accelerate` on macOS).
func init() {
	blas64.Use(netlib.Implementation{})
	blasBackend = "netlib"
}
