//go:build accelerate

package device

// #cgo LDFLAGS: -framework Accelerate
import "C"

// Links netlib's CBLAS calls against Apple's Accelerate framework when built
// with `-tags accelerate`.
func init() {
	blasBackend = "accelerate"
}
