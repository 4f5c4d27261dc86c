// Package device decides where the model's matrix math runs. Only the host CPU
// is available; the BLAS backend behind gonum is chosen at build time.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"github.com/manningwu07/itr/utils"
)

type Kind string

const (
	CPU  Kind = "cpu"
	CUDA Kind = "cuda"
)

// ErrNoAccelerator is returned when a GPU-style device is requested.
var ErrNoAccelerator = errors.New("no accelerator available")

// blasBackend names the blas64 implementation in use; build-tagged files
// replace it.
var blasBackend = "gonum"

// Device is the result of placement. Once a model is placed it carries its
// Device for the rest of its life.
type Device struct {
	Kind     Kind
	Name     string
	Cores    int
	Features []string
	BLAS     string
}

// simdFeatures are the CPU extensions gonum's assembly kernels or a native
// BLAS can use.
var simdFeatures = []cpuid.FeatureID{
	cpuid.SSE4, cpuid.AVX, cpuid.AVX2, cpuid.FMA3,
	cpuid.AVX512F, cpuid.AVX512DQ, cpuid.ASIMD,
}

// Place resolves a device name from the config. "" and "cpu" select the host;
// "cuda", "cuda:N", "gpu" and "mps" fail with ErrNoAccelerator.
func Place(name string) (Device, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case n == "" || n == string(CPU):
		return hostCPU(), nil
	case n == string(CUDA) || strings.HasPrefix(n, "cuda:") || n == "gpu" || n == "mps":
		return Device{}, fmt.Errorf("device %q: %w", name, ErrNoAccelerator)
	default:
		return Device{}, fmt.Errorf("unknown device %q", name)
	}
}

func hostCPU() Device {
	d := Device{
		Kind:  CPU,
		Name:  strings.TrimSpace(cpuid.CPU.BrandName),
		Cores: cpuid.CPU.PhysicalCores,
		BLAS:  blasBackend,
	}
	if d.Cores <= 0 {
		d.Cores = cpuid.CPU.LogicalCores
	}
	if d.Cores <= 0 {
		d.Cores = 1
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Has(f) {
			d.Features = append(d.Features, f.String())
		}
	}
	utils.Debugf("device: %s, avx512=%v", d, d.HasAVX512())
	return d
}

// HasAVX512 reports whether the wide float kernels are usable.
func (d Device) HasAVX512() bool {
	return d.Kind == CPU && cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ)
}

func (d Device) String() string {
	if d.Kind == "" {
		return "unplaced"
	}
	name := d.Name
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("%s (%s, %d cores, blas=%s, simd=%s)",
		d.Kind, name, d.Cores, d.BLAS, strings.Join(d.Features, ","))
}
